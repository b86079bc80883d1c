package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/photosync/journal/internal/models"
	"github.com/photosync/journal/internal/observability"
	"github.com/photosync/journal/internal/repository"
)

// AuthService registers accounts and exchanges credentials for access tokens
type AuthService struct {
	users      repository.UserRepo
	tokens     *TokenService
	bcryptCost int
	logger     *observability.Logger
}

// NewAuthService creates a new AuthService. A zero bcryptCost uses the bcrypt default.
func NewAuthService(users repository.UserRepo, tokens *TokenService, bcryptCost int, logger *observability.Logger) *AuthService {
	if logger == nil {
		logger = observability.Component("auth")
	}
	return &AuthService{
		users:      users,
		tokens:     tokens,
		bcryptCost: bcryptCost,
		logger:     logger,
	}
}

// Register creates an account and returns a token for it
func (s *AuthService) Register(ctx context.Context, fullName, email, password string) (string, error) {
	account, err := models.NewAccount(fullName, email)
	if err != nil {
		return "", err
	}
	if err := account.SetPassword(password, s.bcryptCost); err != nil {
		return "", err
	}

	existing, err := s.users.GetByEmail(ctx, account.Email)
	if err != nil {
		return "", fmt.Errorf("failed to lookup user: %w", err)
	}
	if existing != nil {
		return "", models.ErrEmailExists
	}

	if err := s.users.Add(ctx, account); err != nil {
		return "", err
	}

	s.logger.WithField("user_id", account.ID).Info("Account registered")
	return s.tokens.Sign(account.ID)
}

// Login verifies credentials and returns a fresh token
func (s *AuthService) Login(ctx context.Context, email, password string) (string, error) {
	account, err := s.users.GetByEmail(ctx, strings.TrimSpace(strings.ToLower(email)))
	if err != nil {
		return "", fmt.Errorf("failed to lookup user: %w", err)
	}
	if account == nil || !account.VerifyPassword(password) {
		return "", models.ErrInvalidCredential
	}
	return s.tokens.Sign(account.ID)
}

// Authenticate resolves a bearer token to its account. Unknown, expired and
// malformed tokens all yield models.ErrUnauthorized.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*models.Account, error) {
	id, err := s.tokens.Verify(token)
	if err != nil {
		return nil, models.ErrUnauthorized
	}
	account, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to lookup user: %w", err)
	}
	if account == nil {
		return nil, models.ErrUnauthorized
	}
	return account, nil
}

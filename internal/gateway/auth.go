package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/photosync/journal/internal/models"
	"github.com/photosync/journal/internal/observability"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// AuthClient calls the account endpoints. It carries no session of its own.
type AuthClient struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
	logger  *observability.Logger
}

// NewAuthClient creates an AuthClient for baseURL
func NewAuthClient(baseURL string, timeout time.Duration, logger *observability.Logger) *AuthClient {
	if logger == nil {
		logger = observability.Component("gateway")
	}
	return &AuthClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Login exchanges credentials for a session token
func (a *AuthClient) Login(ctx context.Context, email, password string) (string, error) {
	return a.requestToken(ctx, "/auth/login", loginRequest{Email: email, Password: password})
}

// Register creates an account and returns its session token
func (a *AuthClient) Register(ctx context.Context, fullName, email, password string) (string, error) {
	return a.requestToken(ctx, "/auth/register", registerRequest{FullName: fullName, Email: email, Password: password})
}

func (a *AuthClient) requestToken(ctx context.Context, path string, payload interface{}) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	var resp tokenResponse
	if err := doJSON(ctx, a.http, a.logger, http.MethodPost, a.baseURL+path, bytes.NewReader(data), "application/json", &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", fmt.Errorf("%w: %s returned no token", models.ErrServerError, path)
	}
	return resp.Token, nil
}

// Profile fetches the account behind token
func (a *AuthClient) Profile(ctx context.Context, token string) (*models.User, error) {
	client := &http.Client{
		Transport: &oauth2.Transport{
			Source: requireToken{src: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})},
			Base:   a.http.Transport,
		},
		Timeout: a.timeout,
	}
	var user models.User
	if err := doJSON(ctx, client, a.logger, http.MethodGet, a.baseURL+"/profile", nil, "", &user); err != nil {
		return nil, err
	}
	return &user, nil
}

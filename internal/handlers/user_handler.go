package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/photosync/journal/internal/middleware"
	"github.com/photosync/journal/internal/models"
	"github.com/photosync/journal/internal/observability"
)

// AccountService registers accounts and issues tokens
type AccountService interface {
	Register(ctx context.Context, fullName, email, password string) (string, error)
	Login(ctx context.Context, email, password string) (string, error)
}

// UserHandler handles account endpoints
type UserHandler struct {
	accounts AccountService
	logger   *observability.Logger
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(accounts AccountService, logger *observability.Logger) *UserHandler {
	if logger == nil {
		logger = observability.Component("users")
	}
	return &UserHandler{accounts: accounts, logger: logger}
}

type registerRequest struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// Register creates an account
// POST /api/auth/register
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	token, err := h.accounts.Register(r.Context(), req.FullName, req.Email, req.Password)
	switch {
	case err == nil:
		respondJSON(w, http.StatusCreated, tokenResponse{Token: token})
	case errors.Is(err, models.ErrEmailExists):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, models.ErrEmptyEmail), errors.Is(err, models.ErrEmptyFullName), errors.Is(err, models.ErrPasswordTooShort):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.WithContext(r.Context()).WithError(err).Error("Registration failed")
		respondError(w, http.StatusInternalServerError, "Registration failed.")
	}
}

// Login exchanges credentials for a token
// POST /api/auth/login
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	token, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, tokenResponse{Token: token})
	case errors.Is(err, models.ErrInvalidCredential):
		respondError(w, http.StatusUnauthorized, err.Error())
	default:
		h.logger.WithContext(r.Context()).WithError(err).Error("Login failed")
		respondError(w, http.StatusInternalServerError, "Login failed.")
	}
}

// GetProfile returns the authenticated user's profile
// GET /api/profile
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	account := middleware.GetUserFromContext(r.Context())
	if account == nil {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	respondJSON(w, http.StatusOK, account.Profile())
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, models.ErrorResponse{Error: message})
}

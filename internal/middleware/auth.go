package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/photosync/journal/internal/models"
	"github.com/photosync/journal/internal/observability"
)

type contextKey string

const UserContextKey contextKey = "user"

// Authenticator resolves a bearer token to an account
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.Account, error)
}

// GetUserFromContext retrieves the authenticated account from request context
func GetUserFromContext(ctx context.Context) *models.Account {
	if account, ok := ctx.Value(UserContextKey).(*models.Account); ok {
		return account
	}
	return nil
}

// BearerAuth rejects requests without a valid "Authorization: Bearer" token
func BearerAuth(auth Authenticator, logger *observability.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = observability.Component("auth")
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				unauthorized(w, "Authorization token is required.")
				return
			}

			account, err := auth.Authenticate(r.Context(), token)
			if errors.Is(err, models.ErrUnauthorized) {
				unauthorized(w, "Invalid or expired token.")
				return
			}
			if err != nil {
				logger.WithContext(r.Context()).WithError(err).Error("Token lookup failed")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				json.NewEncoder(w).Encode(map[string]string{"error": "Authentication error."})
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, account)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

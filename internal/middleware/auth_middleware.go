package middleware

import (
	"context"
	"net/http"
	"strings"

	"sheetnotes/internal/domain"
	"sheetnotes/pkg/response"
)

type contextKey string

const UserKey contextKey = "user"

// SessionValidator turns a session token into its user.
type SessionValidator interface {
	RequireSession(token string) (*domain.User, error)
}

func AuthMiddleware(sessions SessionValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				response.Unauthorized(w, "No token provided")
				return
			}

			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				response.Unauthorized(w, "Invalid authorization header format")
				return
			}

			user, err := sessions.RequireSession(strings.TrimSpace(token))
			if err != nil {
				response.Unauthorized(w, "Invalid or expired token")
				return
			}

			recordUser(r.Context(), user.Subject)
			ctx := context.WithValue(r.Context(), UserKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetUser(r *http.Request) *domain.User {
	user, ok := r.Context().Value(UserKey).(*domain.User)
	if !ok {
		return nil
	}
	return user
}

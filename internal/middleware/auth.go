package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// contextKey is a custom type for context keys.
type contextKey string

// UserIDContextKey carries the authenticated user's ID.
const UserIDContextKey contextKey = "user_id"

// SessionValidator validates a bearer token and returns the user ID it
// belongs to. Implemented by the auth service.
type SessionValidator interface {
	ValidateSession(token string) (int64, error)
}

// AuthMiddleware enforces a valid Bearer session token and stores the
// user ID in the request context.
type AuthMiddleware struct {
	sessions SessionValidator
	logger   *zap.Logger
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(sessions SessionValidator, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{sessions: sessions, logger: logger}
}

// Handler rejects requests without a valid session.
func (am *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			unauthorized(w, "no authorization token provided")
			return
		}

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			unauthorized(w, "invalid authorization header format")
			return
		}

		userID, err := am.sessions.ValidateSession(token)
		if err != nil {
			am.logger.Debug("session rejected", zap.Error(err))
			unauthorized(w, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), UserIDContextKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserID extracts the authenticated user ID from the request context.
func UserID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(UserIDContextKey).(int64)
	return id, ok
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}

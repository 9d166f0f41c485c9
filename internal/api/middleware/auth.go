package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/gatherly/server/internal/api/respond"
	"github.com/gatherly/server/internal/auth"
)

const (
	userIDKey contextKey = "user_id"
	roleKey   contextKey = "role"
)

// RequireAuth validates the bearer access token and puts the caller's
// identity into the request context.
func RequireAuth(tokens *auth.JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := auth.TokenFromHeader(r.Header.Get("Authorization"))
			if err != nil {
				respond.Error(w, r, err)
				return
			}
			claims, err := tokens.Validate(token)
			if err != nil {
				respond.Error(w, r, err)
				return
			}
			userID, err := uuid.Parse(claims.Subject)
			if err != nil {
				respond.Error(w, r, auth.ErrInvalidToken)
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, userID)
			ctx = context.WithValue(ctx, roleKey, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserID returns the authenticated caller's id. The zero UUID means the
// request never passed RequireAuth.
func UserID(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(userIDKey).(uuid.UUID); ok {
		return id
	}
	return uuid.UUID{}
}

// Role returns the authenticated caller's role, or empty.
func Role(ctx context.Context) string {
	if role, ok := ctx.Value(roleKey).(string); ok {
		return role
	}
	return ""
}

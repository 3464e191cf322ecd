// Package middleware provides HTTP middlewares for authentication, rate
// limiting and request logging.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

type ctxKey string

const userKey ctxKey = "user"

// AccessCookie is the cookie carrying the access token.
const AccessCookie = "access_token"

// TokenVerifier resolves an access token to a user id.
type TokenVerifier interface {
	Authenticate(accessToken string) (string, error)
}

// RequireAuth is a middleware that enforces a valid access token.
//
// The token is read from the access_token cookie or, for non-browser
// clients, from an "Authorization: Bearer" header. On success the user id
// (the token subject) is stored in the request context so it can be used
// downstream as the authenticated user. Refresh, two-factor and unlock
// tokens are rejected.
func RequireAuth(v TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := AccessToken(r)
			if raw == "" {
				unauthorized(w, "authentication required")
				return
			}
			userID, err := v.Authenticate(raw)
			if err != nil || userID == "" {
				unauthorized(w, "invalid or expired token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// OptionalAuth stores the user id when a valid access token is present and
// lets the request through either way.
func OptionalAuth(v TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if raw := AccessToken(r); raw != "" {
				if userID, err := v.Authenticate(raw); err == nil && userID != "" {
					r = r.WithContext(WithUserID(r.Context(), userID))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AccessToken returns the bearer token or the access cookie, in that order.
func AccessToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if scheme, tok, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(tok)
		}
	}
	if c, err := r.Cookie(AccessCookie); err == nil {
		return c.Value
	}
	return ""
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": msg, "code": "UNAUTHORIZED"})
}

// WithUserID returns a copy of ctx carrying the authenticated user id.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey, userID)
}

// GetUserIDFromContext extracts the authenticated user ID from the request
// context. Returns an empty string if not found.
func GetUserIDFromContext(ctx context.Context) string {
	val := ctx.Value(userKey)
	if s, ok := val.(string); ok {
		return s
	}
	return ""
}

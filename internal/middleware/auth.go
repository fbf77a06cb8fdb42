// Package middleware holds the HTTP middleware shared by the API router.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/Strob0t/NovaLink/internal/domain/session"
)

type claimsCtxKey struct{}

// publicPaths are exempt from authentication.
var publicPaths = map[string]bool{
	"/health":           true,
	"/api/auth/session": true,
}

// SessionValidator validates a bearer token and returns its claims.
type SessionValidator interface {
	Validate(ctx context.Context, token string) (*session.Claims, error)
}

// Auth returns middleware that validates bearer session tokens. The
// websocket endpoint carries its token as a query parameter and performs
// its own validation, so it is not routed through this middleware.
func Auth(sessions SessionValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			token := bearerToken(r)
			if token == "" {
				http.Error(w, `{"error":"authorization required"}`, http.StatusUnauthorized)
				return
			}
			claims, err := sessions.Validate(r.Context(), token)
			if err != nil {
				http.Error(w, `{"error":"invalid or expired session"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), claimsCtxKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext returns the authenticated claims, or nil outside an
// authenticated request.
func ClaimsFromContext(ctx context.Context) *session.Claims {
	claims, _ := ctx.Value(claimsCtxKey{}).(*session.Claims)
	return claims
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(h, "Bearer "); ok {
		return token
	}
	return ""
}

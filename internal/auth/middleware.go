package auth

import (
	"context"
	"net/http"
	"strings"
)

type clientKey struct{}

// ClientFromContext returns the claims of the authenticated client, or
// nil for unauthenticated requests.
func ClientFromContext(ctx context.Context) *Claims {
	c, _ := ctx.Value(clientKey{}).(*Claims)
	return c
}

// skipAuth reports whether path is exempt from the bearer check.
// Non-API paths (health probes, metrics) never need a token, the token
// endpoint must stay reachable, and WebSocket upgrades carry their
// credential in the query string instead.
func skipAuth(path string) bool {
	if !strings.HasPrefix(path, "/api/") {
		return true
	}
	if strings.HasPrefix(path, "/api/v1/ws/") {
		return true
	}
	return path == "/api/v1/auth/token"
}

// AuthMiddleware enforces a valid bearer token on API routes and puts
// the resulting claims on the request context.
func AuthMiddleware(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skipAuth(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok {
				writeAuthError(w, http.StatusUnauthorized, "missing or invalid authorization header")
				return
			}

			claims, err := tokens.ValidateToken(raw)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "invalid or expired access token")
				return
			}

			ctx := context.WithValue(r.Context(), clientKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

type contextKey struct{}

// identityKey stores the authenticated Identity in the request context.
var identityKey = contextKey{}

// IdentityFromContext returns the authenticated caller, if any.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey).(*Identity)
	return id
}

// Middleware authenticates HTTP requests before they reach the MCP
// handler. Credentials come from "Authorization: Bearer <token>" or the
// X-API-Key header. When required is false, requests without
// credentials pass through anonymously; presented-but-invalid
// credentials are always rejected.
func Middleware(authenticator Authenticator, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)

			if token == "" {
				if required {
					w.Header().Set("WWW-Authenticate", "Bearer")
					http.Error(w, "Unauthorized: missing authentication token", http.StatusUnauthorized)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			id, err := authenticator.Authenticate(r.Context(), token)
			if err != nil {
				slog.Debug("auth: rejected request", "remote", r.RemoteAddr, "error", err)
				w.Header().Set("WWW-Authenticate", "Bearer")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), identityKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractToken gets the bearer token or API key from request headers.
func extractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.Header.Get("X-API-Key")
}

package middleware

import (
	"context"
	"net/http"
	"strings"
)

type tokenKeyType struct{}

var tokenKey = tokenKeyType{}

// RequireToken extracts the credential token from the Authorization header
// ("Bearer <token>") or, for browser clients that cannot set headers on a
// WebSocket upgrade, from the "token" query parameter. Verification is left
// to the handler.
func RequireToken() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				http.Error(w, "credential token required", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), tokenKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TokenFrom returns the token injected by RequireToken.
func TokenFrom(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenKey).(string)
	return token, ok && token != ""
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

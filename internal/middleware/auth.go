package middleware

import (
	"net/http"
	"strings"

	"github.com/onnwee/bastion/internal/auth"
)

// Authenticate validates an optional Authorization bearer token and stores
// its subject in the request context for downstream attribution (audit
// records, user-scoped rate limiting, request logs). Requests without a
// valid token proceed anonymously; enforcement is a handler concern.
func Authenticate(tokens *auth.TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const prefix = "Bearer "
			header := r.Header.Get("Authorization")
			if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
				if claims, err := tokens.Validate(header[len(prefix):]); err == nil {
					r = r.WithContext(SetUserID(r.Context(), claims.Subject))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

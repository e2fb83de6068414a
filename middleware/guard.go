package middleware

import (
	"errors"
	"net/http"
	"slices"
	"strings"

	goSentinel "github.com/MrEthical07/goSentinel"
)

// RequireSession admits requests carrying a bearer token whose session is still
// current. With roles, the token's role must be one of them. Validated claims are
// attached with [goSentinel.WithSessionClaims].
func RequireSession(engine *goSentinel.Engine, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Authentication required")
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Authentication required")
				return
			}

			claims, err := engine.ValidateToken(r.Context(), token)
			if err != nil {
				msg := "Invalid or expired session"
				if errors.Is(err, goSentinel.ErrTokenExpired) {
					msg = "Session token expired"
				}
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, msg)
				return
			}
			if len(roles) > 0 && !slices.Contains(roles, claims.Role) {
				writeError(w, http.StatusForbidden, CodeForbidden, "Insufficient permissions")
				return
			}

			ctx := goSentinel.WithSessionClaims(r.Context(), claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

package auth

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/joao-fontenele/catering-orders/internal/httpx"
)

// Authenticate resolves the bearer token into an Identity on the request
// context and rejects the request with 401 when it cannot.
func Authenticate(tokens *Tokens, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearer(r)
			if !ok {
				httpx.WriteMessage(w, logger, http.StatusUnauthorized, "missing bearer token")
				return
			}
			id, err := tokens.Parse(raw)
			if err != nil {
				logger.Debug("rejected token", zap.Error(err))
				httpx.WriteMessage(w, logger, http.StatusUnauthorized, "invalid or expired token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// RequireRole lets the request through only when the caller holds one of roles.
func RequireRole(logger *zap.Logger, roles ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := FromContext(r.Context())
			if !ok {
				httpx.WriteMessage(w, logger, http.StatusUnauthorized, "missing bearer token")
				return
			}
			for _, role := range roles {
				if id.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			httpx.WriteMessage(w, logger, http.StatusForbidden, "insufficient permissions")
		})
	}
}

func RequireStaff(logger *zap.Logger) func(http.Handler) http.Handler {
	return RequireRole(logger, RoleEmployee, RoleAdmin)
}

func RequireAdmin(logger *zap.Logger) func(http.Handler) http.Handler {
	return RequireRole(logger, RoleAdmin)
}

func bearer(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

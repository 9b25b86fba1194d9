package middlewarectx

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/render"

	"github.com/membooks/membooks-api/internal/http/response"
)

// AdminOnlyMiddleware пропускает только пользователей из административного
// allowlist. Email берется из контекста, заполненного JWTMiddleware, сравнение
// без учета регистра. Для всех остальных возвращает 403 Forbidden.
func AdminOnlyMiddleware(adminEmails []string, log *slog.Logger) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(adminEmails))
	for _, e := range adminEmails {
		allowed[strings.ToLower(strings.TrimSpace(e))] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			email, ok := r.Context().Value(Email).(string)
			if !ok || email == "" {
				log.Error("user identification missing")
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("user identification missing"))
				return
			}

			if _, ok := allowed[strings.ToLower(email)]; !ok {
				log.Warn("admin access denied", slog.String("email", email))
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, response.Error("admin access required"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

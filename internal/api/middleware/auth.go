// auth.go — middleware аутентификации модераторских endpoints.
// Общий секрет передаётся как Bearer token и сравнивается
// за константное время (crypto/subtle). Пустой секрет отключает
// проверку — режим локальной разработки.
package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	apierrors "github.com/santacruz-archive/photo-module/internal/api/errors"
)

// AdminAuth — middleware проверки модераторского токена.
type AdminAuth struct {
	token  string
	logger *slog.Logger
}

// NewAdminAuth создаёт middleware проверки модераторского токена.
// Пустой token означает, что защита отключена.
func NewAdminAuth(token string, logger *slog.Logger) *AdminAuth {
	if token == "" {
		logger.Warn("PM_ADMIN_TOKEN не задан: модераторские endpoints доступны без аутентификации")
	}
	return &AdminAuth{
		token:  token,
		logger: logger.With(slog.String("component", "admin_auth")),
	}
}

// Middleware возвращает HTTP middleware для проверки Bearer token.
func (a *AdminAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Защита отключена
			if a.token == "" {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				apierrors.Unauthorized(w, "Отсутствует заголовок Authorization")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				apierrors.Unauthorized(w, "Неверный формат Authorization: ожидается Bearer <token>")
				return
			}

			if subtle.ConstantTimeCompare([]byte(parts[1]), []byte(a.token)) != 1 {
				a.logger.Debug("Неверный модераторский токен",
					slog.String("remote_addr", r.RemoteAddr),
				)
				apierrors.Unauthorized(w, "Невалидный токен")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/JalalSordo/para/utils"
	"go.uber.org/zap"
)

// AdminKeyHeader carries the administration key
const AdminKeyHeader = "X-Admin-Key"

// RequireAdminKey guards app administration routes. An empty key disables them.
func RequireAdminKey(key string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key == "" {
				_ = utils.WriteForbidden(w, "App administration is disabled")
				return
			}
			given := r.Header.Get(AdminKeyHeader)
			if subtle.ConstantTimeCompare([]byte(given), []byte(key)) != 1 {
				logger.Warn("invalid admin key",
					zap.String("request_id", GetRequestIDFromContext(r.Context())),
					zap.String("remote_addr", r.RemoteAddr))
				_ = utils.WriteUnauthorized(w, "Invalid admin key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/courtalert/internal/model"
)

// NewCronAuthMiddleware はディスパッチトリガー用の認証ミドルウェアを返す。
// Authorization: Bearer <secret> がCRON_SECRETと一致しない場合は401を返し、
// 後続の処理には一切進まない。
func NewCronAuthMiddleware(secret string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
				slog.Warn("cron auth failed",
					slog.String("ip", ClientIP(r)),
					slog.String("path", r.URL.Path),
				)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

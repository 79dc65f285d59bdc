package middleware

import (
	"log/slog"
	"net/http"

	"github.com/hitoshi/profman/internal/model"
)

// NewAdminMiddleware は管理者権限を要求する認可チェーンの第4ステージを返す。
//
// プロフィールステージの後ろに配置することが前提で、解決済みプロフィールの
// is_adminがfalseの場合は403 FORBIDDENを返す。is_adminはトークンのクレーム
// ではなくストア側の値で判定する。
func NewAdminMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			profile, err := ProfileFromContext(r.Context())
			if err != nil {
				logger.Error("admin middleware requires profile middleware",
					slog.String("path", r.URL.Path),
				)
				WriteInternalServerError(w)
				return
			}

			if !profile.IsAdmin {
				WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

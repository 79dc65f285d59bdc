package middleware

import (
	"log/slog"
	"net/http"

	"github.com/hitoshi/profman/internal/model"
	"github.com/hitoshi/profman/internal/repository"
)

// NewProfileMiddleware は認証済みuidのプロフィールを解決する認可チェーンの第3ステージを返す。
//
// 認証ステージの後ろに配置することが前提で、コンテキストに件名uidが無い場合は
// ルーティング設定の誤りとして500を返す。プロフィールが存在しない場合は
// 404 USER_PROFILE_NOT_FOUNDを返す（アカウントはあるがプロフィール未作成の状態）。
func NewProfileMiddleware(repo repository.ProfileRepository, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			uid, err := SubjectFromContext(r.Context())
			if err != nil {
				// 認証ステージより前に配置されている。設定ミスでありユーザー起因ではない。
				logger.Error("profile middleware requires credential middleware",
					slog.String("path", r.URL.Path),
				)
				WriteInternalServerError(w)
				return
			}

			profile, err := repo.FindByUID(r.Context(), uid)
			if err != nil {
				logger.Error("failed to resolve user profile",
					slog.String("user_id", uid),
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}
			if profile == nil {
				WriteErrorResponse(w, http.StatusNotFound, model.NewUserProfileNotFoundError())
				return
			}

			ctx := ContextWithProfile(r.Context(), profile)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

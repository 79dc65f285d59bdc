package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/profman/internal/identity"
	"github.com/hitoshi/profman/internal/metrics"
	"github.com/hitoshi/profman/internal/model"
)

// NewCredentialMiddleware はBearerトークンを検証する認可チェーンの第2ステージを返す。
//
// Authorizationヘッダーから "Bearer <token>" を取り出し、署名・発行者・対象者・
// 有効期限に加えて失効状態（アカウントの失効時刻との比較）まで検証する。
// 検証失敗は理由別にメトリクスへ記録する。
// 成功時は復号したクレームセットと件名uidを後続ステージとハンドラーに公開する。
func NewCredentialMiddleware(verifier identity.TokenVerifier, collector metrics.MetricsCollector, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			idToken, apiErr := extractBearerToken(r)
			if apiErr != nil {
				WriteErrorResponse(w, http.StatusUnauthorized, apiErr)
				return
			}

			claims, err := verifier.VerifyIDToken(r.Context(), idToken, true)
			if err != nil {
				writeVerificationError(w, r, err, collector, logger)
				return
			}

			ctx := ContextWithClaims(r.Context(), claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractBearerToken はAuthorizationヘッダーからBearerトークンを取り出す。
// ヘッダーが無い場合とBearer形式でない場合を区別したエラーを返す。
// 空白区切りでちょうど2要素（スキームとトークン）でなければ形式不正とする。
func extractBearerToken(r *http.Request) (string, *model.APIError) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", model.NewAuthHeaderMissingError()
	}

	// "Bearer" は大文字小文字を区別しない（RFC 6750）
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", model.NewInvalidAuthHeaderFormatError()
	}

	return parts[1], nil
}

// writeVerificationError は検証エラーを分類してHTTPレスポンスに変換する。
// 分類できないエラー（IdPへの問い合わせ失敗など）は401ではなく500として扱う。
func writeVerificationError(w http.ResponseWriter, r *http.Request, err error, collector metrics.MetricsCollector, logger *slog.Logger) {
	switch {
	case errors.Is(err, identity.ErrTokenExpired):
		collector.RecordTokenVerificationFailure("expired")
		WriteErrorResponse(w, http.StatusUnauthorized, model.NewExpiredIDTokenError())
	case errors.Is(err, identity.ErrTokenRevoked):
		collector.RecordTokenVerificationFailure("revoked")
		WriteErrorResponse(w, http.StatusUnauthorized, model.NewRevokedIDTokenError())
	case errors.Is(err, identity.ErrTokenInvalid):
		collector.RecordTokenVerificationFailure("invalid")
		WriteErrorResponse(w, http.StatusUnauthorized, model.NewInvalidIDTokenError())
	default:
		logger.Error("token verification failed with unclassified error",
			slog.String("error", err.Error()),
			slog.String("path", r.URL.Path),
		)
		WriteInternalServerError(w)
	}
}

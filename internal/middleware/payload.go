package middleware

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/hitoshi/profman/internal/model"
)

// maxPayloadBytes はリクエストボディの最大サイズ（1MB）。
const maxPayloadBytes = 1 << 20

// NewPayloadMiddleware は空でないJSONボディを要求する認可チェーンの第1ステージを返す。
//
// ボディがJSONとして解析できない場合は400 INVALID_PAYLOAD、
// ボディが無い場合や空のJSONオブジェクト {} ・空の配列 [] の場合は400 EMPTY_PAYLOADを返す。
// 成功時は生のボディを後続ステージとハンドラーに公開する。
func NewPayloadMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
			if err != nil {
				WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidPayloadError())
				return
			}

			if len(body) == 0 {
				WriteErrorResponse(w, http.StatusBadRequest, model.NewEmptyPayloadError())
				return
			}

			// Content-Typeが間違っている場合やJSONの構文が不正な場合
			var parsed any
			if err := json.Unmarshal(body, &parsed); err != nil {
				WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidPayloadError())
				return
			}

			// 中身が空のJSONオブジェクト {} や空の配列 [] 、null、空文字列は空として扱う
			if isEmptyPayload(parsed) {
				WriteErrorResponse(w, http.StatusBadRequest, model.NewEmptyPayloadError())
				return
			}

			ctx := ContextWithPayload(r.Context(), body)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// isEmptyPayload は解析済みJSON値が「空」とみなされるかを判定する。
func isEmptyPayload(parsed any) bool {
	switch v := parsed.(type) {
	case nil:
		return true
	case map[string]any:
		return len(v) == 0
	case []any:
		return len(v) == 0
	case string:
		return v == ""
	default:
		return false
	}
}

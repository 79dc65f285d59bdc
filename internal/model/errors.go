// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// Detailsはフィールド単位のバリデーションエラーなど構造化された詳細がある場合のみ設定し、
// ない場合はレスポンスから省略される（nullは出力しない）。
type APIError struct {
	Code    string
	Message string
	Details any
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	// リクエスト不備（400）
	ErrCodeEmptyPayload   = "EMPTY_PAYLOAD"
	ErrCodeInvalidPayload = "INVALID_PAYLOAD"
	ErrCodeBadRequest     = "BAD_REQUEST"

	// 認証失敗（401）
	ErrCodeAuthHeaderMissing       = "AUTH_HEADER_MISSING"
	ErrCodeInvalidAuthHeaderFormat = "INVALID_AUTH_HEADER_FORMAT"
	ErrCodeExpiredIDToken          = "EXPIRED_ID_TOKEN"
	ErrCodeInvalidIDToken          = "INVALID_ID_TOKEN"
	ErrCodeRevokedIDToken          = "REVOKED_ID_TOKEN"

	// 認可失敗（403）
	ErrCodeForbidden = "FORBIDDEN"

	// 未検出（404）
	ErrCodeUserProfileNotFound = "USER_PROFILE_NOT_FOUND"

	// 一意制約違反（409）
	ErrCodeDuplicateEmail = "DUPLICATE_EMAIL"

	// バリデーション失敗（422）
	ErrCodeValidationFailed = "VALIDATION_FAILED"

	// サーバー側の失敗（500 / 503）
	ErrCodeInternalServerError = "INTERNAL_SERVER_ERROR"
	ErrCodeServiceUnavailable  = "SERVICE_UNAVAILABLE"
)

// NewEmptyPayloadError はボディが空（または空のオブジェクト・配列）の場合のエラーを生成する。
func NewEmptyPayloadError() *APIError {
	return &APIError{
		Code:    ErrCodeEmptyPayload,
		Message: "Payload cannot be empty",
	}
}

// NewInvalidPayloadError はボディがJSONとして解析できない場合のエラーを生成する。
func NewInvalidPayloadError() *APIError {
	return &APIError{
		Code:    ErrCodeInvalidPayload,
		Message: "Request body must be valid JSON with Content-Type: application/json",
	}
}

// NewBadRequestError は必須フィールド欠落などのユーザー起因エラーを生成する。
func NewBadRequestError(message string) *APIError {
	return &APIError{
		Code:    ErrCodeBadRequest,
		Message: message,
	}
}

// NewAuthHeaderMissingError はAuthorizationヘッダーがない場合のエラーを生成する。
func NewAuthHeaderMissingError() *APIError {
	return &APIError{
		Code:    ErrCodeAuthHeaderMissing,
		Message: "Authorization header is missing",
	}
}

// NewInvalidAuthHeaderFormatError はAuthorizationヘッダーの形式が不正な場合のエラーを生成する。
func NewInvalidAuthHeaderFormatError() *APIError {
	return &APIError{
		Code:    ErrCodeInvalidAuthHeaderFormat,
		Message: "Invalid Authorization header format",
	}
}

// NewExpiredIDTokenError はIDトークンが有効期限切れの場合のエラーを生成する。
func NewExpiredIDTokenError() *APIError {
	return &APIError{
		Code:    ErrCodeExpiredIDToken,
		Message: "Token has expired",
	}
}

// NewInvalidIDTokenError はIDトークンが検証に失敗した場合のエラーを生成する。
func NewInvalidIDTokenError() *APIError {
	return &APIError{
		Code:    ErrCodeInvalidIDToken,
		Message: "Invalid token",
	}
}

// NewRevokedIDTokenError はIDトークンが失効済みの場合のエラーを生成する。
// 有効期限内であっても、パスワード変更や明示的な失効より前に発行されたトークンは拒否される。
func NewRevokedIDTokenError() *APIError {
	return &APIError{
		Code:    ErrCodeRevokedIDToken,
		Message: "Token has been revoked",
	}
}

// NewForbiddenError は管理者権限がない場合のエラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:    ErrCodeForbidden,
		Message: "Admin privilege is required",
	}
}

// NewUserProfileNotFoundError はプロフィールが存在しない場合のエラーを生成する。
func NewUserProfileNotFoundError() *APIError {
	return &APIError{
		Code:    ErrCodeUserProfileNotFound,
		Message: "Could not get user",
	}
}

// NewDuplicateEmailError はメールアドレスの一意制約違反エラーを生成する。
func NewDuplicateEmailError() *APIError {
	return &APIError{
		Code:    ErrCodeDuplicateEmail,
		Message: "Email address is already in use",
	}
}

// NewValidationFailedError はフィールド単位の詳細付きバリデーションエラーを生成する。
// detailsにはフィールド名→エラーメッセージのマップを渡す。
func NewValidationFailedError(details any) *APIError {
	return &APIError{
		Code:    ErrCodeValidationFailed,
		Message: "Validation failed",
		Details: details,
	}
}

// NewInternalServerError は内部エラーを生成する。
// 内部の例外テキストはクライアントに漏らさず、一般的なメッセージのみ返す。
func NewInternalServerError(message string) *APIError {
	if message == "" {
		message = "An unexpected error occurred. Please try again later."
	}
	return &APIError{
		Code:    ErrCodeInternalServerError,
		Message: message,
	}
}

// NewServiceUnavailableError はストア接続不可などの上流障害エラーを生成する。
func NewServiceUnavailableError() *APIError {
	return &APIError{
		Code:    ErrCodeServiceUnavailable,
		Message: "Service is temporarily unavailable. Please try again later.",
	}
}

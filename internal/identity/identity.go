// Package identity は外部IdP（Identity Provider）との連携を提供する。
// IDトークンの検証とアカウント管理API（取得・更新・削除）のクライアントを含む。
package identity

import (
	"context"
	"errors"
	"time"
)

// 分類済みの検証エラー。ミドルウェア側でHTTPエラーコードにマッピングされる。
var (
	// ErrTokenExpired はIDトークンが有効期限切れであることを示す。
	ErrTokenExpired = errors.New("id token has expired")
	// ErrTokenInvalid はIDトークンが署名・発行者・対象者のいずれかの検証に失敗したことを示す。
	ErrTokenInvalid = errors.New("id token is invalid")
	// ErrTokenRevoked はIDトークンがアカウントの失効時刻より前に発行されたことを示す。
	ErrTokenRevoked = errors.New("id token has been revoked")
	// ErrUserNotFound は指定uidのアカウントがIdPに存在しないことを示す。
	ErrUserNotFound = errors.New("identity user not found")
)

// Claims はIDトークンから復号されたクレームセット。
// 1リクエストの間だけ存在し、永続化されない。
type Claims struct {
	Subject   string         // IdP側のアカウントID（uid）
	Email     string         // メールアドレス（ソーシャルログインでは空の可能性あり）
	Name      string         // 表示名（ソーシャルログインでは空の可能性あり）
	IssuedAt  time.Time      // 発行時刻
	ExpiresAt time.Time      // 有効期限
	Custom    map[string]any // カスタムクレーム（admin等）
}

// IsAdmin はカスタムクレームのadminフラグを返す。
func (c *Claims) IsAdmin() bool {
	v, ok := c.Custom["admin"]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

// UserRecord はIdPの管理APIから取得したアカウント情報。
type UserRecord struct {
	UID              string
	Email            string
	DisplayName      string
	Disabled         bool
	CreatedAt        time.Time
	LastSignInAt     time.Time
	TokensValidAfter time.Time // この時刻より前に発行されたトークンは失効済み
}

// TokenVerifier はIDトークンの検証インターフェース。
type TokenVerifier interface {
	// VerifyIDToken はIDトークンを検証し、復号したクレームセットを返す。
	// checkRevokedがtrueの場合、トークンの発行時刻をアカウントの失効時刻と比較する。
	// 失敗はErrTokenExpired / ErrTokenInvalid / ErrTokenRevokedに分類される。
	VerifyIDToken(ctx context.Context, idToken string, checkRevoked bool) (*Claims, error)
}

// UserManager はIdPのアカウント管理インターフェース。
// 削除は取り消し不可能であり、ローカルトランザクションには参加しない。
type UserManager interface {
	// GetUser は指定uidのアカウント情報を取得する。存在しない場合はErrUserNotFound。
	GetUser(ctx context.Context, uid string) (*UserRecord, error)
	// UpdateEmail はアカウントのメールアドレスを更新する。
	UpdateEmail(ctx context.Context, uid, email string) error
	// UpdatePassword はアカウントのパスワードを更新する。
	UpdatePassword(ctx context.Context, uid, password string) error
	// DeleteUser はアカウントを完全に削除する。取り消しはできない。
	DeleteUser(ctx context.Context, uid string) error
}

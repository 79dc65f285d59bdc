// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/profman/internal/model"
)

// ProfilePatch はプロフィールの部分更新を表す。
// nilのフィールドは変更せず、既存の値を維持する。
type ProfilePatch struct {
	UserName      *string
	Birthday      *model.Date
	FavoriteColor *model.FavoriteColor
}

// IsEmpty は更新対象フィールドが1つもないかを返す。
func (p ProfilePatch) IsEmpty() bool {
	return p.UserName == nil && p.Birthday == nil && p.FavoriteColor == nil
}

// ProfileRepository はユーザープロフィールの永続化インターフェース。
// uid（IdP側のアカウントID）を主キーとする1アイデンティティ1レコードのストア。
type ProfileRepository interface {
	// FindByUID は指定uidのプロフィールを取得する。見つからない場合はnilを返す。
	FindByUID(ctx context.Context, uid string) (*model.UserProfile, error)

	// FindByEmail は指定メールアドレスのプロフィールを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.UserProfile, error)

	// Create はプロフィールを新規作成する。
	// uidまたはemailの一意制約違反はIsUniqueViolationで判別できるエラーを返す。
	Create(ctx context.Context, profile *model.UserProfile) error

	// UpdateEmail は指定uidのメールアドレスを更新し、更新後のプロフィールを返す。
	// 対象が存在しない場合はnilを返す。
	UpdateEmail(ctx context.Context, uid, email string) (*model.UserProfile, error)

	// UpdateFields はnilでないフィールドのみを部分更新し、更新後のプロフィールを返す。
	// 対象が存在しない場合はnilを返す。
	UpdateFields(ctx context.Context, uid string, patch ProfilePatch) (*model.UserProfile, error)

	// DeleteByUID は指定uidのプロフィールを削除する。
	// 対象が存在しない場合もエラーにしない（冪等）。
	DeleteByUID(ctx context.Context, uid string) error

	// ListAll は全プロフィールをuid昇順で返す。
	ListAll(ctx context.Context) ([]*model.UserProfile, error)
}

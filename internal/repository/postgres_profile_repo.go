package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/profman/internal/model"
)

// profileColumns はSELECTで取得するカラムの並び。scanProfileと対応する。
const profileColumns = `uid, user_name, email, is_admin, birthday, favorite_color, created_at, updated_at`

// PostgresProfileRepo はPostgreSQLを使用したプロフィールリポジトリ。
type PostgresProfileRepo struct {
	db *sql.DB
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

// FindByUID は指定uidのプロフィールを取得する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByUID(ctx context.Context, uid string) (*model.UserProfile, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM user_profiles WHERE uid = $1`,
		uid,
	)

	profile, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find profile by uid: %w", err)
	}

	return profile, nil
}

// FindByEmail は指定メールアドレスのプロフィールを取得する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByEmail(ctx context.Context, email string) (*model.UserProfile, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM user_profiles WHERE email = $1`,
		email,
	)

	profile, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find profile by email: %w", err)
	}

	return profile, nil
}

// Create はプロフィールを新規作成する。
func (r *PostgresProfileRepo) Create(ctx context.Context, profile *model.UserProfile) error {
	now := time.Now()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	if profile.UpdatedAt.IsZero() {
		profile.UpdatedAt = now
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_profiles (uid, user_name, email, is_admin, birthday, favorite_color, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		profile.UID, profile.UserName, profile.Email, profile.IsAdmin,
		birthdayValue(profile.Birthday), colorValue(profile.FavoriteColor),
		profile.CreatedAt, profile.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert profile: %w", err)
	}

	return nil
}

// UpdateEmail は指定uidのメールアドレスを更新し、更新後のプロフィールを返す。
// 対象が存在しない場合はnilを返す。
func (r *PostgresProfileRepo) UpdateEmail(ctx context.Context, uid, email string) (*model.UserProfile, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE user_profiles SET email = $2, updated_at = now()
		 WHERE uid = $1
		 RETURNING `+profileColumns,
		uid, email,
	)

	profile, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update profile email: %w", err)
	}

	return profile, nil
}

// UpdateFields はnilでないフィールドのみを部分更新し、更新後のプロフィールを返す。
// 指定されなかったフィールドは既存の値を維持する。対象が存在しない場合はnilを返す。
func (r *PostgresProfileRepo) UpdateFields(ctx context.Context, uid string, patch ProfilePatch) (*model.UserProfile, error) {
	if patch.IsEmpty() {
		return r.FindByUID(ctx, uid)
	}

	sets := []string{"updated_at = now()"}
	args := []any{uid}

	if patch.UserName != nil {
		args = append(args, *patch.UserName)
		sets = append(sets, fmt.Sprintf("user_name = $%d", len(args)))
	}
	if patch.Birthday != nil {
		args = append(args, birthdayValue(patch.Birthday))
		sets = append(sets, fmt.Sprintf("birthday = $%d", len(args)))
	}
	if patch.FavoriteColor != nil {
		args = append(args, colorValue(patch.FavoriteColor))
		sets = append(sets, fmt.Sprintf("favorite_color = $%d", len(args)))
	}

	query := `UPDATE user_profiles SET ` + strings.Join(sets, ", ") +
		` WHERE uid = $1 RETURNING ` + profileColumns

	row := r.db.QueryRowContext(ctx, query, args...)

	profile, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update profile fields: %w", err)
	}

	return profile, nil
}

// DeleteByUID は指定uidのプロフィールを削除する。対象が存在しない場合もエラーにしない。
func (r *PostgresProfileRepo) DeleteByUID(ctx context.Context, uid string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM user_profiles WHERE uid = $1`,
		uid,
	)
	if err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}
	return nil
}

// ListAll は全プロフィールをuid昇順で返す。
func (r *PostgresProfileRepo) ListAll(ctx context.Context) ([]*model.UserProfile, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+profileColumns+` FROM user_profiles ORDER BY uid`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*model.UserProfile
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile row: %w", err)
		}
		profiles = append(profiles, profile)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate profile rows: %w", err)
	}

	return profiles, nil
}

// rowScanner は*sql.Rowと*sql.Rowsの共通部分。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanProfile は1行をUserProfileに変換する。
func scanProfile(row rowScanner) (*model.UserProfile, error) {
	var (
		profile  model.UserProfile
		birthday sql.NullTime
		color    sql.NullString
	)

	err := row.Scan(
		&profile.UID, &profile.UserName, &profile.Email, &profile.IsAdmin,
		&birthday, &color, &profile.CreatedAt, &profile.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if birthday.Valid {
		d := model.Date{Time: birthday.Time}
		profile.Birthday = &d
	}
	if color.Valid {
		c := model.FavoriteColor(color.String)
		profile.FavoriteColor = &c
	}

	return &profile, nil
}

// birthdayValue はNULL許容のbirthdayカラム用の値を返す。
func birthdayValue(d *model.Date) any {
	if d == nil || d.IsZero() {
		return nil
	}
	return d.Time
}

// colorValue はNULL許容のfavorite_colorカラム用の値を返す。
func colorValue(c *model.FavoriteColor) any {
	if c == nil || *c == "" {
		return nil
	}
	return string(*c)
}

// IsUniqueViolation はPostgreSQLの一意制約違反（23505）かを判定する。
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

// UniqueConstraintName は一意制約違反の制約名を返す。該当しない場合は空文字。
// 主キー（uid）違反とemail一意制約違反の区別に使う。
func UniqueConstraintName(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return pqErr.Constraint
	}
	return ""
}

// compile-time interface check
var _ ProfileRepository = (*PostgresProfileRepo)(nil)

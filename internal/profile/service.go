// Package profile はユーザープロフィールのドメインロジックを提供する。
// IdPのアカウントとストアのプロフィールという2つの書き込み先をまたぐ操作を
// 1か所に集約し、失敗時の補償削除と不整合の記録を担う。
package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/microcosm-cc/bluemonday"

	"github.com/hitoshi/profman/internal/identity"
	"github.com/hitoshi/profman/internal/metrics"
	"github.com/hitoshi/profman/internal/model"
	"github.com/hitoshi/profman/internal/repository"
)

// 不整合メトリクスのフロー名
const (
	flowCreate      = "create"
	flowDelete      = "delete"
	flowAdminDelete = "admin_delete"
	flowUpdateEmail = "update_email"
	flowRead        = "read"
)

const (
	userNameMaxLength = 50
	passwordMinLength = 6
)

// Service はプロフィール管理のサービス層。
// IdPとストアへの二重書き込みの順序と補償をここで一元管理する。
type Service struct {
	repo      repository.ProfileRepository
	idp       identity.UserManager
	collector metrics.MetricsCollector
	logger    *slog.Logger
	sanitizer *bluemonday.Policy
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	repo repository.ProfileRepository,
	idp identity.UserManager,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
) *Service {
	return &Service{
		repo:      repo,
		idp:       idp,
		collector: collector,
		logger:    logger,
		// 表示名はタグを一切許可しない
		sanitizer: bluemonday.StrictPolicy(),
	}
}

// CreateProfileInput はプロフィール新規作成の入力。
type CreateProfileInput struct {
	UserName      string
	Birthday      *model.Date
	FavoriteColor *model.FavoriteColor
}

// CreateProfile は認証済みアカウントに対応するプロフィールを作成する。
//
// この時点でIdP側のアカウントは既に存在する（トークン検証を通過している）。
// メールアドレスと表示名のいずれかが欠けている場合、このアカウントは
// プロフィールを持てないため、IdPのアカウントを補償削除してから400相当の
// エラーを返す。ストアへの挿入が失敗した場合も同様に補償削除してから
// エラーを返す。補償削除自体が失敗した場合は不整合としてログとメトリクスに記録する。
func (s *Service) CreateProfile(ctx context.Context, claims *identity.Claims, input CreateProfileInput) (*model.UserProfile, error) {
	if claims.Email == "" {
		s.compensateCreate(ctx, claims.Subject, errors.New("email claim is empty"))
		return nil, model.NewBadRequestError("email is not present in the token")
	}
	userName := s.sanitizer.Sanitize(strings.TrimSpace(input.UserName))
	if userName == "" {
		s.compensateCreate(ctx, claims.Subject, errors.New("user_name is empty"))
		return nil, model.NewBadRequestError("user_name is required")
	}
	if len([]rune(userName)) > userNameMaxLength {
		return nil, model.NewBadRequestError(fmt.Sprintf("user_name must be at most %d characters", userNameMaxLength))
	}
	if input.FavoriteColor != nil && !input.FavoriteColor.IsValid() {
		return nil, model.NewBadRequestError("favorite_color must be one of: " + strings.Join(colorNames(), ", "))
	}

	newProfile := &model.UserProfile{
		UID:           claims.Subject,
		UserName:      userName,
		Email:         claims.Email,
		IsAdmin:       claims.IsAdmin(),
		Birthday:      input.Birthday,
		FavoriteColor: input.FavoriteColor,
	}

	if err := s.repo.Create(ctx, newProfile); err != nil {
		s.compensateCreate(ctx, claims.Subject, err)
		return nil, model.NewInternalServerError("")
	}

	s.logger.Info("user profile created", slog.String("user_id", claims.Subject))

	return newProfile, nil
}

// EnsureProfile はソーシャルログイン時にプロフィールの存在を保証する。
// 既存のプロフィールがあればそれを返し、なければクレームの情報から新規作成する。
// 戻り値のboolは新規作成されたかどうかを示す。
func (s *Service) EnsureProfile(ctx context.Context, claims *identity.Claims) (*model.UserProfile, bool, error) {
	existing, err := s.repo.FindByUID(ctx, claims.Subject)
	if err != nil {
		return nil, false, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	if existing != nil {
		return existing, false, nil
	}

	// 新規作成に必要なフィールドが欠けたアカウントはプロフィールを持てない。
	// ログインは成立しているがIdP側のアカウントだけが残るため、補償削除する。
	if claims.Email == "" {
		s.compensateCreate(ctx, claims.Subject, errors.New("email claim is empty"))
		return nil, false, model.NewBadRequestError("email is not present in the token")
	}

	// 表示名が無いソーシャルアカウントはメールアドレスのローカル部を使う
	userName := s.sanitizer.Sanitize(strings.TrimSpace(claims.Name))
	if userName == "" {
		userName = localPart(claims.Email)
	}
	if userName == "" {
		s.compensateCreate(ctx, claims.Subject, errors.New("neither name claim nor email local part is usable"))
		return nil, false, model.NewBadRequestError("neither name nor email is present in the token")
	}

	newProfile := &model.UserProfile{
		UID:      claims.Subject,
		UserName: userName,
		Email:    claims.Email,
		IsAdmin:  claims.IsAdmin(),
	}

	if err := s.repo.Create(ctx, newProfile); err != nil {
		s.compensateCreate(ctx, claims.Subject, err)
		return nil, false, model.NewInternalServerError("")
	}

	s.logger.Info("user profile created via social login", slog.String("user_id", claims.Subject))

	return newProfile, true, nil
}

// compensateCreate はプロフィール作成失敗後にIdPのアカウントを補償削除する。
// 補償が成功すればシステムは作成前の状態に戻る。失敗した場合は
// プロフィールを持たないアカウントが残るため、不整合として記録する。
func (s *Service) compensateCreate(ctx context.Context, uid string, cause error) {
	s.logger.Error("profile creation failed, compensating identity account",
		slog.String("user_id", uid),
		slog.String("error", cause.Error()),
	)

	if err := s.idp.DeleteUser(ctx, uid); err != nil {
		s.collector.RecordCompensation(flowCreate, false)
		s.collector.RecordDataDiscrepancy(flowCreate)
		s.logger.Error("compensating delete failed, account left without profile",
			slog.String("user_id", uid),
			slog.String("error", err.Error()),
		)
		return
	}

	s.collector.RecordCompensation(flowCreate, true)
}

// GetProfile は指定uidのプロフィールを取得する。存在しない場合は404相当のエラーを返す。
func (s *Service) GetProfile(ctx context.Context, uid string) (*model.UserProfile, error) {
	p, err := s.repo.FindByUID(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	if p == nil {
		return nil, model.NewUserProfileNotFoundError()
	}
	return p, nil
}

// UpdateEmail は認証済みユーザーのメールアドレスをIdPとストアの両方で更新する。
//
// 更新順序はIdPが先。ストア側の更新が失敗した場合、IdPの変更を巻き戻す手段は
// ない（元のメールアドレスを保持していても再設定が失敗しうる）ため、
// 不整合として記録した上でエラーを返す。
func (s *Service) UpdateEmail(ctx context.Context, uid, email string) (*model.UserProfile, error) {
	email = strings.TrimSpace(email)
	if err := validation.Validate(email, validation.Required, is.Email); err != nil {
		return nil, model.NewBadRequestError("email must be a valid email address")
	}

	// ストアの一意制約違反を500にしないため、先に重複を検査する。
	// 検査と挿入の間の競合は一意制約が最終防衛線となる。
	existing, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("メールアドレスの重複検査に失敗しました: %w", err)
	}
	if existing != nil && existing.UID != uid {
		return nil, model.NewDuplicateEmailError()
	}

	if err := s.idp.UpdateEmail(ctx, uid, email); err != nil {
		return nil, fmt.Errorf("IdPのメールアドレス更新に失敗しました: %w", err)
	}

	updated, err := s.repo.UpdateEmail(ctx, uid, email)
	if err != nil {
		if repository.IsUniqueViolation(err) {
			// 検査後に同じメールアドレスが先に登録された。IdP側だけが更新済み。
			s.collector.RecordDataDiscrepancy(flowUpdateEmail)
			s.logger.Error("email updated on identity provider but duplicated in store",
				slog.String("user_id", uid),
			)
			return nil, model.NewDuplicateEmailError()
		}
		s.collector.RecordDataDiscrepancy(flowUpdateEmail)
		s.logger.Error("email updated on identity provider but store update failed",
			slog.String("user_id", uid),
			slog.String("error", err.Error()),
		)
		return nil, model.NewInternalServerError("")
	}
	if updated == nil {
		s.collector.RecordDataDiscrepancy(flowUpdateEmail)
		return nil, model.NewUserProfileNotFoundError()
	}

	s.logger.Info("user email updated", slog.String("user_id", uid))

	return updated, nil
}

// UpdatePassword は認証済みユーザーのパスワードをIdPで更新する。
// パスワードはストアには保存されないため、書き込み先はIdPのみ。
func (s *Service) UpdatePassword(ctx context.Context, uid, password string) error {
	if len(password) < passwordMinLength {
		return model.NewBadRequestError(fmt.Sprintf("password must be at least %d characters", passwordMinLength))
	}

	if err := s.idp.UpdatePassword(ctx, uid, password); err != nil {
		return fmt.Errorf("IdPのパスワード更新に失敗しました: %w", err)
	}

	s.logger.Info("user password updated", slog.String("user_id", uid))

	return nil
}

// UpdateProfileInput はプロフィール部分更新の入力。nilのフィールドは変更しない。
type UpdateProfileInput struct {
	UserName      *string
	Birthday      *model.Date
	FavoriteColor *model.FavoriteColor
}

// UpdateProfile は指定されたフィールドのみを部分更新し、更新後のプロフィールを返す。
// バリデーション失敗時はフィールド単位の詳細を持つ422相当のエラーを返す。
func (s *Service) UpdateProfile(ctx context.Context, uid string, input UpdateProfileInput) (*model.UserProfile, error) {
	details := map[string]string{}

	patch := repository.ProfilePatch{
		Birthday: input.Birthday,
	}

	if input.UserName != nil {
		userName := s.sanitizer.Sanitize(strings.TrimSpace(*input.UserName))
		if err := validation.Validate(userName, validation.Required, validation.RuneLength(1, userNameMaxLength)); err != nil {
			details["user_name"] = err.Error()
		} else {
			patch.UserName = &userName
		}
	}

	if input.FavoriteColor != nil {
		if !input.FavoriteColor.IsValid() {
			details["favorite_color"] = "must be one of: " + strings.Join(colorNames(), ", ")
		} else {
			patch.FavoriteColor = input.FavoriteColor
		}
	}

	if len(details) > 0 {
		return nil, model.NewValidationFailedError(details)
	}

	if patch.IsEmpty() {
		return nil, model.NewBadRequestError("at least one updatable field is required")
	}

	updated, err := s.repo.UpdateFields(ctx, uid, patch)
	if err != nil {
		return nil, fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
	}
	if updated == nil {
		return nil, model.NewUserProfileNotFoundError()
	}

	s.logger.Info("user profile updated", slog.String("user_id", uid))

	return updated, nil
}

// DeleteAccount は認証済みユーザーのアカウントとプロフィールを削除する。
//
// 削除順序はIdPが先。IdPの削除が成功した時点でユーザーは二度とログインできず、
// 残ったプロフィールは孤児レコードでしかない。そのためストア側の削除失敗は
// 呼び出し元には成功として扱わせ、不整合の記録だけを残す（整合ワーカーが後で回収する）。
func (s *Service) DeleteAccount(ctx context.Context, uid string) error {
	return s.deleteAccount(ctx, uid, flowDelete)
}

// AdminDeleteUser は管理者権限による任意ユーザーの削除。削除手順は自己削除と同じ。
func (s *Service) AdminDeleteUser(ctx context.Context, uid string) error {
	return s.deleteAccount(ctx, uid, flowAdminDelete)
}

func (s *Service) deleteAccount(ctx context.Context, uid, flow string) error {
	if err := s.idp.DeleteUser(ctx, uid); err != nil {
		// アカウントが既に無い場合は続行してプロフィールだけ削除する（冪等）
		if !errors.Is(err, identity.ErrUserNotFound) {
			return fmt.Errorf("IdPのアカウント削除に失敗しました: %w", err)
		}
	}

	if err := s.repo.DeleteByUID(ctx, uid); err != nil {
		s.collector.RecordDataDiscrepancy(flow)
		s.logger.Error("account deleted on identity provider but profile removal failed",
			slog.String("user_id", uid),
			slog.String("flow", flow),
			slog.String("error", err.Error()),
		)
		// ログイン手段は既に失われている。孤児プロフィールは整合ワーカーが回収する。
		return nil
	}

	s.logger.Info("user account deleted", slog.String("user_id", uid), slog.String("flow", flow))

	return nil
}

// ListProfiles は全ユーザーのプロフィールをuid昇順で返す。管理者専用。
func (s *Service) ListProfiles(ctx context.Context) ([]*model.UserProfile, error) {
	profiles, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("プロフィール一覧の取得に失敗しました: %w", err)
	}
	return profiles, nil
}

// UserDetail はプロフィールとIdP側のアカウント情報を結合した管理者向けビュー。
type UserDetail struct {
	Profile *model.UserProfile
	Account *identity.UserRecord
}

// GetUserDetail は指定uidのプロフィールとIdPアカウント情報を返す。管理者専用。
// プロフィールはあるがIdPアカウントが無い場合は孤児レコードであり、
// 不整合として記録した上で500相当のエラーを返す。
func (s *Service) GetUserDetail(ctx context.Context, uid string) (*UserDetail, error) {
	p, err := s.repo.FindByUID(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	if p == nil {
		return nil, model.NewUserProfileNotFoundError()
	}

	account, err := s.idp.GetUser(ctx, uid)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			s.collector.RecordDataDiscrepancy(flowRead)
			s.logger.Error("profile exists but identity account is missing",
				slog.String("user_id", uid),
			)
			return nil, model.NewInternalServerError("")
		}
		return nil, fmt.Errorf("IdPのアカウント取得に失敗しました: %w", err)
	}

	return &UserDetail{Profile: p, Account: account}, nil
}

// colorNames は許可されている色名の一覧を返す。エラーメッセージ用。
func colorNames() []string {
	names := make([]string, len(model.FavoriteColors))
	for i, c := range model.FavoriteColors {
		names[i] = string(c)
	}
	return names
}

// localPart はメールアドレスの@より前の部分を返す。
func localPart(email string) string {
	if i := strings.Index(email, "@"); i > 0 {
		return email[:i]
	}
	return ""
}

package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/profman/internal/model"
	"github.com/hitoshi/profman/internal/profile"
)

// MeServiceInterface は本人操作を担うサービスインターフェース。
type MeServiceInterface interface {
	// UpdateEmail はメールアドレスをIdPとストアの両方で更新する。
	UpdateEmail(ctx context.Context, uid, email string) (*model.UserProfile, error)
	// UpdatePassword はパスワードをIdPで更新する。
	UpdatePassword(ctx context.Context, uid, password string) error
	// UpdateProfile は指定されたフィールドのみを部分更新する。
	UpdateProfile(ctx context.Context, uid string, input profile.UpdateProfileInput) (*model.UserProfile, error)
	// DeleteAccount はIdPのアカウントとストアのプロフィールを削除する。
	DeleteAccount(ctx context.Context, uid string) error
}

// MeHandler は認証済みユーザー本人の操作を処理するHTTPハンドラー。
type MeHandler struct {
	service MeServiceInterface
}

// NewMeHandler はMeHandlerを生成する。
func NewMeHandler(service MeServiceInterface) *MeHandler {
	return &MeHandler{
		service: service,
	}
}

// GetMe は本人のプロフィールを返す。
// プロフィールは認可チェーンのプロフィールステージで解決済み。
// GET /api/v1/me
func (h *MeHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	p, ok := requireProfile(w, r)
	if !ok {
		return
	}

	writeJSONResponse(w, http.StatusOK, profileEnvelope{
		UserProfile: toUserProfileResponse(p),
	})
}

// updateEmailRequest はメールアドレス更新リクエストのボディ。
type updateEmailRequest struct {
	Email string `json:"email"`
}

// UpdateEmail は本人のメールアドレス更新を処理する。
// PUT /api/v1/me/email
func (h *MeHandler) UpdateEmail(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireSubject(w, r)
	if !ok {
		return
	}

	var req updateEmailRequest
	if err := decodePayload(r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	updated, err := h.service.UpdateEmail(r.Context(), uid, req.Email)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, profileEnvelope{
		UserProfile: toUserProfileResponse(updated),
	})
}

// updatePasswordRequest はパスワード更新リクエストのボディ。
type updatePasswordRequest struct {
	Password string `json:"password"`
}

// UpdatePassword は本人のパスワード更新を処理する。
// PUT /api/v1/me/password
func (h *MeHandler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireSubject(w, r)
	if !ok {
		return
	}

	var req updatePasswordRequest
	if err := decodePayload(r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	if err := h.service.UpdatePassword(r.Context(), uid, req.Password); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// updateProfileRequest はプロフィール部分更新リクエストのボディ。
// 省略されたフィールドは変更しない。
type updateProfileRequest struct {
	UserName      *string              `json:"user_name"`
	Birthday      *model.Date          `json:"birthday"`
	FavoriteColor *model.FavoriteColor `json:"favorite_color"`
}

// UpdateProfile は本人のプロフィール部分更新を処理する。
// PATCH /api/v1/me/profile
func (h *MeHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireSubject(w, r)
	if !ok {
		return
	}

	var req updateProfileRequest
	if err := decodePayload(r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	updated, err := h.service.UpdateProfile(r.Context(), uid, profile.UpdateProfileInput{
		UserName:      req.UserName,
		Birthday:      req.Birthday,
		FavoriteColor: req.FavoriteColor,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, profileEnvelope{
		UserProfile: toUserProfileResponse(updated),
	})
}

// DeleteMe は本人のアカウント削除（退会）を処理する。
// DELETE /api/v1/me
func (h *MeHandler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireSubject(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteAccount(r.Context(), uid); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

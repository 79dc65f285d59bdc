package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/profman/internal/identity"
	"github.com/hitoshi/profman/internal/middleware"
	"github.com/hitoshi/profman/internal/model"
	"github.com/hitoshi/profman/internal/profile"
)

// AuthServiceInterface は認証直後のプロフィール作成を担うサービスインターフェース。
type AuthServiceInterface interface {
	// CreateProfile は認証済みアカウントに対応するプロフィールを作成する。
	// ストアへの挿入が失敗した場合はIdPのアカウントを補償削除する。
	CreateProfile(ctx context.Context, claims *identity.Claims, input profile.CreateProfileInput) (*model.UserProfile, error)
	// EnsureProfile はソーシャルログイン時にプロフィールの存在を保証する。
	EnsureProfile(ctx context.Context, claims *identity.Claims) (*model.UserProfile, bool, error)
}

// AuthHandler はサインアップ直後のプロフィール作成を処理するHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface) *AuthHandler {
	return &AuthHandler{
		service: service,
	}
}

// addUserProfileRequest はプロフィール作成リクエストのボディ。
type addUserProfileRequest struct {
	UserName      string               `json:"user_name"`
	Birthday      *model.Date          `json:"birthday"`
	FavoriteColor *model.FavoriteColor `json:"favorite_color"`
}

// AddUserProfile はメール・パスワードサインアップ直後のプロフィール作成を処理する。
// POST /api/v1/auth/add-user-profile
func (h *AuthHandler) AddUserProfile(w http.ResponseWriter, r *http.Request) {
	claims, err := middleware.ClaimsFromContext(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	var req addUserProfileRequest
	if err := decodePayload(r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	created, err := h.service.CreateProfile(r.Context(), claims, profile.CreateProfileInput{
		UserName:      req.UserName,
		Birthday:      req.Birthday,
		FavoriteColor: req.FavoriteColor,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, profileEnvelope{
		UserProfile: toUserProfileResponse(created),
	})
}

// SocialLogin はソーシャルログイン時のプロフィール解決を処理する。
// 既存プロフィールがあれば200、初回ログインで新規作成した場合は201を返す。
// POST /api/v1/auth/social-login
func (h *AuthHandler) SocialLogin(w http.ResponseWriter, r *http.Request) {
	claims, err := middleware.ClaimsFromContext(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	p, created, err := h.service.EnsureProfile(r.Context(), claims)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	statusCode := http.StatusOK
	if created {
		statusCode = http.StatusCreated
	}

	writeJSONResponse(w, statusCode, profileEnvelope{
		UserProfile: toUserProfileResponse(p),
	})
}

package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/profman/internal/model"
	"github.com/hitoshi/profman/internal/profile"
)

// AdminServiceInterface は管理者操作を担うサービスインターフェース。
type AdminServiceInterface interface {
	// ListProfiles は全ユーザーのプロフィールをuid昇順で返す。
	ListProfiles(ctx context.Context) ([]*model.UserProfile, error)
	// GetUserDetail は指定uidのプロフィールとIdPアカウント情報を返す。
	GetUserDetail(ctx context.Context, uid string) (*profile.UserDetail, error)
	// AdminDeleteUser は指定uidのアカウントとプロフィールを削除する。
	AdminDeleteUser(ctx context.Context, uid string) error
}

// AdminHandler は管理者専用のユーザー管理を処理するHTTPハンドラー。
// 管理者権限の検査は認可チェーンの管理者ステージで完了している。
type AdminHandler struct {
	service AdminServiceInterface
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(service AdminServiceInterface) *AdminHandler {
	return &AdminHandler{
		service: service,
	}
}

// ListUsers は全ユーザーの一覧を返す。
// GET /api/v1/admin-user
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.service.ListProfiles(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	// 空の場合もnullではなく空配列を返す
	responses := make([]adminUserResponse, 0, len(profiles))
	for _, p := range profiles {
		responses = append(responses, toAdminUserResponse(p, nil))
	}

	writeJSONResponse(w, http.StatusOK, adminUserListEnvelope{
		UserProfiles: responses,
	})
}

// GetUser は指定ユーザーの詳細（IdPアカウント情報付き）を返す。
// GET /api/v1/admin-user/{id}
func (h *AdminHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "id")

	detail, err := h.service.GetUserDetail(r.Context(), uid)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, toUserDetailResponse(detail))
}

// deleteUserRequest は管理者によるユーザー削除リクエストのボディ。
type deleteUserRequest struct {
	UID string `json:"uid"`
}

// DeleteUser は指定ユーザーのアカウントとプロフィールを削除する。
// DELETE /api/v1/admin-user
func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	var req deleteUserRequest
	if err := decodePayload(r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	if req.UID == "" {
		handleServiceError(w, model.NewBadRequestError("uid is required"))
		return
	}

	if err := h.service.AdminDeleteUser(r.Context(), req.UID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

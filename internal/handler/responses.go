// Package handler はHTTPハンドラーとルーティングを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/profman/internal/identity"
	"github.com/hitoshi/profman/internal/middleware"
	"github.com/hitoshi/profman/internal/model"
	"github.com/hitoshi/profman/internal/profile"
)

// userProfileResponse は本人向けのプロフィール表現。uidは含めない。
type userProfileResponse struct {
	UserName      string      `json:"user_name"`
	Email         string      `json:"email"`
	IsAdmin       bool        `json:"is_admin"`
	Birthday      *model.Date `json:"birthday"`
	FavoriteColor *string     `json:"favorite_color"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// adminUserResponse は管理者向けのプロフィール表現。uidとIdP側のアカウント情報を含む。
type adminUserResponse struct {
	UID           string      `json:"uid"`
	UserName      string      `json:"user_name"`
	Email         string      `json:"email"`
	IsAdmin       bool        `json:"is_admin"`
	Birthday      *model.Date `json:"birthday"`
	FavoriteColor *string     `json:"favorite_color"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`

	Account *accountResponse `json:"account,omitempty"`
}

// accountResponse はIdP側のアカウント情報。管理者向け詳細でのみ返す。
type accountResponse struct {
	Disabled     bool       `json:"disabled"`
	CreatedAt    *time.Time `json:"created_at"`
	LastSignInAt *time.Time `json:"last_sign_in_at"`
}

// profileEnvelope は単一プロフィールのレスポンス封筒。
type profileEnvelope struct {
	UserProfile userProfileResponse `json:"user_profile"`
}

// adminUserEnvelope は管理者向け単一ユーザーのレスポンス封筒。
type adminUserEnvelope struct {
	UserProfile adminUserResponse `json:"user_profile"`
}

// adminUserListEnvelope は管理者向けユーザー一覧のレスポンス封筒。
type adminUserListEnvelope struct {
	UserProfiles []adminUserResponse `json:"user_profiles"`
}

// toUserProfileResponse はmodel.UserProfileから本人向けレスポンスに変換する。
func toUserProfileResponse(p *model.UserProfile) userProfileResponse {
	return userProfileResponse{
		UserName:      p.UserName,
		Email:         p.Email,
		IsAdmin:       p.IsAdmin,
		Birthday:      p.Birthday,
		FavoriteColor: colorString(p.FavoriteColor),
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

// toAdminUserResponse はmodel.UserProfileから管理者向けレスポンスに変換する。
func toAdminUserResponse(p *model.UserProfile, account *identity.UserRecord) adminUserResponse {
	resp := adminUserResponse{
		UID:           p.UID,
		UserName:      p.UserName,
		Email:         p.Email,
		IsAdmin:       p.IsAdmin,
		Birthday:      p.Birthday,
		FavoriteColor: colorString(p.FavoriteColor),
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}

	if account != nil {
		resp.Account = &accountResponse{
			Disabled:     account.Disabled,
			CreatedAt:    timeOrNil(account.CreatedAt),
			LastSignInAt: timeOrNil(account.LastSignInAt),
		}
	}

	return resp
}

func colorString(c *model.FavoriteColor) *string {
	if c == nil {
		return nil
	}
	s := string(*c)
	return &s
}

func timeOrNil(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// writeJSONResponse はJSONレスポンスを書き込む。
func writeJSONResponse(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeEmptyPayload, model.ErrCodeInvalidPayload, model.ErrCodeBadRequest:
		return http.StatusBadRequest
	case model.ErrCodeAuthHeaderMissing, model.ErrCodeInvalidAuthHeaderFormat,
		model.ErrCodeExpiredIDToken, model.ErrCodeInvalidIDToken, model.ErrCodeRevokedIDToken:
		return http.StatusUnauthorized
	case model.ErrCodeForbidden:
		return http.StatusForbidden
	case model.ErrCodeUserProfileNotFound:
		return http.StatusNotFound
	case model.ErrCodeDuplicateEmail:
		return http.StatusConflict
	case model.ErrCodeValidationFailed:
		return http.StatusUnprocessableEntity
	case model.ErrCodeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decodePayload は認可チェーンのペイロードステージが格納したボディをdstに復号する。
// JSON構文はステージで検証済みのため、ここでの失敗は型の不一致を意味する。
func decodePayload(r *http.Request, dst any) error {
	body, err := middleware.PayloadFromContext(r.Context())
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return model.NewBadRequestError("payload contains fields of unexpected type")
	}
	return nil
}

// requireProfile はプロフィールステージが解決したプロフィールを取得する。
// 取得できない場合はルーティング設定の誤りとして500を書き込み、falseを返す。
func requireProfile(w http.ResponseWriter, r *http.Request) (*model.UserProfile, bool) {
	p, err := middleware.ProfileFromContext(r.Context())
	if err != nil {
		slog.Error("handler requires profile middleware", slog.String("path", r.URL.Path))
		middleware.WriteInternalServerError(w)
		return nil, false
	}
	return p, true
}

// requireSubject は認証ステージが格納した件名uidを取得する。
func requireSubject(w http.ResponseWriter, r *http.Request) (string, bool) {
	uid, err := middleware.SubjectFromContext(r.Context())
	if err != nil {
		slog.Error("handler requires credential middleware", slog.String("path", r.URL.Path))
		middleware.WriteInternalServerError(w)
		return "", false
	}
	return uid, true
}

// toUserDetailResponse はUserDetailから管理者向け詳細レスポンスに変換する。
func toUserDetailResponse(detail *profile.UserDetail) adminUserEnvelope {
	return adminUserEnvelope{
		UserProfile: toAdminUserResponse(detail.Profile, detail.Account),
	}
}

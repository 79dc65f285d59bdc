package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/profman/internal/model"
)

// requestWithProfile はプロフィールステージ通過後の状態を再現したリクエストを返す。
func requestWithProfile(profile *model.UserProfile) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	return req.WithContext(ContextWithProfile(req.Context(), profile))
}

// TestAdminMiddleware_AdminProfile は管理者プロフィールが通過することを検証する。
func TestAdminMiddleware_AdminProfile(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := requestWithProfile(&model.UserProfile{UID: "uid-0001", IsAdmin: true})
	NewAdminMiddleware(testLogger())(next).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

// TestAdminMiddleware_NonAdminProfile は一般ユーザーが403 FORBIDDENになることを検証する。
func TestAdminMiddleware_NonAdminProfile(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("next handler should not be called")
	})

	w := httptest.NewRecorder()
	req := requestWithProfile(&model.UserProfile{UID: "uid-0001", IsAdmin: false})
	NewAdminMiddleware(testLogger())(next).ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
	if body := decodeErrorBody(t, w); body.Code != "FORBIDDEN" {
		t.Errorf("code = %q, want FORBIDDEN", body.Code)
	}
}

// TestAdminMiddleware_MissingProfile はプロフィールステージを経ていないリクエストが
// 設定ミスとして500になることを検証する。
func TestAdminMiddleware_MissingProfile(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("next handler should not be called")
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	NewAdminMiddleware(testLogger())(next).ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

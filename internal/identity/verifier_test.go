package identity

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	testIssuer   = "https://idp.example.com"
	testAudience = "profman-test"
)

var testSigningKey = []byte("test-signing-key")

// mockUserGetter はUserGetterのテスト用実装。
type mockUserGetter struct {
	getUserFn func(ctx context.Context, uid string) (*UserRecord, error)
}

func (m *mockUserGetter) GetUser(ctx context.Context, uid string) (*UserRecord, error) {
	return m.getUserFn(ctx, uid)
}

// newTestVerifier はJWKSの代わりに共有鍵（HS256）で検証するVerifierを生成する。
// NewVerifierは実際のJWKSエンドポイントを要求するため、テストでは直接構築する。
func newTestVerifier(users UserGetter) *Verifier {
	return &Verifier{
		keyfunc: func(token *jwt.Token) (any, error) {
			return testSigningKey, nil
		},
		issuer:       testIssuer,
		audience:     testAudience,
		validMethods: []string{"HS256"},
		users:        users,
	}
}

// signToken は指定クレームをHS256で署名したトークン文字列を返す。
func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(testSigningKey)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

// validClaims は検証を通過する最小のクレームセットを返す。
func validClaims() jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss":   testIssuer,
		"aud":   testAudience,
		"sub":   "uid-0001",
		"iat":   now.Add(-time.Minute).Unix(),
		"exp":   now.Add(time.Hour).Unix(),
		"email": "taro@example.com",
		"name":  "Taro",
	}
}

// TestVerifyIDToken_ValidToken は有効なトークンからクレームが復元されることを検証する。
func TestVerifyIDToken_ValidToken(t *testing.T) {
	v := newTestVerifier(nil)
	idToken := signToken(t, validClaims())

	claims, err := v.VerifyIDToken(context.Background(), idToken, false)
	if err != nil {
		t.Fatalf("VerifyIDToken returned error: %v", err)
	}

	if claims.Subject != "uid-0001" {
		t.Errorf("Subject = %q, want %q", claims.Subject, "uid-0001")
	}
	if claims.Email != "taro@example.com" {
		t.Errorf("Email = %q, want %q", claims.Email, "taro@example.com")
	}
	if claims.Name != "Taro" {
		t.Errorf("Name = %q, want %q", claims.Name, "Taro")
	}
	if claims.IsAdmin() {
		t.Error("IsAdmin() = true, want false for token without admin claim")
	}
}

// TestVerifyIDToken_AdminCustomClaim はadminカスタムクレームがIsAdminに反映されることを検証する。
func TestVerifyIDToken_AdminCustomClaim(t *testing.T) {
	v := newTestVerifier(nil)
	mc := validClaims()
	mc["admin"] = true
	idToken := signToken(t, mc)

	claims, err := v.VerifyIDToken(context.Background(), idToken, false)
	if err != nil {
		t.Fatalf("VerifyIDToken returned error: %v", err)
	}
	if !claims.IsAdmin() {
		t.Error("IsAdmin() = false, want true")
	}

	// 標準クレームはCustomに含まれない
	if _, ok := claims.Custom["email"]; ok {
		t.Error("Custom should not contain registered claim 'email'")
	}
}

// TestVerifyIDToken_ExpiredToken は期限切れトークンがErrTokenExpiredになることを検証する。
func TestVerifyIDToken_ExpiredToken(t *testing.T) {
	v := newTestVerifier(nil)
	mc := validClaims()
	mc["exp"] = time.Now().Add(-time.Hour).Unix()
	idToken := signToken(t, mc)

	_, err := v.VerifyIDToken(context.Background(), idToken, false)
	if !errors.Is(err, ErrTokenExpired) {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}
}

// TestVerifyIDToken_InvalidTokens は不正なトークン各種がErrTokenInvalidになることを検証する。
func TestVerifyIDToken_InvalidTokens(t *testing.T) {
	v := newTestVerifier(nil)

	tests := []struct {
		name  string
		token func(t *testing.T) string
	}{
		{
			name: "malformed string",
			token: func(t *testing.T) string {
				return "not-a-jwt"
			},
		},
		{
			name: "wrong issuer",
			token: func(t *testing.T) string {
				mc := validClaims()
				mc["iss"] = "https://attacker.example.com"
				return signToken(t, mc)
			},
		},
		{
			name: "wrong audience",
			token: func(t *testing.T) string {
				mc := validClaims()
				mc["aud"] = "other-project"
				return signToken(t, mc)
			},
		},
		{
			name: "wrong signing key",
			token: func(t *testing.T) string {
				token := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims())
				signed, err := token.SignedString([]byte("wrong-key"))
				if err != nil {
					t.Fatalf("failed to sign token: %v", err)
				}
				return signed
			},
		},
		{
			name: "disallowed signing method",
			token: func(t *testing.T) string {
				token := jwt.NewWithClaims(jwt.SigningMethodHS384, validClaims())
				signed, err := token.SignedString(testSigningKey)
				if err != nil {
					t.Fatalf("failed to sign token: %v", err)
				}
				return signed
			},
		},
		{
			name: "missing exp",
			token: func(t *testing.T) string {
				mc := validClaims()
				delete(mc, "exp")
				return signToken(t, mc)
			},
		},
		{
			name: "missing sub",
			token: func(t *testing.T) string {
				mc := validClaims()
				delete(mc, "sub")
				return signToken(t, mc)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.VerifyIDToken(context.Background(), tt.token(t), false)
			if !errors.Is(err, ErrTokenInvalid) {
				t.Errorf("expected ErrTokenInvalid, got %v", err)
			}
		})
	}
}

// TestVerifyIDToken_CheckRevoked_AccountDeleted はアカウント削除済みの場合にErrTokenRevokedになることを検証する。
func TestVerifyIDToken_CheckRevoked_AccountDeleted(t *testing.T) {
	users := &mockUserGetter{
		getUserFn: func(ctx context.Context, uid string) (*UserRecord, error) {
			return nil, fmt.Errorf("get user %s: %w", uid, ErrUserNotFound)
		},
	}
	v := newTestVerifier(users)
	idToken := signToken(t, validClaims())

	_, err := v.VerifyIDToken(context.Background(), idToken, true)
	if !errors.Is(err, ErrTokenRevoked) {
		t.Errorf("expected ErrTokenRevoked, got %v", err)
	}
}

// TestVerifyIDToken_CheckRevoked_AccountDisabled は無効化アカウントの場合にErrTokenRevokedになることを検証する。
func TestVerifyIDToken_CheckRevoked_AccountDisabled(t *testing.T) {
	users := &mockUserGetter{
		getUserFn: func(ctx context.Context, uid string) (*UserRecord, error) {
			return &UserRecord{UID: uid, Disabled: true}, nil
		},
	}
	v := newTestVerifier(users)
	idToken := signToken(t, validClaims())

	_, err := v.VerifyIDToken(context.Background(), idToken, true)
	if !errors.Is(err, ErrTokenRevoked) {
		t.Errorf("expected ErrTokenRevoked, got %v", err)
	}
}

// TestVerifyIDToken_CheckRevoked_IssuedBeforeInvalidation は失効時刻より前に発行された
// トークンがErrTokenRevokedになることを検証する。
func TestVerifyIDToken_CheckRevoked_IssuedBeforeInvalidation(t *testing.T) {
	users := &mockUserGetter{
		getUserFn: func(ctx context.Context, uid string) (*UserRecord, error) {
			// パスワード変更などで直近に全トークンが失効した状態
			return &UserRecord{UID: uid, TokensValidAfter: time.Now()}, nil
		},
	}
	v := newTestVerifier(users)

	mc := validClaims()
	mc["iat"] = time.Now().Add(-10 * time.Minute).Unix()
	idToken := signToken(t, mc)

	_, err := v.VerifyIDToken(context.Background(), idToken, true)
	if !errors.Is(err, ErrTokenRevoked) {
		t.Errorf("expected ErrTokenRevoked, got %v", err)
	}
}

// TestVerifyIDToken_CheckRevoked_IssuedAfterInvalidation は失効時刻より後に発行された
// トークンは有効なまま通過することを検証する。
func TestVerifyIDToken_CheckRevoked_IssuedAfterInvalidation(t *testing.T) {
	users := &mockUserGetter{
		getUserFn: func(ctx context.Context, uid string) (*UserRecord, error) {
			return &UserRecord{UID: uid, TokensValidAfter: time.Now().Add(-time.Hour)}, nil
		},
	}
	v := newTestVerifier(users)
	idToken := signToken(t, validClaims())

	claims, err := v.VerifyIDToken(context.Background(), idToken, true)
	if err != nil {
		t.Fatalf("VerifyIDToken returned error: %v", err)
	}
	if claims.Subject != "uid-0001" {
		t.Errorf("Subject = %q, want %q", claims.Subject, "uid-0001")
	}
}

// TestVerifyIDToken_CheckRevoked_LookupFailure はアカウント参照の失敗が
// 失効エラーに分類されず、そのまま伝播することを検証する。
func TestVerifyIDToken_CheckRevoked_LookupFailure(t *testing.T) {
	lookupErr := errors.New("IdP API request failed: connection refused")
	users := &mockUserGetter{
		getUserFn: func(ctx context.Context, uid string) (*UserRecord, error) {
			return nil, lookupErr
		},
	}
	v := newTestVerifier(users)
	idToken := signToken(t, validClaims())

	_, err := v.VerifyIDToken(context.Background(), idToken, true)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if errors.Is(err, ErrTokenRevoked) || errors.Is(err, ErrTokenInvalid) || errors.Is(err, ErrTokenExpired) {
		t.Errorf("lookup failure should not map to a token error, got %v", err)
	}
	if !errors.Is(err, lookupErr) {
		t.Errorf("expected wrapped lookup error, got %v", err)
	}
}

// TestVerifyIDToken_SkipRevocationCheck はcheckRevoked=falseの場合にIdPへの問い合わせが
// 発生しないことを検証する。
func TestVerifyIDToken_SkipRevocationCheck(t *testing.T) {
	called := false
	users := &mockUserGetter{
		getUserFn: func(ctx context.Context, uid string) (*UserRecord, error) {
			called = true
			return nil, ErrUserNotFound
		},
	}
	v := newTestVerifier(users)
	idToken := signToken(t, validClaims())

	if _, err := v.VerifyIDToken(context.Background(), idToken, false); err != nil {
		t.Fatalf("VerifyIDToken returned error: %v", err)
	}
	if called {
		t.Error("GetUser should not be called when checkRevoked is false")
	}
}

// TestNewVerifier_RequiredConfig は必須設定が欠けている場合にエラーになることを検証する。
func TestNewVerifier_RequiredConfig(t *testing.T) {
	if _, err := NewVerifier(VerifierConfig{Issuer: testIssuer, Audience: testAudience}, nil); err == nil {
		t.Error("expected error for missing JWKS URL")
	}
	if _, err := NewVerifier(VerifierConfig{JWKSURL: "https://idp.example.com/jwks"}, nil); err == nil {
		t.Error("expected error for missing issuer and audience")
	}
}

package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
)

// UserGetter はトークン失効チェックに必要な最小インターフェース。
// UserManagerの部分集合として定義する。
type UserGetter interface {
	GetUser(ctx context.Context, uid string) (*UserRecord, error)
}

// VerifierConfig はVerifierの設定。
type VerifierConfig struct {
	JWKSURL         string        // IdPの公開鍵セット（JWKS）エンドポイント
	Issuer          string        // 期待するiss値
	Audience        string        // 期待するaud値
	RefreshInterval time.Duration // JWKSの再取得間隔（デフォルト: 1時間）
	HTTPClient      *http.Client  // JWKS取得に使用するHTTPクライアント
}

// Verifier はIdPが発行したIDトークン（RS256 JWT）をJWKSで検証する。
type Verifier struct {
	keyfunc      jwt.Keyfunc
	issuer       string
	audience     string
	validMethods []string
	users        UserGetter
	jwks         *keyfunc.JWKS
}

// NewVerifier はJWKSエンドポイントから公開鍵を取得するVerifierを生成する。
// usersは失効チェック（checkRevoked=true）の際にアカウントの失効時刻を参照するために使う。
func NewVerifier(cfg VerifierConfig, users UserGetter) (*Verifier, error) {
	if cfg.JWKSURL == "" {
		return nil, fmt.Errorf("JWKS URL is required")
	}
	if cfg.Issuer == "" || cfg.Audience == "" {
		return nil, fmt.Errorf("issuer and audience are required")
	}

	refreshInterval := cfg.RefreshInterval
	if refreshInterval == 0 {
		refreshInterval = time.Hour
	}

	opts := keyfunc.Options{
		RefreshInterval:   refreshInterval,
		RefreshRateLimit:  time.Minute,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			slog.Error("failed to refresh JWKS", slog.String("error", err.Error()))
		},
	}
	if cfg.HTTPClient != nil {
		opts.Client = cfg.HTTPClient
	}

	jwks, err := keyfunc.Get(cfg.JWKSURL, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get JWKS from %s: %w", cfg.JWKSURL, err)
	}

	return &Verifier{
		keyfunc:      jwks.Keyfunc,
		issuer:       cfg.Issuer,
		audience:     cfg.Audience,
		validMethods: []string{"RS256"},
		users:        users,
		jwks:         jwks,
	}, nil
}

// Close はJWKSのバックグラウンド更新を停止する。
func (v *Verifier) Close() {
	if v.jwks != nil {
		v.jwks.EndBackground()
	}
}

// registeredClaimKeys はカスタムクレーム抽出時に除外する標準クレームのキー。
var registeredClaimKeys = map[string]struct{}{
	"iss": {}, "sub": {}, "aud": {}, "exp": {}, "nbf": {}, "iat": {}, "jti": {},
	"auth_time": {}, "email": {}, "email_verified": {}, "name": {}, "picture": {},
	"uid": {}, "user_id": {},
}

// VerifyIDToken はIDトークンを検証し、復号したクレームセットを返す。
// 署名・発行者・対象者・有効期限を検証した後、checkRevokedがtrueであれば
// 発行時刻をIdP側のアカウント失効時刻（tokens-valid-after）と比較する。
// 署名が有効でも、失効時刻より前に発行されたトークンはErrTokenRevokedになる。
func (v *Verifier) VerifyIDToken(ctx context.Context, idToken string, checkRevoked bool) (*Claims, error) {
	mapClaims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(idToken, mapClaims, v.keyfunc,
		jwt.WithValidMethods(v.validMethods),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, err := claimsFromMap(mapClaims)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	if checkRevoked {
		if err := v.checkRevoked(ctx, claims); err != nil {
			return nil, err
		}
	}

	return claims, nil
}

// checkRevoked はトークンの発行時刻をアカウントの失効時刻と比較する。
// アカウントが削除・無効化されている場合も失効として扱う。
func (v *Verifier) checkRevoked(ctx context.Context, claims *Claims) error {
	if v.users == nil {
		return fmt.Errorf("revocation check requested but user getter is not configured")
	}

	rec, err := v.users.GetUser(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return fmt.Errorf("%w: account no longer exists", ErrTokenRevoked)
		}
		// 分類不能な失敗はそのまま伝播させる（500扱い）
		return fmt.Errorf("failed to check token revocation: %w", err)
	}

	if rec.Disabled {
		return fmt.Errorf("%w: account is disabled", ErrTokenRevoked)
	}
	if !rec.TokensValidAfter.IsZero() && claims.IssuedAt.Before(rec.TokensValidAfter) {
		return fmt.Errorf("%w: token was issued before the last invalidation", ErrTokenRevoked)
	}

	return nil
}

// claimsFromMap はjwt.MapClaimsからClaimsを構築する。
// subが空のトークンは不正として扱う。
func claimsFromMap(mc jwt.MapClaims) (*Claims, error) {
	sub, err := mc.GetSubject()
	if err != nil || sub == "" {
		return nil, fmt.Errorf("token has no subject")
	}

	claims := &Claims{
		Subject: sub,
		Custom:  map[string]any{},
	}

	if iat, err := mc.GetIssuedAt(); err == nil && iat != nil {
		claims.IssuedAt = iat.Time
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}
	if email, ok := mc["email"].(string); ok {
		claims.Email = email
	}
	if name, ok := mc["name"].(string); ok {
		claims.Name = name
	}

	// 標準クレーム以外をカスタムクレームとして保持する
	for k, v := range mc {
		if _, reserved := registeredClaimKeys[k]; reserved {
			continue
		}
		claims.Custom[k] = v
	}

	return claims, nil
}

// compile-time interface check
var _ TokenVerifier = (*Verifier)(nil)

// Package middleware はHTTPミドルウェアを提供する。
// 認可チェーン（ペイロード → 認証 → プロフィール → 管理者権限）の各ステージと、
// ロギング・リカバリなどの横断的ミドルウェアを含む。
package middleware

import (
	"context"
	"fmt"

	"github.com/hitoshi/profman/internal/identity"
	"github.com/hitoshi/profman/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

const (
	payloadContextKey contextKey = "payload"
	claimsContextKey  contextKey = "claims"
	subjectContextKey contextKey = "subject_uid"
	profileContextKey contextKey = "user_profile"
)

// 認可チェーンの各ステージはコンテキストに値を「追加」するだけで、削除は行わない。
// 後続ステージとハンドラーは以下の取得関数を通して値を参照する。

// ContextWithPayload はコンテキストに解析済みリクエストボディ（生バイト）を注入する。
func ContextWithPayload(ctx context.Context, payload []byte) context.Context {
	return context.WithValue(ctx, payloadContextKey, payload)
}

// PayloadFromContext はペイロードステージが格納したリクエストボディを取得する。
func PayloadFromContext(ctx context.Context) ([]byte, error) {
	payload, ok := ctx.Value(payloadContextKey).([]byte)
	if !ok || len(payload) == 0 {
		return nil, fmt.Errorf("payload not found in context")
	}
	return payload, nil
}

// ContextWithClaims はコンテキストに復号済みクレームセットと件名uidを注入する。
func ContextWithClaims(ctx context.Context, claims *identity.Claims) context.Context {
	ctx = context.WithValue(ctx, claimsContextKey, claims)
	return context.WithValue(ctx, subjectContextKey, claims.Subject)
}

// ClaimsFromContext は認証ステージが格納したクレームセットを取得する。
func ClaimsFromContext(ctx context.Context) (*identity.Claims, error) {
	claims, ok := ctx.Value(claimsContextKey).(*identity.Claims)
	if !ok || claims == nil {
		return nil, fmt.Errorf("claims not found in context")
	}
	return claims, nil
}

// SubjectFromContext は認証ステージが格納した件名uidを取得する。
// 認証ステージを通過したリクエストでのみ有効。
func SubjectFromContext(ctx context.Context) (string, error) {
	uid, ok := ctx.Value(subjectContextKey).(string)
	if !ok || uid == "" {
		return "", fmt.Errorf("subject uid not found in context")
	}
	return uid, nil
}

// ContextWithProfile はコンテキストに解決済みプロフィールを注入する。
func ContextWithProfile(ctx context.Context, profile *model.UserProfile) context.Context {
	return context.WithValue(ctx, profileContextKey, profile)
}

// ProfileFromContext はプロフィールステージが格納したプロフィールを取得する。
func ProfileFromContext(ctx context.Context) (*model.UserProfile, error) {
	profile, ok := ctx.Value(profileContextKey).(*model.UserProfile)
	if !ok || profile == nil {
		return nil, fmt.Errorf("user profile not found in context")
	}
	return profile, nil
}

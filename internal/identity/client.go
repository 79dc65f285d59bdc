package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ClientConfig はIdP管理APIクライアントの設定。
type ClientConfig struct {
	BaseURL    string        // 管理APIのベースURL（例: "https://idp.example.com/admin"）
	APIKey     string        // サービスアカウントのAPIキー
	Timeout    time.Duration // HTTPタイムアウト（デフォルト: 10秒）
	HTTPClient *http.Client  // テスト用に差し替え可能
}

// Client はIdPの管理API（アカウントの取得・更新・削除）のHTTPクライアント。
// IdP側の変更はローカルトランザクションに参加しないため、
// 呼び出し側（Consistency Coordinator）が補償処理の責任を持つ。
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient はClientを生成する。
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("IdP API base URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("IdP API key is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    httpClient,
	}, nil
}

// accountResponse は管理APIのアカウント表現。
type accountResponse struct {
	UID              string    `json:"uid"`
	Email            string    `json:"email"`
	DisplayName      string    `json:"display_name"`
	Disabled         bool      `json:"disabled"`
	CreatedAt        time.Time `json:"created_at"`
	LastSignInAt     time.Time `json:"last_sign_in_at"`
	TokensValidAfter time.Time `json:"tokens_valid_after"`
}

// GetUser は指定uidのアカウント情報を取得する。
// 存在しない場合はErrUserNotFoundを返す。
func (c *Client) GetUser(ctx context.Context, uid string) (*UserRecord, error) {
	resp, err := c.do(ctx, http.MethodGet, "/v1/accounts/"+uid, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("get user %s: %w", uid, ErrUserNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get user %s: unexpected status %d", uid, resp.StatusCode)
	}

	var account accountResponse
	if err := json.NewDecoder(resp.Body).Decode(&account); err != nil {
		return nil, fmt.Errorf("get user %s: failed to decode response: %w", uid, err)
	}

	return &UserRecord{
		UID:              account.UID,
		Email:            account.Email,
		DisplayName:      account.DisplayName,
		Disabled:         account.Disabled,
		CreatedAt:        account.CreatedAt,
		LastSignInAt:     account.LastSignInAt,
		TokensValidAfter: account.TokensValidAfter,
	}, nil
}

// UpdateEmail はアカウントのメールアドレスを更新する。
func (c *Client) UpdateEmail(ctx context.Context, uid, email string) error {
	return c.patchAccount(ctx, uid, map[string]string{"email": email})
}

// UpdatePassword はアカウントのパスワードを更新する。
// IdP側でこのアカウントの発行済みトークンが全て失効する。
func (c *Client) UpdatePassword(ctx context.Context, uid, password string) error {
	return c.patchAccount(ctx, uid, map[string]string{"password": password})
}

// patchAccount はアカウントの属性を部分更新する。
func (c *Client) patchAccount(ctx context.Context, uid string, fields map[string]string) error {
	body, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("update user %s: failed to encode request: %w", uid, err)
	}

	resp, err := c.do(ctx, http.MethodPatch, "/v1/accounts/"+uid, bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("update user %s: %w", uid, ErrUserNotFound)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("update user %s: unexpected status %d", uid, resp.StatusCode)
	}

	return nil
}

// DeleteUser はアカウントを完全に削除する。取り消しはできない。
// すでに存在しない場合は冪等に成功として扱う。
func (c *Client) DeleteUser(ctx context.Context, uid string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/v1/accounts/"+uid, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		return nil
	default:
		return fmt.Errorf("delete user %s: unexpected status %d", uid, resp.StatusCode)
	}
}

// do は認証ヘッダー付きでHTTPリクエストを送信する。
func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("IdP API request failed: %w", err)
	}
	return resp, nil
}

// compile-time interface check
var _ UserManager = (*Client)(nil)

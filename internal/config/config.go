// Package config は環境変数からのアプリケーション設定読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// IdP（IDトークン検証とアカウント管理API）
	IdPIssuer   string
	IdPAudience string
	IdPJWKSURL  string
	IdPAPIURL   string
	IdPAPIKey   string
	IdPTimeout  time.Duration

	// Rate Limit
	RateLimitGeneral int

	// Reconcile Worker
	ReconcileInterval time.Duration

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.IdPIssuer = os.Getenv("IDP_ISSUER")
	if cfg.IdPIssuer == "" {
		missing = append(missing, "IDP_ISSUER")
	}

	cfg.IdPAudience = os.Getenv("IDP_AUDIENCE")
	if cfg.IdPAudience == "" {
		missing = append(missing, "IDP_AUDIENCE")
	}

	cfg.IdPJWKSURL = os.Getenv("IDP_JWKS_URL")
	if cfg.IdPJWKSURL == "" {
		missing = append(missing, "IDP_JWKS_URL")
	}

	cfg.IdPAPIURL = os.Getenv("IDP_API_URL")
	if cfg.IdPAPIURL == "" {
		missing = append(missing, "IDP_API_URL")
	}

	cfg.IdPAPIKey = os.Getenv("IDP_API_KEY")
	if cfg.IdPAPIKey == "" {
		missing = append(missing, "IDP_API_KEY")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.IdPTimeout = getEnvDuration("IDP_TIMEOUT", 10*time.Second)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.ReconcileInterval = getEnvDuration("RECONCILE_INTERVAL", 1*time.Hour)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

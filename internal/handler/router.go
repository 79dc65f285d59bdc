package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/profman/internal/identity"
	"github.com/hitoshi/profman/internal/metrics"
	"github.com/hitoshi/profman/internal/middleware"
	"github.com/hitoshi/profman/internal/repository"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger    *slog.Logger
	Collector metrics.MetricsCollector

	// 認可チェーン依存
	Verifier    identity.TokenVerifier
	ProfileRepo repository.ProfileRepository

	// 横断的ミドルウェア
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// サービス
	AuthService  AuthServiceInterface
	MeService    MeServiceInterface
	AdminService AdminServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// 横断的ミドルウェアの実行順序:
//
//	RequestID → Logging → Recovery → SecurityHeaders → CORS
//
// 認可チェーンはルートごとに必要なステージだけを宣言的に積む:
//
//	Payload → Credential → Profile → Admin
//
// 各ステージはコンテキストに値を追加するだけで、手前のステージの結果を壊さない。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.Collector))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService)
	meHandler := NewMeHandler(deps.MeService)
	adminHandler := NewAdminHandler(deps.AdminService)

	// 認可チェーンの各ステージ
	payload := middleware.NewPayloadMiddleware()
	credential := middleware.NewCredentialMiddleware(deps.Verifier, deps.Collector, deps.Logger)
	profile := middleware.NewProfileMiddleware(deps.ProfileRepo, deps.Logger)
	admin := middleware.NewAdminMiddleware(deps.Logger)

	// ヘルスチェック（認証・レート制限の対象外）
	r.Get("/health", handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.Middleware())
		}

		// サインアップ直後のプロフィール作成
		r.Route("/auth", func(r chi.Router) {
			r.With(payload, credential).Post("/add-user-profile", authHandler.AddUserProfile)
			r.With(credential).Post("/social-login", authHandler.SocialLogin)
		})

		// 本人操作
		r.Route("/me", func(r chi.Router) {
			r.With(credential, profile).Get("/", meHandler.GetMe)
			r.With(credential, profile).Delete("/", meHandler.DeleteMe)
			r.With(payload, credential, profile).Put("/email", meHandler.UpdateEmail)
			r.With(payload, credential).Put("/password", meHandler.UpdatePassword)
			r.With(payload, credential, profile).Patch("/profile", meHandler.UpdateProfile)
		})

		// 管理者操作
		r.Route("/admin-user", func(r chi.Router) {
			r.With(credential, profile, admin).Get("/", adminHandler.ListUsers)
			r.With(credential, profile, admin).Get("/{id}", adminHandler.GetUser)
			r.With(payload, credential, profile, admin).Delete("/", adminHandler.DeleteUser)
		})
	})

	return r
}

// handleHealth はプロセスの生存確認に応答する。
func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

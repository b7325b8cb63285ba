package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/marketgate/internal/middleware"
)

// SessionActions はルーターが扱う全アクション。session.Uniformが実装する。
type SessionActions interface {
	AuthActions
	AccountActions
	AdminActions
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	HealthChecker     HealthChecker
	SessionIDs        middleware.SessionIDReader
	Snapshots         middleware.SnapshotProvider
	Tokens            middleware.TokenSyncer
	CORSAllowedOrigin string
	HTTPS             bool
	RateLimiter       *middleware.RateLimiter
	CSRF              middleware.CSRFConfig
	Metrics           http.Handler

	// アクション
	Actions SessionActions
	SignIn  CredentialSignIn

	// 認証
	Cookies    SessionCookies
	OAuth      LoginURLProvider
	AuthConfig AuthHandlerConfig

	// 入力
	Sanitizer     InputSanitizer
	Avatars       AvatarFetcher
	AvatarMaxSize int64
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → RealIP → Session → RateLimit(General)
//
// /health と /metrics はセッション解決の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.HTTPS))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(chimiddleware.RealIP)

	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}

	authHandler := NewAuthHandler(deps.Actions, deps.SignIn, deps.Cookies, deps.OAuth, deps.Sanitizer, deps.AuthConfig)
	accountHandler := NewAccountHandler(deps.Actions, deps.Sanitizer, deps.Avatars, deps.AvatarMaxSize)
	adminHandler := NewAdminHandler(deps.Actions)
	csrf := middleware.NewCSRFMiddleware(deps.CSRF)

	// ミドルウェアスタック: Session → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionIDs, deps.Snapshots, deps.Tokens, logger))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// OAuthフロー（ブラウザ遷移のためCSRF検証の対象外）
		r.Route("/auth/google", func(r chi.Router) {
			r.Use(deps.RateLimiter.AuthMiddleware())
			r.Get("/login", authHandler.GoogleLogin)
			r.Get("/callback", authHandler.GoogleCallback)
		})

		r.Route("/api", func(r chi.Router) {
			r.Handle("/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRF))
			r.Get("/session", GetSession)

			// 認証
			r.Route("/auth", func(r chi.Router) {
				r.Use(deps.RateLimiter.AuthMiddleware())
				r.Use(csrf)
				r.Post("/signin", authHandler.SignIn)
				r.Post("/register", authHandler.Register)
				r.Post("/logout", authHandler.Logout)
				r.Post("/verify-email", authHandler.VerifyEmail)
				r.Post("/resend-verification", authHandler.ResendVerification)
				r.Post("/forgot-password", authHandler.ForgotPassword)
				r.Post("/reset-password", authHandler.ResetPassword)
			})

			// アカウント
			r.Route("/account", func(r chi.Router) {
				r.Use(middleware.RequireAuthenticated)
				r.Use(csrf)
				r.Post("/change-password", accountHandler.ChangePassword)
				r.Patch("/profile", accountHandler.UpdateProfile)
				r.Post("/photo", accountHandler.UploadPhoto)
			})

			// ユーザー管理
			r.Route("/admin/users", func(r chi.Router) {
				r.Use(csrf)
				r.With(middleware.RequireAdmin).Get("/", adminHandler.ListUsers)
				r.Route("/{id}", func(r chi.Router) {
					r.With(middleware.RequireAdmin).Patch("/status", adminHandler.UpdateStatus)
					r.With(middleware.RequireSuperAdmin).Patch("/role", adminHandler.UpdateRole)
					r.With(middleware.RequireSuperAdmin).Delete("/", adminHandler.DeleteUser)
				})
			})
		})
	})

	return r
}

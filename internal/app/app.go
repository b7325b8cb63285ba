package app

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/marketgate/internal/auth"
	"github.com/hitoshi/marketgate/internal/backend"
	"github.com/hitoshi/marketgate/internal/config"
	"github.com/hitoshi/marketgate/internal/database"
	"github.com/hitoshi/marketgate/internal/handler"
	"github.com/hitoshi/marketgate/internal/logger"
	"github.com/hitoshi/marketgate/internal/metrics"
	"github.com/hitoshi/marketgate/internal/middleware"
	"github.com/hitoshi/marketgate/internal/model"
	"github.com/hitoshi/marketgate/internal/profilecache"
	"github.com/hitoshi/marketgate/internal/repository"
	"github.com/hitoshi/marketgate/internal/security"
	"github.com/hitoshi/marketgate/internal/session"
	"github.com/hitoshi/marketgate/internal/worker/cleanup"
)

const (
	// cacheCleanupInterval はプロフィールキャッシュの期限切れエントリを掃除する間隔。
	cacheCleanupInterval = 5 * time.Minute
	dbPingTimeout        = 5 * time.Second
	shutdownTimeout      = 30 * time.Second
)

// Init はJSONログをwに出すように設定し、環境変数から設定を読む。
// ログは設定の読み込みより先に用意し、読み込みエラーもJSONで出るようにする。
func Init(w io.Writer) (*config.Config, error) {
	logger.SetupDefault(w)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		slog.Warn("invalid LOG_LEVEL, falling back to info", slog.String("error", err.Error()))
	}
	return cfg, nil
}

// Run はos.Args[1:]を受け取り、サブコマンドに応じたモードで起動する。
func Run(w io.Writer, args []string) error {
	cmd, rest, err := ParseCommand(args)
	if err != nil {
		return err
	}

	// healthcheckは設定もDBも要らない
	if cmd == CommandHealthcheck {
		return runHealthcheck(cmp.Or(os.Getenv("SERVER_PORT"), "8080"))
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg, rest)
	default:
		return runServe(cfg)
	}
}

// connect はDBを開き、疎通まで確認する。
func connect(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := database.Open(databaseURL)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, dbPingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database unreachable (%s): %w", maskDatabaseURL(databaseURL), err)
	}
	return db, nil
}

// gateway はserveモードで組み立てた依存関係のうち、起動後も面倒を見るもの。
type gateway struct {
	router   http.Handler
	limiter  *middleware.RateLimiter
	profiles *profilecache.Cache[*model.User]
	lists    *profilecache.Cache[[]model.User]
}

// wire は設定とDBから全レイヤーを組み立てる。
func wire(cfg *config.Config, db *sql.DB) *gateway {
	log := slog.Default()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	upstream := &http.Client{Timeout: cfg.BackendTimeout}
	backendClient := backend.NewClient(upstream, cfg.BackendAPIURL, cfg.BackendRateLimit, collector, log)

	// セッション
	sessions := repository.NewPostgresSessionRepo(db)
	tokens := session.NewTokenPersister(repository.NewPostgresTokenSlotRepo(db))
	authService := auth.NewService(
		auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
			ClientID:      cfg.GoogleClientID,
			ClientSecret:  cfg.GoogleClientSecret,
			RedirectURL:   cfg.GoogleRedirectURL,
			SelectAccount: cfg.GoogleSelectAccount,
			HTTPClient:    upstream,
		}),
		backendClient,
		sessions,
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
	)
	cookies := auth.NewCookieCodec(cfg.SessionSecret, auth.CookieConfig{
		Secure: cfg.CookieSecure,
		Domain: cfg.CookieDomain,
		MaxAge: cfg.SessionMaxAge,
	})

	// アクション層
	gw := &gateway{
		limiter:  middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitAuth)),
		profiles: profilecache.New[*model.User](cfg.ProfileCacheTTL, collector),
		lists:    profilecache.New[[]model.User](cfg.ProfileCacheTTL, collector),
	}
	actions := session.NewActions(
		backendClient, authService, tokens, gw.lists,
		[]session.Invalidator{gw.profiles, gw.lists}, collector,
	)

	gw.router = handler.NewRouter(&handler.RouterDeps{
		Logger:            log,
		HealthChecker:     db,
		SessionIDs:        cookies,
		Snapshots:         session.NewAggregator(authService, backendClient, gw.profiles, log),
		Tokens:            tokens,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		HTTPS:             cfg.CookieSecure,
		RateLimiter:       gw.limiter,
		CSRF:              middleware.CSRFConfig{CookieSecure: cfg.CookieSecure, CookieDomain: cfg.CookieDomain},
		Metrics:           metrics.Handler(registry),

		Actions: session.NewUniform(actions, log),
		SignIn:  session.NewLegacy(authService, actions, tokens),

		Cookies:    cookies,
		OAuth:      authService,
		AuthConfig: handler.AuthHandlerConfig{BaseURL: cfg.BaseURL, CookieSecure: cfg.CookieSecure},

		Sanitizer:     security.NewProfileSanitizer(),
		Avatars:       security.NewAvatarFetcher(security.NewSSRFGuard(), cfg.AvatarFetchTimeout, cfg.AvatarMaxSize),
		AvatarMaxSize: cfg.AvatarMaxSize,
	})
	return gw
}

// runServe はAPIサーバーを起動し、SIGINT/SIGTERMでグレースフルに止める。
func runServe(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	slog.Info("database connection established")

	gw := wire(cfg, db)
	defer gw.limiter.Stop()
	go gw.profiles.RunCleanup(ctx, cacheCleanupInterval)
	go gw.lists.RunCleanup(ctx, cacheCleanupInterval)

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           gw.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	listenErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		listenErr <- server.ListenAndServe()
	}()

	select {
	case err := <-listenErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen %s: %w", server.Addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker は期限切れセッションの掃除をシグナルを受けるまで繰り返す。
func runWorker(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	job := cleanup.NewCleanupJob(repository.NewPostgresSessionRepo(db), metrics.Nop{}, slog.Default())
	slog.Info("worker starting", slog.Duration("cleanup_interval", cfg.SessionCleanupInterval))
	job.Start(ctx, cfg.SessionCleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
func runMigrate(cfg *config.Config, args []string) error {
	plan, err := parseMigrateArgs(args)
	if err != nil {
		return err
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		slog.Bool("down", plan.Down),
		slog.Bool("status", plan.Status),
	)

	if plan.Status {
		status, err := database.CurrentMigration(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		slog.Info("database migration status",
			slog.Bool("applied", status.Applied),
			slog.Uint64("version", uint64(status.Version)),
			slog.Bool("dirty", status.Dirty),
		)
		return nil
	}

	if plan.Down {
		if err := database.RollbackMigrations(cfg.DatabaseURL, plan.Steps); err != nil {
			return fmt.Errorf("rollback failed: %w", err)
		}
		slog.Info("database migrations rolled back", slog.Int("steps", plan.Steps))
		return nil
	}

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はdistrolessイメージのHEALTHCHECKから呼ばれ、/health が200かを確かめる。
func runHealthcheck(port string) error {
	target := url.URL{Scheme: "http", Host: net.JoinHostPort("localhost", port), Path: "/health"}
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target.String())
	if err != nil {
		return fmt.Errorf("healthcheck: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("healthcheck: %s returned %d", target.Path, resp.StatusCode)
	}
	return nil
}

// maskDatabaseURL はログに出すDB URLのユーザー名・パスワード・クエリを伏せる。
// URL形式でないDSNは全体を伏せる。
func maskDatabaseURL(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "***"
	}
	if u.User != nil {
		u.User = url.User("***")
	}
	if u.RawQuery != "" {
		u.RawQuery = "***"
	}
	u.Fragment = ""
	return u.String()
}

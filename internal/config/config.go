package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// minSessionSecretLength はsecurecookieのハッシュキーとして必要な最小長。
const minSessionSecretLength = 32

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、以後は変更しない。
type Config struct {
	DatabaseURL string

	BackendAPIURL    string
	BackendTimeout   time.Duration
	BackendRateLimit int // req/sec

	GoogleClientID      string
	GoogleClientSecret  string
	GoogleRedirectURL   string
	GoogleSelectAccount bool

	SessionSecret          string
	SessionMaxAge          int // 秒
	SessionCleanupInterval time.Duration

	ProfileCacheTTL time.Duration

	AvatarMaxSize      int64
	AvatarFetchTimeout time.Duration

	RateLimitGeneral int // req/min
	RateLimitAuth    int // req/min

	LogLevel string

	ServerPort string
	BaseURL    string

	// CookieSecure はBASE_URLがhttpsのときtrue。HSTSの付与にも使う。
	CookieSecure bool
	CookieDomain string

	// CORSAllowedOrigin はカンマ区切りのオリジン一覧。
	CORSAllowedOrigin string
}

// envReader は環境変数を読み、不正値と未設定の必須値をまとめて報告する。
type envReader struct {
	missing []string
	errs    []error
}

func (r *envReader) required(key string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		r.missing = append(r.missing, key)
	}
	return v
}

func (r *envReader) str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func (r *envReader) positiveInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		r.errs = append(r.errs, fmt.Errorf("%s must be a positive integer: %q", key, v))
		return def
	}
	return n
}

func (r *envReader) positiveInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		r.errs = append(r.errs, fmt.Errorf("%s must be a positive integer: %q", key, v))
		return def
	}
	return n
}

func (r *envReader) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		r.errs = append(r.errs, fmt.Errorf("%s must be a positive duration such as 30s: %q", key, v))
		return def
	}
	return d
}

func (r *envReader) boolean(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s must be a boolean: %q", key, v))
		return def
	}
	return b
}

// httpURL は値が http/https の絶対URLであることを確認する。
func (r *envReader) httpURL(key, v string) {
	if v == "" {
		return
	}
	u, err := url.Parse(v)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		r.errs = append(r.errs, fmt.Errorf("%s must be an absolute http(s) URL: %q", key, v))
	}
}

// Load は環境変数からConfigを読み込む。
// 必須値の欠落と不正値はまとめて1つのエラーで返す。
func Load() (*Config, error) {
	var r envReader
	cfg := &Config{
		DatabaseURL:        r.required("DATABASE_URL"),
		BackendAPIURL:      strings.TrimRight(r.required("BACKEND_API_URL"), "/"),
		GoogleClientID:     r.required("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: r.required("GOOGLE_CLIENT_SECRET"),
		GoogleRedirectURL:  r.required("GOOGLE_REDIRECT_URL"),
		SessionSecret:      r.required("SESSION_SECRET"),
		BaseURL:            strings.TrimRight(r.required("BASE_URL"), "/"),
	}
	if len(r.missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", r.missing)
	}

	if len(cfg.SessionSecret) < minSessionSecretLength {
		r.errs = append(r.errs, fmt.Errorf("SESSION_SECRET must be at least %d bytes", minSessionSecretLength))
	}
	r.httpURL("BACKEND_API_URL", cfg.BackendAPIURL)
	r.httpURL("GOOGLE_REDIRECT_URL", cfg.GoogleRedirectURL)
	r.httpURL("BASE_URL", cfg.BaseURL)

	cfg.GoogleSelectAccount = r.boolean("GOOGLE_SELECT_ACCOUNT", false)
	cfg.BackendTimeout = r.duration("BACKEND_TIMEOUT", 10*time.Second)
	cfg.BackendRateLimit = r.positiveInt("BACKEND_RATE_LIMIT", 20)
	cfg.SessionMaxAge = r.positiveInt("SESSION_MAX_AGE", 86400)
	cfg.SessionCleanupInterval = r.duration("SESSION_CLEANUP_INTERVAL", time.Hour)
	cfg.ProfileCacheTTL = r.duration("PROFILE_CACHE_TTL", 60*time.Second)
	cfg.AvatarMaxSize = r.positiveInt64("AVATAR_MAX_SIZE", 5<<20)
	cfg.AvatarFetchTimeout = r.duration("AVATAR_FETCH_TIMEOUT", 10*time.Second)
	cfg.RateLimitGeneral = r.positiveInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitAuth = r.positiveInt("RATE_LIMIT_AUTH", 10)
	cfg.LogLevel = r.str("LOG_LEVEL", "info")
	cfg.ServerPort = r.str("SERVER_PORT", "8080")
	cfg.CookieDomain = r.str("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = r.str("CORS_ALLOWED_ORIGIN", "http://localhost:3000")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")

	if len(r.errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %w", errors.Join(r.errs...))
	}
	return cfg, nil
}

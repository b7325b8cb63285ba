package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/marketgate/internal/model"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	GeneralRate     rate.Limit // req/sec
	GeneralBurst    int
	AuthRate        rate.Limit // サインイン・登録・パスワード再設定のreq/sec
	AuthBurst       int
	CleanupInterval time.Duration
}

// DefaultRateLimiterConfig はAPI全般 120 req/min、サインイン系 10 req/min の設定を返す。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return NewRateLimiterConfig(120, 10)
}

// NewRateLimiterConfig は1分あたりのリクエスト数から設定を作る。バーストは1分ぶん。
func NewRateLimiterConfig(generalPerMin, authPerMin int) RateLimiterConfig {
	perSec := func(n int) rate.Limit { return rate.Limit(float64(n) / 60.0) }
	return RateLimiterConfig{
		GeneralRate:     perSec(generalPerMin),
		GeneralBurst:    generalPerMin,
		AuthRate:        perSec(authPerMin),
		AuthBurst:       authPerMin,
		CleanupInterval: 5 * time.Minute,
	}
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// buckets はキーごとのトークンバケット。
type buckets struct {
	name  string
	limit rate.Limit
	burst int

	mu sync.Mutex
	m  map[string]*bucket
}

// take はキーのバケットから1トークン消費を試み、成否と残りトークン数を返す。
func (b *buckets) take(key string, now time.Time) (bool, int) {
	b.mu.Lock()
	bk, ok := b.m[key]
	if !ok {
		bk = &bucket{lim: rate.NewLimiter(b.limit, b.burst)}
		b.m[key] = bk
	}
	bk.seen = now
	b.mu.Unlock()

	allowed := bk.lim.AllowN(now, 1)
	remaining := int(math.Floor(bk.lim.TokensAt(now)))
	if remaining < 0 {
		remaining = 0
	}
	return allowed, remaining
}

func (b *buckets) size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.m)
}

// sweep はidleより長く使われていないバケットを捨てる。
func (b *buckets) sweep(now time.Time, idle time.Duration) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	removed := 0
	for key, bk := range b.m {
		if now.Sub(bk.seen) > idle {
			delete(b.m, key)
			removed++
		}
	}
	return removed
}

// RateLimiter はAPI全般とサインイン系の2系統のレート制限を提供する。
type RateLimiter struct {
	interval time.Duration
	general  *buckets
	auth     *buckets

	done     chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter はRateLimiterを生成し、古いバケットを捨てるゴルーチンを起動する。
// 使い終わったらStopを呼ぶこと。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		interval: config.CleanupInterval,
		general:  &buckets{name: "general", limit: config.GeneralRate, burst: config.GeneralBurst, m: map[string]*bucket{}},
		auth:     &buckets{name: "auth", limit: config.AuthRate, burst: config.AuthBurst, m: map[string]*bucket{}},
		done:     make(chan struct{}),
	}
	go rl.run()
	return rl
}

// Stop は何度呼んでもよい。
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.done) })
}

// GeneralMiddleware はログイン中ならユーザーID、未ログインならクライアントIPで制限する。
// セッションミドルウェアより内側に置く。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return rl.limit(rl.general, func(r *http.Request) string {
		if userID, err := UserIDFromContext(r.Context()); err == nil {
			return "user:" + userID
		}
		return "ip:" + clientIP(r)
	})
}

// AuthMiddleware はクライアントIPごとに、API全般とは独立に制限する。
func (rl *RateLimiter) AuthMiddleware() func(next http.Handler) http.Handler {
	return rl.limit(rl.auth, clientIP)
}

func (rl *RateLimiter) limit(b *buckets, keyOf func(*http.Request) string) func(next http.Handler) http.Handler {
	limitHeader := strconv.Itoa(b.burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyOf(r)
			allowed, remaining := b.take(key, time.Now())

			w.Header().Set("X-RateLimit-Limit", limitHeader)
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

			if !allowed {
				slog.Warn("rate limit exceeded",
					slog.String("limit_type", b.name),
					slog.String("key", key),
					slog.String("request_id", RequestIDFromContext(r.Context())),
				)
				writeRateLimitResponse(w, b.limit)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GeneralLimiterCount は保持しているAPI全般のバケット数を返す。
func (rl *RateLimiter) GeneralLimiterCount() int { return rl.general.size() }

// AuthLimiterCount は保持しているサインイン系のバケット数を返す。
func (rl *RateLimiter) AuthLimiterCount() int { return rl.auth.size() }

// clientIP はRemoteAddrのホスト部分。X-Forwarded-ForはchiのRealIPで反映済み。
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func (rl *RateLimiter) run() {
	t := time.NewTicker(rl.interval)
	defer t.Stop()
	for {
		select {
		case <-rl.done:
			return
		case <-t.C:
			rl.cleanup()
		}
	}
}

// cleanup はCleanupIntervalの2倍以上アクセスのないバケットを削除する。
func (rl *RateLimiter) cleanup() {
	now := time.Now()
	idle := 2 * rl.interval
	if n := rl.general.sweep(now, idle) + rl.auth.sweep(now, idle); n > 0 {
		slog.Debug("rate limiter buckets evicted", slog.Int("count", n))
	}
}

// writeRateLimitResponse は1トークン補充されるまでの秒数をRetry-Afterに載せて429を返す。
func writeRateLimitResponse(w http.ResponseWriter, limit rate.Limit) {
	secs := 1
	if limit > 0 {
		secs = max(1, int(math.Ceil(1/float64(limit))))
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	WriteErrorResponse(w, http.StatusTooManyRequests, model.NewRateLimitedError())
}

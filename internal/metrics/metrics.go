// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// バックエンドクライアント、アクション層、キャッシュ、ワーカーから利用する。
type MetricsCollector interface {
	RecordBackendCall(endpoint string, statusCode int, duration time.Duration)
	RecordBackendError(endpoint string)
	RecordActionOutcome(action string, ok bool)
	RecordCacheHit()
	RecordCacheMiss()
	RecordSessionsCleaned(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	backendStatus  *prometheus.CounterVec
	backendErrors  *prometheus.CounterVec
	backendLatency *prometheus.HistogramVec
	actions        *prometheus.CounterVec
	cacheHits      prometheus.Counter
	cacheMisses    prometheus.Counter
	sessionsClean  prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		backendStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketgate_backend_status_total",
			Help: "バックエンドAPIのステータスコード別レスポンス数",
		}, []string{"endpoint", "status_code"}),
		backendErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketgate_backend_errors_total",
			Help: "バックエンドAPI呼び出しの通信エラー数",
		}, []string{"endpoint"}),
		backendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "marketgate_backend_latency_seconds",
			Help:    "バックエンドAPI呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketgate_actions_total",
			Help: "アクション実行結果の合計数",
		}, []string{"action", "outcome"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketgate_profile_cache_hits_total",
			Help: "プロフィールキャッシュのヒット数",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketgate_profile_cache_misses_total",
			Help: "プロフィールキャッシュのミス数",
		}),
		sessionsClean: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketgate_sessions_cleaned_total",
			Help: "クリーンアップで削除された期限切れセッションの合計数",
		}),
	}

	reg.MustRegister(
		c.backendStatus,
		c.backendErrors,
		c.backendLatency,
		c.actions,
		c.cacheHits,
		c.cacheMisses,
		c.sessionsClean,
	)

	return c
}

// RecordBackendCall はバックエンドAPI呼び出しのステータスとレイテンシを記録する。
func (c *Collector) RecordBackendCall(endpoint string, statusCode int, duration time.Duration) {
	c.backendStatus.WithLabelValues(endpoint, strconv.Itoa(statusCode)).Inc()
	c.backendLatency.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordBackendError は通信エラーを記録する。
func (c *Collector) RecordBackendError(endpoint string) {
	c.backendErrors.WithLabelValues(endpoint).Inc()
}

// RecordActionOutcome はアクションの成否を記録する。
func (c *Collector) RecordActionOutcome(action string, ok bool) {
	outcome := "failure"
	if ok {
		outcome = "success"
	}
	c.actions.WithLabelValues(action, outcome).Inc()
}

// RecordCacheHit はキャッシュヒットを記録する。
func (c *Collector) RecordCacheHit() {
	c.cacheHits.Inc()
}

// RecordCacheMiss はキャッシュミスを記録する。
func (c *Collector) RecordCacheMiss() {
	c.cacheMisses.Inc()
}

// RecordSessionsCleaned は削除されたセッション数を記録する。
func (c *Collector) RecordSessionsCleaned(count int64) {
	c.sessionsClean.Add(float64(count))
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type Nop struct{}

func (Nop) RecordBackendCall(string, int, time.Duration) {}
func (Nop) RecordBackendError(string)                    {}
func (Nop) RecordActionOutcome(string, bool)             {}
func (Nop) RecordCacheHit()                              {}
func (Nop) RecordCacheMiss()                             {}
func (Nop) RecordSessionsCleaned(int64)                  {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)

// Package backend はマーケットプレイスREST APIのクライアントを提供する。
// バックエンドの各アクションに1メソッドが対応し、1回のHTTP呼び出しだけを行う。
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/marketgate/internal/metrics"
)

const (
	// maxResponseSize はレスポンスボディの最大読み取りサイズ。
	maxResponseSize = 1 << 20
	userAgent       = "Marketgate/1.0"
)

// Response はバックエンドAPIの共通レスポンスエンベロープ。
type Response[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

// StatusError はエンベロープとして解釈できないエラーレスポンスを表す。
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("バックエンドAPIがステータス %d を返しました", e.StatusCode)
}

// Client はマーケットプレイスREST APIのクライアント。
// リトライは行わない。失敗はその呼び出し1回限りで確定する。
type Client struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	metrics    metrics.MetricsCollector
	logger     *slog.Logger
}

// NewClient はClientを生成する。
// ratePerSecが0以下の場合は送信ペースを制限しない。
func NewClient(httpClient *http.Client, baseURL string, ratePerSec int, m metrics.MetricsCollector, logger *slog.Logger) *Client {
	limit := rate.Inf
	burst := 1
	if ratePerSec > 0 {
		limit = rate.Limit(ratePerSec)
		burst = ratePerSec
	}
	if m == nil {
		m = metrics.Nop{}
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		limiter:    rate.NewLimiter(limit, burst),
		metrics:    m,
		logger:     logger,
	}
}

// request は1回のAPI呼び出しの内容。
type request struct {
	endpoint    string // メトリクス・ログ用の名前
	method      string
	path        string
	token       string
	body        io.Reader
	contentType string
}

func jsonBody(v any) (io.Reader, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("リクエストボディのエンコードに失敗しました: %w", err)
	}
	return bytes.NewReader(b), nil
}

// call はAPIを呼び出してエンベロープをデコードする。
// 2xx以外でもエンベロープとして読めればSuccess=falseのレスポンスとして返す。
func call[T any](ctx context.Context, c *Client, r request) (*Response[T], error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("送信待機が中断されました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, r.body)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if r.body != nil {
		req.Header.Set("Content-Type", r.contentType)
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RecordBackendError(r.endpoint)
		c.logger.Error("バックエンドAPIの呼び出しに失敗しました",
			slog.String("endpoint", r.endpoint),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	defer resp.Body.Close()
	c.metrics.RecordBackendCall(r.endpoint, resp.StatusCode, time.Since(start))

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	var out Response[T]
	decodeErr := json.Unmarshal(body, &out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("バックエンドAPIがエラーステータスを返しました",
			slog.String("endpoint", r.endpoint),
			slog.Int("http_status", resp.StatusCode),
		)
		if decodeErr != nil {
			return nil, &StatusError{StatusCode: resp.StatusCode}
		}
		out.Success = false
		return &out, nil
	}

	if decodeErr != nil {
		c.logger.Error("バックエンドAPIのレスポンスのパースに失敗しました",
			slog.String("endpoint", r.endpoint),
			slog.String("error", decodeErr.Error()),
		)
		return nil, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", decodeErr)
	}

	return &out, nil
}

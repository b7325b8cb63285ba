// Package cleanup は期限切れゲートウェイセッションを定期的に掃除するワーカージョブ。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/marketgate/internal/metrics"
)

// ExpiredSessionDeleter はrepository.PostgresSessionRepoが満たす。
type ExpiredSessionDeleter interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// CleanupJob はsessionsから期限切れ行を消す。token_slotsはCASCADEで追従する。
// 何度実行しても結果は変わらない。
type CleanupJob struct {
	sessions ExpiredSessionDeleter
	metrics  metrics.MetricsCollector
	logger   *slog.Logger
}

func NewCleanupJob(sessions ExpiredSessionDeleter, m metrics.MetricsCollector, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{sessions: sessions, metrics: m, logger: logger}
}

// Run は1回分の掃除を行う。
func (j *CleanupJob) Run(ctx context.Context) error {
	began := time.Now()
	n, err := j.sessions.DeleteExpired(ctx)
	if err != nil {
		j.logger.LogAttrs(ctx, slog.LevelError, "期限切れセッションの削除に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("cleanup expired sessions: %w", err)
	}

	j.metrics.RecordSessionsCleaned(n)
	j.logger.LogAttrs(ctx, slog.LevelInfo, "期限切れセッションを削除しました",
		slog.Int64("deleted_count", n),
		slog.Int64("duration_ms", time.Since(began).Milliseconds()),
	)
	return nil
}

// Start はすぐに1回実行し、その後はintervalごとに実行する。ctxが終わるまで戻らない。
// 1回の実行はintervalを上限に打ち切り、失敗は次の周期に持ち越す。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	for {
		j.runBounded(ctx, interval)

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

func (j *CleanupJob) runBounded(ctx context.Context, limit time.Duration) {
	runCtx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()
	_ = j.Run(runCtx)
}

// Package cleanup はセッションレコードの自動削除ジョブを提供する。
// 有効期限から保持期間（デフォルト30日）を超過したuser_sessionsを定期的に削除する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultRetention はセッションレコードの保持期間のデフォルト値。
const DefaultRetention = 30 * 24 * time.Hour

// SessionDeleter は期限切れセッションを削除するインターフェース。
type SessionDeleter interface {
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// DeletionRecorder は削除件数を記録するインターフェース。
type DeletionRecorder interface {
	RecordSessionsDeleted(count int64)
}

// CleanupJob は保持期間を超過したセッションレコードの削除ジョブ。
// 削除は冪等であり、対象がない場合もエラーにならない。
type CleanupJob struct {
	sessions  SessionDeleter
	recorder  DeletionRecorder
	logger    *slog.Logger
	Retention time.Duration
	now       func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。retentionが0以下の場合はDefaultRetentionを使用する。
func NewCleanupJob(sessions SessionDeleter, recorder DeletionRecorder, logger *slog.Logger, retention time.Duration) *CleanupJob {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CleanupJob{
		sessions:  sessions,
		recorder:  recorder,
		logger:    logger,
		Retention: retention,
		now:       time.Now,
	}
}

// Run はexpires_atが現在時刻からRetention以上前のセッションを削除し、削除件数を返す。
func (j *CleanupJob) Run(ctx context.Context) (int64, error) {
	start := j.now()
	before := start.Add(-j.Retention)

	deleted, err := j.sessions.DeleteExpired(ctx, before)
	if err != nil {
		j.logger.Error("session cleanup failed",
			slog.String("error", err.Error()),
			slog.Duration("retention", j.Retention),
		)
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}

	if j.recorder != nil {
		j.recorder.RecordSessionsDeleted(deleted)
	}

	j.logger.Info("session cleanup completed",
		slog.Int64("deleted_count", deleted),
		slog.Time("before", before),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return deleted, nil
}

// Start は起動直後に1回、以降interval間隔でRunを実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("session cleanup worker started",
		slog.Duration("interval", interval),
		slog.Duration("retention", j.Retention),
	)

	// エラーはRun内でログ出力済み
	_, _ = j.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("session cleanup worker stopped")
			return
		case <-ticker.C:
			_, _ = j.Run(ctx)
		}
	}
}

// Package cleanup は期限切れセッションの定期削除ジョブを提供する。
// robfig/cronのスケジュール式で実行間隔を指定する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hitoshi/itemcatalog/internal/metrics"
)

// ExpiredSessionDeleter は期限切れセッションを削除するインターフェース。
// repository.SessionRepositoryが実装する。
type ExpiredSessionDeleter interface {
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// CleanupJob は期限切れセッションの削除ジョブ。
// 冪等であり、削除対象がなくてもエラーにならない。
type CleanupJob struct {
	sessions ExpiredSessionDeleter
	logger   *slog.Logger
	metrics  metrics.MetricsCollector
	now      func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(sessions ExpiredSessionDeleter, logger *slog.Logger, collector metrics.MetricsCollector) *CleanupJob {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &CleanupJob{
		sessions: sessions,
		logger:   logger,
		metrics:  collector,
		now:      time.Now,
	}
}

// Run は現在時刻で期限切れのセッションを削除する。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	deleted, err := j.sessions.DeleteExpired(ctx, j.now())
	if err != nil {
		j.logger.Error("session cleanup failed", slog.String("error", err.Error()))
		return fmt.Errorf("期限切れセッションの削除に失敗: %w", err)
	}
	j.metrics.RecordSessionsPurged(deleted)

	j.logger.Info("session cleanup completed",
		slog.Int64("deleted_count", deleted),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// Start は起動直後に1回ジョブを実行し、以降はscheduleに従って実行する。
// コンテキストがキャンセルされると実行中のジョブの完了を待って戻る。
func (j *CleanupJob) Start(ctx context.Context, schedule string) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(schedule, func() { j.runLogged(ctx) }); err != nil {
		return fmt.Errorf("invalid cleanup schedule %q: %w", schedule, err)
	}

	j.logger.Info("session cleanup scheduler started", slog.String("schedule", schedule))
	j.runLogged(ctx)

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()

	j.logger.Info("session cleanup scheduler stopped")
	return nil
}

// runLogged はRunのエラーをログに記録するだけで、スケジューラは止めない。
func (j *CleanupJob) runLogged(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	_ = j.Run(ctx)
}

// ValidateSchedule はスケジュール式を解析できるかを検証する。
func ValidateSchedule(schedule string) error {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid cleanup schedule %q: %w", schedule, err)
	}
	return nil
}

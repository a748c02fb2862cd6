// Package dispatch は日次アラートディスパッチの定期実行を提供する。
package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/courtalert/internal/alert"
)

// DispatchRunner はディスパッチ1回分の実行インターフェース。
type DispatchRunner interface {
	// RunOnce は現在時刻を基準に1回分のディスパッチを実行する。
	RunOnce(ctx context.Context, now time.Time) (alert.Result, error)
}

// Scheduler はディスパッチの定期実行を行う。
// 起動直後に1回実行し、以降は指定間隔のティッカーで実行する。
// HTTPトリガーと並走しても、送信済み判定とDBの一意制約が二重送信を防ぐ。
type Scheduler struct {
	runner     DispatchRunner
	logger     *slog.Logger
	runTimeout time.Duration
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// runTimeoutが0以下の場合はデフォルト値10分を使用する。
func NewScheduler(runner DispatchRunner, logger *slog.Logger, runTimeout time.Duration) *Scheduler {
	if runTimeout <= 0 {
		runTimeout = 10 * time.Minute
	}
	return &Scheduler{
		runner:     runner,
		logger:     logger,
		runTimeout: runTimeout,
	}
}

// Start は指定間隔のティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("ディスパッチスケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Duration("run_timeout", s.runTimeout),
	)

	// 起動直後に1回実行
	s.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("ディスパッチスケジューラを停止しました")
			return
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

// runCycle は実行タイムアウト付きでディスパッチを1回実行する。
// 1回分の失敗はログに記録し、スケジューラ自体は停止しない。
func (s *Scheduler) runCycle(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()

	result, err := s.runner.RunOnce(runCtx, time.Now())
	if err != nil {
		s.logger.Error("ディスパッチサイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return
	}

	s.logger.Info("ディスパッチサイクルが完了しました",
		slog.Int("sent", result.Sent),
		slog.Int("skipped", result.Skipped),
		slog.Int("failed", result.Failed),
	)
}

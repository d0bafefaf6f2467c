// Package notify は取引通知のバックグラウンドスイープを提供する。
// リマインダー送信と評価依頼送信の2つのスイープ、それらを定期実行するスケジューラ、
// 取引日時の解釈と送信対象判定を含む。
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// Clock は現在時刻を返す。テストで固定時刻を注入するために使う。
type Clock func() time.Time

// Job はスケジューラから定期実行される処理。
type Job interface {
	// Name はログとメトリクスで使用するジョブ名を返す。
	Name() string
	// RunOnce はジョブを1回実行する。
	RunOnce(ctx context.Context) error
}

// Scheduler は複数のJobをそれぞれ独立したgoroutineとティッカーで定期実行する。
// Job同士は状態を共有せず、1つのJobの失敗やpanicが他のJobやスケジューラ自体を止めることはない。
type Scheduler struct {
	jobs     []Job
	interval time.Duration
	logger   *slog.Logger
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// intervalが0以下の場合はデフォルト値5分を使用する。
func NewScheduler(logger *slog.Logger, interval time.Duration, jobs ...Job) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Scheduler{
		jobs:     jobs,
		interval: interval,
		logger:   logger,
	}
}

// Start はすべてのJobを起動し、コンテキストがキャンセルされて全Jobが停止するまでブロックする。
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("通知スケジューラを開始しました",
		slog.Duration("interval", s.interval),
		slog.Int("job_count", len(s.jobs)),
	)

	var wg sync.WaitGroup
	for _, job := range s.jobs {
		wg.Add(1)
		go func(j Job) {
			defer wg.Done()
			s.loop(ctx, j)
		}(job)
	}
	wg.Wait()

	s.logger.Info("通知スケジューラを停止しました")
}

// loop は起動直後に1回、その後はintervalごとにJobを実行する。
func (s *Scheduler) loop(ctx context.Context, job Job) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runSafely(ctx, job)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runSafely(ctx, job)
		}
	}
}

// runSafely はJobを1回実行し、エラーとpanicをログに記録して握りつぶす。
func (s *Scheduler) runSafely(ctx context.Context, job Job) {
	if err := s.run(ctx, job); err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			s.logger.Info("停止要求によりスイープを中断しました", slog.String("job", job.Name()))
			return
		}
		s.logger.Error("スイープの実行に失敗しました",
			slog.String("job", job.Name()),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Scheduler) run(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("スイープ実行中にpanicが発生しました",
				slog.String("job", job.Name()),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("panic in %s: %v", job.Name(), r)
		}
	}()
	return job.RunOnce(ctx)
}

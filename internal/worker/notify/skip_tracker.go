package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hitoshi/dhcommerce/internal/metrics"
)

// スキップ理由
const (
	reasonMissingUser = "missing_user"
	reasonMissingFood = "missing_food"
	reasonLookupError = "lookup_error"
	reasonSendFailed  = "send_failed"
	reasonRenderError = "render_error"
	reasonUpdateError = "update_error"
)

// SkipTracker は取引ごとの連続スキップ回数を数え、回数に応じてログレベルを引き上げる。
//
// 回数はスイープのインスタンスごとにメモリ上で保持し、ログとメトリクスにのみ影響する。
// 再試行するかどうかの判断には一切使わない。
type SkipTracker struct {
	sweep         string
	escalateAfter int
	logger        *slog.Logger
	metrics       metrics.MetricsCollector

	mu      sync.Mutex
	counts  map[string]int
	touched map[string]struct{}
}

// NewSkipTracker はSkipTrackerを生成する。escalateAfterが0以下の場合は12を使用する。
func NewSkipTracker(sweep string, escalateAfter int, logger *slog.Logger, mc metrics.MetricsCollector) *SkipTracker {
	if escalateAfter <= 0 {
		escalateAfter = 12
	}
	return &SkipTracker{
		sweep:         sweep,
		escalateAfter: escalateAfter,
		logger:        logger,
		metrics:       mc,
		counts:        make(map[string]int),
		touched:       make(map[string]struct{}),
	}
}

// BeginRun はスイープ1回分の記録を開始する。
func (t *SkipTracker) BeginRun() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.touched = make(map[string]struct{})
}

// EndRun は今回スキップされなかった取引のカウントを破棄する。
// これにより回数は「連続した」スキップだけを表す。
func (t *SkipTracker) EndRun() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id := range t.counts {
		if _, ok := t.touched[id]; !ok {
			delete(t.counts, id)
		}
	}
}

// Skip は取引のスキップを記録してログを出力し、連続スキップ回数を返す。
// 回数がescalateAfter未満ならWarn、以上ならErrorで記録する。
func (t *SkipTracker) Skip(ctx context.Context, transactionID, reason string, attrs ...slog.Attr) int {
	t.mu.Lock()
	t.counts[transactionID]++
	n := t.counts[transactionID]
	t.touched[transactionID] = struct{}{}
	t.mu.Unlock()

	if t.metrics != nil {
		t.metrics.RecordSweepSkip(t.sweep, reason)
	}

	level := slog.LevelWarn
	msg := "取引をスキップしました"
	if n >= t.escalateAfter {
		level = slog.LevelError
		msg = "取引が繰り返しスキップされています"
	}

	base := []slog.Attr{
		slog.String("sweep", t.sweep),
		slog.String("transaction_id", transactionID),
		slog.String("reason", reason),
		slog.Int("consecutive_skips", n),
	}
	t.logger.LogAttrs(ctx, level, msg, append(base, attrs...)...)
	return n
}

// Clear は取引のカウントを破棄する。フラグを立てた取引に対して呼ぶ。
func (t *SkipTracker) Clear(transactionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.counts, transactionID)
}

// Count は取引の現在の連続スキップ回数を返す。
func (t *SkipTracker) Count(transactionID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[transactionID]
}

// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// メール送信結果のラベル値
const (
	EmailAccepted      = "accepted"
	EmailFailed        = "failed"
	EmailNotConfigured = "not_configured"
)

// MetricsCollector はメトリクス収集のインターフェース。
// スイープ、メーラー、サービス層、HTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordSweepRun(sweep string, duration time.Duration, err error)
	RecordSweepSkip(sweep, reason string)
	RecordFlagMarked(sweep string)
	RecordEmailSend(result string)
	RecordRatingSubmitted(role string)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	sweepRuns     *prometheus.CounterVec
	sweepDuration *prometheus.HistogramVec
	sweepSkips    *prometheus.CounterVec
	flagsMarked   *prometheus.CounterVec
	emailSends    *prometheus.CounterVec
	ratings       *prometheus.CounterVec
	httpStatus    *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		sweepRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dhcommerce_sweep_runs_total",
			Help: "スイープ実行回数（結果別）",
		}, []string{"sweep", "result"}),
		sweepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dhcommerce_sweep_duration_seconds",
			Help:    "スイープ1回あたりの所要時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"sweep"}),
		sweepSkips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dhcommerce_sweep_skips_total",
			Help: "関連レコード欠落や送信失敗でスキップされた取引の数",
		}, []string{"sweep", "reason"}),
		flagsMarked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dhcommerce_flags_marked_total",
			Help: "通知済みフラグを立てた取引の数",
		}, []string{"sweep"}),
		emailSends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dhcommerce_email_sends_total",
			Help: "メール送信試行の数（結果別）",
		}, []string{"result"}),
		ratings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dhcommerce_ratings_submitted_total",
			Help: "受け付けた評価の数（立場別）",
		}, []string{"role"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dhcommerce_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.sweepRuns,
		c.sweepDuration,
		c.sweepSkips,
		c.flagsMarked,
		c.emailSends,
		c.ratings,
		c.httpStatus,
	)

	return c
}

// RecordSweepRun はスイープ1回分の結果と所要時間を記録する。
func (c *Collector) RecordSweepRun(sweep string, duration time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.sweepRuns.WithLabelValues(sweep, result).Inc()
	c.sweepDuration.WithLabelValues(sweep).Observe(duration.Seconds())
}

// RecordSweepSkip はスキップされた取引を理由別に記録する。
func (c *Collector) RecordSweepSkip(sweep, reason string) {
	c.sweepSkips.WithLabelValues(sweep, reason).Inc()
}

// RecordFlagMarked はフラグ更新を記録する。
func (c *Collector) RecordFlagMarked(sweep string) {
	c.flagsMarked.WithLabelValues(sweep).Inc()
}

// RecordEmailSend はメール送信結果を記録する。
func (c *Collector) RecordEmailSend(result string) {
	c.emailSends.WithLabelValues(result).Inc()
}

// RecordRatingSubmitted は評価の受け付けを記録する。
func (c *Collector) RecordRatingSubmitted(role string) {
	c.ratings.WithLabelValues(role).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)

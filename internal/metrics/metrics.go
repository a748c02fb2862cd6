// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ディスパッチャやハンドラー層から利用する。
type MetricsCollector interface {
	RecordAlertSent()
	RecordAlertSkipped(reason string)
	RecordSendFailure()
	RecordDispatchLatency(duration time.Duration)
	RecordSignup(blocked bool)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	alertsSent      prometheus.Counter
	alertsSkipped   *prometheus.CounterVec
	sendFailures    prometheus.Counter
	dispatchLatency prometheus.Histogram
	signups         *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		alertsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "courtalert_alerts_sent_total",
			Help: "日次アラート送信成功の合計数",
		}),
		alertsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "courtalert_alerts_skipped_total",
			Help: "スキップされた日次アラートの理由別合計数",
		}, []string{"reason"}),
		sendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "courtalert_send_failures_total",
			Help: "メールトランスポート送信失敗の合計数",
		}),
		dispatchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "courtalert_dispatch_latency_seconds",
			Help:    "ディスパッチ1サイクルの所要時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		signups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "courtalert_signups_total",
			Help: "登録リクエストの結果別合計数",
		}, []string{"result"}),
	}

	reg.MustRegister(
		c.alertsSent,
		c.alertsSkipped,
		c.sendFailures,
		c.dispatchLatency,
		c.signups,
	)

	return c
}

// RecordAlertSent はアラート送信成功を記録する。
func (c *Collector) RecordAlertSent() {
	c.alertsSent.Inc()
}

// RecordAlertSkipped はアラートのスキップを理由付きで記録する。
// reasonは "already_sent" または "no_slots"。
func (c *Collector) RecordAlertSkipped(reason string) {
	c.alertsSkipped.WithLabelValues(reason).Inc()
}

// RecordSendFailure はメール送信失敗を記録する。
func (c *Collector) RecordSendFailure() {
	c.sendFailures.Inc()
}

// RecordDispatchLatency はディスパッチサイクルの所要時間を記録する。
func (c *Collector) RecordDispatchLatency(duration time.Duration) {
	c.dispatchLatency.Observe(duration.Seconds())
}

// RecordSignup は登録リクエストの結果を記録する。
func (c *Collector) RecordSignup(blocked bool) {
	result := "accepted"
	if blocked {
		result = "blocked"
	}
	c.signups.WithLabelValues(result).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)

// NopCollector は何も記録しないMetricsCollector実装。
// メトリクスが不要な構成やテストで使用する。
type NopCollector struct{}

func (NopCollector) RecordAlertSent()                        {}
func (NopCollector) RecordAlertSkipped(reason string)        {}
func (NopCollector) RecordSendFailure()                      {}
func (NopCollector) RecordDispatchLatency(d time.Duration)   {}
func (NopCollector) RecordSignup(blocked bool)               {}

var _ MetricsCollector = NopCollector{}

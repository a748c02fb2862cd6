package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// CollectorはMetricsCollectorインターフェースを満たすことを検証
func TestCollector_ImplementsInterface(t *testing.T) {
	var _ MetricsCollector = (*Collector)(nil)
	var _ MetricsCollector = NopCollector{}
}

// 送信成功カウンタが記録されることを検証
func TestCollector_RecordAlertSent(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordAlertSent()
	c.RecordAlertSent()

	if got := testutil.ToFloat64(c.alertsSent); got != 2 {
		t.Errorf("alertsSent = %v, want 2", got)
	}
}

// スキップカウンタが理由別に記録されることを検証
func TestCollector_RecordAlertSkipped(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordAlertSkipped("already_sent")
	c.RecordAlertSkipped("no_slots")
	c.RecordAlertSkipped("no_slots")

	if got := testutil.ToFloat64(c.alertsSkipped.WithLabelValues("no_slots")); got != 2 {
		t.Errorf("alertsSkipped{no_slots} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.alertsSkipped.WithLabelValues("already_sent")); got != 1 {
		t.Errorf("alertsSkipped{already_sent} = %v, want 1", got)
	}
}

// 登録結果カウンタがブロック有無で記録されることを検証
func TestCollector_RecordSignup(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSignup(false)
	c.RecordSignup(true)
	c.RecordSignup(false)

	if got := testutil.ToFloat64(c.signups.WithLabelValues("accepted")); got != 2 {
		t.Errorf("signups{accepted} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.signups.WithLabelValues("blocked")); got != 1 {
		t.Errorf("signups{blocked} = %v, want 1", got)
	}
}

// /metricsハンドラーが登録済みメトリクスを公開することを検証
func TestHandler_ExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordAlertSent()
	c.RecordSendFailure()
	c.RecordDispatchLatency(120 * time.Millisecond)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, req)

	body := rec.Body.String()
	for _, want := range []string{
		"courtalert_alerts_sent_total 1",
		"courtalert_send_failures_total 1",
		"courtalert_dispatch_latency_seconds",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output does not contain %q", want)
		}
	}
}

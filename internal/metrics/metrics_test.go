package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	c, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues failed: %v", err)
	}
	m := &dto.Metric{}
	_ = c.Write(m)
	return m.Counter.GetValue()
}

func TestMiddleware_CountsRequests(t *testing.T) {
	HTTPRequestsTotal.Reset()
	HTTPRequestDuration.Reset()

	r := gin.New()
	r.Use(Middleware())
	r.GET("/things/:id", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/things/42", nil)
	r.ServeHTTP(w, req)

	// Labelled by route pattern, not the concrete path.
	if v := counterValue(t, HTTPRequestsTotal, "GET", "/things/:id", "2xx"); v != 1.0 {
		t.Errorf("expected counter value 1, got %f", v)
	}

	ch := make(chan prometheus.Metric, 10)
	HTTPRequestDuration.Collect(ch)
	close(ch)

	found := false
	for metric := range ch {
		m := &dto.Metric{}
		_ = metric.Write(m)
		if m.Histogram != nil && m.Histogram.GetSampleCount() == 1 {
			found = true
		}
	}
	if !found {
		t.Error("expected histogram with 1 sample")
	}
}

func TestMiddleware_BucketsErrorStatuses(t *testing.T) {
	HTTPRequestsTotal.Reset()

	r := gin.New()
	r.Use(Middleware())
	r.GET("/boom", func(c *gin.Context) {
		c.Status(http.StatusConflict)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/boom", nil)
	r.ServeHTTP(w, req)

	if v := counterValue(t, HTTPRequestsTotal, "GET", "/boom", "4xx"); v != 1.0 {
		t.Errorf("expected 4xx counter value 1, got %f", v)
	}
}

func TestStatusBucket(t *testing.T) {
	cases := map[int]string{
		200: "2xx",
		201: "2xx",
		301: "3xx",
		404: "4xx",
		409: "4xx",
		500: "5xx",
		503: "5xx",
	}
	for status, want := range cases {
		if got := statusBucket(status); got != want {
			t.Errorf("statusBucket(%d) = %s, want %s", status, got, want)
		}
	}
}

func TestMetrics_Registered(t *testing.T) {
	// Touch a few collectors so they show up in a gather.
	TrustEventsTotal.WithLabelValues("help_completed").Inc()
	EscrowsTotal.WithLabelValues("locked").Inc()
	FraudAssessmentsTotal.WithLabelValues("allow").Inc()
	GPSEvaluationsTotal.WithLabelValues("valid").Inc()
	NotificationsTotal.WithLabelValues("normal").Inc()
	ActiveWebSocketClients.Set(0)

	expected := []string{
		"sahaay_trust_events_total",
		"sahaay_escrows_total",
		"sahaay_fraud_assessments_total",
		"sahaay_gps_evaluations_total",
		"sahaay_notifications_total",
		"sahaay_active_websocket_clients",
	}

	gathered, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	found := make(map[string]bool)
	for _, mf := range gathered {
		found[mf.GetName()] = true
	}

	for _, name := range expected {
		if !found[name] {
			t.Errorf("metric %s not registered", name)
		}
	}
}

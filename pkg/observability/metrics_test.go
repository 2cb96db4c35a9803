package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// TestMetricsRegistered verifies that all metrics are registered in the
// default registry once they have been observed.
func TestMetricsRegistered(t *testing.T) {
	expected := map[string]bool{
		"relay_requests_total":              false,
		"relay_request_duration_seconds":    false,
		"relay_inflight_requests":           false,
		"relay_queries_total":               false,
		"relay_query_duration_seconds":      false,
		"relay_steps_total":                 false,
		"relay_agent_latency_seconds":       false,
		"relay_planner_failures_total":      false,
		"relay_synthesis_failures_total":    false,
		"relay_store_errors_total":          false,
		"relay_provider_requests_total":     false,
		"relay_provider_latency_seconds":    false,
		"relay_provider_tokens_total":       false,
		"relay_capability_invocations_total": false,
	}

	// Vectors only appear after their first observation.
	RequestsTotal.WithLabelValues("GET", "2xx", "test").Inc()
	RequestDuration.WithLabelValues("GET", "test").Observe(0.1)
	RecordQuery("completed", time.Second)
	latency := 20 * time.Millisecond
	RecordStep("test_agent", "success", &latency)
	StoreErrorsTotal.WithLabelValues("test").Inc()
	ProviderRequestsTotal.WithLabelValues("test", "m", "ok").Inc()
	ProviderLatency.WithLabelValues("test", "m").Observe(0.1)
	ProviderTokensTotal.WithLabelValues("test", "m", "input").Add(10)
	CapabilityInvocationsTotal.WithLabelValues("test_cap", "ok").Inc()

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("unexpected gather error: %v", err)
	}
	for _, mf := range families {
		if _, ok := expected[mf.GetName()]; ok {
			expected[mf.GetName()] = true
		}
	}
	for name, found := range expected {
		if !found {
			t.Errorf("metric %q not found in default registry", name)
		}
	}
}

func TestRecordStepWithoutLatency(t *testing.T) {
	beforeSteps := counterValue(t, StepsTotal, "ghost_agent", "failed")
	beforeLatency := histogramCount(t, AgentLatency, "ghost_agent")

	RecordStep("ghost_agent", "failed", nil)

	if got := counterValue(t, StepsTotal, "ghost_agent", "failed") - beforeSteps; got != 1 {
		t.Errorf("steps delta = %f, want 1", got)
	}
	if got := histogramCount(t, AgentLatency, "ghost_agent") - beforeLatency; got != 0 {
		t.Errorf("latency samples delta = %d, want 0", got)
	}
}

// TestMiddlewareRecordsRoutePattern verifies that the route label is the
// matched mux pattern, not the raw path.
func TestMiddlewareRecordsRoutePattern(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /request/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	handler := MetricsMiddleware(mux)

	before := counterValue(t, RequestsTotal, "GET", "4xx", "GET /request/{id}")

	req := httptest.NewRequest("GET", "/request/abc", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	after := counterValue(t, RequestsTotal, "GET", "4xx", "GET /request/{id}")
	if after-before != 1 {
		t.Errorf("expected request count to increase by 1, got delta=%f", after-before)
	}
}

// TestMiddlewareRecordsDuration verifies that the middleware records
// a request duration observation.
func TestMiddlewareRecordsDuration(t *testing.T) {
	before := histogramCount(t, RequestDuration, "POST", "unmatched")

	handler := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(5 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("POST", "/query", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	after := histogramCount(t, RequestDuration, "POST", "unmatched")
	if after-before != 1 {
		t.Errorf("expected histogram sample count to increase by 1, got delta=%d", after-before)
	}
}

// TestMiddlewareInflightGauge verifies that the in-flight gauge increments
// during a request and decrements after completion.
func TestMiddlewareInflightGauge(t *testing.T) {
	baseline := gaugeValue(t, InflightRequests)

	inHandler := make(chan float64, 1)
	handler := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inHandler <- gaugeValue(t, InflightRequests)
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/health", nil))

	duringRequest := <-inHandler
	afterRequest := gaugeValue(t, InflightRequests)

	if duringRequest != baseline+1 {
		t.Errorf("expected gauge=%f during request, got %f", baseline+1, duringRequest)
	}
	if afterRequest != baseline {
		t.Errorf("expected gauge=%f after request, got %f", baseline, afterRequest)
	}
}

// TestMiddlewareCapturesStatusCode verifies that non-200 status codes are
// captured correctly in the status label.
func TestMiddlewareCapturesStatusCode(t *testing.T) {
	before := counterValue(t, RequestsTotal, "POST", "5xx", "unmatched")

	handler := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/query", nil))

	after := counterValue(t, RequestsTotal, "POST", "5xx", "unmatched")
	if after-before != 1 {
		t.Errorf("expected 5xx count to increase by 1, got delta=%f", after-before)
	}
}

// TestStatusWriterFlush verifies that the statusWriter Flush method
// delegates to the underlying writer when it implements http.Flusher.
func TestStatusWriterFlush(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rec, status: http.StatusOK}

	sw.Flush()

	if !rec.Flushed {
		t.Error("expected underlying writer to be flushed")
	}
}

// counterValue reads the current value of a CounterVec for the given labels.
func counterValue(t *testing.T, cv *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	m := &dto.Metric{}
	c, err := cv.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("getting counter metric: %v", err)
	}
	if err := c.(prometheus.Metric).Write(m); err != nil {
		t.Fatalf("writing counter metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

// histogramCount reads the observation count from a HistogramVec.
func histogramCount(t *testing.T, hv *prometheus.HistogramVec, labels ...string) uint64 {
	t.Helper()
	m := &dto.Metric{}
	obs, err := hv.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("getting histogram metric: %v", err)
	}
	if err := obs.(prometheus.Metric).Write(m); err != nil {
		t.Fatalf("writing histogram metric: %v", err)
	}
	return m.GetHistogram().GetSampleCount()
}

// gaugeValue reads the current value of a Gauge.
func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := g.Write(m); err != nil {
		t.Fatalf("writing gauge metric: %v", err)
	}
	return m.GetGauge().GetValue()
}

package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/trace"
)

func TestStatusWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rec}

	_, _ = sw.Write([]byte("hello"))
	_, _ = sw.Write([]byte(" world"))

	if sw.status != http.StatusOK {
		t.Fatalf("status = %d, want 200 after implicit header", sw.status)
	}
	if sw.n != 11 {
		t.Fatalf("n = %d, want 11", sw.n)
	}
	if sw.Unwrap() != rec {
		t.Fatal("Unwrap should return the underlying writer")
	}
}

func TestStatusWriter_FirstHeaderWins(t *testing.T) {
	sw := &statusWriter{ResponseWriter: httptest.NewRecorder()}
	sw.WriteHeader(http.StatusNotFound)
	sw.WriteHeader(http.StatusOK)
	if sw.status != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", sw.status)
	}
}

func TestMiddleware_LabelsUnmatched(t *testing.T) {
	m := New()
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/some/raw/path", http.NoBody))

	s := findMetric(t, m.reg, "http_requests_total", map[string]string{"method": "POST"})
	labels := labelsOf(s)
	if labels["route"] != unmatchedRoute || labels["status"] != "404" {
		t.Fatalf("labels = %v, want route=unmatched status=404", labels)
	}
}

func TestMiddleware_ChiRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Get("/js.js", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("// js")) })
	r.Handle("/*", http.NotFoundHandler())
	h := m.Middleware(r)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/js.js?123", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/img/logo.png", nil))

	if v := findMetric(t, m.reg, "http_requests_total", map[string]string{"route": "/js.js", "status": "200"}).GetCounter().GetValue(); v != 1 {
		t.Fatalf("/js.js count = %v, want 1", v)
	}
	if v := findMetric(t, m.reg, "http_requests_total", map[string]string{"route": "/*", "status": "404"}).GetCounter().GetValue(); v != 1 {
		t.Fatalf("/* count = %v, want 1", v)
	}
	if v := findMetric(t, m.reg, "http_response_size_bytes", map[string]string{"route": "/js.js"}).GetHistogram().GetSampleSum(); v != 5 {
		t.Fatalf("response bytes = %v, want 5", v)
	}
}

func TestMiddleware_ErrorCounter(t *testing.T) {
	tests := []struct {
		code int
		want bool
	}{
		{http.StatusOK, false},
		{http.StatusNotFound, false},
		{http.StatusInternalServerError, true},
		{http.StatusServiceUnavailable, true},
	}
	for _, tt := range tests {
		m := New()
		h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.code)
		}))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

		f := gatherMetric(t, m.reg, "http_errors_total")
		got := f != nil && len(f.GetMetric()) > 0
		if got != tt.want {
			t.Errorf("code %d: error counter present = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestMiddleware_InflightReturnsToZero(t *testing.T) {
	m := New()
	var during float64
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		during = gatherMetric(t, m.reg, "http_inflight_requests").GetMetric()[0].GetGauge().GetValue()
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if during != 1 {
		t.Fatalf("inflight during request = %v, want 1", during)
	}
	if v := gatherMetric(t, m.reg, "http_inflight_requests").GetMetric()[0].GetGauge().GetValue(); v != 0 {
		t.Fatalf("inflight after request = %v, want 0", v)
	}
}

func TestTraceExemplar(t *testing.T) {
	if ex := traceExemplar(context.Background()); ex != nil {
		t.Fatalf("no span: got %v, want nil", ex)
	}

	tid, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	sid, _ := trace.SpanIDFromHex("00f067aa0ba902b7")

	unsampled := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: tid, SpanID: sid,
	}))
	if ex := traceExemplar(unsampled); ex != nil {
		t.Fatalf("unsampled: got %v, want nil", ex)
	}

	sampled := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: tid, SpanID: sid, TraceFlags: trace.FlagsSampled,
	}))
	ex := traceExemplar(sampled)
	if ex["trace_id"] != tid.String() {
		t.Fatalf("sampled: got %v, want trace_id %s", ex, tid)
	}
}

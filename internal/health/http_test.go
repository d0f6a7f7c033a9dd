package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestProbeHandlers(t *testing.T) {
	tests := []struct {
		name     string
		handler  http.HandlerFunc
		wantCode int
		wantBody string
	}{
		{"healthz ok", HealthzHandler(Fixed(true, "")), http.StatusOK, "ok\n"},
		{"healthz nil probe", HealthzHandler(nil), http.StatusOK, "ok\n"},
		{"healthz failing", HealthzHandler(Fixed(false, "root missing")), http.StatusServiceUnavailable, "root missing"},
		{"readyz ok", ReadyzHandler(Fixed(true, "")), http.StatusOK, "ready\n"},
		{"readyz failing", ReadyzHandler(Fixed(false, "draining")), http.StatusServiceUnavailable, "draining"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Fatalf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
			if got := rec.Header().Get("Cache-Control"); got != "no-store" {
				t.Fatalf("Cache-Control = %q, want no-store", got)
			}
		})
	}
}

func TestReadyzHandler_FollowsGate(t *testing.T) {
	var g ShutdownGate
	h := ReadyzHandler(All(Fixed(true, ""), g.Probe()))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("before drain = %d, want 200", rec.Code)
	}

	g.Set("shutting down")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("after drain = %d, want 503", rec.Code)
	}
}

func TestHandler_UsesRequestContext(t *testing.T) {
	type key struct{}
	var saw any
	h := HealthzHandler(CheckFunc(func(ctx context.Context) error {
		saw = ctx.Value(key{})
		if saw == nil {
			return errors.New("no value")
		}
		return nil
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req = req.WithContext(context.WithValue(req.Context(), key{}, "v"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || saw != "v" {
		t.Fatalf("code = %d, saw = %v", rec.Code, saw)
	}
}

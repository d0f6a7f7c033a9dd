package httpmw

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRequestID_GeneratesAndEchoes(t *testing.T) {
	var seen string
	h := RequestID("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if len(seen) != 32 {
		t.Fatalf("generated id = %q, want 32 hex chars", seen)
	}
	if got := rec.Header().Get("X-Request-Id"); got != seen {
		t.Fatalf("response header = %q, want %q", got, seen)
	}
}

func TestRequestID_PropagatesValidIncoming(t *testing.T) {
	var seen string
	h := RequestID("X-Correlation-Id")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Correlation-Id", "edge-1234.abc_def:9")
	h.ServeHTTP(httptest.NewRecorder(), r)

	if seen != "edge-1234.abc_def:9" {
		t.Fatalf("id = %q", seen)
	}
}

func TestRequestID_ReplacesMalformedIncoming(t *testing.T) {
	for _, bad := range []string{"has space", "line\nbreak", strings.Repeat("a", maxRequestIDLen+1), `quote"`} {
		var seen string
		h := RequestID("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = RequestIDFromContext(r.Context())
		}))
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header["X-Request-Id"] = []string{bad}
		h.ServeHTTP(httptest.NewRecorder(), r)

		if seen == bad || len(seen) != 32 {
			t.Fatalf("incoming %q: id = %q, want a fresh one", bad, seen)
		}
	}
}

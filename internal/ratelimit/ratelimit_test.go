package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/keithlinneman/collage/internal/httpmw"
)

func newTestLimiter(t *testing.T, opts ...Option) *IPLimiter {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	defaults := []Option{WithRate(10, 5), WithTTL(time.Hour)}
	return New(ctx, append(defaults, opts...)...)
}

func TestDefaults(t *testing.T) {
	l := newTestLimiter(t)
	l2 := New(context.Background())
	if l2.burst != 30 || l2.perSecond != 10 || l2.ttl != 5*time.Minute || l2.maxVisitors != 100000 {
		t.Fatalf("defaults = %+v", l2)
	}
	if l.burst != 5 {
		t.Fatalf("WithRate burst = %d, want 5", l.burst)
	}
}

func TestAllow_BurstThenReject(t *testing.T) {
	l := newTestLimiter(t)
	for i := range 5 {
		if !l.allow("10.0.0.1") {
			t.Fatalf("request %d denied within burst", i)
		}
	}
	if l.allow("10.0.0.1") {
		t.Fatal("request past burst allowed")
	}
	if !l.allow("10.0.0.2") {
		t.Fatal("a second client shares the first client's bucket")
	}
}

func TestAllow_Refills(t *testing.T) {
	l := newTestLimiter(t, WithRate(50, 1))
	if !l.allow("ip") || l.allow("ip") {
		t.Fatal("burst of 1 not enforced")
	}
	time.Sleep(60 * time.Millisecond)
	if !l.allow("ip") {
		t.Fatal("bucket did not refill")
	}
}

func TestHooks(t *testing.T) {
	var first, every atomic.Int32
	l := newTestLimiter(t, WithRate(0.001, 1),
		WithOnFirstDenied(func(string) { first.Add(1) }),
		WithOnDenied(func(string) { every.Add(1) }),
	)
	l.allow("a")
	for range 3 {
		l.allow("a")
	}
	l.allow("b")
	l.allow("b")

	if got := first.Load(); got != 2 {
		t.Fatalf("first-denied calls = %d, want one per client", got)
	}
	if got := every.Load(); got != 4 {
		t.Fatalf("denied calls = %d, want 4", got)
	}
}

func TestEvict(t *testing.T) {
	l := newTestLimiter(t, WithTTL(time.Minute))
	l.allow("stale")
	l.allow("fresh")
	l.mu.Lock()
	l.visitors["stale"].lastSeen = time.Now().Add(-2 * time.Minute)
	l.mu.Unlock()

	l.evict(time.Now())

	if l.size() != 1 {
		t.Fatalf("size = %d, want 1", l.size())
	}
	l.mu.Lock()
	_, ok := l.visitors["fresh"]
	l.mu.Unlock()
	if !ok {
		t.Fatal("active client evicted")
	}
}

func TestCleanupLoopEvicts(t *testing.T) {
	l := newTestLimiter(t, WithTTL(20*time.Millisecond))
	l.allow("10.0.0.1")

	deadline := time.Now().Add(2 * time.Second)
	for l.size() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("idle client never evicted")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestMaxVisitors(t *testing.T) {
	var capacity atomic.Int32
	l := newTestLimiter(t, WithRate(100, 100), WithMaxVisitors(3), WithOnCapacity(func() { capacity.Add(1) }))

	for i := range 3 {
		if !l.allow(fmt.Sprintf("10.0.0.%d", i)) {
			t.Fatalf("client %d denied below capacity", i)
		}
	}
	if l.allow("10.0.0.99") || l.allow("10.0.0.98") {
		t.Fatal("new client admitted at capacity")
	}
	if !l.allow("10.0.0.1") {
		t.Fatal("known client denied at capacity")
	}
	if got := capacity.Load(); got != 1 {
		t.Fatalf("OnCapacity calls = %d, want 1", got)
	}

	// evicting everything re-arms the hook
	l.evict(time.Now().Add(2 * time.Hour))
	for i := range 4 {
		l.allow(fmt.Sprintf("10.1.0.%d", i))
	}
	if got := capacity.Load(); got != 2 {
		t.Fatalf("OnCapacity calls after eviction = %d, want 2", got)
	}
}

func TestMaxVisitors_ZeroDisables(t *testing.T) {
	l := newTestLimiter(t, WithMaxVisitors(0))
	for i := range 50 {
		if !l.allow(fmt.Sprintf("10.0.%d.1", i)) {
			t.Fatalf("client %d denied with no cap", i)
		}
	}
}

func request(ip, path string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, path, nil)
	return r.WithContext(httpmw.WithClientIP(r.Context(), ip))
}

func TestMiddleware(t *testing.T) {
	var reached atomic.Int32
	l := newTestLimiter(t, WithRate(0.001, 2), WithExempt(func(r *http.Request) bool {
		return r.URL.Path == "/-/healthy"
	}))
	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached.Add(1)
	}))

	codes := make([]int, 0, 3)
	for range 3 {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, request("10.0.0.1", "/js.js"))
		codes = append(codes, rec.Code)
	}
	if codes[0] != 200 || codes[1] != 200 || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v, want [200 200 429]", codes)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, request("10.0.0.1", "/js.js"))
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("429 without Retry-After")
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, request("10.0.0.1", "/-/healthy"))
	if rec.Code != 200 {
		t.Fatalf("exempt path limited: %d", rec.Code)
	}
	if got := reached.Load(); got != 3 {
		t.Fatalf("handler reached %d times, want 3", got)
	}
}

func TestConcurrentAccess(t *testing.T) {
	l := newTestLimiter(t, WithRate(1000, 1000), WithMaxVisitors(10))
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 20 {
				l.allow(fmt.Sprintf("10.0.%d.%d", i%20, j%3))
			}
		}()
	}
	wg.Wait()
	if n := l.size(); n > 10 {
		t.Fatalf("size = %d, exceeds cap 10", n)
	}
}

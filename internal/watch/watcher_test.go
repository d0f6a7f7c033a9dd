package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"
)

type spyMetrics struct {
	mu      sync.Mutex
	results []string
}

func (s *spyMetrics) IncWatchRebuild(result string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, result)
}

func startWatcher(t *testing.T, opts Options) chan []string {
	t.Helper()
	calls := make(chan []string, 8)
	onChange := opts.OnChange
	opts.OnChange = func(ctx context.Context, changed []string) error {
		calls <- changed
		if onChange != nil {
			return onChange(ctx, changed)
		}
		return nil
	}
	if opts.Debounce == 0 {
		opts.Debounce = 50 * time.Millisecond
	}
	w, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run: %v", err)
		}
	})
	return calls
}

func write(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func waitCall(t *testing.T, calls chan []string) []string {
	t.Helper()
	select {
	case c := <-calls:
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for OnChange")
		return nil
	}
}

func expectQuiet(t *testing.T, calls chan []string, d time.Duration) {
	t.Helper()
	select {
	case c := <-calls:
		t.Fatalf("unexpected OnChange(%v)", c)
	case <-time.After(d):
	}
}

func TestWatcher_CoalescesMatchingChanges(t *testing.T) {
	root := t.TempDir()
	calls := startWatcher(t, Options{Root: root, Patterns: []string{"**/*.js"}})

	write(t, filepath.Join(root, "a.js"), "// a")
	write(t, filepath.Join(root, "b.js"), "// b")

	got := waitCall(t, calls)
	for _, want := range []string{"a.js", "b.js"} {
		if !slices.Contains(got, want) {
			t.Fatalf("changed = %v, missing %s", got, want)
		}
	}
	if !slices.IsSorted(got) {
		t.Fatalf("changed = %v, want sorted", got)
	}
}

func TestWatcher_IgnoresOutputAndNonMatching(t *testing.T) {
	root := t.TempDir()
	calls := startWatcher(t, Options{
		Root:     root,
		Patterns: []string{"**/*.js"},
		Ignore:   []string{"js.js"},
	})

	write(t, filepath.Join(root, "js.js"), "bundle")
	write(t, filepath.Join(root, "note.txt"), "text")
	write(t, filepath.Join(root, ".js.js.123.tmp"), "partial")

	expectQuiet(t, calls, 300*time.Millisecond)
}

func TestWatcher_WatchesNewDirectories(t *testing.T) {
	root := t.TempDir()
	calls := startWatcher(t, Options{Root: root, Patterns: []string{"**/*.js"}})

	sub := filepath.Join(root, "sub")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	waitCall(t, calls)

	write(t, filepath.Join(sub, "three.js"), "// three")
	got := waitCall(t, calls)
	if !slices.Contains(got, "sub/three.js") {
		t.Fatalf("changed = %v, want sub/three.js", got)
	}
}

func TestWatcher_ReportsCallbackOutcome(t *testing.T) {
	root := t.TempDir()
	m := &spyMetrics{}
	calls := startWatcher(t, Options{
		Root:     root,
		Metrics:  m,
		OnChange: func(context.Context, []string) error { return errors.New("boom") },
	})

	write(t, filepath.Join(root, "a.js"), "// a")
	waitCall(t, calls)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		m.mu.Lock()
		n := len(m.results)
		m.mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.results) == 0 || m.results[0] != "error" {
		t.Fatalf("results = %v, want [error ...]", m.results)
	}
}

func TestNew_Validation(t *testing.T) {
	type stackTracer interface{ StackPCs() []uintptr }

	for name, opts := range map[string]Options{
		"empty root":      {},
		"invalid pattern": {Root: t.TempDir(), Patterns: []string{"["}},
		"invalid ignore":  {Root: t.TempDir(), Ignore: []string{"a/["}},
	} {
		_, err := New(opts)
		if err == nil {
			t.Errorf("%s: expected error", name)
			continue
		}
		var st stackTracer
		if !errors.As(err, &st) || len(st.StackPCs()) == 0 {
			t.Errorf("%s: error %v carries no stack", name, err)
		}
	}
}

func TestRun_OnlyOnce(t *testing.T) {
	w, err := New(Options{Root: t.TempDir()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Run(ctx); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if err := w.Run(ctx); err == nil {
		t.Fatal("second Run should fail")
	}
}

func TestMatchHelpers(t *testing.T) {
	w := &Watcher{patterns: []string{"**/*.js"}, ignores: append(slices.Clone(defaultIgnores), "js.js")}
	cases := []struct {
		rel              string
		ignored, matches bool
	}{
		{"a.js", false, true},
		{"sub/a.js", false, true},
		{"js.js", true, true},
		{".git/config", true, false},
		{"node_modules/x/y.js", true, true},
		{".js.js.42.tmp", true, false},
		{"style.sass", false, false},
	}
	for _, c := range cases {
		if got := w.ignored(c.rel); got != c.ignored {
			t.Errorf("ignored(%q) = %v, want %v", c.rel, got, c.ignored)
		}
		if got := w.matches(c.rel); got != c.matches {
			t.Errorf("matches(%q) = %v, want %v", c.rel, got, c.matches)
		}
	}
}

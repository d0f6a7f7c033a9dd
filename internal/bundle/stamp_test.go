package bundle

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"
)

func TestStamp(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "img"), 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"a.png", "img/b.svg"} {
		if err := os.WriteFile(filepath.Join(root, filepath.FromSlash(name)), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	mt := time.Unix(1700000000, 0)
	clock := func(path string) (time.Time, error) {
		if _, err := os.Stat(path); err != nil {
			return time.Time{}, err
		}
		return mt, nil
	}
	ts := strconv.FormatInt(mt.Unix(), 10)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"unquoted", "url(/a.png)", "url(/a.png?" + ts + ")"},
		{"double quoted", `url("/a.png")`, `url("/a.png?` + ts + `")`},
		{"single quoted", `url('/a.png')`, `url('/a.png?` + ts + `')`},
		{"relative", "url(img/b.svg)", "url(img/b.svg?" + ts + ")"},
		{"inner whitespace kept", "url( /a.png )", "url( /a.png?" + ts + " )"},
		{"existing query", "url(/a.png?v=2)", "url(/a.png?v=2&" + ts + ")"},
		{"fragment", "url(/img/b.svg#icon)", "url(/img/b.svg?" + ts + "#icon)"},
		{"external", "url(http://example.org/a.png)", "url(http://example.org/a.png)"},
		{"protocol relative", "url(//cdn.example.org/a.png)", "url(//cdn.example.org/a.png)"},
		{"data uri", "url(data:image/png;base64,AAAA)", "url(data:image/png;base64,AAAA)"},
		{"missing asset", "url(/nope.png)", "url(/nope.png)"},
		{"escapes root", "url(../a.png)", "url(../a.png)"},
		{"upper case function", "URL(/a.png)", "URL(/a.png?" + ts + ")"},
		{"mixed case quoted", `Url("/a.png")`, `Url("/a.png?` + ts + `")`},
		{"two references", "url(/a.png), url(/a.png)", "url(/a.png?" + ts + "), url(/a.png?" + ts + ")"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := string(newStamper(root, clock).stamp([]byte(tt.in)))
			if got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStamp_StatsEachAssetOnce(t *testing.T) {
	calls := 0
	clock := func(string) (time.Time, error) {
		calls++
		return time.Unix(1, 0), nil
	}
	s := newStamper(t.TempDir(), clock)
	s.stamp([]byte("url(/x.png) url(/x.png) url('/x.png')"))
	if calls != 1 {
		t.Fatalf("modTime called %d times, want 1", calls)
	}
}

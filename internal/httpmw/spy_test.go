package httpmw

import (
	"context"
	"sync"

	"github.com/keithlinneman/collage/internal/log"
)

type spyEntry struct {
	level string
	msg   string
	err   error
	kv    []any
}

// spyLogger records entries. With returns a child sharing the same sink that
// prepends its fields.
type spyLogger struct {
	mu      *sync.Mutex
	entries *[]spyEntry
	fields  []any
}

func newSpyLogger() *spyLogger {
	return &spyLogger{mu: &sync.Mutex{}, entries: &[]spyEntry{}}
}

func (s *spyLogger) With(kv ...any) log.Logger {
	return &spyLogger{mu: s.mu, entries: s.entries, fields: append(append([]any{}, s.fields...), kv...)}
}

func (s *spyLogger) record(level, msg string, err error, kv []any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := append(append([]any{}, s.fields...), kv...)
	*s.entries = append(*s.entries, spyEntry{level: level, msg: msg, err: err, kv: all})
}

func (s *spyLogger) Debug(_ context.Context, msg string, kv ...any) { s.record("debug", msg, nil, kv) }
func (s *spyLogger) Info(_ context.Context, msg string, kv ...any)  { s.record("info", msg, nil, kv) }
func (s *spyLogger) Warn(_ context.Context, msg string, kv ...any)  { s.record("warn", msg, nil, kv) }
func (s *spyLogger) Error(_ context.Context, err error, msg string, kv ...any) {
	s.record("error", msg, err, kv)
}
func (s *spyLogger) Sync() error { return nil }

func (s *spyLogger) all() []spyEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]spyEntry(nil), *s.entries...)
}

// field returns the value for key in e, last one wins.
func (e spyEntry) field(key string) (any, bool) {
	var (
		v  any
		ok bool
	)
	for i := 0; i+1 < len(e.kv); i += 2 {
		if k, _ := e.kv[i].(string); k == key {
			v, ok = e.kv[i+1], true
		}
	}
	return v, ok
}

package log

import (
	"context"
	"io"
	"testing"
)

func TestFromContext(t *testing.T) {
	stored, _ := New(Options{App: "stored", Writer: io.Discard})
	type otherKey struct{}

	tests := []struct {
		name string
		ctx  context.Context
		want Logger
	}{
		{"empty", context.Background(), Nop()},
		{"stored", WithContext(context.Background(), stored), stored},
		{"nil logger", WithContext(context.Background(), nil), Nop()},
		{"unrelated value", context.WithValue(context.Background(), otherKey{}, stored), Nop()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FromContext(tt.ctx); got != tt.want {
				t.Fatalf("FromContext = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestWithContext_Overwrites(t *testing.T) {
	first, _ := New(Options{App: "first", Writer: io.Discard})
	second, _ := New(Options{App: "second", Writer: io.Discard})
	parent := WithContext(context.Background(), first)
	child := WithContext(parent, second)

	if FromContext(parent) != first {
		t.Fatal("parent context changed")
	}
	if FromContext(child) != second {
		t.Fatal("child context should carry the newer logger")
	}
}

func TestFromContextOr(t *testing.T) {
	stored, _ := New(Options{App: "stored", Writer: io.Discard})
	fallback, _ := New(Options{App: "fallback", Writer: io.Discard})

	if got := FromContextOr(context.Background(), fallback); got != fallback {
		t.Fatal("empty context should return fallback")
	}
	if got := FromContextOr(WithContext(context.Background(), stored), fallback); got != stored {
		t.Fatal("stored logger should win over fallback")
	}
	if got := FromContextOr(context.Background(), nil); got != Nop() {
		t.Fatal("nil fallback should yield Nop")
	}
}

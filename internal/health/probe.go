package health

import (
	"context"
	"errors"
	"io"
	"os"
	"sync/atomic"

	"github.com/keithlinneman/collage/internal/xerrors"
)

// Probe is evaluated per request. A nil error means healthy.
type Probe interface{ Check(context.Context) error }

// CheckFunc adapts a function into a Probe.
type CheckFunc func(context.Context) error

func (f CheckFunc) Check(ctx context.Context) error { return f(ctx) }

// Fixed always passes, or always fails with reason.
func Fixed(ok bool, reason string) CheckFunc {
	if ok {
		return func(context.Context) error { return nil }
	}
	if reason == "" {
		reason = "unhealthy"
	}
	return func(context.Context) error { return xerrors.New(reason) }
}

// All passes when every non-nil probe passes and returns the first failure.
func All(ps ...Probe) CheckFunc {
	return func(ctx context.Context) error {
		for _, p := range ps {
			if p == nil {
				continue
			}
			if err := p.Check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

// Any passes when at least one non-nil probe passes. Otherwise it returns
// the last failure.
func Any(ps ...Probe) CheckFunc {
	return func(ctx context.Context) error {
		var last error
		for _, p := range ps {
			if p == nil {
				continue
			}
			err := p.Check(ctx)
			if err == nil {
				return nil
			}
			last = err
		}
		if last == nil {
			return xerrors.New("no healthy probes")
		}
		return last
	}
}

// DirReadable fails unless path is a directory that can be listed.
func DirReadable(path string) CheckFunc {
	return func(context.Context) error {
		f, err := os.Open(path)
		if err != nil {
			return xerrors.Wrapf(err, "open %s", path)
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil {
			return xerrors.Wrapf(err, "stat %s", path)
		}
		if !info.IsDir() {
			return xerrors.Newf("%s is not a directory", path)
		}
		if _, err := f.Readdirnames(1); err != nil && !errors.Is(err, io.EOF) {
			return xerrors.Wrapf(err, "list %s", path)
		}
		return nil
	}
}

// ShutdownGate fails its probe while draining.
type ShutdownGate struct {
	draining atomic.Bool
	reason   atomic.Value
}

func (g *ShutdownGate) Set(reason string) {
	g.reason.Store(reason)
	g.draining.Store(true)
}

func (g *ShutdownGate) Clear() {
	g.draining.Store(false)
	g.reason.Store("")
}

func (g *ShutdownGate) Probe() CheckFunc {
	return func(context.Context) error {
		if !g.draining.Load() {
			return nil
		}
		r, _ := g.reason.Load().(string)
		if r == "" {
			r = "draining"
		}
		return xerrors.New(r)
	}
}

package collage

import (
	"context"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/collage/internal/bundle"
	"github.com/keithlinneman/collage/internal/log"
	"github.com/keithlinneman/collage/internal/xerrors"
)

// Collage owns the configured targets for one root directory.
type Collage struct {
	opts     Options
	root     string
	byPath   map[string]Target
	minifier *bundle.Minifier
	tracer   trace.Tracer
	locks    pathLocks
}

func New(opts Options) (*Collage, error) {
	opts.setDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, xerrors.Wrapf(err, "resolve root %q", opts.Root)
	}

	c := &Collage{
		opts:     opts,
		root:     root,
		byPath:   make(map[string]Target, len(opts.Targets)),
		minifier: bundle.NewMinifier(),
		tracer:   otel.Tracer("collage"),
	}
	for _, t := range opts.Targets {
		c.byPath[t.Path] = t
	}
	// fail on bad patterns at startup, not on the first request
	for _, t := range opts.Targets {
		if _, err := c.Packager(t); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Collage) Root() string { return c.root }

func (c *Collage) Targets() []Target { return slices.Clone(c.opts.Targets) }

// Target returns the first configured target of kind.
func (c *Collage) Target(kind bundle.Kind) (Target, bool) {
	for _, t := range c.opts.Targets {
		if t.Kind == kind {
			return t, true
		}
	}
	return Target{}, false
}

// OutputPath is where the target's bundle is written.
func (c *Collage) OutputPath(t Target) string {
	return filepath.Join(c.root, filepath.FromSlash(t.Filename()))
}

// Packager returns a fresh packager for t with t's own output file already
// excluded from the source set.
func (c *Collage) Packager(t Target) (*bundle.Packager, error) {
	p, err := bundle.New(bundle.Options{
		Root:     c.root,
		Patterns: t.Patterns,
		Kind:     t.Kind,
		Variant:  t.Variant,
		ModTime:  c.opts.ModTime,
		Minifier: c.minifier,
	})
	if err != nil {
		return nil, err
	}
	if _, err := p.Ignore(c.OutputPath(t)); err != nil {
		return nil, err
	}
	return p, nil
}

// Build is the outcome of packaging one target.
type Build struct {
	Target  Target
	Output  string
	Data    []byte
	ModTime time.Time
	Files   int

	// PersistErr is set when the bundle was built but could not be
	// written. Data is still valid.
	PersistErr error
}

// Timestamp is ModTime as epoch seconds.
func (b *Build) Timestamp() string {
	return strconv.FormatInt(b.ModTime.Unix(), 10)
}

// Build packages t and writes it to its output path. An error is returned
// only when the bundle could not be produced; write failures are reported
// on Build.PersistErr.
func (c *Collage) Build(ctx context.Context, t Target) (*Build, error) {
	start := time.Now()
	kind := t.Kind.String()
	L := log.FromContextOr(ctx, c.opts.Logger)

	ctx, span := c.tracer.Start(ctx, "collage.package",
		trace.WithAttributes(
			attribute.String("collage.kind", kind),
			attribute.String("collage.path", t.Path),
		),
	)
	defer span.End()

	b, p, err := c.build(t)
	if err != nil {
		class := bundle.ErrorClass(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, class)
		c.opts.Observer.ObserveBuild(kind, class, time.Since(start), 0, 0, time.Time{})
		return nil, xerrors.EnsureTrace(err)
	}

	unlock := c.locks.lock(b.Output)
	perr := p.Write(b.Output, c.opts.Minify)
	unlock()

	if perr != nil {
		b.PersistErr = perr
		c.opts.Observer.IncPersistError(kind)
		span.RecordError(perr)
		L.Error(ctx, perr, "collage write failed, serving from memory",
			"kind", kind,
			"output", b.Output,
		)
	}

	span.SetAttributes(
		attribute.Int("collage.files", b.Files),
		attribute.Int("collage.bytes", len(b.Data)),
	)
	c.opts.Observer.ObserveBuild(kind, "ok", time.Since(start), len(b.Data), b.Files, b.ModTime)
	L.Debug(ctx, "collage built",
		"kind", kind,
		"files", b.Files,
		"bytes", len(b.Data),
		"timestamp", b.Timestamp(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return b, nil
}

func (c *Collage) build(t Target) (*Build, *bundle.Packager, error) {
	p, err := c.Packager(t)
	if err != nil {
		return nil, nil, err
	}
	files, err := p.Files()
	if err != nil {
		return nil, nil, err
	}
	var data []byte
	if c.opts.Minify {
		data, err = p.Minify()
	} else {
		data, err = p.Result()
	}
	if err != nil {
		return nil, nil, err
	}
	mt, err := p.ModTime()
	if err != nil {
		return nil, nil, err
	}
	return &Build{
		Target:  t,
		Output:  c.OutputPath(t),
		Data:    data,
		ModTime: mt,
		Files:   len(files),
	}, p, nil
}

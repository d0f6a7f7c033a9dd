package bundle

import (
	"io"
	"os"
	"strconv"
	"time"

	"github.com/keithlinneman/collage/internal/fileset"
	"github.com/keithlinneman/collage/internal/xerrors"
)

// Kind is what the bundle contains.
type Kind int

const (
	KindScript Kind = iota
	KindStylesheet
)

func (k Kind) String() string {
	if k == KindStylesheet {
		return "stylesheet"
	}
	return "script"
}

// MediaType is the Content-Type the bundle is served with.
func (k Kind) MediaType() string {
	if k == KindStylesheet {
		return MediaTypeCSS
	}
	return MediaTypeJS
}

// DefaultPatterns is used when Options.Patterns is empty.
func (k Kind) DefaultPatterns() []string {
	if k == KindStylesheet {
		return []string{"**/*.sass"}
	}
	return []string{"**/*.js"}
}

func (k Kind) defaultVariant() Variant {
	if k == KindStylesheet {
		return Stylesheet
	}
	return Passthrough
}

// State is where a Packager is in its lifecycle.
type State int

const (
	Uninitialized State = iota
	Resolved
	Cached
)

func (s State) String() string {
	switch s {
	case Resolved:
		return "resolved"
	case Cached:
		return "cached"
	default:
		return "uninitialized"
	}
}

type Options struct {
	Root     string
	Patterns []string
	Kind     Kind
	Variant  Variant

	// ModTime and ReadFile default to the local filesystem.
	ModTime  ModTimeFunc
	ReadFile ReadFileFunc

	// Minifier is shared between packagers when set.
	Minifier *Minifier
}

// Artifact is a built bundle. ModTime is captured at build time.
type Artifact struct {
	Data    []byte
	ModTime time.Time
}

// Packager builds a bundle from a resolved file set. The artifact is built
// on first use and cached until Ignore removes one of its sources.
type Packager struct {
	kind     Kind
	variant  Variant
	files    *fileset.Resolver
	proc     Processor
	min      *Minifier
	modTime  ModTimeFunc
	readFile ReadFileFunc

	artifact *Artifact
}

func New(opts Options) (*Packager, error) {
	if opts.Root == "" {
		return nil, xerrors.Wrap(ErrInvalidOptions, "root is required")
	}
	if opts.Kind != KindScript && opts.Kind != KindStylesheet {
		return nil, xerrors.Wrapf(ErrInvalidOptions, "unknown kind %d", opts.Kind)
	}
	patterns := opts.Patterns
	if len(patterns) == 0 {
		patterns = opts.Kind.DefaultPatterns()
	}
	files, err := fileset.New(opts.Root, patterns)
	if err != nil {
		return nil, xerrors.Wrapf(ErrInvalidOptions, "%v", err)
	}

	p := &Packager{
		kind:     opts.Kind,
		variant:  opts.Variant,
		files:    files,
		min:      opts.Minifier,
		modTime:  opts.ModTime,
		readFile: opts.ReadFile,
	}
	if p.variant == 0 {
		p.variant = opts.Kind.defaultVariant()
	}
	if p.modTime == nil {
		p.modTime = StatModTime
	}
	if p.readFile == nil {
		p.readFile = os.ReadFile
	}
	if p.min == nil {
		p.min = NewMinifier()
	}

	switch p.variant {
	case Passthrough:
		p.proc = passthrough{}
	case Minified:
		p.proc = minifying{min: p.min, mediaType: p.kind.MediaType()}
	case Stylesheet:
		p.proc = stylesheetCompiler{root: files.Root(), modTime: p.modTime}
	default:
		return nil, xerrors.Wrapf(ErrInvalidOptions, "unknown variant %d", p.variant)
	}
	return p, nil
}

func (p *Packager) Kind() Kind       { return p.kind }
func (p *Packager) Variant() Variant { return p.variant }
func (p *Packager) Root() string     { return p.files.Root() }

func (p *Packager) State() State {
	switch {
	case p.artifact != nil:
		return Cached
	case p.files.Resolved():
		return Resolved
	default:
		return Uninitialized
	}
}

// Files returns the resolved source paths in bundle order.
func (p *Packager) Files() ([]string, error) {
	return p.files.Files()
}

// Ignore removes path from the source set. The cached artifact is dropped
// only when something was actually removed.
func (p *Packager) Ignore(path string) (bool, error) {
	removed, err := p.files.Ignore(path)
	if err != nil {
		return false, err
	}
	if removed {
		p.artifact = nil
	}
	return removed, nil
}

func (p *Packager) build() (*Artifact, error) {
	if p.artifact != nil {
		return p.artifact, nil
	}
	files, err := p.files.Files()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, ErrEmptySourceSet
	}
	sources, err := readSources(files, p.readFile)
	if err != nil {
		return nil, err
	}
	data, err := p.proc.Process(sources)
	if err != nil {
		return nil, err
	}
	mt, err := LatestModTime(files, p.modTime)
	if err != nil {
		return nil, err
	}
	p.artifact = &Artifact{Data: data, ModTime: mt}
	return p.artifact, nil
}

// Result returns the processed bundle. Repeated calls return the same bytes
// while the source set is unchanged.
func (p *Packager) Result() ([]byte, error) {
	a, err := p.build()
	if err != nil {
		return nil, err
	}
	return a.Data, nil
}

// Minify returns the minified form of Result. It is not cached.
func (p *Packager) Minify() ([]byte, error) {
	data, err := p.Result()
	if err != nil {
		return nil, err
	}
	if p.variant == Minified {
		return data, nil
	}
	return p.min.Minify(p.kind.MediaType(), data)
}

// Size is the length of Result in bytes.
func (p *Packager) Size() (int, error) {
	data, err := p.Result()
	if err != nil {
		return 0, err
	}
	return len(data), nil
}

// ModTime is the newest source mtime. Before the artifact is built it is
// computed from the current source set on every call.
func (p *Packager) ModTime() (time.Time, error) {
	if p.artifact != nil {
		return p.artifact.ModTime, nil
	}
	files, err := p.files.Files()
	if err != nil {
		return time.Time{}, err
	}
	return LatestModTime(files, p.modTime)
}

// Timestamp is ModTime as decimal epoch seconds.
func (p *Packager) Timestamp() (string, error) {
	mt, err := p.ModTime()
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(mt.Unix(), 10), nil
}

// WriteTo streams Result to w.
func (p *Packager) WriteTo(w io.Writer) (int64, error) {
	data, err := p.Result()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	return int64(n), err
}

// String returns Result, or the empty string if it cannot be built.
func (p *Packager) String() string {
	data, err := p.Result()
	if err != nil {
		return ""
	}
	return string(data)
}

// Write persists Result, or Minify when minified is set, to path and sets
// the file's mtime to ModTime.
func (p *Packager) Write(path string, minified bool) error {
	var (
		data []byte
		err  error
	)
	if minified {
		data, err = p.Minify()
	} else {
		data, err = p.Result()
	}
	if err != nil {
		return err
	}
	mt, err := p.ModTime()
	if err != nil {
		return err
	}
	if err := writeFileAtomic(path, data, mt); err != nil {
		return &PersistError{Path: path, Err: err}
	}
	return nil
}

package collage

import (
	"slices"
	"strings"

	"github.com/keithlinneman/collage/internal/bundle"
	"github.com/keithlinneman/collage/internal/log"
	"github.com/keithlinneman/collage/internal/xerrors"
)

const (
	ScriptPath     = "/js.js"
	StylesheetPath = "/css.css"
)

// Target is one bundle served at a fixed URL path. The output file is the
// path's base name under the root.
type Target struct {
	Kind     bundle.Kind
	Path     string
	Patterns []string
	Variant  bundle.Variant
}

func ScriptTarget(patterns ...string) Target {
	return Target{Kind: bundle.KindScript, Path: ScriptPath, Patterns: patterns}
}

func StylesheetTarget(patterns ...string) Target {
	return Target{Kind: bundle.KindStylesheet, Path: StylesheetPath, Patterns: patterns}
}

// Filename is the output file name relative to the root.
func (t Target) Filename() string {
	return strings.TrimPrefix(t.Path, "/")
}

type Options struct {
	Logger log.Logger

	// Root holds the sources and receives the output files.
	Root string

	// Targets defaults to a single script bundle at /js.js.
	Targets []Target

	// Minify serves and writes the minified bundle.
	Minify bool

	// Observer receives build and persist outcomes. Optional.
	Observer Observer

	// ModTime overrides the filesystem mtime lookup, mainly for tests.
	ModTime bundle.ModTimeFunc
}

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = log.Nop()
	}
	if len(o.Targets) == 0 {
		o.Targets = []Target{ScriptTarget()}
	} else {
		o.Targets = slices.Clone(o.Targets)
	}
	if o.Observer == nil {
		o.Observer = nopObserver{}
	}
	for i := range o.Targets {
		if o.Targets[i].Path != "" && !strings.HasPrefix(o.Targets[i].Path, "/") {
			o.Targets[i].Path = "/" + o.Targets[i].Path
		}
	}
}

func (o *Options) validate() error {
	if o.Root == "" {
		return xerrors.Errorf("%w: Root is empty", bundle.ErrInvalidOptions)
	}
	seen := make(map[string]bool, len(o.Targets))
	for _, t := range o.Targets {
		name := t.Filename()
		if name == "" || strings.Contains(name, "/") {
			return xerrors.Errorf("%w: target path %q must be a single top level file", bundle.ErrInvalidOptions, t.Path)
		}
		if seen[t.Path] {
			return xerrors.Errorf("%w: duplicate target path %q", bundle.ErrInvalidOptions, t.Path)
		}
		seen[t.Path] = true
	}
	return nil
}

package bundle

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/keithlinneman/collage/internal/sass"
	"github.com/keithlinneman/collage/internal/xerrors"
)

// Variant selects how aggregated sources are post-processed. The zero value
// picks the default for the bundle's Kind.
type Variant int

const (
	// Passthrough concatenates sources unchanged.
	Passthrough Variant = iota + 1
	// Minified concatenates then minifies.
	Minified
	// Stylesheet compiles indented-syntax sources to CSS and stamps local
	// url() references with the asset's mtime.
	Stylesheet
)

func (v Variant) String() string {
	switch v {
	case Passthrough:
		return "passthrough"
	case Minified:
		return "minified"
	case Stylesheet:
		return "stylesheet"
	default:
		return "default"
	}
}

// ParseVariant maps a config string onto a Variant. The empty string is
// the kind default.
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default":
		return 0, nil
	case "passthrough", "none":
		return Passthrough, nil
	case "minified", "minify":
		return Minified, nil
	case "stylesheet", "sass":
		return Stylesheet, nil
	}
	return 0, xerrors.Wrapf(ErrInvalidOptions, "unknown variant %q", s)
}

// Processor turns ordered sources into the bundle body.
type Processor interface {
	Process(sources []Source) ([]byte, error)
}

type passthrough struct{}

func (passthrough) Process(sources []Source) ([]byte, error) {
	return Join(blocks(sources)), nil
}

type minifying struct {
	min       *Minifier
	mediaType string
}

func (p minifying) Process(sources []Source) ([]byte, error) {
	return p.min.Minify(p.mediaType, Join(blocks(sources)))
}

// stylesheetCompiler compiles each .sass source on its own, so a syntax
// error is reported against the file it came from. @import resolves
// against the importing file's directory. Other sources are plain CSS and
// are kept verbatim.
type stylesheetCompiler struct {
	root    string
	modTime ModTimeFunc
}

func (p stylesheetCompiler) Process(sources []Source) ([]byte, error) {
	st := newStamper(p.root, p.modTime)
	out := make([][]byte, 0, len(sources))
	for _, src := range sources {
		b := src.Data
		if strings.EqualFold(filepath.Ext(src.Path), ".sass") {
			compiled, err := sass.Compile(src.Data, filepath.Dir(src.Path))
			if err != nil {
				ce := &CompileError{Path: src.Path, Err: err}
				var se *sass.SyntaxError
				if errors.As(err, &se) {
					ce.Line = se.Line
				}
				return nil, ce
			}
			b = compiled
		}
		out = append(out, st.stamp(b))
	}
	return Join(out), nil
}

func blocks(sources []Source) [][]byte {
	out := make([][]byte, len(sources))
	for i, s := range sources {
		out[i] = s.Data
	}
	return out
}

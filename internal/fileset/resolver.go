package fileset

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/keithlinneman/collage/internal/xerrors"
)

// Resolver lazily resolves a set of patterns under Root and caches the result
// until Ignore removes an entry.
type Resolver struct {
	root     string
	patterns []string

	files    []string
	resolved bool
}

// New returns a Resolver for patterns under root. root is made absolute.
// Invalid patterns are rejected here so a typo fails at construction rather
// than silently matching nothing.
func New(root string, patterns []string) (*Resolver, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, xerrors.Wrapf(err, "resolve root %q", root)
	}
	cleaned := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = NormalizePattern(p)
		if p == "" {
			continue
		}
		if !doublestar.ValidatePattern(p) {
			return nil, xerrors.Newf("invalid glob pattern %q", p)
		}
		cleaned = append(cleaned, p)
	}
	return &Resolver{root: abs, patterns: cleaned}, nil
}

// Root returns the absolute root directory.
func (r *Resolver) Root() string { return r.root }

// Patterns returns a copy of the normalized patterns.
func (r *Resolver) Patterns() []string { return slices.Clone(r.patterns) }

// Resolved reports whether the file list has been computed.
func (r *Resolver) Resolved() bool { return r.resolved }

// Files returns the resolved list, computing it on first use. The returned
// slice is a copy.
func (r *Resolver) Files() ([]string, error) {
	if !r.resolved {
		files, err := Resolve(r.root, r.patterns)
		if err != nil {
			return nil, err
		}
		r.files = files
		r.resolved = true
	}
	return slices.Clone(r.files), nil
}

// Ignore removes path from the resolved list. It reports whether an entry was
// actually removed. Calling it again for the same path is a no-op.
func (r *Resolver) Ignore(path string) (bool, error) {
	if _, err := r.Files(); err != nil {
		return false, err
	}
	target, err := filepath.Abs(path)
	if err != nil {
		return false, xerrors.Wrapf(err, "resolve ignored path %q", path)
	}
	i := slices.Index(r.files, target)
	if i < 0 {
		return false, nil
	}
	r.files = slices.Delete(r.files, i, i+1)
	return true, nil
}

// Resolve expands every pattern under root and returns absolute, cleaned
// file paths. A root that does not exist yields an empty list and no error.
func Resolve(root string, patterns []string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, nil
	}

	fsys := os.DirFS(root)
	seen := make(map[string]struct{})
	var out []string
	for _, p := range patterns {
		matches, err := doublestar.Glob(fsys, NormalizePattern(p), doublestar.WithFilesOnly())
		if err != nil {
			return nil, xerrors.Wrapf(err, "expand pattern %q", p)
		}
		slices.Sort(matches)
		for _, m := range matches {
			abs := filepath.Join(root, filepath.FromSlash(m))
			if _, dup := seen[abs]; dup {
				continue
			}
			seen[abs] = struct{}{}
			out = append(out, abs)
		}
	}
	return out, nil
}

// NormalizePattern turns p into the root-relative, slash-separated form the
// resolver globs with. io/fs paths never start with a slash or "./".
func NormalizePattern(p string) string {
	p = filepath.ToSlash(strings.TrimSpace(p))
	p = strings.TrimLeft(p, "/")
	for strings.HasPrefix(p, "./") {
		p = p[2:]
	}
	return p
}

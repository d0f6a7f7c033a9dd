package bundle

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// urlRef matches url(...) in any letter case with double, single or no
// quotes. Exactly one of the three groups is set.
var (
	urlRef    = regexp.MustCompile(`(?i)url\(\s*(?:"([^"]*)"|'([^']*)'|([^)'"\s]+))\s*\)`)
	urlScheme = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.-]*:`)
)

// stamper appends the referenced file's mtime as a query to every local
// url() reference. External URLs, data URIs, fragments and assets that do
// not exist under root are left untouched.
type stamper struct {
	root    string
	modTime ModTimeFunc
	cache   map[string]string
}

func newStamper(root string, modTime ModTimeFunc) *stamper {
	return &stamper{root: root, modTime: modTime, cache: map[string]string{}}
}

func (s *stamper) stamp(css []byte) []byte {
	matches := urlRef.FindAllSubmatchIndex(css, -1)
	if len(matches) == 0 {
		return css
	}

	out := make([]byte, 0, len(css)+len(matches)*12)
	last := 0
	for _, m := range matches {
		start, end := -1, -1
		for g := 1; g <= 3; g++ {
			if m[2*g] >= 0 {
				start, end = m[2*g], m[2*g+1]
				break
			}
		}
		if start < 0 {
			continue
		}
		ref := string(css[start:end])
		stamped, ok := s.stampRef(ref)
		if !ok {
			continue
		}
		out = append(out, css[last:start]...)
		out = append(out, stamped...)
		last = end
	}
	out = append(out, css[last:]...)
	return out
}

func (s *stamper) stampRef(ref string) (string, bool) {
	if !isLocalRef(ref) {
		return "", false
	}

	path, suffix := ref, ""
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		path, suffix = ref[:i], ref[i:]
	}
	ts, ok := s.timestamp(path)
	if !ok {
		return "", false
	}

	query, fragment := suffix, ""
	if i := strings.IndexByte(suffix, '#'); i >= 0 {
		query, fragment = suffix[:i], suffix[i:]
	}
	switch {
	case query == "":
		query = "?" + ts
	case query == "?":
		query += ts
	default:
		query += "&" + ts
	}
	return path + query + fragment, true
}

// timestamp returns the epoch seconds of the asset, or false when it cannot
// be found under root.
func (s *stamper) timestamp(ref string) (string, bool) {
	if ts, ok := s.cache[ref]; ok {
		return ts, ts != ""
	}
	ts := ""
	if full, ok := s.resolve(ref); ok {
		if t, err := s.modTime(full); err == nil {
			ts = strconv.FormatInt(t.Unix(), 10)
		}
	}
	s.cache[ref] = ts
	return ts, ts != ""
}

// resolve maps a reference onto the filesystem. Root-relative and relative
// references are both taken relative to root; anything that escapes root
// is rejected.
func (s *stamper) resolve(ref string) (string, bool) {
	rel := strings.TrimLeft(ref, "/")
	if rel == "" {
		return "", false
	}
	full := filepath.Join(s.root, filepath.FromSlash(rel))
	r, err := filepath.Rel(s.root, full)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", false
	}
	return full, true
}

func isLocalRef(ref string) bool {
	switch {
	case ref == "":
		return false
	case strings.HasPrefix(ref, "#"):
		return false
	case strings.HasPrefix(ref, "//"):
		return false
	case urlScheme.MatchString(ref):
		return false
	}
	return true
}

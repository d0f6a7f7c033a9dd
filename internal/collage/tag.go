package collage

import (
	"fmt"
	"html"

	"github.com/keithlinneman/collage/internal/bundle"
	"github.com/keithlinneman/collage/internal/xerrors"
)

// Timestamp returns the cache-busting stamp for the script bundle under
// root using the default patterns.
func Timestamp(root string) (string, error) {
	c, err := New(Options{Root: root})
	if err != nil {
		return "", err
	}
	return c.Timestamp(bundle.KindScript)
}

// HTMLTag returns a script tag for the default script bundle under root.
func HTMLTag(root string) (string, error) {
	c, err := New(Options{Root: root})
	if err != nil {
		return "", err
	}
	return c.HTMLTag(bundle.KindScript)
}

// Timestamp returns the newest source mtime of the kind's target as epoch
// seconds. The target's own output file is not counted.
func (c *Collage) Timestamp(kind bundle.Kind) (string, error) {
	t, ok := c.Target(kind)
	if !ok {
		return "", xerrors.Errorf("%w: no %s target configured", bundle.ErrInvalidOptions, kind)
	}
	p, err := c.Packager(t)
	if err != nil {
		return "", err
	}
	return p.Timestamp()
}

// HTMLTag returns a ready-to-embed tag referencing the kind's target with
// its timestamp as the query string.
func (c *Collage) HTMLTag(kind bundle.Kind) (string, error) {
	t, ok := c.Target(kind)
	if !ok {
		return "", xerrors.Errorf("%w: no %s target configured", bundle.ErrInvalidOptions, kind)
	}
	ts, err := c.Timestamp(kind)
	if err != nil {
		return "", err
	}
	src := html.EscapeString(t.Path + "?" + ts)
	if kind == bundle.KindStylesheet {
		return fmt.Sprintf(`<link rel="stylesheet" type="text/css" href="%s">`, src), nil
	}
	return fmt.Sprintf(`<script type="text/javascript" src="%s"></script>`, src), nil
}

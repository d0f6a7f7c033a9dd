package bundle

import (
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/js"
)

const (
	MediaTypeJS  = "text/javascript"
	MediaTypeCSS = "text/css"
)

// Minifier compacts scripts and stylesheets. Output is never longer than
// its input.
type Minifier struct {
	m *minify.M
}

func NewMinifier() *Minifier {
	m := minify.New()
	m.AddFunc(MediaTypeJS, js.Minify)
	m.AddFunc(MediaTypeCSS, css.Minify)
	return &Minifier{m: m}
}

// Minify returns the compact form of src for mediaType. If the minifier
// would grow the input, src is returned unchanged.
func (z *Minifier) Minify(mediaType string, src []byte) ([]byte, error) {
	if len(src) == 0 {
		return []byte{}, nil
	}
	out, err := z.m.Bytes(mediaType, src)
	if err != nil {
		return nil, &MinifyError{MediaType: mediaType, Err: err}
	}
	if len(out) > len(src) {
		return src, nil
	}
	return out, nil
}

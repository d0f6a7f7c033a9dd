package collage

import (
	"net/http"
	"strconv"
	"time"

	"github.com/keithlinneman/collage/internal/log"
)

const (
	immutableCacheControl  = "public, max-age=31536000, immutable"
	revalidateCacheControl = "no-cache"
)

// Middleware answers requests for the configured target paths and passes
// everything else to next.
func (c *Collage) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t, ok := c.byPath[r.URL.Path]
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		c.serve(w, r, t)
	})
}

// Handler serves only the target paths and answers 404 for anything else.
func (c *Collage) Handler() http.Handler {
	return c.Middleware(http.NotFoundHandler())
}

func (c *Collage) serve(w http.ResponseWriter, r *http.Request, t Target) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	b, err := c.Build(ctx, t)
	if err != nil {
		log.FromContextOr(ctx, c.opts.Logger).Error(ctx, err, "collage build failed",
			"kind", t.Kind.String(),
			"path", t.Path,
		)
		w.Header().Set("Cache-Control", "no-store")
		http.Error(w, "collage: bundle unavailable", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Last-Modified", b.ModTime.UTC().Format(http.TimeFormat))
	if r.URL.RawQuery != "" && r.URL.RawQuery == b.Timestamp() {
		h.Set("Cache-Control", immutableCacheControl)
	} else {
		h.Set("Cache-Control", revalidateCacheControl)
	}

	if notModified(r, b.ModTime) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	h.Set("Content-Type", t.Kind.MediaType())
	h.Set("Content-Length", strconv.Itoa(len(b.Data)))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(b.Data)
}

// notModified reports whether If-Modified-Since is at or after mtime.
// HTTP dates have second precision.
func notModified(r *http.Request, mtime time.Time) bool {
	ims := r.Header.Get("If-Modified-Since")
	if ims == "" || mtime.IsZero() {
		return false
	}
	t, err := http.ParseTime(ims)
	if err != nil {
		return false
	}
	return !mtime.Truncate(time.Second).After(t)
}

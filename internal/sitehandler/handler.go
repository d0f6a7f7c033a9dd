// Package sitehandler serves the static site under the bundle root. It is
// the application the collage middleware wraps.
package sitehandler

import "net/http"

type Handler struct {
	opts Options
}

func New(opts Options) (*Handler, error) {
	opts.setDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &Handler{opts: opts}, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	file, redirectTo, found := resolvePath(r.URL.Path, h.opts.FS)
	if redirectTo != "" {
		http.Redirect(w, r, redirectTo, http.StatusPermanentRedirect)
		return
	}
	if !found {
		h.serveNotFound(w, r)
		return
	}

	if cc := cacheControlForFile(file, &h.opts); cc != "" {
		w.Header().Set("Cache-Control", cc)
	}
	http.ServeFileFS(w, r, h.opts.FS, file)
}

func (h *Handler) serveNotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")

	if existsFile(h.opts.FS, h.opts.Site404File) {
		h.serveFileWithStatus(w, r, http.StatusNotFound, h.opts.Site404File)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte("404 page not found"))
}

// statusOverrideWriter forces the status of the first WriteHeader call,
// since http.ServeFileFS always answers 200 for a file it finds.
type statusOverrideWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusOverrideWriter) WriteHeader(code int) {
	if w.wroteHeader {
		w.ResponseWriter.WriteHeader(code)
		return
	}
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(w.status)
}

func (w *statusOverrideWriter) Write(p []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(w.status)
	}
	return w.ResponseWriter.Write(p)
}

func (h *Handler) serveFileWithStatus(w http.ResponseWriter, r *http.Request, status int, name string) {
	// conditional headers would turn a themed 404 into a 304
	r = r.Clone(r.Context())
	r.Header.Del("If-Modified-Since")
	r.Header.Del("If-None-Match")
	sw := &statusOverrideWriter{ResponseWriter: w, status: status}
	http.ServeFileFS(sw, r, h.opts.FS, name)
}

package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/keithlinneman/collage/internal/health"
	"github.com/keithlinneman/collage/internal/httpmw"
	"github.com/keithlinneman/collage/internal/log"
	"github.com/keithlinneman/collage/internal/xerrors"
)

// NewHandler builds the public handler. main owns the *http.Server so it
// can drain on shutdown.
func NewHandler(opts *Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}

	r := chi.NewRouter()

	r.Use(middleware.Compress(5,
		"text/html",
		"text/css",
		"text/javascript",
		"application/javascript",
		"application/json",
		"image/svg+xml",
	))
	r.Use(httpmw.AnnotateHTTPRoute)
	r.Use(httpmw.AccessLog())
	// bundles and pages are read-only; nothing legitimate sends a body
	r.Use(httpmw.MaxBody(1024))

	if opts.Health != nil {
		r.Get("/-/healthy", health.HealthzHandler(opts.Health))
	}
	if opts.Readiness != nil {
		r.Get("/-/ready", health.ReadyzHandler(opts.Readiness))
	}

	bundlePaths := make(map[string]bool)
	if opts.Collage != nil {
		bundles := httpmw.Scope("collage")(opts.Collage.Handler())
		for _, t := range opts.Collage.Targets() {
			r.Handle(t.Path, bundles)
			bundlePaths[t.Path] = true
		}
	}

	site := opts.Site
	if site == nil {
		site = http.NotFoundHandler()
	}
	r.Handle("/*", httpmw.Scope("site")(site))

	var h http.Handler = r

	h = httpmw.WithLogger(opts.Logger)(h)

	if opts.MetricsMW != nil {
		h = opts.MetricsMW(h)
	}

	h = httpmw.TraceResponseHeaders("X-Trace-Id", "X-Span-Id")(h)

	h = otelhttp.NewHandler(
		h,
		"http.server",
		otelhttp.WithFilter(func(r *http.Request) bool {
			return shouldTrace(r.URL.Path, bundlePaths)
		}),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			// AnnotateHTTPRoute renames this once the route is known
			return r.Method + " " + r.URL.Path
		}),
		otelhttp.WithPublicEndpointFn(func(*http.Request) bool { return true }),
	)

	// rate limiting keys on the address ClientIP resolved
	if opts.RateLimitMW != nil {
		h = opts.RateLimitMW(h)
	}
	h = httpmw.ClientIPWithOptions(opts.ClientIPOpts)(h)
	h = httpmw.RequestID("X-Request-Id")(h)

	if opts.UseRecoverMW {
		h = httpmw.Recover(opts.Logger, opts.OnPanic)(h)
	}

	// outermost so every response carries them
	h = httpmw.SecurityHeaders(h)

	return h
}

// shouldTrace keeps bundle requests, which may trigger a build, and drops
// health checks and plain static assets.
func shouldTrace(p string, bundlePaths map[string]bool) bool {
	if bundlePaths[p] {
		return true
	}
	switch p {
	case "/-/healthy", "/-/ready", "/favicon.ico", "/robots.txt":
		return false
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".css", ".js", ".sass", ".png", ".jpg", ".jpeg", ".webp", ".gif", ".svg", ".ico", ".woff", ".woff2", ".map":
		return false
	}
	return true
}

// Server timeout defaults.
const (
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultReadTimeout       = 10 * time.Second
	DefaultWriteTimeout      = 30 * time.Second
	DefaultIdleTimeout       = 60 * time.Second
	DefaultMaxHeaderBytes    = 1 << 20
	DefaultPort              = 8080
)

func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		ReadTimeout:       DefaultReadTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		MaxHeaderBytes:    DefaultMaxHeaderBytes,
	}
}

// Start serves the public handler and returns stop for graceful shutdown.
func Start(ctx context.Context, opts *Options) (func(context.Context) error, error) {
	port := opts.Port
	if port == 0 {
		port = DefaultPort
	}
	addr := fmt.Sprintf(":%d", port)

	srv := NewServer(addr, NewHandler(opts))

	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, xerrors.Wrapf(err, "listen on %s", addr)
	}

	go func() {
		opts.Logger.Info(ctx, "http server listening", "addr", addr)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			opts.Logger.Error(ctx, err, "http server error")
		}
	}()

	var once sync.Once
	var stopErr error
	stop := func(sctx context.Context) error {
		once.Do(func() {
			opts.Logger.Info(sctx, "http server shutting down")
			c, cancel := context.WithTimeout(sctx, 5*time.Second)
			defer cancel()
			stopErr = srv.Shutdown(c)
		})
		return stopErr
	}
	return stop, nil
}

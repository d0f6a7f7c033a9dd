package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keithlinneman/collage/internal/version"
)

// ServerMetrics owns a private registry with the HTTP, process and bundle
// metrics for one server process.
type ServerMetrics struct {
	reg     *prometheus.Registry
	handler http.Handler

	// http
	inflight    prometheus.Gauge
	reqTotal    *prometheus.CounterVec
	reqDur      *prometheus.HistogramVec
	respBytes   *prometheus.HistogramVec
	errorsTotal *prometheus.CounterVec
	panicTotal  prometheus.Counter

	// process
	buildInfo       *prometheus.GaugeVec
	profilingActive prometheus.Gauge

	// rate limiter
	ratelimitDenied   prometheus.Counter
	ratelimitCapacity prometheus.Counter

	// bundles
	builds        *prometheus.CounterVec
	buildDur      *prometheus.HistogramVec
	bundleBytes   *prometheus.GaugeVec
	bundleFiles   *prometheus.GaugeVec
	bundleMtime   *prometheus.GaugeVec
	persistErrors *prometheus.CounterVec
	watchRebuilds *prometheus.CounterVec
	publishes     *prometheus.CounterVec
	publishDur    prometheus.Histogram
}

// New returns a fresh registry with the Go and process collectors plus the
// server's own metrics. HTTP labels are limited to method, route and status.
func New() *ServerMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &ServerMetrics{
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests",
		}),
		reqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		}, []string{"method", "route", "status"}),
		reqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request latency by method and route",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
		respBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Response size by method and route",
			Buckets: prometheus.ExponentialBuckets(256, 4, 9),
		}, []string{"method", "route"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total 5xx responses by method and route",
		}, []string{"method", "route"}),
		panicTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_panic_total",
			Help: "Total recovered handler panics",
		}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build metadata (value is always 1)",
		}, []string{"app", "component", "version", "commit", "build_id", "build_date", "vcs_dirty", "go_version"}),
		profilingActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "profiling_active",
			Help: "Whether continuous profiling is running (1) or not (0)",
		}),
		ratelimitDenied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_total",
			Help: "Total requests rejected by the rate limiter",
		}),
		ratelimitCapacity: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_capacity_total",
			Help: "Total times the rate limiter hit its client capacity",
		}),
		builds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collage_builds_total",
			Help: "Bundle builds by kind and result",
		}, []string{"kind", "result"}),
		buildDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "collage_build_duration_seconds",
			Help:    "Time to resolve, read, process and write a bundle",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"kind"}),
		bundleBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "collage_bundle_size_bytes",
			Help: "Size of the last successful bundle",
		}, []string{"kind"}),
		bundleFiles: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "collage_bundle_files",
			Help: "Number of source files in the last successful bundle",
		}, []string{"kind"}),
		bundleMtime: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "collage_bundle_mtime_seconds",
			Help: "Newest source mtime of the last successful bundle",
		}, []string{"kind"}),
		persistErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collage_persist_errors_total",
			Help: "Bundles that were built but could not be written to disk",
		}, []string{"kind"}),
		watchRebuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collage_watch_rebuilds_total",
			Help: "Rebuilds triggered by source changes",
		}, []string{"result"}),
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collage_publish_total",
			Help: "Bundle uploads by result",
		}, []string{"result"}),
		publishDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "collage_publish_duration_seconds",
			Help:    "Time to upload a bundle",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
	}
	reg.MustRegister(
		m.inflight,
		m.reqTotal,
		m.reqDur,
		m.respBytes,
		m.errorsTotal,
		m.panicTotal,
		m.buildInfo,
		m.profilingActive,
		m.ratelimitDenied,
		m.ratelimitCapacity,
		m.builds,
		m.buildDur,
		m.bundleBytes,
		m.bundleFiles,
		m.bundleMtime,
		m.persistErrors,
		m.watchRebuilds,
		m.publishes,
		m.publishDur,
	)

	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
	m.reg = reg
	return m
}

func (m *ServerMetrics) Handler() http.Handler { return m.handler }

func (m *ServerMetrics) IncHttpPanic() { m.panicTotal.Inc() }

// SetBuildInfoFromVersion is called once at startup.
func (m *ServerMetrics) SetBuildInfoFromVersion(app, component string, vi *version.Info) {
	dirty := "unknown"
	if vi.VCSDirty != nil {
		dirty = strconv.FormatBool(*vi.VCSDirty)
	}
	m.buildInfo.With(prometheus.Labels{
		"app":        app,
		"component":  component,
		"version":    vi.Version,
		"commit":     vi.Commit,
		"build_id":   vi.BuildId,
		"build_date": vi.BuildDate,
		"go_version": vi.GoVersion,
		"vcs_dirty":  dirty,
	}).Set(1)
}

func (m *ServerMetrics) SetProfilingActive(active bool) {
	if active {
		m.profilingActive.Set(1)
		return
	}
	m.profilingActive.Set(0)
}

func (m *ServerMetrics) IncRateLimitDenied() { m.ratelimitDenied.Inc() }

func (m *ServerMetrics) IncRateLimitCapacity() { m.ratelimitCapacity.Inc() }

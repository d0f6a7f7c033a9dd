package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/keithlinneman/collage/internal/bundle"
	"github.com/keithlinneman/collage/internal/cfg"
	"github.com/keithlinneman/collage/internal/collage"
	"github.com/keithlinneman/collage/internal/health"
	"github.com/keithlinneman/collage/internal/httpmw"
	"github.com/keithlinneman/collage/internal/opshttp"
	"github.com/keithlinneman/collage/internal/publish"
	"github.com/keithlinneman/collage/internal/ratelimit"
	"github.com/keithlinneman/collage/internal/sitehandler"
	"github.com/keithlinneman/collage/internal/watch"

	"github.com/keithlinneman/collage/internal/httpserver"
	"github.com/keithlinneman/collage/internal/log"
	"github.com/keithlinneman/collage/internal/metrics"
	"github.com/keithlinneman/collage/internal/otelx"
	"github.com/keithlinneman/collage/internal/prof"
	v "github.com/keithlinneman/collage/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vi := v.Get()

	var conf cfg.App
	var showVersion bool

	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf(
			"%s %s (commit=%s, commit_date=%s, build_id=%s, build_date=%s, go=%s, dirty=%v)\n",
			v.AppName, vi.Version, vi.Commit, vi.CommitDate, vi.BuildId, vi.BuildDate, vi.GoVersion,
			vi.VCSDirty != nil && *vi.VCSDirty,
		)
		os.Exit(0)
	}

	cfg.FillFromEnv(flag.CommandLine, cfg.EnvPrefix, func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	lvl, err := log.ParseLevel(conf.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %s: %v\n", conf.LogLevel, err)
		os.Exit(1)
	}
	stackLvl, err := log.ParseLevel(conf.StacktraceLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid stacktrace level %s: %v\n", conf.StacktraceLevel, err)
		os.Exit(1)
	}
	L, err := log.New(log.Options{
		App:               v.AppName,
		Component:         "server",
		Version:           vi.Version,
		Commit:            vi.Commit,
		Level:             lvl,
		StacktraceLevel:   stackLvl,
		JSON:              conf.LogJSON,
		MaxErrorLinks:     conf.MaxErrorLinks,
		IncludeErrorLinks: conf.IncludeErrorLinks,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	defer L.Sync()
	ctx = log.WithContext(ctx, L)

	root, err := filepath.Abs(conf.Root)
	if err != nil {
		L.Error(ctx, err, "failed to resolve root", "root", conf.Root)
		os.Exit(1)
	}

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"build_id", vi.BuildId,
		"build_date", vi.BuildDate,
		"go_version", vi.GoVersion,
		"vcs_dirty", vi.VCSDirty,
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
		"otlp_endpoint", conf.OTLPEndpoint,
		"trace_sample", conf.TraceSample,
		"root", root,
		"scripts", conf.Scripts,
		"scripts_variant", conf.ScriptsVariant,
		"stylesheets", conf.Stylesheets,
		"minify", conf.Minify,
		"watch", conf.Watch,
		"publish_s3_bucket", conf.PublishS3Bucket,
		"trusted_hops", conf.TrustedHops,
		"ratelimit_rps", conf.RateLimitRPS,
	)

	m := metrics.New()
	m.SetBuildInfoFromVersion(v.AppName, "server", &vi)

	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       v.AppName,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"component": "server",
			"version":   vi.Version,
			"commit":    vi.Commit,
		},
		OnActive: m.SetProfilingActive,
	})
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	defer func() { stopProf() }()

	// the collector runs on localhost
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:   conf.EnableTracing,
		Endpoint:  conf.OTLPEndpoint,
		Insecure:  true,
		Sample:    conf.TraceSample,
		Service:   v.AppName,
		Component: "server",
		Version:   vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed")
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	targets, err := buildTargets(conf)
	if err != nil {
		L.Error(ctx, err, "invalid bundle targets")
		os.Exit(1)
	}
	col, err := collage.New(collage.Options{
		Logger:   L,
		Root:     root,
		Targets:  targets,
		Minify:   conf.Minify,
		Observer: m,
	})
	if err != nil {
		L.Error(ctx, err, "failed to create bundler")
		os.Exit(1)
	}

	// warm the bundles so the output files exist before the first request
	for _, t := range col.Targets() {
		if _, err := col.Build(ctx, t); err != nil {
			L.Warn(ctx, "initial bundle build failed", "path", t.Path, "error", err)
		}
	}

	var pub *publish.Publisher
	if conf.PublishS3Bucket != "" {
		awsCfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			L.Error(ctx, err, "failed to load AWS config")
			os.Exit(1)
		}
		pub, err = publish.New(publish.Options{
			Logger:  L,
			Client:  s3.NewFromConfig(awsCfg),
			Bucket:  conf.PublishS3Bucket,
			Prefix:  conf.PublishS3Prefix,
			Metrics: m,
		})
		if err != nil {
			L.Error(ctx, err, "failed to create publisher")
			os.Exit(1)
		}
		_ = rebuild(ctx, L, col, pub)
	}

	if conf.Watch {
		w, err := watch.New(watch.Options{
			Logger:   L,
			Root:     root,
			Patterns: watchPatterns(col.Targets()),
			Ignore:   outputNames(col.Targets()),
			Debounce: conf.WatchDebounce,
			Metrics:  m,
			OnChange: func(ctx context.Context, changed []string) error {
				L.Info(ctx, "sources changed, rebuilding", "files", len(changed))
				return rebuild(ctx, L, col, pub)
			},
		})
		if err != nil {
			L.Error(ctx, err, "failed to start watcher")
			os.Exit(1)
		}
		go func() {
			if err := w.Run(ctx); err != nil {
				L.Error(ctx, err, "watcher stopped")
			}
		}()
	}

	site, err := sitehandler.New(sitehandler.Options{
		Logger: L,
		FS:     os.DirFS(root),
	})
	if err != nil {
		L.Error(ctx, err, "failed to create site handler")
		os.Exit(1)
	}

	var gate health.ShutdownGate
	liveness := health.DirReadable(root)
	readiness := health.All(gate.Probe(), liveness)

	var rateLimitMW func(http.Handler) http.Handler
	if conf.RateLimitRPS > 0 {
		limiter := ratelimit.New(ctx,
			ratelimit.WithRate(conf.RateLimitRPS, conf.RateLimitBurst),
			ratelimit.WithOnDenied(func(ip string) {
				m.IncRateLimitDenied()
			}),
			// logged once per client until it is evicted
			ratelimit.WithOnFirstDenied(func(ip string) {
				L.Warn(ctx, "rate limit triggered", "ip", ip)
			}),
			ratelimit.WithOnCapacity(func() {
				m.IncRateLimitCapacity()
				L.Warn(ctx, "rate limit capacity reached, rejecting new visitors until some are evicted")
			}),
		)
		rateLimitMW = limiter.Middleware
	}

	siteHTTPStop, err := httpserver.Start(ctx, &httpserver.Options{
		Logger:       L,
		Port:         conf.HTTPPort,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
		MetricsMW:    m.Middleware,
		RateLimitMW:  rateLimitMW,
		ClientIPOpts: httpmw.ClientIPOptions{TrustedHops: conf.TrustedHops},
		Health:       liveness,
		Readiness:    readiness,
		Collage:      col,
		Site:         site,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start site http listener")
		os.Exit(1)
	}
	defer func() { _ = siteHTTPStop(context.Background()) }()

	// ops listener also rejects public peers in middleware
	opsHTTPStop, err := opshttp.Start(ctx, L, &opshttp.Options{
		Port:         conf.AdminPort,
		Metrics:      m.Handler(),
		EnablePprof:  conf.EnablePprof,
		Health:       liveness,
		Readiness:    readiness,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		os.Exit(1)
	}
	defer func() { _ = opsHTTPStop(context.Background()) }()

	if err := notifySystemd(); err != nil {
		L.Debug(ctx, "systemd notify skipped", "reason", err.Error())
	}

	<-ctx.Done()
	stop()

	L.Info(context.Background(), "shutdown signal received")
	gate.Set("draining")

	L.Info(context.Background(), "draining", "period", drainPeriod)
	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-time.After(drainPeriod):
		L.Info(context.Background(), "drain period complete")
	case <-forceCh:
		L.Warn(context.Background(), "second signal received, skipping drain")
	}
	signal.Stop(forceCh)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := siteHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "app http server shutdown")
	}
	if err := opsHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "ops http server shutdown")
	}
	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "otel shutdown")
	}
	stopProf()

	L.Info(context.Background(), "shutdown complete")
}

// drainPeriod gives load balancers time to see the failing readiness probe.
const drainPeriod = 15 * time.Second

// rebuild builds every target and mirrors the results when pub is set. The
// first build error is returned after all targets have been tried.
func rebuild(ctx context.Context, L log.Logger, col *collage.Collage, pub *publish.Publisher) error {
	var first error
	for _, t := range col.Targets() {
		b, err := col.Build(ctx, t)
		if err != nil {
			L.Warn(ctx, "bundle build failed", "path", t.Path, "class", bundle.ErrorClass(err), "error", err)
			if first == nil {
				first = err
			}
			continue
		}
		if pub == nil {
			continue
		}
		if _, err := pub.Publish(ctx, b); err != nil {
			L.Error(ctx, err, "bundle publish failed", "path", t.Path)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// buildTargets maps the configured patterns and variant onto bundle targets.
func buildTargets(conf cfg.App) ([]collage.Target, error) {
	v, err := bundle.ParseVariant(conf.ScriptsVariant)
	if err != nil {
		return nil, err
	}
	script := collage.ScriptTarget(cfg.SplitPatterns(conf.Scripts)...)
	script.Variant = v
	targets := []collage.Target{script}
	if conf.Stylesheets {
		targets = append(targets, collage.StylesheetTarget(cfg.SplitPatterns(conf.StylesheetPatterns)...))
	}
	return targets, nil
}

func watchPatterns(targets []collage.Target) []string {
	var out []string
	for _, t := range targets {
		if len(t.Patterns) == 0 {
			out = append(out, t.Kind.DefaultPatterns()...)
			continue
		}
		out = append(out, t.Patterns...)
	}
	return out
}

func outputNames(targets []collage.Target) []string {
	out := make([]string, 0, len(targets))
	for _, t := range targets {
		out = append(out, t.Filename())
	}
	return out
}

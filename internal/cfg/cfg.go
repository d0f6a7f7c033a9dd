// Package cfg binds the server configuration to flags and COLLAGE_*
// environment variables.
package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/keithlinneman/collage/internal/bundle"
	"github.com/keithlinneman/collage/internal/log"
)

const EnvPrefix = "COLLAGE_"

type App struct {
	LogJSON           bool
	LogLevel          string
	StacktraceLevel   string
	IncludeErrorLinks bool
	MaxErrorLinks     int
	HTTPPort          int
	AdminPort         int
	EnablePprof       bool
	EnablePyroscope   bool
	PyroServer        string
	PyroTenantID      string
	EnableTracing     bool
	OTLPEndpoint      string
	TraceSample       float64

	// bundles
	Root               string
	Scripts            string
	ScriptsVariant     string
	Stylesheets        bool
	StylesheetPatterns string
	Minify             bool
	Watch              bool
	WatchDebounce      time.Duration
	PublishS3Bucket    string
	PublishS3Prefix    string

	// edge
	TrustedHops    int
	RateLimitRPS   float64
	RateLimitBurst int
}

// Register binds all config fields to the given FlagSet with defaults inline
func Register(fs *flag.FlagSet, c *App) {
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "debug|info|warn|error")
	fs.BoolVar(&c.IncludeErrorLinks, "include-error-links", true, "Include error links in log messages")
	fs.IntVar(&c.MaxErrorLinks, "max-error-links", 5, "max error chain depth (1..64)")
	fs.IntVar(&c.HTTPPort, "http-port", 8080, "listen TCP port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "admin listen TCP port (1..65535)")
	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "Enable pprof profiling (on admin port only)")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to server set in -pyro-server")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")

	fs.StringVar(&c.Root, "root", "", "directory holding the sources; bundles are written here")
	fs.StringVar(&c.Scripts, "scripts", "**/*.js", "comma separated script patterns, relative to -root")
	fs.StringVar(&c.ScriptsVariant, "scripts-variant", "", "script post-processing: passthrough|minified (empty uses -minify)")
	fs.BoolVar(&c.Stylesheets, "stylesheets", false, "also serve a compiled stylesheet bundle at /css.css")
	fs.StringVar(&c.StylesheetPatterns, "stylesheet-patterns", "**/*.sass", "comma separated stylesheet patterns, relative to -root")
	fs.BoolVar(&c.Minify, "minify", false, "minify bundles")
	fs.BoolVar(&c.Watch, "watch", false, "rebuild bundles when sources change")
	fs.DurationVar(&c.WatchDebounce, "watch-debounce", 250*time.Millisecond, "quiet period before a watch rebuild")
	fs.StringVar(&c.PublishS3Bucket, "publish-s3-bucket", "", "s3 bucket to mirror rebuilt bundles to (empty disables)")
	fs.StringVar(&c.PublishS3Prefix, "publish-s3-prefix", "", "s3 key prefix for published bundles")

	fs.IntVar(&c.TrustedHops, "trusted-hops", 0, "proxies in front of the server whose X-Forwarded-For is trusted")
	fs.Float64Var(&c.RateLimitRPS, "ratelimit-rps", 20, "per client requests per second (0 disables)")
	fs.IntVar(&c.RateLimitBurst, "ratelimit-burst", 40, "per client burst")
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := EnvKey(prefix, f.Name)
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				logf("flag -%s: cli value %q overrides env %s=%q", f.Name, f.Value.String(), key, envVal)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			_ = fs.Set(f.Name, prev)
			if logf != nil {
				logf("flag -%s: ignoring invalid env %s=%q: %v", f.Name, key, envVal, err)
			}
		}
	})
}

// EnvKey maps flag "watch-debounce" to PREFIX_WATCH_DEBOUNCE.
func EnvKey(prefix, flagName string) string {
	return prefix + strings.ReplaceAll(strings.ToUpper(flagName), "-", "_")
}

// SplitPatterns turns a comma list into trimmed, non-empty patterns.
func SplitPatterns(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks that config values are within expected ranges and formats.
// Returns an error describing all invalid fields, or nil if all valid.
func Validate(c App) error {
	var errs []error

	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort))
	}
	if c.AdminPort < 1 || c.AdminPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid ADMIN_PORT %d (must be 1..65535)", c.AdminPort))
	}
	if c.AdminPort == c.HTTPPort {
		errs = append(errs, fmt.Errorf("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort))
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err))
	}
	if c.StacktraceLevel != "" {
		if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
			errs = append(errs, fmt.Errorf("invalid STACKTRACE_LEVEL %q: %w", c.StacktraceLevel, err))
		}
	}
	if c.IncludeErrorLinks && (c.MaxErrorLinks < 1 || c.MaxErrorLinks > 64) {
		errs = append(errs, fmt.Errorf("MAX_ERROR_LINKS must be 1..64 (got %d)", c.MaxErrorLinks))
	}

	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}
	if c.EnablePyroscope {
		if c.PyroServer == "" {
			errs = append(errs, errors.New("PYRO_SERVER required when ENABLE_PYROSCOPE=true"))
		} else if u, err := url.Parse(c.PyroServer); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER must be a URL (got %q)", c.PyroServer))
		}
		if c.PyroTenantID == "" {
			errs = append(errs, errors.New("PYRO_TENANT required when ENABLE_PYROSCOPE=true"))
		}
	}
	// grpc exporter wants host:port, no scheme
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			errs = append(errs, errors.New("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err))
		}
	}

	if c.Root == "" {
		errs = append(errs, errors.New("ROOT is required"))
	} else if info, err := os.Stat(c.Root); err != nil || !info.IsDir() {
		errs = append(errs, fmt.Errorf("ROOT %q must be an existing directory", c.Root))
	}
	errs = append(errs, validatePatterns("SCRIPTS", c.Scripts)...)
	if v, err := bundle.ParseVariant(c.ScriptsVariant); err != nil || v == bundle.Stylesheet {
		errs = append(errs, fmt.Errorf("SCRIPTS_VARIANT must be passthrough or minified (got %q)", c.ScriptsVariant))
	}
	if c.Stylesheets {
		errs = append(errs, validatePatterns("STYLESHEET_PATTERNS", c.StylesheetPatterns)...)
	}
	if c.Watch && c.WatchDebounce <= 0 {
		errs = append(errs, fmt.Errorf("WATCH_DEBOUNCE must be positive (got %s)", c.WatchDebounce))
	}
	if c.PublishS3Prefix != "" && c.PublishS3Bucket == "" {
		errs = append(errs, errors.New("PUBLISH_S3_PREFIX set without PUBLISH_S3_BUCKET"))
	}

	if c.TrustedHops < 0 {
		errs = append(errs, fmt.Errorf("TRUSTED_HOPS must be >= 0 (got %d)", c.TrustedHops))
	}
	if c.RateLimitRPS < 0 {
		errs = append(errs, fmt.Errorf("RATELIMIT_RPS must be >= 0 (got %g)", c.RateLimitRPS))
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst < 1 {
		errs = append(errs, fmt.Errorf("RATELIMIT_BURST must be >= 1 (got %d)", c.RateLimitBurst))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func validatePatterns(name, list string) []error {
	pats := SplitPatterns(list)
	if len(pats) == 0 {
		return []error{fmt.Errorf("%s needs at least one pattern", name)}
	}
	var errs []error
	for _, p := range pats {
		if !doublestar.ValidatePattern(p) {
			errs = append(errs, fmt.Errorf("%s: invalid pattern %q", name, p))
		}
	}
	return errs
}

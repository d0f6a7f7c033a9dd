package httpserver

import (
	"net/http"

	"github.com/keithlinneman/collage/internal/collage"
	"github.com/keithlinneman/collage/internal/health"
	"github.com/keithlinneman/collage/internal/httpmw"
	"github.com/keithlinneman/collage/internal/log"
)

type Options struct {
	Logger       log.Logger
	Port         int
	UseRecoverMW bool
	OnPanic      func()
	MetricsMW    func(http.Handler) http.Handler
	RateLimitMW  func(http.Handler) http.Handler
	ClientIPOpts httpmw.ClientIPOptions
	Health       health.Probe
	Readiness    health.Probe

	// Collage answers its bundle paths ahead of Site. Nil serves Site only.
	Collage *collage.Collage
	// Site receives every request no other route claims.
	Site http.Handler
}

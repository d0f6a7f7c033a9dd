package opshttp

import (
	"net/http"

	"github.com/keithlinneman/collage/internal/health"
)

// Options configures the ops listener. It is never exposed to the public
// side: every request passes a private-network check first.
type Options struct {
	Port         int
	Metrics      http.Handler
	EnablePprof  bool
	Health       health.Probe
	Readiness    health.Probe
	UseRecoverMW bool
	OnPanic      func()
}

const defaultPort = 9000

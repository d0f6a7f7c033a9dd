package metrics

import "time"

// ObserveBuild records one bundle build. Size, file count and mtime gauges
// only move on success so a failing build leaves the last good values.
func (m *ServerMetrics) ObserveBuild(kind, result string, d time.Duration, size, files int, mtime time.Time) {
	m.builds.WithLabelValues(kind, result).Inc()
	m.buildDur.WithLabelValues(kind).Observe(d.Seconds())
	if result != "ok" {
		return
	}
	m.bundleBytes.WithLabelValues(kind).Set(float64(size))
	m.bundleFiles.WithLabelValues(kind).Set(float64(files))
	if !mtime.IsZero() {
		m.bundleMtime.WithLabelValues(kind).Set(float64(mtime.Unix()))
	}
}

func (m *ServerMetrics) IncPersistError(kind string) {
	m.persistErrors.WithLabelValues(kind).Inc()
}

func (m *ServerMetrics) IncWatchRebuild(result string) {
	m.watchRebuilds.WithLabelValues(result).Inc()
}

func (m *ServerMetrics) ObservePublish(result string, seconds float64) {
	m.publishes.WithLabelValues(result).Inc()
	if result != "unchanged" {
		m.publishDur.Observe(seconds)
	}
}

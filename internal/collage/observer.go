package collage

import "time"

// Observer is the metrics surface the adapter reports to.
// metrics.ServerMetrics implements it.
type Observer interface {
	// ObserveBuild is called once per build. result is "ok" or the
	// bundle.ErrorClass of the failure.
	ObserveBuild(kind, result string, d time.Duration, size, files int, mtime time.Time)
	IncPersistError(kind string)
}

type nopObserver struct{}

func (nopObserver) ObserveBuild(string, string, time.Duration, int, int, time.Time) {}
func (nopObserver) IncPersistError(string)                                         {}

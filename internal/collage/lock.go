package collage

import "sync"

// pathLocks hands out one mutex per output path. The set of paths is fixed
// by the configured targets so entries are never removed.
type pathLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func (l *pathLocks) lock(path string) (unlock func()) {
	l.mu.Lock()
	if l.m == nil {
		l.m = make(map[string]*sync.Mutex)
	}
	pm, ok := l.m[path]
	if !ok {
		pm = &sync.Mutex{}
		l.m[path] = pm
	}
	l.mu.Unlock()

	pm.Lock()
	return pm.Unlock
}

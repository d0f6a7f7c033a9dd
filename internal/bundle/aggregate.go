package bundle

import (
	"os"
	"time"
)

// Separator is appended after every source, the last one included.
const Separator = "\n\n"

// Source is one file's contents in bundle order.
type Source struct {
	Path string
	Data []byte
}

// ReadFileFunc reads a source. os.ReadFile in production.
type ReadFileFunc func(path string) ([]byte, error)

// ModTimeFunc reports a file's modification time. Tests inject a fixed clock
// through it.
type ModTimeFunc func(path string) (time.Time, error)

// StatModTime is the default ModTimeFunc.
func StatModTime(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// readSources reads every file in order. The first failure aborts the
// whole read.
func readSources(files []string, read ReadFileFunc) ([]Source, error) {
	out := make([]Source, 0, len(files))
	for _, f := range files {
		b, err := read(f)
		if err != nil {
			return nil, &SourceReadError{Path: f, Err: err}
		}
		out = append(out, Source{Path: f, Data: b})
	}
	return out, nil
}

// Join concatenates blocks, each followed by Separator.
func Join(blocks [][]byte) []byte {
	n := 0
	for _, b := range blocks {
		n += len(b) + len(Separator)
	}
	out := make([]byte, 0, n)
	for _, b := range blocks {
		out = append(out, b...)
		out = append(out, Separator...)
	}
	return out
}

// LatestModTime returns the newest modification time among files.
func LatestModTime(files []string, modTime ModTimeFunc) (time.Time, error) {
	if len(files) == 0 {
		return time.Time{}, ErrEmptySourceSet
	}
	var latest time.Time
	for _, f := range files {
		t, err := modTime(f)
		if err != nil {
			return time.Time{}, &SourceReadError{Path: f, Err: err}
		}
		if t.After(latest) {
			latest = t
		}
	}
	return latest, nil
}

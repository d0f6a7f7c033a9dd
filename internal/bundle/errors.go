package bundle

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptySourceSet is returned when the patterns resolve to no files.
	// An empty bundle is almost always a misconfigured root or pattern.
	ErrEmptySourceSet = errors.New("bundle: no source files matched")

	ErrInvalidOptions = errors.New("bundle: invalid options")
)

// SourceReadError means a resolved source could not be read, typically
// because it was removed after resolution. No partial artifact is produced.
type SourceReadError struct {
	Path string
	Err  error
}

func (e *SourceReadError) Error() string {
	return fmt.Sprintf("bundle: read source %s: %v", e.Path, e.Err)
}

func (e *SourceReadError) Unwrap() error { return e.Err }

// CompileError carries the stylesheet that failed to compile. Line is 0
// when the underlying error has no position.
type CompileError struct {
	Path string
	Line int
	Err  error
}

func (e *CompileError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("bundle: compile %s:%d: %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("bundle: compile %s: %v", e.Path, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

// MinifyError wraps a failure of the external minifier.
type MinifyError struct {
	MediaType string
	Err       error
}

func (e *MinifyError) Error() string {
	return fmt.Sprintf("bundle: minify %s: %v", e.MediaType, e.Err)
}

func (e *MinifyError) Unwrap() error { return e.Err }

// PersistError is returned by Write. The in-memory result stays valid and
// servable when persisting fails.
type PersistError struct {
	Path string
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("bundle: write %s: %v", e.Path, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// ErrorClass names the error class for metrics labels and logs.
func ErrorClass(err error) string {
	var (
		readErr    *SourceReadError
		compileErr *CompileError
		minifyErr  *MinifyError
		persistErr *PersistError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrEmptySourceSet):
		return "empty"
	case errors.As(err, &readErr):
		return "read"
	case errors.As(err, &compileErr):
		return "compile"
	case errors.As(err, &minifyErr):
		return "minify"
	case errors.As(err, &persistErr):
		return "persist"
	default:
		return "other"
	}
}

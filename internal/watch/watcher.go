// Package watch rebuilds bundles when their sources change on disk.
//
// Every directory under Root is registered with fsnotify. Events for paths
// matching Patterns are collected until Debounce passes without a new one,
// then OnChange runs once with the changed root-relative paths. Writes to
// Ignore paths (the bundle output files) never trigger a rebuild, which keeps
// a build from re-triggering itself.
package watch

import (
	"context"
	"errors"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/keithlinneman/collage/internal/fileset"
	"github.com/keithlinneman/collage/internal/log"
	"github.com/keithlinneman/collage/internal/xerrors"
)

// DefaultDebounce is the quiet period before OnChange fires.
const DefaultDebounce = 250 * time.Millisecond

var defaultIgnores = []string{
	"**/.git/**",
	"**/node_modules/**",
	"**/*.swp",
	"**/*~",
	"**/.*.tmp",
}

// Metrics is implemented by the metrics package.
type Metrics interface {
	IncWatchRebuild(result string)
}

type Options struct {
	Logger log.Logger

	// Root is watched recursively.
	Root string

	// Patterns select which changes count. Same syntax as bundle patterns.
	// Empty means every non-ignored file.
	Patterns []string

	// Ignore lists additional root-relative patterns, usually the output
	// file names.
	Ignore []string

	Debounce time.Duration

	// OnChange receives the sorted, deduplicated changed paths.
	OnChange func(ctx context.Context, changed []string) error

	Metrics Metrics
}

type Watcher struct {
	logger   log.Logger
	fsw      *fsnotify.Watcher
	root     string
	patterns []string
	ignores  []string
	debounce time.Duration
	onChange func(ctx context.Context, changed []string) error
	metrics  Metrics
	started  atomic.Bool
}

// New validates opts and registers the directory tree under Root.
func New(opts Options) (*Watcher, error) {
	if opts.Root == "" {
		return nil, xerrors.New("watch: Root is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, xerrors.Wrap(err, "watch: resolve root")
	}

	patterns, err := normalize(opts.Patterns, "watch")
	if err != nil {
		return nil, err
	}
	extra, err := normalize(opts.Ignore, "ignore")
	if err != nil {
		return nil, err
	}
	ignores := append(slices.Clone(defaultIgnores), extra...)

	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, xerrors.Wrap(err, "watch: create fsnotify watcher")
	}

	w := &Watcher{
		logger:   opts.Logger,
		fsw:      fsw,
		root:     root,
		patterns: patterns,
		ignores:  ignores,
		debounce: debounce,
		onChange: opts.OnChange,
		metrics:  opts.Metrics,
	}
	if err := w.addTree(root); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// Run processes events until ctx is cancelled. OnChange runs on the Run
// goroutine, so events arriving during a rebuild are batched into the next
// one. Run may be called once.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return xerrors.New("watch: Run called more than once")
	}
	defer func() {
		if err := w.fsw.Close(); err != nil {
			w.logger.Warn(ctx, "watch: close fsnotify", "error", err)
		}
	}()

	w.logger.Info(ctx, "source watcher starting",
		"root", w.root,
		"patterns", w.patterns,
		"debounce", w.debounce.String(),
	)

	pending := make(map[string]struct{})
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info(ctx, "source watcher stopping", "reason", ctx.Err())
			return nil

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return xerrors.New("watch: event channel closed")
			}
			rel, ok := w.relevant(evt)
			if !ok {
				continue
			}
			pending[rel] = struct{}{}
			timer.Reset(w.debounce)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return xerrors.New("watch: error channel closed")
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				// events were dropped, rebuild everything
				pending["."] = struct{}{}
				timer.Reset(w.debounce)
			}
			w.logger.Warn(ctx, "watch: fsnotify error", "error", err)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			changed := slices.Sorted(maps.Keys(pending))
			clear(pending)
			w.fire(ctx, changed)
		}
	}
}

func (w *Watcher) fire(ctx context.Context, changed []string) {
	if w.onChange == nil {
		return
	}
	w.logger.Debug(ctx, "sources changed", "paths", changed)
	result := "ok"
	if err := w.onChange(ctx, changed); err != nil {
		result = "error"
		w.logger.Error(ctx, err, "rebuild after source change failed", "paths", changed)
	}
	if w.metrics != nil {
		w.metrics.IncWatchRebuild(result)
	}
}

// relevant filters evt and returns its root-relative path. New directories
// are registered as a side effect.
func (w *Watcher) relevant(evt fsnotify.Event) (string, bool) {
	if evt.Op == fsnotify.Chmod {
		return "", false
	}
	rel, err := filepath.Rel(w.root, evt.Name)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if w.ignored(rel) {
		return "", false
	}
	if evt.Has(fsnotify.Create) {
		if info, err := os.Stat(evt.Name); err == nil && info.IsDir() {
			if err := w.addTree(evt.Name); err != nil {
				w.logger.Warn(context.Background(), "watch: add new directory", "path", evt.Name, "error", err)
			}
			// files copied in with the directory produced no events of their own
			return rel, true
		}
	}
	// a removed or renamed directory may have held matching files
	if evt.Has(fsnotify.Remove) || evt.Has(fsnotify.Rename) {
		return rel, true
	}
	if !w.matches(rel) {
		return "", false
	}
	return rel, true
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			// unreadable subtrees are skipped, not fatal
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(w.root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if rel != "." && (w.ignored(rel) || w.ignored(rel+"/")) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return xerrors.Wrapf(err, "watch: add directory %q", path)
		}
		return nil
	})
}

func (w *Watcher) ignored(rel string) bool {
	return matchAny(w.ignores, rel)
}

func (w *Watcher) matches(rel string) bool {
	return len(w.patterns) == 0 || matchAny(w.patterns, rel)
}

func matchAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		if ok, err := doublestar.Match(p, rel); err == nil && ok {
			return true
		}
	}
	return false
}

func normalize(patterns []string, label string) ([]string, error) {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = fileset.NormalizePattern(p)
		if p == "" {
			continue
		}
		if !doublestar.ValidatePattern(p) {
			return nil, xerrors.Newf("watch: invalid %s pattern %q", label, p)
		}
		out = append(out, p)
	}
	return out, nil
}

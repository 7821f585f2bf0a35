// Package watch rebuilds documentation when files under the source root
// change. Events are debounced so a burst of saves triggers one build, and a
// change arriving while a build runs queues exactly one follow-up build.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/danieljhkim/docplan/internal/fsops"
	"github.com/danieljhkim/docplan/internal/logfields"
)

// DefaultDebounce is the quiet period after the last event before a rebuild.
const DefaultDebounce = 300 * time.Millisecond

// BuildFunc performs one build. Its error is logged; watching continues.
type BuildFunc func(ctx context.Context) error

// Options configures a Watcher.
type Options struct {
	// SourceRoot is watched recursively.
	SourceRoot string

	// OutputRoot is never watched, so artifacts written by a build do not
	// trigger another one.
	OutputRoot string

	Debounce time.Duration
	Logger   *slog.Logger
}

// Watcher runs a build on start and after every debounced change.
type Watcher struct {
	opts  Options
	build BuildFunc
}

// New creates a Watcher.
func New(opts Options, build BuildFunc) *Watcher {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Watcher{opts: opts, build: build}
}

// ErrClosed is returned by Run when the file watcher stops delivering events
// before ctx is done.
var ErrClosed = errors.New("file watcher closed")

// Run builds once, then watches until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify: %w", err)
	}
	defer func() { _ = fw.Close() }()

	if err := w.addDirsRecursive(fw, w.opts.SourceRoot); err != nil {
		return err
	}

	w.opts.Logger.Info("Watching for changes", logfields.Path(w.opts.SourceRoot))
	return w.loop(ctx, fw.Events, fw.Errors, func(ev fsnotify.Event, trigger func()) {
		w.handleEvent(fw, ev, trigger)
	})
}

// loop runs the build worker and feeds it debounced events until ctx is done
// or either channel closes. It returns only after the worker, and any build
// it is running, has finished.
func (w *Watcher) loop(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error, handle func(fsnotify.Event, func())) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	requests, trigger := newDebouncer(w.opts.Debounce)
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.worker(ctx, requests)
	}()
	stop := func(err error) error {
		cancel()
		<-done
		return err
	}

	// Initial build.
	requests <- struct{}{}

	for {
		select {
		case <-ctx.Done():
			return stop(nil)
		case ev, ok := <-events:
			if !ok {
				return stop(ErrClosed)
			}
			handle(ev, trigger)
		case err, ok := <-errs:
			if !ok {
				return stop(ErrClosed)
			}
			w.opts.Logger.Warn("Watcher error", logfields.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(fw *fsnotify.Watcher, ev fsnotify.Event, trigger func()) {
	if w.ignore(ev.Name) {
		return
	}
	if ev.Op&fsnotify.Create == fsnotify.Create {
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			_ = w.addDirsRecursive(fw, ev.Name)
		}
	}
	w.opts.Logger.Debug("File change detected", logfields.Path(ev.Name), slog.String("op", ev.Op.String()))
	trigger()
}

// worker runs builds for requests. Requests arriving while a build runs
// are folded into a single follow-up build.
func (w *Watcher) worker(ctx context.Context, requests <-chan struct{}) {
	running := false
	pending := false
	finished := make(chan struct{})

	start := func() {
		running = true
		go func() {
			w.opts.Logger.Info("Change detected; rebuilding")
			if err := w.build(ctx); err != nil {
				w.opts.Logger.Warn("Rebuild failed", logfields.Error(err))
			}
			finished <- struct{}{}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			if running {
				<-finished
			}
			return
		case <-requests:
			if running {
				pending = true
				continue
			}
			start()
		case <-finished:
			running = false
			if pending {
				pending = false
				start()
			}
		}
	}
}

func (w *Watcher) addDirsRecursive(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return fmt.Errorf("failed to watch %s: %w", root, err)
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.ignore(path) {
			return filepath.SkipDir
		}
		if err := fw.Add(path); err != nil {
			w.opts.Logger.Warn("Watch add failed", logfields.Path(path), logfields.Error(err))
		}
		return nil
	})
}

// ignore reports whether a change at path must not trigger a rebuild:
// anything under the output root, hidden files and editor temporaries.
func (w *Watcher) ignore(path string) bool {
	if w.opts.OutputRoot != "" && fsops.IsWithin(w.opts.OutputRoot, path) {
		return true
	}

	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return true
	}
	if strings.HasSuffix(base, "~") ||
		strings.HasSuffix(base, ".swp") ||
		strings.HasSuffix(base, ".swx") ||
		strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#") {
		return true
	}
	// Vim checks a directory is writable by creating "4913".
	return base == "Thumbs.db" || base == "4913"
}

// newDebouncer returns a request channel and a trigger that sends one
// request delay after its last call.
func newDebouncer(delay time.Duration) (chan struct{}, func()) {
	var mu sync.Mutex
	var timer *time.Timer
	requests := make(chan struct{}, 1)

	trigger := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(delay, func() {
			select {
			case requests <- struct{}{}:
			default:
			}
		})
	}
	return requests, trigger
}

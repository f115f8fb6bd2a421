// Package watch finds annotated source files and reports changes to them.
package watch

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period used when Options.Debounce is zero.
const DefaultDebounce = 200 * time.Millisecond

// Options configures a Watcher.
type Options struct {
	Filter   Filter
	Debounce time.Duration
	Log      *slog.Logger
}

// Watcher reports batches of changed files under a root directory. Events
// are coalesced until Debounce passes with no further change, then OnChange
// receives the affected paths sorted. Removed files are reported too;
// callers stat them to tell the difference.
type Watcher struct {
	fsw      *fsnotify.Watcher
	root     string
	filter   Filter
	debounce time.Duration
	log      *slog.Logger
	onChange func(paths []string)

	pending map[string]struct{}

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New creates a watcher for root. Call Start to begin watching.
func New(root string, opts Options, onChange func(paths []string)) (*Watcher, error) {
	if err := opts.Filter.Validate(); err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Log == nil {
		opts.Log = slog.New(slog.DiscardHandler)
	}
	return &Watcher{
		fsw:      fsw,
		root:     filepath.Clean(root),
		filter:   opts.Filter,
		debounce: opts.Debounce,
		log:      opts.Log,
		onChange: onChange,
		pending:  make(map[string]struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Start adds watches for root and every directory below it that the filter
// does not skip, then starts the event loop.
func (w *Watcher) Start() error {
	if err := w.addTree(w.root); err != nil {
		return err
	}
	w.wg.Add(1)
	go w.run()
	w.log.Info("watching", "root", w.root, "debounce", w.debounce)
	return nil
}

// Close stops the event loop and releases the watches. Pending changes that
// have not yet been flushed are dropped.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.fsw.Close()
		w.wg.Wait()
	})
	return err
}

func (w *Watcher) addTree(dir string) error {
	// Directories reached through symlinks are watched once.
	visited := make(map[string]bool)
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if w.filter.SkipDir(w.rel(path)) {
			return filepath.SkipDir
		}
		real, err := filepath.EvalSymlinks(path)
		if err != nil || visited[real] {
			return filepath.SkipDir
		}
		visited[real] = true
		if err := w.fsw.Add(path); err != nil {
			w.log.Warn("failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

func (w *Watcher) rel(path string) string {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return path
	}
	return rel
}

func (w *Watcher) run() {
	defer w.wg.Done()

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-w.done:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if w.handle(ev) {
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Error("watcher error", "error", err)

		case <-timer.C:
			w.flush()
		}
	}
}

// handle records ev and reports whether anything became pending.
func (w *Watcher) handle(ev fsnotify.Event) bool {
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}

	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			return w.handleNewDir(ev.Name)
		}
	}

	if !w.filter.Match(w.rel(ev.Name)) {
		return false
	}
	w.log.Debug("file event", "path", ev.Name, "op", ev.Op.String())
	w.pending[ev.Name] = struct{}{}
	return true
}

// handleNewDir watches a directory created after Start and queues the
// files already inside it, which may have landed before the watch did.
func (w *Watcher) handleNewDir(dir string) bool {
	if w.filter.SkipDir(w.rel(dir)) {
		return false
	}
	if err := w.addTree(dir); err != nil {
		w.log.Warn("failed to watch new directory", "path", dir, "error", err)
		return false
	}
	files, err := walk(dir, Filter{})
	if err != nil {
		return false
	}
	added := false
	for _, f := range files {
		if w.filter.Match(w.rel(f)) {
			w.pending[f] = struct{}{}
			added = true
		}
	}
	return added
}

func (w *Watcher) flush() {
	if len(w.pending) == 0 {
		return
	}
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]struct{})
	sort.Strings(paths)
	w.onChange(paths)
}

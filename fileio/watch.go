package fileio

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"pkt.systems/pslog"
)

// DefaultDebounce is the quiet period before a changed file is re-imported.
const DefaultDebounce = 200 * time.Millisecond

// ChangeFunc receives the re-imported document of a watched session file.
type ChangeFunc func(id string, doc Document)

// WatchOption configures a Watcher.
type WatchOption func(*Watcher)

// WithDebounce sets the quiet period before a change is reported.
func WithDebounce(d time.Duration) WatchOption {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// WithWatchLogger sets the logger for ignored events and watch errors.
func WithWatchLogger(log pslog.Logger) WatchOption {
	return func(w *Watcher) {
		w.log = log
	}
}

// Watcher follows session files that were opened from disk and reports their
// new content after they change. Parent directories are watched so that
// editors replacing a file by rename are followed too.
type Watcher struct {
	fsw      *fsnotify.Watcher
	onChange ChangeFunc
	debounce time.Duration
	log      pslog.Logger

	mu     sync.Mutex
	files  map[string]string // path -> session file id
	dirs   map[string]int
	timers map[string]*time.Timer
	closed bool

	done chan struct{}
}

// NewWatcher starts a watcher calling onChange from its own goroutine.
func NewWatcher(onChange ChangeFunc, opts ...WatchOption) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	w := &Watcher{
		fsw:      fsw,
		onChange: onChange,
		debounce: DefaultDebounce,
		log:      pslog.Ctx(context.Background()),
		files:    make(map[string]string),
		dirs:     make(map[string]int),
		timers:   make(map[string]*time.Timer),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	go w.loop()
	return w, nil
}

// Watch follows path on behalf of the session file id. Watching a path again
// rebinds it to id.
func (w *Watcher) Watch(id, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("watch %s: watcher closed", path)
	}
	if _, ok := w.files[abs]; ok {
		w.files[abs] = id
		return nil
	}

	dir := filepath.Dir(abs)
	if w.dirs[dir] == 0 {
		if err := w.fsw.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	w.dirs[dir]++
	w.files[abs] = id
	return nil
}

// Unwatch stops following every path bound to id.
func (w *Watcher) Unwatch(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for path, fileID := range w.files {
		if fileID != id {
			continue
		}
		delete(w.files, path)
		if t, ok := w.timers[path]; ok {
			t.Stop()
			delete(w.timers, path)
		}
		dir := filepath.Dir(path)
		w.dirs[dir]--
		if w.dirs[dir] <= 0 {
			delete(w.dirs, dir)
			w.fsw.Remove(dir)
		}
	}
}

// Paths returns the number of followed files.
func (w *Watcher) Paths() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.files)
}

// Close stops the watcher. Pending changes are dropped.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
	w.mu.Unlock()

	err := w.fsw.Close()
	<-w.done
	return err
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("file watcher error", "err", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	path := filepath.Clean(event.Name)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	if _, ok := w.files[path]; !ok {
		return
	}

	if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		w.log.Debug("watched file moved away", "file", path, "op", event.Op.String())
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}

	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.fire(path)
	})
}

func (w *Watcher) fire(path string) {
	w.mu.Lock()
	id, ok := w.files[path]
	delete(w.timers, path)
	closed := w.closed
	w.mu.Unlock()
	if !ok || closed {
		return
	}

	doc, err := Import(path)
	if err != nil {
		w.log.Warn("reload watched file failed", "file", path, "err", err)
		return
	}
	w.onChange(id, doc)
}

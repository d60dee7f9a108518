package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/pksynth/knowledge-synthesizer/internal/logger"
)

// Handler processes a file once it has stopped changing.
type Handler func(ctx context.Context, path string) error

type Options struct {
	Dir           string
	Debounce      time.Duration
	SweepExisting bool
}

// Watcher reports files created in a single directory. Each new file is
// handed to the Handler after Debounce has passed without further writes.
// Files are handled one at a time.
type Watcher struct {
	dir      string
	debounce time.Duration
	sweep    bool
	handle   Handler
	fs       *fsnotify.Watcher
	log      *logger.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
	ready   chan string
	done    chan struct{}
}

func New(opts Options, handle Handler, log *logger.Logger) (*Watcher, error) {
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create watch dir: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fsw.Add(opts.Dir); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", opts.Dir, err)
	}

	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = time.Second
	}
	return &Watcher{
		dir:      opts.Dir,
		debounce: debounce,
		sweep:    opts.SweepExisting,
		handle:   handle,
		fs:       fsw,
		log:      log,
		pending:  make(map[string]*time.Timer),
		ready:    make(chan string, 64),
		done:     make(chan struct{}),
	}, nil
}

// Run blocks until ctx is cancelled or the underlying watcher fails.
func (w *Watcher) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer close(w.done)
	defer w.stopTimers()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.work(ctx)
	}()
	defer wg.Wait()
	defer cancel()

	if w.sweep {
		w.sweepExisting()
	}
	w.log.Info("watching for new files", "dir", w.dir)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.onEvent(event)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.log.Error("file watcher error", "error", err)
		}
	}
}

func (w *Watcher) Close() error {
	return w.fs.Close()
}

func (w *Watcher) onEvent(event fsnotify.Event) {
	switch {
	case event.Has(fsnotify.Create):
		info, err := os.Stat(event.Name)
		if err != nil || info.IsDir() || ignored(event.Name) {
			return
		}
		w.log.Info("new file detected", "path", event.Name)
		w.schedule(event.Name, true)
	case event.Has(fsnotify.Write):
		// a write to a file still being debounced restarts its timer
		w.schedule(event.Name, false)
	}
}

func (w *Watcher) schedule(path string, create bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok {
		t.Reset(w.debounce)
		return
	}
	if !create {
		return
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		select {
		case w.ready <- path:
		case <-w.done:
		}
	})
}

func (w *Watcher) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case path := <-w.ready:
			if _, err := os.Stat(path); err != nil {
				w.log.Debug("file vanished before processing", "path", path)
				continue
			}
			if err := w.handle(ctx, path); err != nil {
				w.log.Warn("file left in place", "path", path, "error", err)
			}
		}
	}
}

func (w *Watcher) sweepExisting() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.log.Error("failed to list watch dir", "dir", w.dir, "error", err)
		return
	}
	queued := 0
	for _, e := range entries {
		if e.IsDir() || ignored(e.Name()) {
			continue
		}
		w.schedule(filepath.Join(w.dir, e.Name()), true)
		queued++
	}
	w.log.Info("queued existing files", "count", queued)
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
}

// ignored skips hidden files such as editor swap files.
func ignored(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}

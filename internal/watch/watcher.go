// Package watch reloads a single file when it changes on disk.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce coalesces the burst of events editors emit for one save.
const DefaultDebounce = 500 * time.Millisecond

// ErrRunning is returned by Start on a watcher that is already running.
var ErrRunning = errors.New("watcher already running")

// Watcher calls OnChange with the file contents after each settled change.
// The parent directory is watched so atomic rename-over saves are seen.
type Watcher struct {
	logger   *zap.Logger
	path     string
	debounce time.Duration
	onChange func([]byte) error

	mu      sync.Mutex
	fs      *fsnotify.Watcher
	timer   *time.Timer
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// New builds a watcher for path. Zero debounce uses DefaultDebounce.
func New(logger *zap.Logger, path string, debounce time.Duration, onChange func([]byte) error) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		logger:   logger,
		path:     filepath.Clean(path),
		debounce: debounce,
		onChange: onChange,
	}
}

// Start begins watching. It returns once the watch is registered.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return ErrRunning
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	w.fs = fw
	w.cancel = cancel
	w.done = make(chan struct{})
	w.running = true

	go w.loop(ctx, fw, w.done)

	w.logger.Info("file watcher started", zap.String("path", w.path))
	return nil
}

// Stop ends the watch and cancels any pending reload.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.cancel()
	_ = w.fs.Close()
	if w.timer != nil {
		w.timer.Stop()
	}
	done := w.done
	w.mu.Unlock()

	<-done
	w.logger.Info("file watcher stopped", zap.String("path", w.path))
}

func (w *Watcher) loop(ctx context.Context, fw *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	for {
		select {
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			switch {
			case ev.Has(fsnotify.Write), ev.Has(fsnotify.Create):
				w.logger.Debug("watched file changed", zap.String("path", ev.Name), zap.String("op", ev.Op.String()))
				w.schedule()
			case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
				w.logger.Warn("watched file moved away", zap.String("path", ev.Name))
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Error("file watcher error", zap.Error(err))

		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	data, err := os.ReadFile(w.path)
	if err != nil {
		w.logger.Warn("reload skipped", zap.String("path", w.path), zap.Error(err))
		return
	}
	if err := w.onChange(data); err != nil {
		w.logger.Error("reload rejected", zap.String("path", w.path), zap.Error(err))
		return
	}
	w.logger.Info("file reloaded", zap.String("path", w.path))
}

package config

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounceInterval batches the burst of write events an editor or an
// atomic rename produces for a single logical change.
const DefaultDebounceInterval = 100 * time.Millisecond

// Watcher reloads the settings when config.json changes on disk and hands the
// fresh Config to a callback.
type Watcher struct {
	manager  *Manager
	onChange func(*Config)
	debounce time.Duration
	logger   *log.Logger

	watcher *fsnotify.Watcher

	pendingMu sync.Mutex
	pendingAt time.Time
	pending   bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher creates a watcher over the manager's config file. onChange runs
// on the watcher goroutine after each reload; it must not block for long. If
// logger is nil, a default logger writing to stderr is used.
func NewWatcher(manager *Manager, onChange func(*Config), logger *log.Logger) (*Watcher, error) {
	if onChange == nil {
		return nil, fmt.Errorf("onChange callback is required")
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[config] ", log.LstdFlags)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &Watcher{
		manager:  manager,
		onChange: onChange,
		debounce: DefaultDebounceInterval,
		logger:   logger,
		watcher:  fsw,
	}, nil
}

// Start begins watching. The data directory itself is watched, not the file:
// atomic saves replace the file by rename, which would otherwise drop the
// watch. Returns immediately; use Stop to shut down.
func (w *Watcher) Start() error {
	if err := os.MkdirAll(w.manager.dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := w.watcher.Add(w.manager.dataDir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.manager.dataDir, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	w.wg.Add(2)
	go w.watchEvents(ctx)
	go w.processPending(ctx)

	w.logger.Printf("Watching %s", w.manager.Path())
	return nil
}

// Stop shuts the watcher down and waits for its goroutines.
func (w *Watcher) Stop() error {
	if w.cancel != nil {
		w.cancel()
	}
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

// watchEvents queues a reload for every relevant event on config.json.
func (w *Watcher) watchEvents(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if filepath.Base(event.Name) != FileName {
				continue
			}
			w.pendingMu.Lock()
			w.pending = true
			w.pendingAt = time.Now()
			w.pendingMu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Printf("Watcher error: %v", err)
		}
	}
}

// processPending fires the reload once events have settled for the debounce
// interval.
func (w *Watcher) processPending(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			w.pendingMu.Lock()
			due := w.pending && time.Since(w.pendingAt) >= w.debounce
			if due {
				w.pending = false
			}
			w.pendingMu.Unlock()
			if !due {
				continue
			}

			cfg, err := w.manager.Load()
			if err != nil {
				w.logger.Printf("Error reloading config: %v", err)
				continue
			}
			w.logger.Println("Config reloaded")
			w.onChange(cfg)
		}
	}
}

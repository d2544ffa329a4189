package daemon

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// SourceWatcher monitors a source export tree and calls onChange once per
// burst of file system events.
type SourceWatcher struct {
	root         string
	watcher      *fsnotify.Watcher
	onChange     func()
	debounceTime time.Duration

	mu       sync.Mutex
	stopChan chan struct{}
	stopped  bool
}

// NewSourceWatcher creates a watcher for root.
func NewSourceWatcher(root string, debounce time.Duration, onChange func()) (*SourceWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to resolve source path: %w", err)
	}
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	return &SourceWatcher{
		root:         abs,
		watcher:      w,
		onChange:     onChange,
		debounceTime: debounce,
		stopChan:     make(chan struct{}),
	}, nil
}

// Start watches root and every directory below it.
func (sw *SourceWatcher) Start(ctx context.Context) error {
	err := filepath.WalkDir(sw.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return sw.watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to watch source %s: %w", sw.root, err)
	}

	slog.Info("Starting source watcher", slog.String("path", sw.root))
	go sw.watchLoop(ctx)
	return nil
}

// Stop stops the watcher. It is safe to call more than once.
func (sw *SourceWatcher) Stop() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.stopped {
		return nil
	}
	sw.stopped = true
	close(sw.stopChan)
	return sw.watcher.Close()
}

func (sw *SourceWatcher) watchLoop(ctx context.Context) {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sw.stopChan:
			return
		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if event.Op == fsnotify.Chmod {
				continue
			}
			if event.Op&fsnotify.Create == fsnotify.Create {
				// New type directories must be watched too.
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := sw.watcher.Add(event.Name); err == nil {
						slog.Debug("Watching new directory", slog.String("path", event.Name))
					}
				}
			}
			slog.Debug("Source change detected", slog.String("file", event.Name), slog.String("op", event.Op.String()))
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(sw.debounceTime, sw.onChange)
		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("Source watcher error", slog.Any("error", err))
		}
	}
}

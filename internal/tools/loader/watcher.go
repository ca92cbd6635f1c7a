package loader

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/haasonsaas/warden/internal/agent"
	"github.com/haasonsaas/warden/internal/observability"
)

const defaultDebounce = 250 * time.Millisecond

// WatcherConfig configures a module directory watcher.
type WatcherConfig struct {
	// Dir is the module directory to watch.
	Dir string

	// Registry receives tools from reloaded modules.
	Registry *agent.Registry

	// Logger receives reload diagnostics.
	Logger *observability.Logger

	// Debounce is how long bursts of filesystem events are coalesced before
	// reloading. Zero means the default.
	Debounce time.Duration
}

// Watcher reloads tool modules into the registry when the watched directory
// changes. Removing a module file does not unregister its tools; plugin code
// cannot be unloaded from a running process.
type Watcher struct {
	dir      string
	registry *agent.Registry
	logger   *observability.Logger
	debounce time.Duration

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewWatcher creates a watcher. Nothing is observed until Start is called.
func NewWatcher(config WatcherConfig) (*Watcher, error) {
	if strings.TrimSpace(config.Dir) == "" {
		return nil, errors.New("watch directory is required")
	}
	if config.Registry == nil {
		return nil, errors.New("registry is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{})
	}
	debounce := config.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &Watcher{
		dir:      config.Dir,
		registry: config.Registry,
		logger:   logger,
		debounce: debounce,
	}, nil
}

// Start loads the directory once and begins watching it. Calling Start on a
// started watcher is a no-op.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.watcher != nil {
		w.mu.Unlock()
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	if err := fsw.Add(w.dir); err != nil {
		w.mu.Unlock()
		_ = fsw.Close()
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.watcher = fsw
	watchCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.mu.Unlock()

	w.reload(ctx)

	w.wg.Add(1)
	go w.loop(watchCtx, fsw)
	return nil
}

// Close stops watching. It is safe to call more than once.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	fsw := w.watcher
	w.watcher = nil
	w.mu.Unlock()

	if fsw != nil {
		_ = fsw.Close()
	}
	w.wg.Wait()
	return nil
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher) {
	defer w.wg.Done()

	var mu sync.Mutex
	var timer *time.Timer
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	scheduleReload := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(w.debounce, func() {
			w.reload(context.Background())
		})
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, moduleSuffix) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				scheduleReload()
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn(ctx, "module watch error", "error", err)
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	loaded, err := w.registry.LoadFromDirectory(w.dir)
	if err != nil {
		w.logger.Warn(ctx, "module reload failed", "dir", w.dir, "error", err)
		return
	}
	w.logger.Info(ctx, "tool modules loaded", "dir", w.dir, "count", loaded)
}

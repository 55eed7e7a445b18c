package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/logging"
	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/session"
)

// #region types

// Loader turns a folder into a session snapshot.
type Loader interface {
	LoadDir(ctx context.Context, dir string) (session.Snapshot, error)
}

// Submitter receives reloaded snapshots. resolver.Driver satisfies it.
type Submitter interface {
	Submit(session.Snapshot) uint64
}

// Config controls the watcher timing.
type Config struct {
	// Debounce is how long the folder must be quiet before a reload.
	Debounce time.Duration
	// Tick is how often pending changes are checked.
	Tick time.Duration
	// InitialLoad submits the folder contents once on Start.
	InitialLoad bool
}

// DefaultConfig returns the watcher defaults.
func DefaultConfig() Config {
	return Config{
		Debounce:    250 * time.Millisecond,
		Tick:        50 * time.Millisecond,
		InitialLoad: true,
	}
}

// Stats counts watcher activity.
type Stats struct {
	Events        int
	Reloads       int
	Errors        int
	LastEventPath string
	LastEventTime time.Time
}

// #endregion types

// #region watcher

// Watcher reloads a study folder when files change and submits the new
// snapshot. Bursts of events within the debounce window cause one reload.
type Watcher struct {
	mu      sync.Mutex
	watcher *fsnotify.Watcher
	dir     string
	loader  Loader
	target  Submitter
	config  Config
	logger  *zap.Logger

	pending time.Time
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
	stats   Stats
}

// New creates a watcher for dir. Call Start to begin watching.
func New(dir string, loader Loader, target Submitter, cfg Config, logger *zap.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultConfig().Tick
	}
	return &Watcher{
		watcher: fw,
		dir:     dir,
		loader:  loader,
		target:  target,
		config:  cfg,
		logger:  logging.OrNop(logger),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}, nil
}

// Start adds dir and its subdirectories to the watch list and starts the
// event loop. It returns once watching has begun.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.addTree(w.dir); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.logger.Info("watching study folder", zap.String("dir", w.dir))

	go w.run(ctx)
	return nil
}

// Stop ends the event loop and releases the OS watcher. It is safe to call
// more than once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		w.logger.Warn("closing watcher", zap.Error(err))
	}
	w.logger.Info("watcher stopped", zap.String("dir", w.dir))
}

// Stats returns a copy of the counters.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	if w.config.InitialLoad {
		w.reload(ctx)
	}

	ticker := time.NewTicker(w.config.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()
		case <-ticker.C:
			if w.due() {
				w.reload(ctx)
			}
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				w.logger.Warn("watching new folder failed", zap.String("dir", event.Name), zap.Error(err))
			}
		}
	}

	now := time.Now()
	w.mu.Lock()
	w.pending = now
	w.stats.Events++
	w.stats.LastEventPath = event.Name
	w.stats.LastEventTime = now
	w.mu.Unlock()
	w.logger.Debug("folder changed", zap.String("path", event.Name), zap.String("op", event.Op.String()))
}

// due reports whether changes are pending and the debounce window passed,
// and clears the pending mark if so.
func (w *Watcher) due() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending.IsZero() || time.Since(w.pending) < w.config.Debounce {
		return false
	}
	w.pending = time.Time{}
	return true
}

func (w *Watcher) reload(ctx context.Context) {
	snap, err := w.loader.LoadDir(ctx, w.dir)
	if err != nil {
		w.logger.Warn("reload failed", zap.String("dir", w.dir), zap.Error(err))
		w.mu.Lock()
		w.stats.Errors++
		w.mu.Unlock()
		return
	}
	gen := w.target.Submit(snap)
	w.mu.Lock()
	w.stats.Reloads++
	w.mu.Unlock()
	w.logger.Debug("submitted snapshot",
		zap.Uint64("generation", gen),
		zap.Int("studies", len(snap.Studies)),
		zap.Int("series", snap.SeriesCount()),
	)
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.watcher.Add(path)
		}
		return nil
	})
}

// #endregion watcher

package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Tunables are the hot-reloadable subset of the configuration: the RRF
// constant and the per-source fusion weights. Everything else requires a
// restart.
type Tunables struct {
	RRFConstant   int
	SourceWeights map[SourceID]float64
}

// tunablesFrom snapshots the reloadable fields with a copied weight map.
func tunablesFrom(cfg *Config) Tunables {
	weights := make(map[SourceID]float64, len(cfg.Search.SourceWeights))
	for id, w := range cfg.Search.SourceWeights {
		weights[id] = w
	}
	return Tunables{
		RRFConstant:   cfg.Search.RRFConstant,
		SourceWeights: weights,
	}
}

// Watcher republishes retrieval tunables when the project config file
// changes on disk. Edits that fail to parse or validate are logged and
// ignored; the last good tunables stay in effect.
type Watcher struct {
	dir      string
	debounce time.Duration

	mu      sync.RWMutex
	current Tunables

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewWatcher creates a watcher seeded from cfg for the given project dir.
func NewWatcher(dir string, cfg *Config) *Watcher {
	return &Watcher{
		dir:      dir,
		debounce: 200 * time.Millisecond,
		current:  tunablesFrom(cfg),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Tunables returns the current tunables snapshot.
func (w *Watcher) Tunables() Tunables {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Start begins watching in a background goroutine. Non-blocking.
// If the directory cannot be watched, tunables simply stay fixed.
func (w *Watcher) Start(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(w.dir); err != nil {
		_ = fw.Close()
		return err
	}

	go w.run(ctx, fw)
	return nil
}

// Stop stops the watcher. Safe to call multiple times.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	<-w.doneCh
}

func (w *Watcher) run(ctx context.Context, fw *fsnotify.Watcher) {
	defer close(w.doneCh)
	defer func() { _ = fw.Close() }()

	var timer *time.Timer
	var timerCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			if !w.isConfigEvent(ev) {
				continue
			}
			// Editors fire bursts of writes; coalesce before reloading.
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			timerCh = timer.C
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			slog.Warn("config_watch_error", slog.String("error", err.Error()))
		case <-timerCh:
			timerCh = nil
			w.reload()
		}
	}
}

func (w *Watcher) isConfigEvent(ev fsnotify.Event) bool {
	name := filepath.Base(ev.Name)
	if name != ".quarry.yaml" && name != ".quarry.yml" {
		return false
	}
	return ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}

func (w *Watcher) reload() {
	cfg, err := Load(w.dir)
	if err != nil {
		slog.Warn("config_reload_rejected", slog.String("error", err.Error()))
		return
	}

	next := tunablesFrom(cfg)

	w.mu.Lock()
	w.current = next
	w.mu.Unlock()

	slog.Info("config_reloaded",
		slog.Int("rrf_constant", next.RRFConstant),
		slog.Int("weights", len(next.SourceWeights)))
}

package navigator

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const defaultPruneInterval = time.Hour

// Pruner deletes events older than a cutoff. *store.Store satisfies it.
type Pruner interface {
	PruneEvents(ctx context.Context, before time.Time) (int64, error)
}

// CacheSweeper drops expired cache entries. Every store.SessionCache
// satisfies it.
type CacheSweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// RetentionConfig controls how long navigation events are kept.
type RetentionConfig struct {
	Enabled       bool          `json:"enabled" yaml:"enabled"`
	TTL           time.Duration `json:"ttl" yaml:"ttl"`
	CheckInterval time.Duration `json:"check_interval" yaml:"check_interval"`
}

// PruneWorker periodically removes events past their retention and sweeps
// expired entries out of the session cache.
type PruneWorker struct {
	pruner Pruner
	cache  CacheSweeper
	logger *slog.Logger
	now    func() time.Time

	mu     sync.RWMutex
	config RetentionConfig
}

func NewPruneWorker(p Pruner, cfg RetentionConfig, logger *slog.Logger) *PruneWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &PruneWorker{pruner: p, config: cfg, logger: logger, now: time.Now}
}

// SetCache makes every pass also sweep c.
func (w *PruneWorker) SetCache(c CacheSweeper) {
	w.cache = c
}

// UpdateConfig swaps the retention settings. The interval of a running
// worker is fixed at start.
func (w *PruneWorker) UpdateConfig(cfg RetentionConfig) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.config = cfg
}

// Run prunes once immediately and then on every tick until ctx is done.
func (w *PruneWorker) Run(ctx context.Context) {
	w.mu.RLock()
	cfg := w.config
	w.mu.RUnlock()

	if (!cfg.Enabled || cfg.TTL <= 0) && w.cache == nil {
		w.logger.InfoContext(ctx, "prune_disabled")
		return
	}
	interval := cfg.CheckInterval
	if interval <= 0 {
		interval = defaultPruneInterval
	}

	w.logger.InfoContext(ctx, "prune_worker_started", "interval", interval.String(), "ttl", cfg.TTL.String())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.pass(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "prune_worker_stopped")
			return
		case <-ticker.C:
			w.pass(ctx)
		}
	}
}

func (w *PruneWorker) pass(ctx context.Context) {
	w.Prune(ctx)
	w.SweepCache(ctx)
}

// SweepCache drops expired session cache entries and returns how many went.
func (w *PruneWorker) SweepCache(ctx context.Context) int {
	if w.cache == nil {
		return 0
	}
	n, err := w.cache.Sweep(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "cache_sweep_failed", "error", err)
		return 0
	}
	if n > 0 {
		CacheSwept.Add(float64(n))
		w.logger.InfoContext(ctx, "cache_swept", "count", n)
	}
	return n
}

// Prune runs one retention pass and returns how many events were removed.
func (w *PruneWorker) Prune(ctx context.Context) int64 {
	w.mu.RLock()
	cfg := w.config
	w.mu.RUnlock()

	if !cfg.Enabled || cfg.TTL <= 0 {
		return 0
	}

	cutoff := w.now().Add(-cfg.TTL)
	deleted, err := w.pruner.PruneEvents(ctx, cutoff)
	if err != nil {
		w.logger.ErrorContext(ctx, "prune_failed", "error", err)
		return 0
	}
	if deleted > 0 {
		EventsPruned.Add(float64(deleted))
		w.logger.InfoContext(ctx, "events_pruned", "count", deleted, "older_than", cfg.TTL.String())
	}
	return deleted
}

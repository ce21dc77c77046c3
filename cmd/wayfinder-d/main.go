package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/rmax-ai/wayfinder/pkg/api"
	"github.com/rmax-ai/wayfinder/pkg/logging"
	"github.com/rmax-ai/wayfinder/pkg/navigator"
	"github.com/rmax-ai/wayfinder/pkg/store"
	storeredis "github.com/rmax-ai/wayfinder/pkg/store/redis"
	"github.com/rmax-ai/wayfinder/pkg/urlcodec"
)

func main() {
	cfg, err := LoadConfig(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "wayfinder-d: %v\n", err)
		os.Exit(2)
	}

	logger := logging.New(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	logger.Info("system_started", "component", "wayfinder-d")

	st, err := store.NewStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to init store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("failed_to_close_store", "error", err)
		} else {
			logger.Info("store_closed")
		}
	}()
	logger.Info("store_initialized", "path", cfg.DBPath)

	registry := urlcodec.NewRegistry()
	if cfg.RoutesPath != "" {
		if err := loadRoutes(registry, cfg.RoutesPath, logger); err != nil {
			return err
		}
	}

	cache, locks, closeCache, err := sessionBackends(cfg, st, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	holderID := holderName()
	nav := navigator.New(st,
		navigator.WithCache(cache),
		navigator.WithLocks(locks, holderID, cfg.LockTTL),
		navigator.WithCodec(registry),
		navigator.WithLogger(logger),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pruner := navigator.NewPruneWorker(st, retentionConfig(cfg), logger)
	pruner.SetCache(cache)
	go pruner.Run(ctx)

	srv := api.NewServer(nav, registry, logger, cfg.Addr)
	srv.SetReportStore(st)
	if cfg.TLSCertFile != "" {
		srv.SetTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigs)

	for {
		select {
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("server failed: %w", err)
			}
			return nil
		case sig := <-sigs:
			if sig == syscall.SIGHUP {
				logger.Info("reload_requested", "holder_id", holderID)
				reload(os.Args[1:], cfg, registry, pruner, logger)
				continue
			}

			logger.Info("shutdown_initiated", "signal", sig.String())
			cancel()
			shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
			err := srv.Stop(shutdownCtx)
			stop()
			if err != nil {
				logger.Error("server_shutdown_failed", "error", err)
			}
			logger.Info("shutdown_complete")
			return nil
		}
	}
}

func retentionConfig(cfg Config) navigator.RetentionConfig {
	return navigator.RetentionConfig{
		Enabled:       cfg.Retention > 0,
		TTL:           cfg.Retention,
		CheckInterval: cfg.PruneInterval,
	}
}

// reload re-reads flags and environment and applies the settings that can
// change at runtime: retention and routes. The prune interval is fixed at
// start. On a bad config the running settings stay and routes reload from
// the old path.
func reload(args []string, cfg Config, reg *urlcodec.Registry, pruner *navigator.PruneWorker, logger *slog.Logger) {
	next, err := LoadConfig(args)
	if err != nil {
		logger.Error("config_reload_failed", "error", err)
		next = cfg
	} else {
		pruner.UpdateConfig(retentionConfig(next))
		logger.Info("retention_reloaded", "retention", next.Retention.String())
	}
	if next.RoutesPath != "" {
		if err := loadRoutes(reg, next.RoutesPath, logger); err != nil {
			logger.Error("routes_reload_failed", "error", err)
		}
	}
}

// loadRoutes registers the route file. Routes already registered are
// replaced, so it doubles as the SIGHUP reload.
func loadRoutes(reg *urlcodec.Registry, path string, logger *slog.Logger) error {
	n, err := reg.LoadRoutes(path)
	if err != nil {
		return fmt.Errorf("failed to load routes from %s: %w", path, err)
	}
	logger.Info("routes_loaded", "path", path, "count", n, "use_cases", len(reg.UseCases()))
	return nil
}

// sessionBackends picks redis for the cache and locks when configured, so
// replicas share sessions; otherwise an in-process cache and SQLite locks.
func sessionBackends(cfg Config, st *store.Store, logger *slog.Logger) (store.SessionCache, store.LockStore, func(), error) {
	if cfg.RedisURL == "" {
		logger.Info("session_cache_selected", "backend", "memory", "ttl", cfg.SessionTTL.String())
		return store.NewMemoryCache(cfg.SessionTTL), st, func() {}, nil
	}

	opts, err := goredis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := goredis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, nil, fmt.Errorf("failed to reach redis: %w", err)
	}

	logger.Info("session_cache_selected", "backend", "redis", "addr", opts.Addr, "ttl", cfg.SessionTTL.String())
	closeFn := func() {
		if err := client.Close(); err != nil {
			logger.Error("failed_to_close_redis", "error", err)
		}
	}
	return storeredis.NewSessionCache(client, cfg.SessionTTL, logger), storeredis.NewLockStore(client), closeFn, nil
}

func holderName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "wayfinder-d"
	}
	return host + "-" + uuid.NewString()[:8]
}

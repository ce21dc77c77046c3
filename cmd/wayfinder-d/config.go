package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rmax-ai/wayfinder/pkg/logging"
)

const (
	defaultAddr          = "127.0.0.1:8095"
	defaultSessionTTL    = 30 * time.Minute
	defaultRetention     = 7 * 24 * time.Hour
	defaultPruneInterval = time.Hour
	defaultLockTTL       = 5 * time.Second
)

type Config struct {
	DBPath        string
	Addr          string
	RoutesPath    string
	RedisURL      string
	SessionTTL    time.Duration
	LockTTL       time.Duration
	Retention     time.Duration
	PruneInterval time.Duration
	LogLevel      slog.Level
	TLSCertFile   string
	TLSKeyFile    string
}

func LoadConfig(args []string) (Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, fmt.Errorf("failed to get cwd: %w", err)
	}

	durations := map[string]time.Duration{
		"WAYFINDER_SESSION_TTL":    defaultSessionTTL,
		"WAYFINDER_LOCK_TTL":       defaultLockTTL,
		"WAYFINDER_RETENTION":      defaultRetention,
		"WAYFINDER_PRUNE_INTERVAL": defaultPruneInterval,
	}
	for key := range durations {
		if v := os.Getenv(key); v != "" {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				return Config{}, fmt.Errorf("invalid %s: %w", key, err)
			}
			durations[key] = parsed
		}
	}

	flagSet := flag.NewFlagSet("wayfinder-d", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagDB := flagSet.String("db", envOrDefault("WAYFINDER_DB_PATH", filepath.Join(cwd, "wayfinder.db")), "path to SQLite database")
	flagAddr := flagSet.String("addr", addrFromEnv(defaultAddr), "HTTP listen address")
	flagRoutes := flagSet.String("routes", os.Getenv("WAYFINDER_ROUTES_PATH"), "YAML file with extra URL routes")
	flagRedis := flagSet.String("redis", os.Getenv("WAYFINDER_REDIS_URL"), "redis URL for the shared session cache and locks")
	flagSessionTTL := flagSet.Duration("session-ttl", durations["WAYFINDER_SESSION_TTL"], "session cache TTL")
	flagLockTTL := flagSet.Duration("lock-ttl", durations["WAYFINDER_LOCK_TTL"], "session lock TTL")
	flagRetention := flagSet.Duration("retention", durations["WAYFINDER_RETENTION"], "event retention, 0 disables pruning")
	flagPrune := flagSet.Duration("prune-interval", durations["WAYFINDER_PRUNE_INTERVAL"], "how often to prune events")
	flagLevel := flagSet.String("log-level", envOrDefault("WAYFINDER_LOG_LEVEL", "info"), "debug|info|warn|error")
	flagCert := flagSet.String("tls-cert", os.Getenv("WAYFINDER_TLS_CERT"), "TLS certificate file")
	flagKey := flagSet.String("tls-key", os.Getenv("WAYFINDER_TLS_KEY"), "TLS key file")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			flagSet.SetOutput(os.Stdout)
			flagSet.PrintDefaults()
		}
		return Config{}, err
	}

	level, err := logging.ParseLevel(*flagLevel)
	if err != nil {
		return Config{}, err
	}

	config := Config{
		DBPath:        resolvePath(*flagDB, cwd),
		Addr:          strings.TrimSpace(*flagAddr),
		RoutesPath:    resolvePath(*flagRoutes, cwd),
		RedisURL:      strings.TrimSpace(*flagRedis),
		SessionTTL:    *flagSessionTTL,
		LockTTL:       *flagLockTTL,
		Retention:     *flagRetention,
		PruneInterval: *flagPrune,
		LogLevel:      level,
		TLSCertFile:   resolvePath(*flagCert, cwd),
		TLSKeyFile:    resolvePath(*flagKey, cwd),
	}

	if config.Addr == "" {
		return Config{}, errors.New("addr cannot be empty")
	}
	if config.SessionTTL < 0 || config.Retention < 0 {
		return Config{}, errors.New("ttl and retention cannot be negative")
	}
	if config.LockTTL <= 0 {
		return Config{}, errors.New("lock ttl must be positive")
	}
	if config.PruneInterval <= 0 {
		return Config{}, errors.New("prune interval must be positive")
	}
	if (config.TLSCertFile == "") != (config.TLSKeyFile == "") {
		return Config{}, errors.New("tls-cert and tls-key must be set together")
	}

	return config, nil
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func addrFromEnv(fallback string) string {
	if value := os.Getenv("WAYFINDER_ADDR"); value != "" {
		return value
	}
	if port := os.Getenv("WAYFINDER_PORT"); port != "" {
		return fmt.Sprintf("127.0.0.1:%s", port)
	}
	return fallback
}

func resolvePath(path string, cwd string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return trimmed
	}
	if filepath.IsAbs(trimmed) {
		return trimmed
	}
	return filepath.Join(cwd, trimmed)
}

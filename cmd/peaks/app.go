package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/ewilliams-labs/sessions/internal/adapters/badger"
	"github.com/ewilliams-labs/sessions/internal/adapters/decode"
	"github.com/ewilliams-labs/sessions/internal/adapters/httpfetch"
	"github.com/ewilliams-labs/sessions/internal/adapters/memory"
	"github.com/ewilliams-labs/sessions/internal/adapters/sqlite"
	"github.com/ewilliams-labs/sessions/internal/cache"
	"github.com/ewilliams-labs/sessions/internal/config"
	"github.com/ewilliams-labs/sessions/internal/core/ports"
	"github.com/ewilliams-labs/sessions/internal/core/services"
	"github.com/ewilliams-labs/sessions/internal/worker"
)

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "store",
			Usage: "Peak cache backend: sqlite, badger, memory (default from SESSIONS_STORE_DRIVER)",
		},
		&cli.StringFlag{
			Name:  "store-path",
			Usage: "SQLite file or Badger directory (default from SESSIONS_STORE_PATH)",
		},
		&cli.IntFlag{
			Name:  "capacity",
			Usage: "Maximum cached envelopes (default from SESSIONS_CACHE_CAPACITY)",
		},
		&cli.StringFlag{
			Name:  "cache-key",
			Usage: "Cache key strategy: suffix, hash (default from SESSIONS_CACHE_KEY)",
		},
		&cli.IntFlag{
			Name:  "workers",
			Usage: "Background extraction workers, 0 reduces inline (default from SESSIONS_WORKERS)",
		},
		&cli.StringFlag{
			Name:    "log-level",
			Aliases: []string{"l"},
			Usage:   "Log level: debug, info, warn, error (default from SESSIONS_LOG_LEVEL)",
		},
	}
}

// loadConfig layers explicitly set flags over the environment.
func loadConfig(cmd *cli.Command) (config.Config, error) {
	cfg := config.Load()
	if cmd.IsSet("store") {
		cfg.StoreDriver = cmd.String("store")
	}
	if cmd.IsSet("store-path") {
		cfg.StorePath = cmd.String("store-path")
	}
	if cmd.IsSet("capacity") {
		cfg.CacheCapacity = cmd.Int("capacity")
	}
	if cmd.IsSet("cache-key") {
		cfg.CacheKey = cmd.String("cache-key")
	}
	if cmd.IsSet("workers") {
		cfg.Workers = cmd.Int("workers")
	}
	if cmd.IsSet("log-level") {
		cfg.LogLevel = cmd.String("log-level")
	}
	return cfg, cfg.Validate()
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(lvl).
		With().Timestamp().
		Logger()
}

func openStore(cfg config.Config) (ports.PeakStore, error) {
	switch strings.ToLower(cfg.StoreDriver) {
	case "sqlite":
		adapter, err := sqlite.NewAdapter(cfg.StorePath)
		if err != nil {
			return nil, err
		}
		return adapter, nil
	case "badger":
		store, err := badger.Open(cfg.StorePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "memory":
		return memory.NewStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", cfg.StoreDriver)
	}
}

// app is the wired service graph for one CLI invocation.
type app struct {
	log      zerolog.Logger
	store    ports.PeakStore
	cache    *cache.Cache
	pool     *worker.Pool
	analyzer *services.Analyzer
}

func newApp(cmd *cli.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg.LogLevel)

	store, err := openStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open peak store: %w", err)
	}

	keyFn, err := cache.KeyFuncByName(cfg.CacheKey)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	peakCache := cache.New(store,
		cache.WithCapacity(cfg.CacheCapacity),
		cache.WithKeyFunc(keyFn),
		cache.WithLogger(logger),
	)

	fetchOpts := []httpfetch.Option{
		httpfetch.WithTimeout(cfg.FetchTimeout),
		httpfetch.WithRetry(cfg.FetchMaxAttempts, cfg.FetchBackoff),
		httpfetch.WithMaxBytes(cfg.FetchMaxBytes),
		httpfetch.WithLogger(logger),
	}
	if cfg.OAuthEnabled() {
		fetchOpts = append(fetchOpts, httpfetch.WithClientCredentials(&clientcredentials.Config{
			ClientID:     cfg.OAuthClientID,
			ClientSecret: cfg.OAuthClientSecret,
			TokenURL:     cfg.OAuthTokenURL,
		}))
	}

	a := &app{log: logger, store: store, cache: peakCache}

	var extractor ports.PeakExtractor
	if cfg.Workers > 0 {
		a.pool = worker.NewPool(cfg.Workers, cfg.WorkerQueue, worker.WithLogger(logger))
		extractor = a.pool
	}

	a.analyzer = services.NewAnalyzer(
		peakCache,
		httpfetch.NewClient(fetchOpts...),
		decode.NewDecoder(),
		extractor,
		services.WithLogger(logger),
	)
	return a, nil
}

func (a *app) Close() {
	if a.pool != nil {
		a.pool.Stop()
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn().Err(err).Msg("failed to close peak store")
	}
}

// withApp wires the services for the duration of fn.
func withApp(fn func(ctx context.Context, cmd *cli.Command, a *app) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(ctx, cmd, a)
	}
}

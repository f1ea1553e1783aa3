package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/eshaffer321/invoice-ledger/internal/adapters/eslog"
	"github.com/eshaffer321/invoice-ledger/internal/adapters/linkstore"
	"github.com/eshaffer321/invoice-ledger/internal/application/ledger"
	"github.com/eshaffer321/invoice-ledger/internal/application/pipeline"
	"github.com/eshaffer321/invoice-ledger/internal/domain/matcher"
	"github.com/eshaffer321/invoice-ledger/internal/domain/units"
	"github.com/eshaffer321/invoice-ledger/internal/infrastructure/config"
	"github.com/eshaffer321/invoice-ledger/internal/infrastructure/locking"
	"github.com/eshaffer321/invoice-ledger/internal/infrastructure/storage"
)

// App is the wired pipeline shared by the commands.
type App struct {
	Store     *storage.Storage
	Processor *pipeline.Processor
	Logger    *slog.Logger

	redis *redis.Client
}

// NewApp opens storage, connects the lock backend and loads the known code
// links into the matcher. Callers must Close the app.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	store, err := storage.NewStorage(cfg.Storage.DatabasePath, storage.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	app := &App{Store: store, Logger: logger}

	var locker locking.Locker
	if cfg.Locking.RedisAddr != "" {
		rdb, err := locking.Connect(ctx, cfg.Locking.RedisAddr)
		if err != nil {
			_ = app.Close()
			return nil, err
		}
		app.redis = rdb
		locker = locking.NewRedisLocker(rdb, cfg.Locking.TTL, logger)
		logger.Info("Using redis locks", "addr", cfg.Locking.RedisAddr)
	}

	matcherCfg := cfg.Matching.MatcherConfig()
	app.Processor = pipeline.NewProcessor(
		eslog.NewNormalizer(units.NewNormalizer(cfg.WeightOverrides()), eslog.Options{}),
		matcher.NewMatcher(matcher.NewIndex(matcherCfg), matcherCfg),
		ledger.NewLedger(store, locker, cfg.Pricing.Rule(), logger.With("component", "ledger")),
		store,
		pipeline.Config{Policy: cfg.Reconciliation.Policy()},
		logger,
	)

	seed, err := loadLinksFile(cfg.Matching.LinksFile)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	if err := app.Processor.LoadLinks(ctx, seed...); err != nil {
		_ = app.Close()
		return nil, err
	}
	return app, nil
}

// Close releases storage and the redis connection.
func (a *App) Close() error {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	return a.Store.Close()
}

func loadLinksFile(path string) ([]matcher.Link, error) {
	if path == "" {
		return nil, nil
	}
	if !strings.HasSuffix(strings.ToLower(path), ".xlsx") {
		return nil, fmt.Errorf("links file %s: only .xlsx is supported", path)
	}
	links, err := linkstore.LoadLinksXLSX(path)
	if err != nil {
		return nil, fmt.Errorf("load links file: %w", err)
	}
	return links, nil
}

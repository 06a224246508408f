// Package bootstrap wires configuration into a running engine: storage,
// catalog, ledger, event publisher and the progression service.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/felixgeelhaar/trilhas/internal/catalog"
	"github.com/felixgeelhaar/trilhas/internal/config"
	"github.com/felixgeelhaar/trilhas/internal/events"
	"github.com/felixgeelhaar/trilhas/internal/ledger"
	"github.com/felixgeelhaar/trilhas/internal/progression"
	"github.com/felixgeelhaar/trilhas/internal/storage/postgres"
	"github.com/felixgeelhaar/trilhas/internal/storage/sqlite"
)

// App holds the wired engine components.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Ledger    *ledger.Ledger
	Catalog   *catalog.Registry
	Publisher events.Publisher
	Service   *progression.Service
}

// OpenStore connects the configured backend, applies pending migrations
// and returns it as a ledger store.
func OpenStore(ctx context.Context, cfg config.StorageConfig) (ledger.Store, error) {
	switch cfg.Driver {
	case "postgres":
		if err := postgres.Migrate(ctx, cfg.PostgresURL); err != nil {
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		pool, err := postgres.NewPool(ctx, cfg.PostgresURL, postgres.PoolConfig{
			MaxConns:        cfg.MaxConns,
			MaxConnLifetime: cfg.MaxConnLifetime,
		})
		if err != nil {
			return nil, err
		}
		return postgres.NewLedgerStore(pool), nil
	case "sqlite":
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		return sqlite.NewLedgerStore(db), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q: %w", cfg.Driver, config.ErrInvalidConfig)
	}
}

// NewLedger opens the store and wraps it with the configured resilience
// policy.
func NewLedger(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*ledger.Ledger, error) {
	store, err := OpenStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	rc := ledger.DefaultResilienceConfig()
	rc.OpTimeout = cfg.Resilience.OpTimeout
	rc.RetryAttempts = cfg.Resilience.RetryAttempts
	rc.RetryInitialDelay = cfg.Resilience.RetryInitialDelay
	rc.BreakerFailures = cfg.Resilience.BreakerFailures
	rc.BreakerTimeout = cfg.Resilience.BreakerTimeout
	rc.MaxConcurrent = cfg.Resilience.MaxConcurrent
	rc.Logger = logger
	return ledger.New(store, ledger.WithResilience(ledger.NewResilience(rc))), nil
}

// NewPublisher dials the broker when events are enabled.
func NewPublisher(cfg config.EventsConfig) (events.Publisher, error) {
	if !cfg.Enabled {
		return events.NopPublisher{}, nil
	}
	conn, err := events.Dial(cfg.AMQPURL, cfg.Queue)
	if err != nil {
		return nil, err
	}
	return events.NewAMQPPublisher(conn), nil
}

// Open wires every component described by cfg.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	reg := catalog.NewRegistry(catalog.NewLoader(cfg.Catalog.Path))
	if err := reg.Load(ctx); err != nil {
		return nil, err
	}

	l, err := NewLedger(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	pub, err := NewPublisher(cfg.Events)
	if err != nil {
		l.Close()
		return nil, fmt.Errorf("connect events: %w", err)
	}

	pcfg := progression.DefaultConfig()
	pcfg.SubmissionTimeout = cfg.Progression.SubmissionTimeout
	pcfg.ResetTimeout = cfg.Progression.ResetTimeout
	pcfg.SubscriptionProducts = cfg.Progression.SubscriptionProducts
	pcfg.DefaultLocale = cfg.Catalog.DefaultLocale

	svc := progression.New(reg, l, pcfg,
		progression.WithPublisher(pub),
		progression.WithLogger(logger),
	)

	logger.Info("engine ready",
		"storage", cfg.Storage.Driver,
		"catalog", cfg.Catalog.Path,
		"events", cfg.Events.Enabled,
	)
	return &App{
		Config:    cfg,
		Logger:    logger,
		Ledger:    l,
		Catalog:   reg,
		Publisher: pub,
		Service:   svc,
	}, nil
}

// Close releases the publisher and the ledger.
func (a *App) Close() error {
	return errors.Join(a.Publisher.Close(), a.Ledger.Close())
}

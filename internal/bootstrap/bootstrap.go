// Package bootstrap wires configured backends into a ready dispatch service.
package bootstrap

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/dispatch-engine/internal/api/http/handlers"
	"github.com/spec-kit/dispatch-engine/internal/catalog"
	"github.com/spec-kit/dispatch-engine/internal/config"
	"github.com/spec-kit/dispatch-engine/internal/events"
	"github.com/spec-kit/dispatch-engine/internal/jobs"
	"github.com/spec-kit/dispatch-engine/internal/ledger"
	"github.com/spec-kit/dispatch-engine/internal/observability"
	"github.com/spec-kit/dispatch-engine/internal/persistence"
	"github.com/spec-kit/dispatch-engine/internal/recordservice"
	"github.com/spec-kit/dispatch-engine/internal/repository"
	"github.com/spec-kit/dispatch-engine/internal/service"
	"github.com/spec-kit/dispatch-engine/internal/worker"
)

// App holds the wired service and everything that must be closed with it.
type App struct {
	Config   *config.Config
	Rules    *catalog.Holder
	Ledger   *ledger.Ledger
	Dispatch *service.DispatchService
	Jobs     jobs.Queue
	Metrics  *observability.Metrics
	// Health lists the backends the readiness probe pings.
	Health map[string]handlers.Pinger

	logger  *zap.Logger
	pg      *persistence.Postgres
	redis   *persistence.Redis
	closers []func()
}

// LoadRules reads the rule tables at path, or the embedded defaults when
// path is empty.
func LoadRules(path string) (*catalog.Tables, error) {
	if path == "" {
		return catalog.Default(), nil
	}
	return catalog.LoadFile(path)
}

// New connects the configured backends and builds the dispatch service.
// On error every backend opened so far is closed.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (a *App, err error) {
	tables, err := LoadRules(cfg.Rules.Path)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}

	a = &App{
		Config:  cfg,
		Rules:   catalog.NewHolder(tables),
		Metrics: observability.NewMetrics(),
		Health:  map[string]handlers.Pinger{},
		logger:  logger,
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	store, audit, err := a.ledgerBackend(ctx)
	if err != nil {
		return nil, err
	}
	records, err := a.recordBackend(ctx)
	if err != nil {
		return nil, err
	}
	queue, err := a.jobsBackend(ctx)
	if err != nil {
		return nil, err
	}
	a.Jobs = queue

	a.Ledger = ledger.New(ledger.LedgerDependencies{
		Store: store,
		Audit: audit,
		Config: ledger.Config{
			ClaimTimeout: cfg.Ledger.ClaimTimeout(),
			WaitTimeout:  cfg.Ledger.WaitTimeout(),
		},
		Logger: logger,
	})

	dispatcher := events.NewInMemoryDispatcher()
	worker.StartNotificationWorker(service.NewNotificationService(dispatcher, logger, cfg.Notification))

	a.Dispatch = service.NewDispatchService(service.DispatchDependencies{
		Source:     a.Rules,
		Ledger:     a.Ledger,
		Records:    records,
		Jobs:       queue,
		Dispatcher: dispatcher,
		Metrics:    a.Metrics,
		Logger:     logger,
	})
	logger.Info("dispatch engine wired",
		zap.String("rules_version", tables.Version),
		zap.String("ledger_backend", cfg.Ledger.Backend),
		zap.String("record_backend", cfg.Records.Backend),
		zap.String("jobs_backend", cfg.Jobs.Backend))
	return a, nil
}

// Close releases backends in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) ledgerBackend(ctx context.Context) (ledger.Store, ledger.AuditLog, error) {
	switch a.Config.Ledger.Backend {
	case config.BackendSQLite:
		db, err := persistence.OpenSQLite(ctx, a.Config.SQLite, a.logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite ledger: %w", err)
		}
		a.closers = append(a.closers, func() { _ = db.Close() })
		a.Health["sqlite"] = handlers.PingFunc(db.PingContext)
		return repository.NewSQLiteStore(db), repository.NewSQLiteAudit(db), nil
	case config.BackendPostgres:
		pg, err := a.postgres(ctx)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewIdempotencyRepository(pg.PoolHandle()), repository.NewAuditRepository(pg.PoolHandle()), nil
	case config.BackendRedis:
		r := a.redisClient(ctx)
		prefix := r.Key("ledger")
		return repository.NewRedisStore(r.Client, prefix), repository.NewRedisAudit(r.Client, prefix), nil
	default:
		return ledger.NewMemoryStore(), ledger.NewMemoryAudit(), nil
	}
}

func (a *App) recordBackend(ctx context.Context) (recordservice.Service, error) {
	if a.Config.Records.Backend != config.BackendPostgres {
		return recordservice.NewMemory(), nil
	}
	pg, err := a.postgres(ctx)
	if err != nil {
		return nil, err
	}
	return recordservice.NewPostgres(repository.NewRecordRepository(pg.PoolHandle())), nil
}

func (a *App) jobsBackend(ctx context.Context) (jobs.Queue, error) {
	if a.Config.Jobs.Backend != config.BackendRedis {
		return jobs.NewMemory(), nil
	}
	r := a.redisClient(ctx)
	return jobs.NewRedis(r.Client, r.Key(a.Config.Jobs.Queue)), nil
}

// postgres opens the shared pool once and runs migrations if configured.
func (a *App) postgres(ctx context.Context) (*persistence.Postgres, error) {
	if a.pg != nil {
		return a.pg, nil
	}
	pg, err := persistence.NewPostgres(ctx, a.Config.Postgres, a.logger)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	a.closers = append(a.closers, pg.Close)
	if a.Config.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), a.logger); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}
	a.pg = pg
	a.Health["postgres"] = pg
	return pg, nil
}

func (a *App) redisClient(ctx context.Context) *persistence.Redis {
	if a.redis != nil {
		return a.redis
	}
	a.redis = persistence.NewRedis(ctx, a.Config.Redis, a.logger)
	a.closers = append(a.closers, a.redis.Close)
	a.Health["redis"] = a.redis
	return a.redis
}

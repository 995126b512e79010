// Package app assembles the timetable services from configuration. Both the
// HTTP gateway and the audit CLI build on it.
package app

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/conference-timetable/internal/handler"
	"github.com/noah-isme/conference-timetable/internal/repository"
	"github.com/noah-isme/conference-timetable/internal/service"
	"github.com/noah-isme/conference-timetable/internal/timetable"
	"github.com/noah-isme/conference-timetable/pkg/cache"
	"github.com/noah-isme/conference-timetable/pkg/config"
	"github.com/noah-isme/conference-timetable/pkg/database"
	"github.com/noah-isme/conference-timetable/pkg/storage"
)

// App holds the wired services and the connections they share.
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	DB      *sqlx.DB
	Redis   redis.UniversalClient
	Metrics *service.MetricsService

	Events     *repository.EventRepository
	Timetables *service.TimetableService
	Exports    *service.ExportService
	Sweeps     *service.AuditSweepService
}

// New opens the database, and Redis when the audit cache is enabled, and
// wires every service. An unreachable Redis disables caching instead of
// failing startup.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if cfg.Database.Driver == config.DriverSQLite {
		if err := database.ApplySchema(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	a := &App{Config: cfg, Logger: logger, DB: db, Metrics: service.NewMetricsService()}

	var auditCache *service.CacheService
	if cfg.Audit.CacheEnabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logger.Warn("redis unavailable, audit cache disabled", zap.Error(err))
		} else {
			a.Redis = client
			auditCache = service.NewCacheService(repository.NewCacheRepository(client, logger), a.Metrics, cfg.Audit.CacheTTL, logger, true)
		}
	}

	a.Events = repository.NewEventRepository(db)
	entries := repository.NewTimetableRepository(db)
	engine := timetable.NewEngine(entries, logger)
	a.Timetables = service.NewTimetableService(db, entries, engine, validator.New(), auditCache, a.Metrics, service.TimetableServiceConfig{
		TxOptions: database.TxOptions(cfg.Database),
		CacheTTL:  cfg.Audit.CacheTTL,
	}, logger)

	var reports *storage.LocalStorage
	if cfg.Exports.Enabled || cfg.Audit.SweepEnabled {
		reports, err = storage.NewLocalStorage(cfg.Exports.Dir)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("prepare report storage: %w", err)
		}
	}
	exportCfg := service.ExportConfig{Enabled: cfg.Exports.Enabled, Retention: cfg.Exports.Retention}
	if reports != nil {
		a.Exports = service.NewExportService(a.Timetables, reports, exportCfg, logger)
	} else {
		a.Exports = service.NewExportService(a.Timetables, nil, exportCfg, logger)
	}

	a.Sweeps = service.NewAuditSweepService(a.Events, a.Timetables, a.Exports, a.Metrics, service.AuditSweepConfig{
		Schedule:      cfg.Audit.SweepSchedule,
		Workers:       cfg.Audit.Workers,
		RatePerSecond: cfg.Audit.RatePerSecond,
		MaxRetries:    cfg.Audit.MaxRetries,
	}, logger)
	return a, nil
}

// HealthChecks returns the readiness checks for the open connections.
func (a *App) HealthChecks() map[string]handler.DependencyCheck {
	checks := map[string]handler.DependencyCheck{
		"database": func(ctx context.Context) error { return a.DB.PingContext(ctx) },
	}
	if a.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return a.Redis.Ping(ctx).Err() }
	}
	return checks
}

// Close releases the database and Redis connections.
func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Warn("closing redis", zap.Error(err))
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Warn("closing database", zap.Error(err))
		}
	}
}

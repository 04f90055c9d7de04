// Package app wires configuration into a ready report service.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/radiusdt/shop-insights/internal/commerce"
	"github.com/radiusdt/shop-insights/internal/config"
	"github.com/radiusdt/shop-insights/internal/database"
	"github.com/radiusdt/shop-insights/internal/events"
	"github.com/radiusdt/shop-insights/internal/httpserver"
	"github.com/radiusdt/shop-insights/internal/insights"
	"github.com/radiusdt/shop-insights/internal/metrics"
	"github.com/radiusdt/shop-insights/internal/models"
	"github.com/radiusdt/shop-insights/internal/storage"
	"go.uber.org/zap"
)

// App holds the wired components and the connections they own.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Service  *insights.Service
	Checks   map[string]httpserver.HealthChecker

	memCache *storage.MemoryCache
	closers  []func()
}

// New connects to every enabled backend and builds the report service.
// Redis is optional: when it cannot be reached the in-memory cache is used.
// Event sources that are enabled but unreachable fail startup.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: reg,
		Metrics:  metrics.NewMetrics(cfg.Metrics.Namespace, reg),
		Checks:   make(map[string]httpserver.HealthChecker),
	}

	cache := a.cache(ctx)

	client := commerce.NewClient(cfg.Commerce, logger, a.Metrics)
	fetcher := commerce.NewFetcher(client, cfg.Commerce.PageSize, logger, a.Metrics)
	source := commerce.NewSource(fetcher, cache, cfg.Cache.TTL, cfg.Commerce.GroupIDPrefix, logger, a.Metrics)

	opts := insights.Options{
		DefaultGroup: cfg.Reports.DefaultGroup,
		Identity:     insights.NewIdentityMapper(cfg.Reports.ProductIDMap),
	}
	if err := a.eventSources(ctx, &opts); err != nil {
		a.Close()
		return nil, err
	}

	a.Service = insights.NewService(source, opts, logger, a.Metrics)
	return a, nil
}

func (a *App) cache(ctx context.Context) storage.Cache {
	cfg := a.Config
	if cfg.Redis.Enabled {
		rdb, err := database.NewRedisDB(ctx, cfg.Redis, a.Logger)
		if err == nil {
			a.closers = append(a.closers, func() { rdb.Close() })
			a.Checks["redis"] = rdb
			return storage.NewRedisCache(rdb.Client, cfg.Cache.Prefix)
		}
		a.Logger.Warn("Redis not available, using in-memory cache", zap.Error(err))
	}
	a.memCache = storage.NewMemoryCache()
	return a.memCache
}

// eventSources attaches the stage sources and the product counter. The
// ClickHouse tracker is preferred for product counts; an HTTP collaborator
// tagged as the event tracker is the fallback.
func (a *App) eventSources(ctx context.Context, opts *insights.Options) error {
	cfg := a.Config

	if cfg.Analytics.Enabled {
		src, err := events.NewHTTPSource(cfg.Analytics, a.Logger, a.Metrics)
		if err != nil {
			return fmt.Errorf("analytics source: %w", err)
		}
		opts.StageSources = append(opts.StageSources, src)
		if src.Provenance() == models.ProvenanceEventTracker {
			opts.Products = src
		}
	}

	if cfg.Database.Enabled {
		db, err := database.NewPostgresDB(ctx, cfg.Database, a.Logger)
		if err != nil {
			return fmt.Errorf("session warehouse: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		a.Checks["postgres"] = db
		opts.StageSources = append(opts.StageSources, events.NewSessionWarehouse(db.SQL(), a.Logger, a.Metrics))
	}

	if cfg.ClickHouse.Enabled {
		ch, err := database.NewClickHouseDB(ctx, cfg.ClickHouse, a.Logger)
		if err != nil {
			return fmt.Errorf("event tracker: %w", err)
		}
		a.closers = append(a.closers, func() { ch.Close() })
		a.Checks["clickhouse"] = ch

		tracker, err := events.NewClickHouseTracker(ch.DB, cfg.ClickHouse.Table, a.Logger, a.Metrics)
		if err != nil {
			return fmt.Errorf("event tracker: %w", err)
		}
		opts.StageSources = append(opts.StageSources, tracker)
		opts.Products = tracker
	}

	if opts.Products == nil {
		a.Logger.Info("no event tracker configured, conversion report disabled")
	}
	return nil
}

// RunJanitor purges expired in-memory cache entries until ctx is done. It
// returns immediately when Redis backs the cache.
func (a *App) RunJanitor(ctx context.Context, interval time.Duration) {
	if a.memCache == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.memCache.Purge(); n > 0 {
				a.Logger.Debug("purged expired cache entries", zap.Int("count", n))
			}
		}
	}
}

// Close releases connections in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

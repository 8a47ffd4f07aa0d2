package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/channel-warehouse/internal/collector"
	"github.com/ignite/channel-warehouse/internal/config"
	"github.com/ignite/channel-warehouse/internal/domain"
	"github.com/ignite/channel-warehouse/internal/loader"
	"github.com/ignite/channel-warehouse/internal/pkg/distlock"
	"github.com/ignite/channel-warehouse/internal/pkg/logger"
	"github.com/ignite/channel-warehouse/internal/report"
	"github.com/ignite/channel-warehouse/internal/repository/memory"
	"github.com/ignite/channel-warehouse/internal/repository/postgres"
	"github.com/ignite/channel-warehouse/internal/source"
	"github.com/ignite/channel-warehouse/internal/source/feed"
	"github.com/ignite/channel-warehouse/internal/source/webpreview"
	"github.com/ignite/channel-warehouse/internal/storage"
	"github.com/ignite/channel-warehouse/internal/warehouse"
)

// warehouseStore is everything the commands read and write.
type warehouseStore interface {
	collector.Store
	warehouse.Store
	report.VerifyStore
}

// app holds the resources one command invocation uses.
type app struct {
	cfg      *config.Config
	store    warehouseStore
	files    *storage.Storage
	lake     *storage.Lake
	renderer *report.Renderer
	lock     distlock.DistLock

	db    *sql.DB
	redis *redis.Client
}

// newApp opens the warehouse and storage. With dryRun the warehouse lives
// in memory for the duration of the command.
func newApp(ctx context.Context, cfg *config.Config, dryRun bool) (*app, error) {
	a := &app{cfg: cfg}

	renderer, err := report.NewRenderer(cfg.Report.TemplatePath)
	if err != nil {
		return nil, err
	}
	a.renderer = renderer

	files, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a.files = files
	a.lake = storage.NewLake(files.Backend(), cfg.Lake.Prefix)

	if dryRun {
		logger.Info("warehouse: dry run, using in-memory warehouse")
		a.store = memory.New()
		return a, nil
	}

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	a.db = db
	if _, err := postgres.Migrate(ctx, db); err != nil {
		a.Close()
		return nil, fmt.Errorf("%w: migrate: %v", domain.ErrStorageUnavailable, err)
	}
	a.store = postgres.NewStore(db)

	if cfg.Lock.RedisURL != "" {
		rc, err := distlock.NewRedisClient(cfg.Lock.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.redis = rc
	}
	a.lock = distlock.NewLock(a.redis, db, cfg.Lock.Key, cfg.Lock.TTL())
	return a, nil
}

// Close releases the database pool and the Redis client.
func (a *app) Close() {
	if a.redis != nil {
		a.redis.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}

// exclusive runs fn under the single-writer run lock. Dry runs own their
// private warehouse and skip the lock.
func (a *app) exclusive(ctx context.Context, fn func(ctx context.Context) error) error {
	if a.lock == nil {
		return fn(ctx)
	}
	return distlock.WithLock(ctx, a.lock, a.cfg.Lock.TTL(), fn)
}

func (a *app) source() (source.Source, error) {
	c := a.cfg.Collector
	fetcher := source.NewFetcher(nil, c.UserAgent, c.Timeout(), c.MaxRetries)
	switch c.Source {
	case "", "webpreview":
		return webpreview.New(c.PreviewBaseURL, fetcher), nil
	case "feed":
		return feed.New(c.FeedURLTemplate, fetcher), nil
	default:
		return nil, fmt.Errorf("unknown collector source %q", c.Source)
	}
}

func (a *app) collect(ctx context.Context) (*collector.Result, error) {
	src, err := a.source()
	if err != nil {
		return nil, err
	}
	col := collector.New(src, a.store, collector.Options{
		Limit:       a.cfg.Collector.Limit,
		Concurrency: a.cfg.Collector.Concurrency,
	})
	if a.cfg.Collector.DownloadAttachments {
		col.WithAttachments(a.files)
	}
	if a.cfg.Lake.Enabled {
		col.WithLake(a.lake)
	}
	return col.Run(ctx, a.cfg.Collector.Channels)
}

// load appends every lake batch to the raw store. With sample, an empty
// lake is seeded with the bootstrap batch first.
func (a *app) load(ctx context.Context, sample bool) (*loader.LakeResult, error) {
	if sample {
		keys, err := a.lake.Batches(ctx)
		if err != nil {
			return nil, err
		}
		if len(keys) == 0 {
			key, err := loader.WriteSample(ctx, a.lake, time.Now())
			if err != nil {
				return nil, err
			}
			logger.Info("warehouse: lake empty, wrote sample batch", "batch", key)
		}
	}
	return loader.New(a.store).LoadAll(ctx, a.lake)
}

func (a *app) build(ctx context.Context) (*warehouse.Result, error) {
	return warehouse.NewBuilder(a.store).Build(ctx)
}

func newRunReport() report.RunReport {
	return report.RunReport{RunID: uuid.New().String(), StartedAt: time.Now()}
}

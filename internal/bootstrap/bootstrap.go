// Package bootstrap assembles the content services from configuration. Both
// the HTTP server and the CLI start here.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/siteadmin/content-services/handlers"
	"github.com/siteadmin/content-services/internal/config"
	"github.com/siteadmin/content-services/internal/contentdata"
	"github.com/siteadmin/content-services/internal/contentsync"
	"github.com/siteadmin/content-services/internal/database"
	"github.com/siteadmin/content-services/internal/environment"
	"github.com/siteadmin/content-services/internal/page/cache"
	"github.com/siteadmin/content-services/internal/page/filestore"
	"github.com/siteadmin/content-services/internal/page/handler"
	"github.com/siteadmin/content-services/internal/page/repository"
	"github.com/siteadmin/content-services/internal/page/resolver"
	"github.com/siteadmin/content-services/internal/runlog"
	"github.com/siteadmin/content-services/internal/storage"
	"github.com/siteadmin/content-services/internal/validation"
	"github.com/siteadmin/content-services/pkg/logger"
	"go.mongodb.org/mongo-driver/mongo"
)

const connectAttempts = 5

// App holds every wired service. Close releases connections.
type App struct {
	Config      *config.Config
	Mode        environment.Mode
	Files       *filestore.Store
	Pages       repository.Repository
	Data        contentdata.Repository
	Runs        runlog.Store
	Sync        *contentsync.Service
	ContentData *contentdata.Service
	Hybrid      *resolver.Service
	Published   *resolver.Service
	Validator   *validation.Validator
	Redis       *redis.Client

	checks  map[string]handlers.Check
	closers []func()
}

// Build connects the configured stores and wires the services on top.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg, checks: map[string]handlers.Check{}}
	a.Mode = environment.Classify(config.Getenv)
	logger.Infof("content filesystem classified as %s", a.Mode)

	a.Files = filestore.New(filestore.Options{
		PagesDir: cfg.Content.PagesDir,
		DataFile: cfg.Content.DataFile,
		Mode:     a.Mode,
	})
	a.checks["pages"] = func(context.Context) error {
		_, err := os.Stat(cfg.Content.PagesDir)
		return err
	}

	if err := a.connectStore(ctx); err != nil {
		a.Close()
		return nil, err
	}

	v, err := validation.New()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("compile schemas: %w", err)
	}
	a.Validator = v

	a.Sync = contentsync.New(a.Pages, a.Files, a.Mode, contentsync.WithTolerance(cfg.Content.ConsistencyTolerance))
	a.ContentData = contentdata.New(a.Data, a.Files, a.Mode)
	a.Hybrid = resolver.New(resolver.Hybrid, a.Pages, a.Files, a.Sync, a.Mode, resolver.WithCache(a.pageCache(ctx)))
	a.Published = resolver.New(resolver.Published, a.Pages, a.Files, a.Sync, a.Mode)
	return a, nil
}

func (a *App) connectStore(ctx context.Context) error {
	cfg := a.Config
	switch cfg.Storage.Driver {
	case "", "memory":
		logger.Warnf("using in-memory document store; content is lost on restart")
		a.Pages = repository.NewMemoryRepo()
		a.Data = contentdata.NewMemoryRepo()
		a.Runs = runlog.NewMemoryStore(0)
		a.checks["database"] = func(context.Context) error { return nil }
		return nil

	case "mongo", "mongodb":
		if cfg.MongoDB.URI == "" {
			return fmt.Errorf("STORAGE_DRIVER=%s requires MONGODB_URI", cfg.Storage.Driver)
		}
		client, err := database.Retry(ctx, "MongoDB", connectAttempts, time.Second, func(ctx context.Context) (*mongo.Client, error) {
			return database.ConnectMongo(ctx, cfg.MongoDB)
		})
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { _ = client.Disconnect(context.Background()) })
		db := client.Database(cfg.MongoDB.Database)
		pages, err := repository.NewMongoRepo(ctx, db.Collection(cfg.MongoDB.PageCollection))
		if err != nil {
			return fmt.Errorf("mongo indexes: %w", err)
		}
		a.Pages = pages
		a.Data = contentdata.NewMongoRepo(db.Collection(cfg.MongoDB.DataCollection), db.Collection(cfg.MongoDB.JobCollection))
		a.Runs = runlog.NewMongoStore(db.Collection(cfg.MongoDB.RunCollection))
		a.checks["database"] = func(ctx context.Context) error { return client.Ping(ctx, nil) }
		return nil

	case "postgres", "postgresql":
		if cfg.Postgres.DSN == "" {
			return fmt.Errorf("STORAGE_DRIVER=%s requires POSTGRES_DSN", cfg.Storage.Driver)
		}
		db, err := database.Retry(ctx, "PostgreSQL", connectAttempts, time.Second, func(ctx context.Context) (*sql.DB, error) {
			return database.OpenPostgres(ctx, cfg.Postgres.DSN, 10*time.Second)
		})
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { _ = db.Close() })
		pages := repository.NewPostgresRepo(db, cfg.Postgres.PageTable)
		if err := pages.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate pages: %w", err)
		}
		data := contentdata.NewPostgresRepo(db, cfg.Postgres.DataTable, cfg.Postgres.JobTable)
		if err := data.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate content data: %w", err)
		}
		runs := runlog.NewPostgresStore(db, "sync_runs")
		if err := runs.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate sync runs: %w", err)
		}
		a.Pages, a.Data, a.Runs = pages, data, runs
		a.checks["database"] = db.PingContext
		return nil
	}
	return fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.Storage.Driver)
}

// pageCache is a local expiring map, backed by Redis when it answers.
func (a *App) pageCache(ctx context.Context) cache.Cache {
	local := cache.NewMemory(a.Config.Content.CacheTTL)
	addr := a.Config.Redis.Addr()
	if addr == "" {
		return local
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: a.Config.Redis.Password, DB: a.Config.Redis.DB})
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warnf("redis %s unavailable, page cache stays process-local: %v", addr, err)
		_ = client.Close()
		return local
	}
	logger.Infof("connected to Redis at %s for the shared page cache", addr)
	a.Redis = client
	a.closers = append(a.closers, func() { _ = client.Close() })
	a.checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	return cache.NewTiered(local, cache.NewRedis(client, "page:", a.Config.Content.CacheTTL))
}

// Deps returns the services behind the content API.
func (a *App) Deps() handler.Deps {
	return handler.Deps{
		Pages:     a.Hybrid,
		Site:      a.Published,
		Sync:      a.Sync,
		Data:      a.ContentData,
		Validator: a.Validator,
		Runs:      a.Runs,
	}
}

// Checks lists the readiness probes for the wired dependencies.
func (a *App) Checks() map[string]handlers.Check { return a.checks }

// Archive opens the backup bucket under a fresh snapshot prefix.
func (a *App) Archive(ctx context.Context) (*storage.MinIOStorage, error) {
	s, err := storage.NewMinIOStorage(ctx, a.Config.MinIO)
	if err != nil {
		return nil, err
	}
	return s.WithPrefix(storage.SnapshotPrefix(time.Now())), nil
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

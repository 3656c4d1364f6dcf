package di

import (
	"context"
	"fmt"

	"github.com/goliatone/go-notehub/cache"
	"github.com/goliatone/go-notehub/gateway"
	"github.com/goliatone/go-notehub/internal/config"
	"github.com/goliatone/go-notehub/internal/server"
	"github.com/goliatone/go-notehub/note"
	"github.com/goliatone/go-notehub/prefetch"
	"github.com/goliatone/go-notehub/query"
	"github.com/goliatone/go-notehub/repositorycache"
	"github.com/goliatone/go-notehub/session"
	"github.com/goliatone/go-notehub/store"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Container owns the backend singletons: the database handle, the read
// cache and the notes service built on them. Client side components are
// created on demand from the same configuration.
type Container struct {
	cfg           config.Config
	logger        *zap.Logger
	db            *bun.DB
	cacheService  cache.CacheService
	keySerializer cache.KeySerializer
	records       repository.Repository[*store.Record]
	notes         *store.Notes
}

// NewContainer opens and migrates the database and wires the notes service.
// The read cache sits in front of the repository when it is enabled.
func NewContainer(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Container, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("di: %w", err)
	}

	db, err := store.Open(cfg.Backend.Database)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	c := &Container{
		cfg:           cfg,
		logger:        logger,
		db:            db,
		keySerializer: cache.NewDefaultKeySerializer(),
	}

	var records repository.Repository[*store.Record] = store.NewRepository(db)
	if cfg.Backend.CacheEnabled {
		c.cacheService, err = cache.NewCacheService(cfg.Backend.Cache)
		if err != nil {
			db.Close()
			return nil, err
		}
		records = NewCachedRepository(c, records, repositorycache.WithNamespace(note.QueryNamespace))
	}
	c.records = records
	c.notes = store.NewNotes(records, store.WithLogger(logger.Named("store")))

	logger.Info("container ready",
		zap.String("driver", cfg.Backend.Database.Driver),
		zap.Bool("cache", cfg.Backend.CacheEnabled),
	)
	return c, nil
}

func (c *Container) Config() config.Config { return c.cfg }

func (c *Container) Logger() *zap.Logger { return c.logger }

func (c *Container) DB() *bun.DB { return c.db }

// CacheService returns the read cache, or nil when caching is disabled.
func (c *Container) CacheService() cache.CacheService { return c.cacheService }

func (c *Container) KeySerializer() cache.KeySerializer { return c.keySerializer }

// Records is the repository the notes service reads and writes through.
func (c *Container) Records() repository.Repository[*store.Record] { return c.records }

func (c *Container) Notes() *store.Notes { return c.notes }

// QueryOptions are shared by the prefetch step and client sessions.
func (c *Container) QueryOptions() []query.Option {
	return []query.Option{query.WithStaleTime(c.cfg.Query.StaleTime)}
}

// PrefetchStep prefetches through the notes service in process.
func (c *Container) PrefetchStep() *prefetch.Step {
	return prefetch.New(c.notes,
		prefetch.WithQueryOptions(c.QueryOptions()...),
		prefetch.WithLogger(c.logger.Named("prefetch")),
	)
}

// Server builds the HTTP server for the API and the page routes.
func (c *Container) Server() *server.Server {
	return server.New(c.notes, c.PrefetchStep(), server.WithLogger(c.logger.Named("server")))
}

// Close releases the database handle.
func (c *Container) Close() error {
	return c.db.Close()
}

// NewGateway creates an HTTP gateway for cfg. It does not need a database
// and is used by clients running apart from the backend.
func NewGateway(cfg config.Config, logger *zap.Logger) (*gateway.Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	return gateway.New(cfg.Gateway, gateway.WithLogger(logger.Named("gateway")))
}

// NewSession creates a client session over api with the configured query
// options.
func NewSession(cfg config.Config, api session.API, logger *zap.Logger) *session.Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return session.New(api,
		session.WithLogger(logger.Named("session")),
		session.WithQueryOptions(query.WithStaleTime(cfg.Query.StaleTime)),
	)
}

// NewCachedRepository wraps base with the container's read cache. Go methods
// cannot take type parameters, hence the package level function.
func NewCachedRepository[T any](c *Container, base repository.Repository[T], opts ...repositorycache.Option) *repositorycache.CachedRepository[T] {
	opts = append([]repositorycache.Option{repositorycache.WithLogger(c.logger.Named("repositorycache"))}, opts...)
	return repositorycache.New(base, c.cacheService, c.keySerializer, opts...)
}

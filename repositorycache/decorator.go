package repositorycache

import (
	"context"
	"reflect"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/goliatone/go-notehub/cache"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

var _ repository.Repository[any] = (*CachedRepository[any])(nil)

// Read operations, used as the second key segment.
const (
	opGet             = "Get"
	opGetByID         = "GetByID"
	opGetByIdentifier = "GetByIdentifier"
	opList            = "List"
	opCount           = "Count"
)

type listResult[T any] struct {
	Records []T
	Total   int
}

// CachedRepository decorates a repository with a read-through cache. Reads are
// keyed as namespace::operation::arguments. A read carrying criteria is only
// cached when its context holds a query key; criteria are closures and cannot
// be told apart otherwise.
//
// Every registered key is bound to the generation that was current when it was
// first read, and the stored entry lives under key::generation. Invalidation
// unregisters keys and advances the generation, so a read that was in flight
// during a write lands on an entry no later read will look up, and later reads
// never join its fetch.
//
// Every method not overridden here is served by the embedded repository.
type CachedRepository[T any] struct {
	repository.Repository[T]

	cache         cache.CacheService
	keySerializer cache.KeySerializer
	namespace     string
	logger        *zap.Logger
	keys          *xsync.MapOf[string, uint64]
	generation    atomic.Uint64
}

// Option configures a CachedRepository.
type Option func(*options)

type options struct {
	namespace string
	logger    *zap.Logger
}

// WithNamespace sets the first key segment. It defaults to the snake cased
// record type name.
func WithNamespace(ns string) Option {
	return func(o *options) { o.namespace = ns }
}

// WithLogger sets the logger used to report invalidation failures.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New wraps base with cacheService.
func New[T any](base repository.Repository[T], cacheService cache.CacheService, keySerializer cache.KeySerializer, opts ...Option) *CachedRepository[T] {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.namespace == "" {
		o.namespace = namespaceOf[T]()
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	return &CachedRepository[T]{
		Repository:    base,
		cache:         cacheService,
		keySerializer: keySerializer,
		namespace:     o.namespace,
		logger:        o.logger,
		keys:          xsync.NewMapOf[string, uint64](),
	}
}

// Namespace returns the first key segment of every key this repository owns.
func (c *CachedRepository[T]) Namespace() string { return c.namespace }

// TrackedKeys reports how many cache keys are currently registered.
func (c *CachedRepository[T]) TrackedKeys() int { return c.keys.Size() }

// Get is cached when ctx carries a query key.
func (c *CachedRepository[T]) Get(ctx context.Context, criteria ...repository.SelectCriteria) (T, error) {
	key, ok := c.readKey(ctx, opGet, len(criteria) > 0)
	if !ok {
		return c.Repository.Get(ctx, criteria...)
	}
	return cachedRead(ctx, c, key, func(ctx context.Context) (T, error) {
		return c.Repository.Get(ctx, criteria...)
	})
}

// GetByID is always cached without criteria.
func (c *CachedRepository[T]) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (T, error) {
	key, ok := c.readKey(ctx, opGetByID, len(criteria) > 0, id)
	if !ok {
		return c.Repository.GetByID(ctx, id, criteria...)
	}
	return cachedRead(ctx, c, key, func(ctx context.Context) (T, error) {
		return c.Repository.GetByID(ctx, id, criteria...)
	})
}

// GetByIdentifier is always cached without criteria.
func (c *CachedRepository[T]) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	key, ok := c.readKey(ctx, opGetByIdentifier, len(criteria) > 0, identifier)
	if !ok {
		return c.Repository.GetByIdentifier(ctx, identifier, criteria...)
	}
	return cachedRead(ctx, c, key, func(ctx context.Context) (T, error) {
		return c.Repository.GetByIdentifier(ctx, identifier, criteria...)
	})
}

// List caches records and total together.
func (c *CachedRepository[T]) List(ctx context.Context, criteria ...repository.SelectCriteria) ([]T, int, error) {
	key, ok := c.readKey(ctx, opList, len(criteria) > 0)
	if !ok {
		return c.Repository.List(ctx, criteria...)
	}
	res, err := cachedRead(ctx, c, key, func(ctx context.Context) (listResult[T], error) {
		records, total, err := c.Repository.List(ctx, criteria...)
		return listResult[T]{Records: records, Total: total}, err
	})
	if err != nil {
		return nil, 0, err
	}
	return res.Records, res.Total, nil
}

func (c *CachedRepository[T]) Count(ctx context.Context, criteria ...repository.SelectCriteria) (int, error) {
	key, ok := c.readKey(ctx, opCount, len(criteria) > 0)
	if !ok {
		return c.Repository.Count(ctx, criteria...)
	}
	return cachedRead(ctx, c, key, func(ctx context.Context) (int, error) {
		return c.Repository.Count(ctx, criteria...)
	})
}

func (c *CachedRepository[T]) Create(ctx context.Context, record T, criteria ...repository.InsertCriteria) (T, error) {
	result, err := c.Repository.Create(ctx, record, criteria...)
	if err == nil {
		c.invalidateQueries(ctx)
	}
	return result, err
}

func (c *CachedRepository[T]) CreateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.InsertCriteria) (T, error) {
	result, err := c.Repository.CreateTx(ctx, tx, record, criteria...)
	if err == nil {
		c.invalidateQueries(ctx)
	}
	return result, err
}

func (c *CachedRepository[T]) CreateMany(ctx context.Context, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	result, err := c.Repository.CreateMany(ctx, records, criteria...)
	if err == nil {
		c.invalidateQueries(ctx)
	}
	return result, err
}

func (c *CachedRepository[T]) CreateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	result, err := c.Repository.CreateManyTx(ctx, tx, records, criteria...)
	if err == nil {
		c.invalidateQueries(ctx)
	}
	return result, err
}

// GetOrCreate may insert, so it invalidates like Create.
func (c *CachedRepository[T]) GetOrCreate(ctx context.Context, record T) (T, error) {
	result, err := c.Repository.GetOrCreate(ctx, record)
	if err == nil {
		c.invalidateQueries(ctx)
	}
	return result, err
}

func (c *CachedRepository[T]) GetOrCreateTx(ctx context.Context, tx bun.IDB, record T) (T, error) {
	result, err := c.Repository.GetOrCreateTx(ctx, tx, record)
	if err == nil {
		c.invalidateQueries(ctx)
	}
	return result, err
}

func (c *CachedRepository[T]) Update(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.Repository.Update(ctx, record, criteria...)
	if err == nil {
		c.invalidateRecords(ctx, result)
	}
	return result, err
}

func (c *CachedRepository[T]) UpdateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.Repository.UpdateTx(ctx, tx, record, criteria...)
	if err == nil {
		c.invalidateRecords(ctx, result)
	}
	return result, err
}

func (c *CachedRepository[T]) UpdateMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.Repository.UpdateMany(ctx, records, criteria...)
	if err == nil {
		c.invalidateRecords(ctx, result...)
	}
	return result, err
}

func (c *CachedRepository[T]) UpdateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.Repository.UpdateManyTx(ctx, tx, records, criteria...)
	if err == nil {
		c.invalidateRecords(ctx, result...)
	}
	return result, err
}

func (c *CachedRepository[T]) Upsert(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.Repository.Upsert(ctx, record, criteria...)
	if err == nil {
		c.invalidateRecords(ctx, result)
	}
	return result, err
}

func (c *CachedRepository[T]) UpsertTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.Repository.UpsertTx(ctx, tx, record, criteria...)
	if err == nil {
		c.invalidateRecords(ctx, result)
	}
	return result, err
}

func (c *CachedRepository[T]) UpsertMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.Repository.UpsertMany(ctx, records, criteria...)
	if err == nil {
		c.invalidateRecords(ctx, result...)
	}
	return result, err
}

func (c *CachedRepository[T]) UpsertManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.Repository.UpsertManyTx(ctx, tx, records, criteria...)
	if err == nil {
		c.invalidateRecords(ctx, result...)
	}
	return result, err
}

func (c *CachedRepository[T]) Delete(ctx context.Context, record T) error {
	err := c.Repository.Delete(ctx, record)
	if err == nil {
		c.invalidateRecords(ctx, record)
	}
	return err
}

func (c *CachedRepository[T]) DeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	err := c.Repository.DeleteTx(ctx, tx, record)
	if err == nil {
		c.invalidateRecords(ctx, record)
	}
	return err
}

func (c *CachedRepository[T]) ForceDelete(ctx context.Context, record T) error {
	err := c.Repository.ForceDelete(ctx, record)
	if err == nil {
		c.invalidateRecords(ctx, record)
	}
	return err
}

func (c *CachedRepository[T]) ForceDeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	err := c.Repository.ForceDeleteTx(ctx, tx, record)
	if err == nil {
		c.invalidateRecords(ctx, record)
	}
	return err
}

// DeleteMany drops every cached read since the affected records are unknown.
func (c *CachedRepository[T]) DeleteMany(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	err := c.Repository.DeleteMany(ctx, criteria...)
	if err == nil {
		c.InvalidateAll(ctx)
	}
	return err
}

func (c *CachedRepository[T]) DeleteManyTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	err := c.Repository.DeleteManyTx(ctx, tx, criteria...)
	if err == nil {
		c.InvalidateAll(ctx)
	}
	return err
}

func (c *CachedRepository[T]) DeleteWhere(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	err := c.Repository.DeleteWhere(ctx, criteria...)
	if err == nil {
		c.InvalidateAll(ctx)
	}
	return err
}

func (c *CachedRepository[T]) DeleteWhereTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	err := c.Repository.DeleteWhereTx(ctx, tx, criteria...)
	if err == nil {
		c.InvalidateAll(ctx)
	}
	return err
}

// InvalidateAll removes every key this repository registered.
func (c *CachedRepository[T]) InvalidateAll(ctx context.Context) int {
	return c.invalidateByPrefix(ctx, c.keySerializer.SerializeKey(c.namespace))
}

// entryKey is a registered read key bound to a generation.
type entryKey struct {
	key        string
	generation uint64
}

func (k entryKey) String() string {
	return k.key + cache.KeySeparator + strconv.FormatUint(k.generation, 10)
}

// readKey builds and registers the key for a read. It reports false when the
// read cannot be cached.
func (c *CachedRepository[T]) readKey(ctx context.Context, op string, hasCriteria bool, args ...any) (entryKey, bool) {
	parts := queryKeyFromContext(ctx)
	if hasCriteria && len(parts) == 0 {
		return entryKey{}, false
	}

	segments := make([]any, 0, 1+len(args)+len(parts))
	segments = append(segments, op)
	segments = append(segments, args...)
	segments = append(segments, parts...)

	key := c.keySerializer.SerializeKey(c.namespace, segments...)
	gen, _ := c.keys.LoadOrCompute(key, c.generation.Load)
	return entryKey{key: key, generation: gen}, true
}

// cachedRead serves key through the cache service. When key was invalidated
// while the fetch ran, the entry it left behind is dropped.
func cachedRead[T, V any](ctx context.Context, c *CachedRepository[T], key entryKey, fetchFn cache.FetchFn[V]) (V, error) {
	v, err := cache.GetOrFetch(ctx, c.cache, key.String(), fetchFn)
	if gen, ok := c.keys.Load(key.key); !ok || gen != key.generation {
		if derr := c.cache.Delete(ctx, key.String()); derr != nil {
			c.logger.Warn("cache delete failed", zap.Stringer("key", key), zap.Error(derr))
		}
	}
	return v, err
}

func (c *CachedRepository[T]) opPrefix(op string, args ...any) string {
	return c.keySerializer.SerializeKey(c.namespace, append([]any{op}, args...)...)
}

// invalidateQueries drops result set reads, which any insert can change.
func (c *CachedRepository[T]) invalidateQueries(ctx context.Context) {
	c.invalidateByPrefix(ctx, c.opPrefix(opList))
	c.invalidateByPrefix(ctx, c.opPrefix(opCount))
	c.invalidateByPrefix(ctx, c.opPrefix(opGet))
}

// invalidateRecords drops the id keys of records plus every query read.
func (c *CachedRepository[T]) invalidateRecords(ctx context.Context, records ...T) {
	getID := c.Handlers().GetID
	for _, record := range records {
		if getID == nil {
			break
		}
		if id := getID(record); id != uuid.Nil {
			c.invalidateByPrefix(ctx, c.opPrefix(opGetByID, id.String()))
		}
	}
	c.invalidateByPrefix(ctx, c.opPrefix(opGetByIdentifier))
	c.invalidateQueries(ctx)
}

// invalidateByPrefix removes keys equal to prefix or extending it by whole
// segments, so "ns::Get" does not reach "ns::GetByID". Keys read again after
// this returns are bound to a newer generation.
func (c *CachedRepository[T]) invalidateByPrefix(ctx context.Context, prefix string) int {
	next := c.generation.Add(1)

	var matched []entryKey
	c.keys.Range(func(key string, _ uint64) bool {
		if key != prefix && !strings.HasPrefix(key, prefix+cache.KeySeparator) {
			return true
		}
		c.keys.Compute(key, func(gen uint64, loaded bool) (uint64, bool) {
			if loaded && gen < next {
				matched = append(matched, entryKey{key: key, generation: gen})
				return gen, true
			}
			return gen, !loaded
		})
		return true
	})

	for _, key := range matched {
		if err := c.cache.Delete(ctx, key.String()); err != nil {
			c.logger.Warn("cache delete failed", zap.Stringer("key", key), zap.Error(err))
		}
	}

	if len(matched) > 0 {
		c.logger.Debug("cache invalidated", zap.String("prefix", prefix), zap.Int("keys", len(matched)))
	}
	return len(matched)
}

func namespaceOf[T any]() string {
	t := reflect.TypeOf((*T)(nil)).Elem()
	for t.Kind() == reflect.Pointer || t.Kind() == reflect.Slice {
		t = t.Elem()
	}
	if ns := toSnake(t.Name()); ns != "" {
		return ns
	}
	return "records"
}

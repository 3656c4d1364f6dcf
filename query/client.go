package query

import (
	"context"
	"iter"
	"sync"

	"go.uber.org/zap"
)

// Fetcher loads the value for key from the remote source.
type Fetcher[T any] func(ctx context.Context, key Key) (T, error)

// Client is a keyed cache of fetch results. It owns all entry state: callers
// read through Entry, Fetch and Subscribe and change state only through
// Prefetch, Invalidate and Hydrate.
//
// At most one request per key is in flight. Every request carries a generation
// number and only the newest generation may write the entry.
type Client[T any] struct {
	fetch Fetcher[T]
	opts  options

	mu      sync.Mutex
	records map[Key]*record[T]
	nextSub uint64
}

type record[T any] struct {
	entry    Entry[T]
	fresh    bool // false once invalidated or hydrated from an error
	freshAt  int64
	gen      uint64
	inflight *flight
	subs     map[uint64]chan Entry[T]
}

type flight struct {
	gen        uint64
	superseded bool
	done       chan struct{}
}

// New creates a client that loads missing or stale keys with fetch.
func New[T any](fetch Fetcher[T], opts ...Option) *Client[T] {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Client[T]{
		fetch:   fetch,
		opts:    o,
		records: make(map[Key]*record[T]),
	}
}

// Prefetch makes sure key holds a fresh result, fetching if needed, and waits
// for the request to settle. Fetch failures are stored in the entry and never
// returned, so a failed prefetch does not fail the caller.
func (c *Client[T]) Prefetch(ctx context.Context, key Key) {
	c.mu.Lock()
	rec := c.recordLocked(key)
	if !c.staleLocked(rec) {
		c.mu.Unlock()
		return
	}
	c.startLocked(ctx, key, rec)
	c.mu.Unlock()

	c.await(ctx, key)
}

// Fetch returns fresh data for key, fetching and waiting when the entry is
// missing or stale.
func (c *Client[T]) Fetch(ctx context.Context, key Key) (T, error) {
	c.Prefetch(ctx, key)

	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	entry, _ := c.Entry(key)
	if entry.Status == StatusError {
		return zero, entry.Err
	}
	return entry.Data, nil
}

// Entry returns the current snapshot for key.
func (c *Client[T]) Entry(key Key) (Entry[T], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.records[key]
	if !ok {
		return Entry[T]{Key: key, Status: StatusPending}, false
	}
	return c.snapshotLocked(rec), true
}

// Keys lists every key the client holds.
func (c *Client[T]) Keys() []Key {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]Key, 0, len(c.records))
	for key := range c.records {
		keys = append(keys, key)
	}
	return keys
}

// Subscribe returns a sequence of snapshots for key. Nothing happens until the
// sequence is ranged over; each range registers a new subscriber, yields the
// current snapshot, starts a background fetch when the entry is missing or
// stale and then yields every change until ctx is done or the loop breaks.
//
// A subscriber that leaves while a fetch is in flight does not cancel it: the
// result is still cached for other readers.
func (c *Client[T]) Subscribe(ctx context.Context, key Key) iter.Seq[Entry[T]] {
	return func(yield func(Entry[T]) bool) {
		id, updates, current := c.attach(ctx, key)
		defer c.detach(key, id)

		if !yield(current) {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case entry := <-updates:
				if !yield(entry) {
					return
				}
			}
		}
	}
}

// Invalidate marks every entry matched by pred stale. Entries with active
// subscribers refetch right away; a refetch is issued only after the request
// already in flight for that key resolves, and the older response is dropped.
// It returns the number of matched entries.
func (c *Client[T]) Invalidate(ctx context.Context, pred Predicate) int {
	if ctx == nil {
		ctx = c.opts.baseCtx
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	matched := 0
	for key, rec := range c.records {
		if !pred(key) {
			continue
		}
		matched++
		rec.fresh = false
		if rec.inflight != nil {
			rec.inflight.superseded = true
		}

		if len(rec.subs) > 0 {
			c.startLocked(ctx, key, rec)
		}
	}

	c.opts.logger.Debug("query invalidated", zap.Int("matched", matched))
	return matched
}

func (c *Client[T]) attach(ctx context.Context, key Key) (uint64, chan Entry[T], Entry[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec := c.recordLocked(key)
	if c.staleLocked(rec) {
		c.startLocked(ctx, key, rec)
	}

	c.nextSub++
	id := c.nextSub
	updates := make(chan Entry[T], 1)
	rec.subs[id] = updates

	return id, updates, c.snapshotLocked(rec)
}

func (c *Client[T]) detach(key Key, id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if rec, ok := c.records[key]; ok {
		delete(rec.subs, id)
	}
}

func (c *Client[T]) recordLocked(key Key) *record[T] {
	rec, ok := c.records[key]
	if !ok {
		rec = &record[T]{
			entry: Entry[T]{Key: key, Status: StatusPending},
			subs:  make(map[uint64]chan Entry[T]),
		}
		c.records[key] = rec
	}
	return rec
}

func (c *Client[T]) staleLocked(rec *record[T]) bool {
	if rec.entry.Status != StatusSuccess || !rec.fresh {
		return true
	}
	age := c.opts.now().UnixNano() - rec.freshAt
	return age > int64(c.opts.staleTime)
}

// startLocked joins the current request for key or issues a new one.
func (c *Client[T]) startLocked(ctx context.Context, key Key, rec *record[T]) *flight {
	if f := rec.inflight; f != nil && !f.superseded {
		return f
	}

	prev := rec.inflight
	rec.gen++
	f := &flight{gen: rec.gen, done: make(chan struct{})}
	rec.inflight = f
	rec.entry.Fetching = true
	c.notifyLocked(rec)

	c.opts.logger.Debug("query fetch started",
		zap.Stringer("key", key),
		zap.Uint64("generation", f.gen),
		zap.Bool("queued", prev != nil),
	)

	fetchCtx, cancel := c.fetchContext(ctx)
	go func() {
		defer cancel()
		c.run(fetchCtx, key, f, prev)
	}()
	return f
}

// fetchContext carries the values of ctx and is cancelled only with the base
// context.
func (c *Client[T]) fetchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	base := c.opts.baseCtx
	fetchCtx, cancel := context.WithCancelCause(context.WithoutCancel(ctx))
	if base.Err() != nil {
		cancel(context.Cause(base))
		return fetchCtx, func() {}
	}
	stop := context.AfterFunc(base, func() { cancel(context.Cause(base)) })
	return fetchCtx, func() {
		stop()
		cancel(nil)
	}
}

func (c *Client[T]) run(ctx context.Context, key Key, f *flight, prev *flight) {
	defer close(f.done)

	if prev != nil {
		<-prev.done
	}

	data, err := c.fetch(ctx, key)

	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.records[key]
	if !ok || rec.gen != f.gen {
		c.opts.logger.Debug("query response discarded",
			zap.Stringer("key", key),
			zap.Uint64("generation", f.gen),
		)
		return
	}

	rec.inflight = nil
	rec.entry.Fetching = false
	if err != nil {
		rec.entry.Status = StatusError
		rec.entry.Err = err
		c.opts.logger.Debug("query fetch failed", zap.Stringer("key", key), zap.Error(err))
	} else {
		now := c.opts.now()
		rec.entry.Status = StatusSuccess
		rec.entry.Data = data
		rec.entry.Err = nil
		rec.entry.UpdatedAt = now
		// an invalidation that arrived mid-request leaves the result stale
		rec.fresh = !f.superseded
		rec.freshAt = now.UnixNano()
	}
	c.notifyLocked(rec)
}

// await blocks until key has no request in flight or ctx is done. A request
// superseded by a newer one hands over to it.
func (c *Client[T]) await(ctx context.Context, key Key) {
	for {
		c.mu.Lock()
		var f *flight
		if rec, ok := c.records[key]; ok {
			f = rec.inflight
		}
		c.mu.Unlock()

		if f == nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-f.done:
		}
	}
}

func (c *Client[T]) snapshotLocked(rec *record[T]) Entry[T] {
	entry := rec.entry
	entry.Stale = entry.Status == StatusSuccess && c.staleLocked(rec)
	return entry
}

// notifyLocked hands the latest snapshot to every subscriber, replacing any
// snapshot a slow subscriber has not picked up yet.
func (c *Client[T]) notifyLocked(rec *record[T]) {
	if len(rec.subs) == 0 {
		return
	}
	entry := c.snapshotLocked(rec)
	for _, ch := range rec.subs {
		select {
		case ch <- entry:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- entry:
			default:
			}
		}
	}
}

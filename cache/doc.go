// Package cache provides the read-through cache contract used by the NoteHub
// backend and the key serializer shared by the backend cache and the client
// query cache.
//
// # Overview
//
//   - CacheService: read-through GetOrFetch plus key and prefix invalidation.
//   - KeySerializer: builds "::" separated keys from a namespace and arguments.
//
// The default CacheService is backed by sturdyc (see internal/cacheinfra), which
// deduplicates concurrent misses for the same key, so a burst of identical list
// requests reaches the database once.
//
// # Keys
//
// Keys start with the method or namespace name so callers can invalidate a whole
// family by prefix:
//
//	serializer := cache.NewDefaultKeySerializer()
//	serializer.SerializeKey("notes", 1, "", "Work")          // notes::1::""::"Work"
//	serializer.SerializeKey("List", note.Filter{Page: 2})     // List::struct:{Page:2,...}
//
// Function and channel arguments are keyed by pointer and are only stable within a
// single process. Do not pass them when keys must survive a restart.
//
// # Usage
//
//	svc, err := cache.NewCacheService(cache.DefaultConfig())
//	page, err := cache.GetOrFetch(ctx, svc, key, func(ctx context.Context) (note.Page, error) {
//		return store.List(ctx, filter)
//	})
//
// GetOrFetch returns ErrInvalidResultType when a key holds a value of another type,
// which only happens when two callers share a key for different result types.
package cache

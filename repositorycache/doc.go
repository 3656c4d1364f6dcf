// Package repositorycache adds a read-through cache in front of a
// go-repository-bun repository.
//
// CachedRepository embeds the base repository, so every method it does not
// override is served directly. The overridden reads (Get, GetByID,
// GetByIdentifier, List, Count) go through a cache.CacheService; the
// overridden writes drop the keys they can affect once the base call
// succeeds.
//
// # Keys
//
// Keys are built by the cache.KeySerializer as
//
//	<namespace>::<operation>::<arguments>::<query key>
//
// Select criteria are closures, so two List calls with different filters
// look the same to the serializer. A read that passes criteria is therefore
// only cached when the caller describes it with WithQueryKey:
//
//	ctx = repositorycache.WithQueryKey(ctx, filter)
//	records, total, err := repo.List(ctx, byTag(filter.Tag))
//
// Reads without criteria (GetByID by plain id, for example) are cached as is.
//
// # Invalidation
//
// Every key handed to the cache is tracked in a registry. Inserts drop all
// List, Count and Get keys. Updates and single deletes additionally drop the
// GetByID keys of the touched records, resolved through the model handlers,
// plus every GetByIdentifier key. Criteria based deletes drop every key.
//
// Transactional reads bypass the cache.
package repositorycache

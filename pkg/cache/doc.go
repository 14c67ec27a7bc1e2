// Package cache provides a Redis-backed page cache for the pairs endpoint.
//
// Pages are keyed by endpoint, user, page size and cursor, so a cached page
// is only ever served for the exact request that produced it. Entries
// expire according to the response's Cache-Control max-age or Expires
// header, falling back to a configured TTL.
//
// # Basic Usage
//
//	manager := cache.NewManager(redisClient)
//
//	key := cache.CacheKey{
//		Endpoint: "/pairs",
//		UserID:   "default",
//		Limit:    50,
//		Cursor:   cursor,
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from the endpoint, then
//		entry, err = cache.ResponseToEntry(resp, 5*time.Minute)
//		_ = manager.Set(ctx, key, entry)
//	}
//
// # Metrics
//
//   - pairs_cache_hits_total{layer="redis"} - Cache hits
//   - pairs_cache_misses_total - Cache misses
//   - pairs_cache_size_bytes{layer="redis"} - Bytes written to the cache
//   - pairs_cache_errors_total{operation} - Cache operation errors
package cache

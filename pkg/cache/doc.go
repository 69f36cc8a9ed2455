// Package cache provides a two-layer cache for Flickr search responses.
//
// Search results for a given text/page/per_page combination are stable for
// minutes, and an infinitely scrolling grid re-requests the same pages when a
// user clears and retypes a query. The manager keeps recent bodies in an
// in-process LRU and, when a Redis client is supplied, in Redis so several
// processes share them.
//
// # Basic Usage
//
//	manager, err := cache.NewManager(redisClient, cache.DefaultConfig())
//	if err != nil {
//		return err
//	}
//
//	key := cache.KeyFromURL(req.URL)
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from Flickr, then:
//		entry, _ = cache.ResponseToEntry(resp, manager.TTL())
//		_ = manager.Set(ctx, key, entry)
//	}
//
// Keys never contain the API key, so cached bodies can be shared safely.
//
// # Metrics
//
//   - flickr_cache_hits_total{layer="memory|redis"} - Cache hits
//   - flickr_cache_misses_total - Cache misses
//   - flickr_cache_errors_total{operation} - Cache operation errors
package cache

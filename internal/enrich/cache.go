// Package enrich resolves raw session references into display-safe session
// info, fronted by a bounded LRU cache with in-flight de-duplication.
package enrich

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/F1Justin/Chat-Message-Danmaku-System/internal/domain"
	"github.com/F1Justin/Chat-Message-Danmaku-System/internal/metrics"
)

const (
	// DefaultCacheSize bounds the positive cache; sessions beyond this are
	// evicted least-recently-used.
	DefaultCacheSize = 1024

	// Negative entries (unknown sessions) are kept in a smaller cache with
	// a shorter TTL so a session created later is picked up quickly.
	negativeCacheSize = 256
	negativeTTL       = 30 * time.Second
)

// Cache is the enrichment cache: Resolve returns cached session info or
// falls through to the resolver, collapsing concurrent misses for the same
// key into a single lookup.
type Cache struct {
	resolver domain.SessionResolver
	entries  *expirable.LRU[int64, domain.SessionInfo]
	negative *expirable.LRU[int64, struct{}]
	inflight singleflight.Group
}

// New builds a Cache over resolver. size bounds the positive cache; ttl of
// zero keeps positive entries until LRU eviction or an explicit Clear.
func New(resolver domain.SessionResolver, size int, ttl time.Duration) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	return &Cache{
		resolver: resolver,
		entries:  expirable.NewLRU[int64, domain.SessionInfo](size, nil, ttl),
		negative: expirable.NewLRU[int64, struct{}](negativeCacheSize, nil, negativeTTL),
	}
}

// Resolve returns the session info for sessionRef. Cache hits return
// immediately. Misses invoke the resolver at most once per key at a time;
// permanent failures are cached negatively, transient failures are not
// cached and surface to the caller.
func (c *Cache) Resolve(ctx context.Context, sessionRef int64) (domain.SessionInfo, error) {
	if info, ok := c.entries.Get(sessionRef); ok {
		metrics.EnrichCacheHits.Inc()
		return info, nil
	}
	if _, ok := c.negative.Get(sessionRef); ok {
		metrics.EnrichNegativeHits.Inc()
		return domain.SessionInfo{}, domain.ErrSessionNotFound
	}

	metrics.EnrichCacheMisses.Inc()

	key := strconv.FormatInt(sessionRef, 10)
	v, err, shared := c.inflight.Do(key, func() (any, error) {
		info, err := c.resolver.ResolveSession(ctx, sessionRef)
		if err != nil {
			if domain.IsPermanentLookupError(err) {
				c.negative.Add(sessionRef, struct{}{})
			}
			return domain.SessionInfo{}, err
		}
		c.entries.Add(sessionRef, info)
		return info, nil
	})
	if shared {
		metrics.EnrichLookupsCollapsed.Inc()
	}
	if err != nil {
		return domain.SessionInfo{}, err
	}
	return v.(domain.SessionInfo), nil
}

// Store primes the cache with an already-resolved session, e.g. from the
// group listing query.
func (c *Cache) Store(info domain.SessionInfo) {
	c.negative.Remove(info.SessionRef)
	c.entries.Add(info.SessionRef, info)
}

// Len returns the number of live positive entries.
func (c *Cache) Len() int {
	return c.entries.Len()
}

// Clear drops every entry, positive and negative.
func (c *Cache) Clear() {
	c.entries.Purge()
	c.negative.Purge()
	slog.Info("enrichment cache cleared")
}

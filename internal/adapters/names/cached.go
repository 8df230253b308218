package names

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/okian/tally/pkg/metrics"
)

// CachedResolver keeps successful lookups of another resolver in an
// expiring LRU. Failures are not cached.
type CachedResolver struct {
	next Resolver
	lru  *expirable.LRU[string, string]
}

// NewCachedResolver caches up to size names for ttl in front of next.
func NewCachedResolver(next Resolver, size int, ttl time.Duration) *CachedResolver {
	return &CachedResolver{
		next: next,
		lru:  expirable.NewLRU[string, string](size, nil, ttl),
	}
}

// DisplayName implements Resolver.
func (c *CachedResolver) DisplayName(ctx context.Context, userID string) (string, error) {
	if name, ok := c.lru.Get(userID); ok {
		metrics.RecordNameLookup(metrics.LookupCached)
		return name, nil
	}
	name, err := c.next.DisplayName(ctx, userID)
	if err != nil {
		return "", err
	}
	metrics.RecordNameLookup(metrics.LookupFetched)
	c.lru.Add(userID, name)
	return name, nil
}

// Invalidate drops a cached name.
func (c *CachedResolver) Invalidate(userID string) {
	c.lru.Remove(userID)
}

// Len returns the number of cached names.
func (c *CachedResolver) Len() int {
	return c.lru.Len()
}

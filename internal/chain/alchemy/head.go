package alchemy

import (
	"context"
	"time"

	"github.com/kslji/trackUserAddress/internal/cache"
	"github.com/kslji/trackUserAddress/internal/chain"
	"github.com/kslji/trackUserAddress/internal/metrics"
)

const headCacheKey = "head"

// CachedHead serves the chain head from a short-lived cache. Requests for
// "latest" within one ttl share a single eth_blockNumber result.
type CachedHead struct {
	source chain.HeadSource
	cache  *cache.LRU[string, int64]
}

// NewCachedHead wraps source. A non-positive ttl disables caching.
func NewCachedHead(source chain.HeadSource, ttl time.Duration) chain.HeadSource {
	if ttl <= 0 {
		return source
	}
	return &CachedHead{
		source: source,
		cache:  cache.NewLRU[string, int64](1, ttl),
	}
}

func (h *CachedHead) GetHeadBlock(ctx context.Context) (int64, error) {
	if head, ok := h.cache.Get(headCacheKey); ok {
		metrics.HeadCacheHits.WithLabelValues("hit").Inc()
		return head, nil
	}
	metrics.HeadCacheHits.WithLabelValues("miss").Inc()

	head, err := h.source.GetHeadBlock(ctx)
	if err != nil {
		return 0, err
	}
	h.cache.Put(headCacheKey, head)
	return head, nil
}

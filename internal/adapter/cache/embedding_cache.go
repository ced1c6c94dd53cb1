package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"triage/internal/domain"
	"triage/internal/metrics"
	"triage/internal/port"
)

// EmbeddingCache is a bounded LRU of vectors with a time-to-live. Keys are
// normalized content hashes, so resubmitting the same ticket text with other
// casing or padding reuses the vector.
type EmbeddingCache struct {
	lru *expirable.LRU[string, []float32]
}

func NewEmbeddingCache(maxSize int, ttl time.Duration) *EmbeddingCache {
	if maxSize <= 0 {
		maxSize = 1024
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &EmbeddingCache{lru: expirable.NewLRU[string, []float32](maxSize, nil, ttl)}
}

func cacheKey(model, text string) string {
	return model + ":" + domain.ContentHash(text)
}

// Get returns a copy of the cached vector, so callers may modify it.
func (c *EmbeddingCache) Get(model, text string) ([]float32, bool) {
	vector, ok := c.lru.Get(cacheKey(model, text))
	if !ok {
		return nil, false
	}
	return cloneVector(vector), true
}

func (c *EmbeddingCache) Put(model, text string, vector []float32) {
	c.lru.Add(cacheKey(model, text), cloneVector(vector))
}

func (c *EmbeddingCache) Invalidate() {
	c.lru.Purge()
}

func (c *EmbeddingCache) Size() int {
	return c.lru.Len()
}

func cloneVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}

// CachedEmbedder serves repeated texts from an EmbeddingCache.
type CachedEmbedder struct {
	embedder port.Embedder
	cache    *EmbeddingCache
	metrics  *metrics.Metrics
}

func NewCachedEmbedder(embedder port.Embedder, cache *EmbeddingCache, m *metrics.Metrics) *CachedEmbedder {
	return &CachedEmbedder{
		embedder: embedder,
		cache:    cache,
		metrics:  m,
	}
}

func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	model := e.embedder.ModelName()
	if vector, hit := e.cache.Get(model, text); hit {
		e.metrics.EmbedCacheLookup(true)
		return vector, nil
	}
	e.metrics.EmbedCacheLookup(false)

	vector, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Put(model, text, vector)
	return vector, nil
}

func (e *CachedEmbedder) Dimension() int {
	return e.embedder.Dimension()
}

func (e *CachedEmbedder) ModelName() string {
	return e.embedder.ModelName()
}

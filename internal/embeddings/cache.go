package embeddings

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"
)

// Cached wraps a provider with a query-side embedding cache. Providers
// are deterministic per input, so caching is transparent. Document
// embedding (bulk indexing) bypasses the cache.
type Cached struct {
	inner Provider
	cache *ristretto.Cache
}

// NewCached wraps the provider with a ristretto cache sized for a few
// thousand query vectors.
func NewCached(inner Provider) (*Cached, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 40_000,              // ~10x expected entries
		MaxCost:     16 * (1 << 20),      // 16MB of vectors
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedding cache: %w", err)
	}
	return &Cached{inner: inner, cache: cache}, nil
}

// EmbedQuery returns the cached vector for text or delegates and caches.
func (c *Cached) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := c.cache.Get(text); ok {
		if vec, ok := cached.([]float32); ok {
			return vec, nil
		}
	}
	vec, err := c.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(text, vec, int64(4*len(vec)))
	return vec, nil
}

// EmbedDocuments delegates to the inner provider.
func (c *Cached) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return c.inner.EmbedDocuments(ctx, texts)
}

// Dimension returns the inner provider's dimensionality.
func (c *Cached) Dimension() int {
	return c.inner.Dimension()
}

// Close releases the cache and the inner provider.
func (c *Cached) Close() error {
	c.cache.Close()
	return c.inner.Close()
}

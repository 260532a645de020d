package providers

import (
	"context"
	"fmt"
	"time"

	"civiccite/internal/util"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CachedEmbedder memoizes embeddings by operation, dimension and canonical
// text. Repeated queries skip the provider round trip.
type CachedEmbedder struct {
	next  EmbeddingProvider
	cache *expirable.LRU[string, []float32]
}

// WrapWithCache returns e unchanged when caching is disabled.
func WrapWithCache(e EmbeddingProvider, size int, ttl time.Duration) EmbeddingProvider {
	if e == nil || size <= 0 || ttl <= 0 {
		return e
	}
	return &CachedEmbedder{
		next:  e,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

func (c *CachedEmbedder) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	out := make([][]float32, len(req.Inputs))
	keys := make([]string, len(req.Inputs))
	var missIdx []int
	var missInputs []string
	for i, in := range req.Inputs {
		keys[i] = cacheKey(req, in)
		if v, ok := c.cache.Get(keys[i]); ok {
			out[i] = cloneEmbedding(v)
			continue
		}
		missIdx = append(missIdx, i)
		missInputs = append(missInputs, in)
	}
	if len(missIdx) == 0 {
		return out, ProviderInfo{Name: "cache"}, nil
	}

	sub := req
	sub.Inputs = missInputs
	vectors, info, err := c.next.Embed(ctx, sub)
	if err != nil {
		return nil, info, err
	}
	if len(vectors) != len(missInputs) {
		return nil, info, fmt.Errorf("embedder returned %d vectors for %d inputs", len(vectors), len(missInputs))
	}
	for j, i := range missIdx {
		out[i] = vectors[j]
		c.cache.Add(keys[i], cloneEmbedding(vectors[j]))
	}
	return out, info, nil
}

func (c *CachedEmbedder) Len() int { return c.cache.Len() }

func cacheKey(req EmbedRequest, input string) string {
	return util.SHA256Hex([]byte(fmt.Sprintf("%s:%d:%s", req.Operation, req.Dimension, util.Canonicalize(input))))
}

func cloneEmbedding(values []float32) []float32 {
	if len(values) == 0 {
		return nil
	}
	clone := make([]float32, len(values))
	copy(clone, values)
	return clone
}

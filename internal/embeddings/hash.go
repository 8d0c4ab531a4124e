package embeddings

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
)

// Hash is a deterministic, offline embedding provider. Vectors are
// pseudo-random unit vectors seeded from an FNV-1a hash of the text, so
// identical texts always embed identically. Useful for tests and for
// running without model downloads; semantically it only captures exact
// text identity, so real deployments want the fastembed provider.
type Hash struct {
	dimension int
}

// NewHash creates a hash provider with the given dimensionality.
func NewHash(dimension int) *Hash {
	if dimension <= 0 {
		dimension = 384
	}
	return &Hash{dimension: dimension}
}

// EmbedQuery generates a deterministic embedding for the text.
func (h *Hash) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return h.embed(text), nil
}

// EmbedDocuments generates deterministic embeddings for each text.
func (h *Hash) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = h.embed(text)
	}
	return out, nil
}

// embed seeds an LCG from the text hash and fills a unit vector.
func (h *Hash) embed(text string) []float32 {
	hasher := fnv.New64a()
	hasher.Write([]byte(text))
	seed := hasher.Sum64()

	vec := make([]float32, h.dimension)
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
	return normalize(vec)
}

// Dimension returns the configured dimensionality.
func (h *Hash) Dimension() int {
	return h.dimension
}

// Close is a no-op.
func (h *Hash) Close() error {
	return nil
}

func normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

package embeddings

import (
	"context"
	"fmt"
)

// Checked enforces the configured dimensionality on every vector a
// provider returns. A mismatching vector is invalid input to the engine,
// never silently truncated or padded.
type Checked struct {
	inner Provider
	want  int
}

// NewChecked wraps a provider with the dimension guard.
func NewChecked(inner Provider, dimension int) *Checked {
	return &Checked{inner: inner, want: dimension}
}

// EmbedQuery delegates and verifies the result dimension.
func (c *Checked) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vec, err := c.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vec) != c.want {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), c.want)
	}
	return vec, nil
}

// EmbedDocuments delegates and verifies every result dimension.
func (c *Checked) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := c.inner.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, err
	}
	for i, vec := range vecs {
		if len(vec) != c.want {
			return nil, fmt.Errorf("%w: document %d got %d, want %d", ErrDimensionMismatch, i, len(vec), c.want)
		}
	}
	return vecs, nil
}

// Dimension returns the enforced dimensionality.
func (c *Checked) Dimension() int {
	return c.want
}

// Close releases the inner provider.
func (c *Checked) Close() error {
	return c.inner.Close()
}

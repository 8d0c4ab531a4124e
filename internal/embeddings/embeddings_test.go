package embeddings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/recalld/internal/config"
)

func TestHashDeterministic(t *testing.T) {
	h := NewHash(384)
	ctx := context.Background()

	a, err := h.EmbedQuery(ctx, "fix login redirect")
	require.NoError(t, err)
	b, err := h.EmbedQuery(ctx, "fix login redirect")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 384)
}

func TestHashUnitNorm(t *testing.T) {
	h := NewHash(64)
	vec, err := h.EmbedQuery(context.Background(), "some text")
	require.NoError(t, err)

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, norm, 1e-4)
}

func TestHashDistinctTexts(t *testing.T) {
	h := NewHash(384)
	ctx := context.Background()

	a, err := h.EmbedQuery(ctx, "alpha")
	require.NoError(t, err)
	b, err := h.EmbedQuery(ctx, "beta")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestHashRejectsEmpty(t *testing.T) {
	h := NewHash(384)
	_, err := h.EmbedQuery(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = h.EmbedDocuments(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestHashEmbedDocuments(t *testing.T) {
	h := NewHash(128)
	vecs, err := h.EmbedDocuments(context.Background(), []string{"one", "two"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)

	single, err := h.EmbedQuery(context.Background(), "one")
	require.NoError(t, err)
	assert.Equal(t, single, vecs[0])
}

func TestCheckedRejectsWrongDimension(t *testing.T) {
	// Provider says 64, engine configured for 384.
	guarded := NewChecked(NewHash(64), 384)

	_, err := guarded.EmbedQuery(context.Background(), "text")
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = guarded.EmbedDocuments(context.Background(), []string{"text"})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestCheckedPassesMatchingDimension(t *testing.T) {
	guarded := NewChecked(NewHash(384), 384)

	vec, err := guarded.EmbedQuery(context.Background(), "text")
	require.NoError(t, err)
	assert.Len(t, vec, 384)
	assert.Equal(t, 384, guarded.Dimension())
}

func TestCachedReturnsSameVector(t *testing.T) {
	cached, err := NewCached(NewHash(384))
	require.NoError(t, err)
	defer cached.Close()
	ctx := context.Background()

	a, err := cached.EmbedQuery(ctx, "query text")
	require.NoError(t, err)
	b, err := cached.EmbedQuery(ctx, "query text")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestNewHashProviderFromConfig(t *testing.T) {
	p, err := New(config.EmbeddingConfig{Provider: "hash", Dimension: 384}, t.TempDir())
	require.NoError(t, err)
	defer p.Close()

	vec, err := p.EmbedQuery(context.Background(), "text")
	require.NoError(t, err)
	assert.Len(t, vec, 384)
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	_, err := New(config.EmbeddingConfig{Provider: "sparkles", Dimension: 384}, t.TempDir())
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

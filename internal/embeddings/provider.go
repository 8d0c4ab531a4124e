// Package embeddings bridges the engine to an embedding provider:
// a deterministic embed(text) -> vector[D] function with a fixed
// dimensionality that must match the configured dimension.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/fyrsmithlabs/recalld/internal/config"
)

// Sentinel errors for embedding operations.
var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrUnavailable indicates the provider could not produce embeddings.
	ErrUnavailable = errors.New("embedding provider unavailable")

	// ErrDimensionMismatch indicates the provider produced a vector whose
	// length does not match the configured dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrInvalidConfig indicates invalid provider configuration.
	ErrInvalidConfig = errors.New("invalid embedding configuration")
)

// Provider generates vector embeddings from text.
type Provider interface {
	// EmbedQuery generates an embedding for a single query string.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// EmbedDocuments generates embeddings for multiple document texts.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the provider's output dimensionality.
	Dimension() int

	// Close releases resources held by the provider.
	Close() error
}

// New builds a provider from configuration. The returned provider is
// wrapped with the dimension guard and, for the fastembed provider, the
// query cache.
func New(cfg config.EmbeddingConfig, dataDir string) (Provider, error) {
	var (
		p   Provider
		err error
	)
	switch cfg.Provider {
	case "hash":
		p = NewHash(cfg.Dimension)
	case "fastembed", "":
		cacheDir := cfg.CacheDir
		if cacheDir == "" {
			cacheDir = filepath.Join(dataDir, "models")
		}
		p, err = NewFastEmbed(FastEmbedConfig{
			Model:    cfg.Model,
			CacheDir: cacheDir,
		})
		if err != nil {
			return nil, err
		}
		p, err = NewCached(p)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}

	return NewChecked(p, cfg.Dimension), nil
}

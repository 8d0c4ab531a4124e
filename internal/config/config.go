// Package config provides configuration loading for recalld.
//
// Configuration is layered, highest precedence first:
//  1. Environment variables (RECALL_RETRIEVAL_DEFAULT_LIMIT, ...)
//  2. TOML config file (<data_dir>/config.toml)
//  3. Hardcoded defaults
package config

import (
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/recalld/internal/logging"
)

// ErrInvalidConfig indicates an out-of-range or malformed setting.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the complete recalld configuration.
type Config struct {
	Retrieval RetrievalConfig `koanf:"retrieval" toml:"retrieval"`
	Utility   UtilityConfig   `koanf:"utility" toml:"utility"`
	Prune     PruneConfig     `koanf:"prune" toml:"prune"`
	Embedding EmbeddingConfig `koanf:"embedding" toml:"embedding"`
	Logging   logging.Config  `koanf:"logging" toml:"logging"`
}

// RetrievalConfig tunes the ranking pipeline.
type RetrievalConfig struct {
	// DefaultLimit is the default k for retrieve.
	DefaultLimit int `koanf:"default_limit" toml:"default_limit"`

	// MinSimilarity drops candidates below this similarity before ranking.
	MinSimilarity float64 `koanf:"min_similarity" toml:"min_similarity"`

	// UtilityWeight is (1 - alpha) in score = alpha*sim + (1-alpha)*utility.
	// A zero value is replaced by the default 0.7; pure-similarity ranking
	// is selected per call through retrieval.Options.UtilityWeight.
	UtilityWeight float64 `koanf:"utility_weight" toml:"utility_weight"`

	// MMRLambda balances relevance against diversity when re-ranking the
	// final result list. 1.0 disables MMR.
	MMRLambda float64 `koanf:"mmr_lambda" toml:"mmr_lambda"`
}

// UtilityConfig tunes the learning loop.
type UtilityConfig struct {
	// DecayRate is the exponential decay rate per day of inactivity.
	DecayRate float64 `koanf:"decay_rate" toml:"decay_rate"`

	// DiscountFactor is gamma in propagation and temporal credit.
	DiscountFactor float64 `koanf:"discount_factor" toml:"discount_factor"`

	// LearningRate is alpha in propagation and temporal credit.
	LearningRate float64 `koanf:"learning_rate" toml:"learning_rate"`

	// PropagationThreshold is the minimum similarity for a neighbor to
	// receive propagated value.
	PropagationThreshold float64 `koanf:"propagation_threshold" toml:"propagation_threshold"`

	// SeedThreshold is the minimum score for an episode to act as a
	// propagation seed.
	SeedThreshold float64 `koanf:"seed_threshold" toml:"seed_threshold"`

	// Fanout is the maximum number of neighbors considered per seed.
	Fanout int `koanf:"fanout" toml:"fanout"`
}

// PruneConfig sets the default deletion policy.
type PruneConfig struct {
	MaxAgeDays          int     `koanf:"max_age_days" toml:"max_age_days"`
	MinUtilityThreshold float64 `koanf:"min_utility_threshold" toml:"min_utility_threshold"`
}

// EmbeddingConfig selects and constrains the embedding provider.
type EmbeddingConfig struct {
	// Provider is "fastembed" (local ONNX models) or "hash"
	// (deterministic, offline).
	Provider string `koanf:"provider" toml:"provider"`

	// Model is the embedding model name (fastembed provider only).
	Model string `koanf:"model" toml:"model"`

	// Dimension must match the provider's output dimensionality.
	Dimension int `koanf:"dimension" toml:"dimension"`

	// CacheDir overrides the model download cache. Defaults to
	// <data_dir>/models.
	CacheDir string `koanf:"cache_dir" toml:"cache_dir,omitempty"`
}

// Default returns the configuration with all defaults applied.
func Default() Config {
	var cfg Config
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Retrieval.DefaultLimit == 0 {
		c.Retrieval.DefaultLimit = 3
	}
	if c.Retrieval.MinSimilarity == 0 {
		c.Retrieval.MinSimilarity = 0.5
	}
	if c.Retrieval.UtilityWeight == 0 {
		c.Retrieval.UtilityWeight = 0.7
	}
	if c.Retrieval.MMRLambda == 0 {
		c.Retrieval.MMRLambda = 0.7
	}
	if c.Utility.DecayRate == 0 {
		c.Utility.DecayRate = 0.01
	}
	if c.Utility.DiscountFactor == 0 {
		c.Utility.DiscountFactor = 0.9
	}
	if c.Utility.LearningRate == 0 {
		c.Utility.LearningRate = 0.1
	}
	if c.Utility.PropagationThreshold == 0 {
		c.Utility.PropagationThreshold = 0.5
	}
	if c.Utility.SeedThreshold == 0 {
		c.Utility.SeedThreshold = 0.6
	}
	if c.Utility.Fanout == 0 {
		c.Utility.Fanout = 10
	}
	if c.Prune.MaxAgeDays == 0 {
		c.Prune.MaxAgeDays = 180
	}
	if c.Prune.MinUtilityThreshold == 0 {
		c.Prune.MinUtilityThreshold = 0.05
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "fastembed"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "BAAI/bge-small-en-v1.5"
	}
	if c.Embedding.Dimension == 0 {
		c.Embedding.Dimension = 384
	}
	c.Logging.ApplyDefaults()
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Retrieval.DefaultLimit < 1 {
		return fmt.Errorf("%w: retrieval.default_limit must be >= 1", ErrInvalidConfig)
	}
	if c.Retrieval.MinSimilarity < 0 || c.Retrieval.MinSimilarity > 1 {
		return fmt.Errorf("%w: retrieval.min_similarity must be in [0,1]", ErrInvalidConfig)
	}
	if c.Retrieval.UtilityWeight < 0 || c.Retrieval.UtilityWeight > 1 {
		return fmt.Errorf("%w: retrieval.utility_weight must be in [0,1]", ErrInvalidConfig)
	}
	if c.Retrieval.MMRLambda <= 0 || c.Retrieval.MMRLambda > 1 {
		return fmt.Errorf("%w: retrieval.mmr_lambda must be in (0,1]", ErrInvalidConfig)
	}
	if c.Utility.DecayRate < 0 {
		return fmt.Errorf("%w: utility.decay_rate must be >= 0", ErrInvalidConfig)
	}
	if c.Utility.DiscountFactor <= 0 || c.Utility.DiscountFactor > 1 {
		return fmt.Errorf("%w: utility.discount_factor must be in (0,1]", ErrInvalidConfig)
	}
	if c.Utility.LearningRate <= 0 || c.Utility.LearningRate > 1 {
		return fmt.Errorf("%w: utility.learning_rate must be in (0,1]", ErrInvalidConfig)
	}
	if c.Utility.PropagationThreshold < 0 || c.Utility.PropagationThreshold > 1 {
		return fmt.Errorf("%w: utility.propagation_threshold must be in [0,1]", ErrInvalidConfig)
	}
	if c.Utility.SeedThreshold < 0 || c.Utility.SeedThreshold > 1 {
		return fmt.Errorf("%w: utility.seed_threshold must be in [0,1]", ErrInvalidConfig)
	}
	if c.Utility.Fanout < 1 {
		return fmt.Errorf("%w: utility.fanout must be >= 1", ErrInvalidConfig)
	}
	if c.Prune.MaxAgeDays < 1 {
		return fmt.Errorf("%w: prune.max_age_days must be >= 1", ErrInvalidConfig)
	}
	if c.Prune.MinUtilityThreshold < 0 || c.Prune.MinUtilityThreshold > 1 {
		return fmt.Errorf("%w: prune.min_utility_threshold must be in [0,1]", ErrInvalidConfig)
	}
	switch c.Embedding.Provider {
	case "fastembed", "hash":
	default:
		return fmt.Errorf("%w: embedding.provider must be fastembed or hash", ErrInvalidConfig)
	}
	if c.Embedding.Dimension < 1 {
		return fmt.Errorf("%w: embedding.dimension must be >= 1", ErrInvalidConfig)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

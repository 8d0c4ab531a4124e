package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 3, cfg.Retrieval.DefaultLimit)
	assert.Equal(t, 0.5, cfg.Retrieval.MinSimilarity)
	assert.Equal(t, 0.7, cfg.Retrieval.UtilityWeight)
	assert.Equal(t, 0.01, cfg.Utility.DecayRate)
	assert.Equal(t, 0.9, cfg.Utility.DiscountFactor)
	assert.Equal(t, 0.1, cfg.Utility.LearningRate)
	assert.Equal(t, 0.5, cfg.Utility.PropagationThreshold)
	assert.Equal(t, 0.6, cfg.Utility.SeedThreshold)
	assert.Equal(t, 10, cfg.Utility.Fanout)
	assert.Equal(t, 180, cfg.Prune.MaxAgeDays)
	assert.Equal(t, 0.05, cfg.Prune.MinUtilityThreshold)
	assert.Equal(t, 384, cfg.Embedding.Dimension)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	content := `
[retrieval]
default_limit = 5
utility_weight = 0.3

[utility]
decay_rate = 0.02

[embedding]
provider = "hash"
dimension = 64
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o600))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Retrieval.DefaultLimit)
	assert.Equal(t, 0.3, cfg.Retrieval.UtilityWeight)
	assert.Equal(t, 0.02, cfg.Utility.DecayRate)
	assert.Equal(t, "hash", cfg.Embedding.Provider)
	assert.Equal(t, 64, cfg.Embedding.Dimension)
	// Untouched sections keep defaults.
	assert.Equal(t, 0.5, cfg.Retrieval.MinSimilarity)
	assert.Equal(t, 180, cfg.Prune.MaxAgeDays)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	content := "[retrieval]\ndefault_limit = 5\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o600))

	t.Setenv("RECALL_RETRIEVAL_DEFAULT_LIMIT", "7")
	t.Setenv("RECALL_EMBEDDING_PROVIDER", "hash")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Retrieval.DefaultLimit)
	assert.Equal(t, "hash", cfg.Embedding.Provider)
}

func TestLoadRejectsBadToml(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("not = [valid"), 0o600))

	_, err := Load(dir)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidateRanges(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative decay", func(c *Config) { c.Utility.DecayRate = -1 }},
		{"utility weight above one", func(c *Config) { c.Retrieval.UtilityWeight = 1.2 }},
		{"negative discount", func(c *Config) { c.Utility.DiscountFactor = -0.1 }},
		{"bad provider", func(c *Config) { c.Embedding.Provider = "sparkles" }},
		{"negative dimension", func(c *Config) { c.Embedding.Dimension = -4 }},
		{"negative fanout", func(c *Config) { c.Utility.Fanout = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestWriteDefaultIdempotent(t *testing.T) {
	dir := t.TempDir()

	path, err := WriteDefault(dir)
	require.NoError(t, err)
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	// Second call must not clobber user edits.
	require.NoError(t, os.WriteFile(path, append(first, []byte("\n# edited\n")...), 0o600))
	_, err = WriteDefault(dir)
	require.NoError(t, err)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(after), "# edited")

	// The generated file must round-trip through Load.
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

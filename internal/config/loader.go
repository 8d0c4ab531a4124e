package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	koanftoml "github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	// FileName is the config file name inside the data directory.
	FileName = "config.toml"

	// envPrefix namespaces recalld environment variables.
	envPrefix = "RECALL_"

	maxConfigFileSize = 1 << 20 // 1MB
)

// Load reads configuration for the given data directory.
//
// The TOML file at <dataDir>/config.toml is optional; missing file means
// defaults. Environment variables override file values:
//
//	RECALL_RETRIEVAL_DEFAULT_LIMIT -> retrieval.default_limit
//	RECALL_UTILITY_DECAY_RATE     -> utility.decay_rate
//	RECALL_EMBEDDING_PROVIDER     -> embedding.provider
func Load(dataDir string) (Config, error) {
	return LoadFile(filepath.Join(dataDir, FileName))
}

// LoadFile loads configuration from an explicit file path plus the
// environment layer.
func LoadFile(path string) (Config, error) {
	var cfg Config
	k := koanf.New(".")

	if info, err := os.Stat(path); err == nil {
		if info.Size() > maxConfigFileSize {
			return cfg, fmt.Errorf("%w: config file %s exceeds %d bytes", ErrInvalidConfig, path, maxConfigFileSize)
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), koanftoml.Parser()); err != nil {
			return cfg, fmt.Errorf("%w: parsing %s: %v", ErrInvalidConfig, path, err)
		}
	}

	// Environment overrides. RECALL_RETRIEVAL_DEFAULT_LIMIT splits into
	// section "retrieval" and field "default_limit" on the first
	// underscore after the prefix.
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return cfg, fmt.Errorf("loading environment variables: %w", err)
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, fmt.Errorf("%w: unmarshaling config: %v", ErrInvalidConfig, err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// WriteDefault writes the default configuration file if none exists.
// Returns the file path. Existing files are left untouched, which keeps
// init idempotent.
func WriteDefault(dataDir string) (string, error) {
	path := filepath.Join(dataDir, FileName)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	cfg := Default()
	var b strings.Builder
	b.WriteString("# recalld configuration. Values here are overridden by RECALL_* env vars.\n")
	enc := toml.NewEncoder(&b)
	enc.Indent = ""
	if err := enc.Encode(cfg); err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}

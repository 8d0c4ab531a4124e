// Package engine is the single entry surface of the episodic memory
// core. Every facade call is independently valid, performs its own
// locking, and returns taxonomy errors; adapters need no coordination
// beyond calling it.
package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/config"
	"github.com/fyrsmithlabs/recalld/internal/embeddings"
	"github.com/fyrsmithlabs/recalld/internal/index"
	"github.com/fyrsmithlabs/recalld/internal/logging"
	"github.com/fyrsmithlabs/recalld/internal/retrieval"
	"github.com/fyrsmithlabs/recalld/internal/store"
	"github.com/fyrsmithlabs/recalld/internal/utility"
	"github.com/fyrsmithlabs/recalld/internal/vectorstore"
)

// Engine is the core API facade.
type Engine struct {
	dataDir string
	cfg     config.Config
	logger  *zap.Logger

	store     *store.Store
	journal   *store.Journal
	provider  embeddings.Provider
	vecidx    vectorstore.Index
	indexer   *index.Indexer
	retriever *retrieval.Retriever
	utility   *utility.Engine
	watcher   *index.Watcher
}

// Option configures Open.
type Option func(*options)

type options struct {
	logger   *zap.Logger
	provider embeddings.Provider
	watch    bool
}

// WithLogger overrides the config-built logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithProvider injects an embedding provider, bypassing config-driven
// construction. The dimension guard still applies.
func WithProvider(p embeddings.Provider) Option {
	return func(o *options) { o.provider = p }
}

// WithWatcher starts the episodes-directory watcher that picks up
// records written by external tooling.
func WithWatcher() Option {
	return func(o *options) { o.watch = true }
}

// Init creates the on-disk layout and default configuration under
// dataDir. Idempotent: an initialized directory is left untouched.
func Init(dataDir string) error {
	for _, dir := range []string{
		dataDir,
		filepath.Join(dataDir, "episodes"),
		filepath.Join(dataDir, "vectors"),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: creating %s: %v", ErrStoreIO, dir, err)
		}
	}
	if _, err := config.WriteDefault(dataDir); err != nil {
		return translate(err)
	}
	return nil
}

// Open loads the engine for an initialized data directory. A missing or
// invalid directory is ErrNotInitialized.
func Open(dataDir string, opts ...Option) (*Engine, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if info, err := os.Stat(filepath.Join(dataDir, "episodes")); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s (run init first)", ErrNotInitialized, dataDir)
	}

	cfg, err := config.Load(dataDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	logger := o.logger
	if logger == nil {
		logger, err = logging.New(cfg.Logging)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}

	st, err := store.Open(dataDir, logger.Named("store"))
	if err != nil {
		return nil, translate(err)
	}
	journal := store.OpenJournal(dataDir)

	en := &Engine{
		dataDir: dataDir,
		cfg:     cfg,
		logger:  logger,
		store:   st,
		journal: journal,
	}

	// The embedding provider and vector index are optional at open: a
	// provider that cannot start (model missing, ONNX runtime absent)
	// degrades the engine to lexical retrieval, and captures are marked
	// needs_indexing until a reindex under a working provider.
	provider := o.provider
	if provider == nil {
		provider, err = embeddings.New(cfg.Embedding, dataDir)
		if err != nil {
			logger.Warn("embedding provider unavailable, running lexical-only", zap.Error(err))
			provider = nil
		}
	} else {
		provider = embeddings.NewChecked(provider, cfg.Embedding.Dimension)
	}
	en.provider = provider

	if provider != nil {
		vecidx, err := vectorstore.NewChromemIndex(vectorstore.ChromemConfig{
			Path: filepath.Join(dataDir, "vectors"),
		}, provider, logger.Named("vectorstore"))
		if err != nil {
			logger.Warn("vector index unavailable, running lexical-only", zap.Error(err))
		} else {
			en.vecidx = vecidx
		}
	}

	en.indexer = index.New(st, en.vecidx, logger.Named("indexer"))
	en.utility = utility.New(st, en.vecidx, en.indexer, journal, cfg.Utility, logger.Named("utility"))
	en.retriever = retrieval.New(st, en.vecidx, en.utility, journal, cfg.Retrieval, logger.Named("retrieval"))

	if o.watch {
		en.watcher = index.NewWatcher(en.indexer, dataDir, logger.Named("watcher"))
		if err := en.watcher.Start(context.Background()); err != nil {
			logger.Warn("starting episode watcher", zap.Error(err))
			en.watcher = nil
		}
	}

	return en, nil
}

// Close stops background work and releases the provider and index.
func (en *Engine) Close() error {
	if en.watcher != nil {
		en.watcher.Stop()
	}
	if en.vecidx != nil {
		if err := en.vecidx.Close(); err != nil {
			return translate(err)
		}
	}
	if en.provider != nil {
		if err := en.provider.Close(); err != nil {
			return translate(err)
		}
	}
	_ = en.logger.Sync() // stderr sync errors are noise
	return nil
}

// Config returns the loaded configuration.
func (en *Engine) Config() config.Config {
	return en.cfg
}

package utility

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/config"
	"github.com/fyrsmithlabs/recalld/internal/index"
	"github.com/fyrsmithlabs/recalld/internal/store"
	"github.com/fyrsmithlabs/recalld/internal/vectorstore"
)

// Sentinel errors for utility operations.
var (
	// ErrUnknownKind indicates an unrecognized feedback kind.
	ErrUnknownKind = errors.New("unknown feedback kind")

	// ErrPruneIncomplete indicates a prune run stopped part way. The
	// store is consistent; a subsequent run continues.
	ErrPruneIncomplete = errors.New("prune incomplete")
)

// Engine applies utility updates against the content store and mirrors
// scores into the vector index.
type Engine struct {
	store   *store.Store
	vecidx  vectorstore.Index
	indexer *index.Indexer
	journal *store.Journal
	params  config.UtilityConfig
	logger  *zap.Logger

	// now is swappable for tests.
	now func() time.Time
}

// New creates a utility engine.
func New(s *store.Store, vecidx vectorstore.Index, ix *index.Indexer, journal *store.Journal, params config.UtilityConfig, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:   s,
		vecidx:  vecidx,
		indexer: ix,
		journal: journal,
		params:  params,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// mirrorScore pushes a new score into the vector index. Failures are
// logged, never surfaced: the mirror is reconciled by reindex.
func (en *Engine) mirrorScore(ctx context.Context, id string, score float64) {
	if en.indexer == nil {
		return
	}
	if err := en.indexer.MirrorUtility(ctx, id, score); err != nil {
		en.logger.Warn("mirroring utility score",
			zap.String("id", id), zap.Error(err))
	}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

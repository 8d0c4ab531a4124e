// Package index projects episodes into the vector index and reconciles
// the two stores.
//
// Consistency policy: the content-store record is always written before
// the vector projection. A failed vector write leaves the episode
// retrievable (lexical fallback) and marked needs_indexing; index_all
// reconciles it later. Deletes remove the vector entry first; the orphan
// sweep removes projections whose content record is gone.
package index

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/episode"
	"github.com/fyrsmithlabs/recalld/internal/store"
	"github.com/fyrsmithlabs/recalld/internal/vectorstore"
)

// Indexer writes episode projections and reconciles content and vector
// stores.
type Indexer struct {
	store  *store.Store
	index  vectorstore.Index
	logger *zap.Logger
}

// New creates an indexer.
func New(s *store.Store, idx vectorstore.Index, logger *zap.Logger) *Indexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Indexer{store: s, index: idx, logger: logger}
}

// Available reports whether a vector index is wired in. Without one the
// engine runs lexical-only: Index and IndexAll return ErrIndex, while
// SweepOrphans and MirrorUtility do nothing.
func (ix *Indexer) Available() bool {
	return ix.index != nil
}

// Index writes the projection for one episode and clears its
// needs_indexing mark.
func (ix *Indexer) Index(ctx context.Context, e *episode.Episode) error {
	if ix.index == nil {
		return vectorstore.ErrIndex
	}
	if err := ix.index.Upsert(ctx, vectorstore.NewRecord(e)); err != nil {
		return err
	}
	if e.NeedsIndexing {
		if _, err := ix.store.Update(ctx, e.ID, func(ep *episode.Episode) error {
			ep.NeedsIndexing = false
			return nil
		}); err != nil && !errors.Is(err, store.ErrNotFound) {
			ix.logger.Warn("clearing needs_indexing mark",
				zap.String("id", e.ShortID()), zap.Error(err))
		}
	}
	return nil
}

// Report summarizes an index_all run.
type Report struct {
	Written int `json:"written"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// IndexAll projects every stored episode that is missing from the vector
// index or marked needs_indexing. With reindex set, every episode is
// re-projected regardless. The operation is idempotent: a second run
// over a fully indexed store writes nothing.
func (ix *Indexer) IndexAll(ctx context.Context, reindex bool) (Report, error) {
	var report Report
	if ix.index == nil {
		return report, vectorstore.ErrIndex
	}

	indexed := make(map[string]struct{})
	if !reindex {
		ids, err := ix.index.IDs(ctx)
		if err != nil {
			return report, err
		}
		for _, id := range ids {
			indexed[id] = struct{}{}
		}
	}

	for _, id := range ix.store.IDs() {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		e, err := ix.store.Get(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return report, err
		}
		if !reindex && !e.NeedsIndexing {
			if _, ok := indexed[id]; ok {
				report.Skipped++
				continue
			}
		}
		if err := ix.Index(ctx, e); err != nil {
			report.Failed++
			ix.logger.Warn("indexing episode failed",
				zap.String("id", e.ShortID()), zap.Error(err))
			continue
		}
		report.Written++
	}

	ix.logger.Info("index_all complete",
		zap.Int("written", report.Written),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped),
	)
	return report, nil
}

// Reconcile rescans the content store for out-of-band records and
// indexes anything missing. Used by the directory watcher.
func (ix *Indexer) Reconcile(ctx context.Context) (Report, error) {
	if err := ix.store.Refresh(); err != nil {
		return Report{}, err
	}
	return ix.IndexAll(ctx, false)
}

// SweepOrphans removes projections whose content record no longer
// exists. Returns the number removed.
func (ix *Indexer) SweepOrphans(ctx context.Context) (int, error) {
	if ix.index == nil {
		return 0, nil
	}
	ids, err := ix.index.IDs(ctx)
	if err != nil {
		return 0, err
	}

	known := make(map[string]struct{})
	for _, id := range ix.store.IDs() {
		known[id] = struct{}{}
	}

	removed := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if _, ok := known[id]; ok {
			continue
		}
		if err := ix.index.Delete(ctx, id); err != nil {
			return removed, err
		}
		removed++
	}
	if removed > 0 {
		ix.logger.Info("removed orphaned projections", zap.Int("count", removed))
	}
	return removed, nil
}

// MirrorUtility pushes an episode's current utility score into the index
// metadata. Best-effort callers log and continue on error.
func (ix *Indexer) MirrorUtility(ctx context.Context, id string, score float64) error {
	if ix.index == nil {
		return nil
	}
	err := ix.index.UpdateUtility(ctx, id, score)
	if errors.Is(err, vectorstore.ErrNotFound) {
		return nil // not yet indexed, reindex will carry the score
	}
	return err
}

package engine

import (
	"context"

	"github.com/fyrsmithlabs/recalld/internal/episode"
	"github.com/fyrsmithlabs/recalld/internal/index"
	"github.com/fyrsmithlabs/recalld/internal/retrieval"
	"github.com/fyrsmithlabs/recalld/internal/stats"
	"github.com/fyrsmithlabs/recalld/internal/store"
	"github.com/fyrsmithlabs/recalld/internal/utility"
)

// Retrieve runs the ranked semantic search.
func (en *Engine) Retrieve(ctx context.Context, query string, opts retrieval.Options) ([]retrieval.Scored, error) {
	results, err := en.retriever.Retrieve(ctx, query, opts)
	if err != nil {
		return nil, translate(err)
	}
	return results, nil
}

// List returns episodes matching the filter, newest first.
func (en *Engine) List(ctx context.Context, f store.Filter) ([]*episode.Episode, error) {
	eps, err := en.retriever.List(ctx, f)
	if err != nil {
		return nil, translate(err)
	}
	return eps, nil
}

// Fetch returns one episode by full or short id.
func (en *Engine) Fetch(ctx context.Context, id string) (*episode.Episode, error) {
	e, err := en.retriever.Fetch(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	return e, nil
}

// Feedback applies an explicit verdict to episode ids. "last" as the
// only id resolves to the most recent retrieval's results.
func (en *Engine) Feedback(ctx context.Context, ids []string, kind string) ([]string, error) {
	parsed, err := utility.ParseKind(kind)
	if err != nil {
		return nil, translate(err)
	}

	if len(ids) == 1 && ids[0] == "last" {
		ids, err = en.journal.LastRetrievedIDs()
		if err != nil {
			return nil, translate(err)
		}
		if len(ids) == 0 {
			return nil, nil
		}
	}

	updated, err := en.utility.Feedback(ctx, ids, parsed)
	if err != nil {
		return updated, translate(err)
	}
	return updated, nil
}

// IndexAll projects every unindexed episode; with reindex, everything.
func (en *Engine) IndexAll(ctx context.Context, reindex bool) (index.Report, error) {
	if en.vecidx == nil {
		return index.Report{}, ErrEmbeddingUnavailable
	}
	report, err := en.indexer.IndexAll(ctx, reindex)
	if err != nil {
		return report, translate(err)
	}
	// Reconcile the other direction too: projections without records.
	if _, err := en.indexer.SweepOrphans(ctx); err != nil {
		en.logger.Warn("orphan sweep failed")
	}
	return report, nil
}

// PropagateOptions parameterize a maintenance pass.
type PropagateOptions struct {
	// Temporal additionally replays temporal credit assignment.
	Temporal bool

	// Project restricts the pass to one project.
	Project string
}

// PropagateResult reports a maintenance pass.
type PropagateResult struct {
	Decayed    int `json:"decayed"`
	Propagated int `json:"propagated"`
	Credited   int `json:"credited"`
	// UpdatedCount is the total number of score updates applied.
	UpdatedCount int `json:"updated_count"`
}

// Propagate runs the maintenance pipeline: batch decay, one Bellman
// propagation pass, and (optionally) temporal credit replay.
func (en *Engine) Propagate(ctx context.Context, opts PropagateOptions) (PropagateResult, error) {
	var result PropagateResult

	decayed, err := en.utility.DecayAll(ctx, store.Filter{Project: opts.Project})
	if err != nil {
		return result, translate(err)
	}
	result.Decayed = decayed

	propagated, err := en.utility.Propagate(ctx, opts.Project)
	if err != nil {
		return result, translate(err)
	}
	result.Propagated = propagated

	if opts.Temporal {
		credited, err := en.utility.TemporalCreditAll(ctx, opts.Project)
		if err != nil {
			return result, translate(err)
		}
		result.Credited = credited
	}

	result.UpdatedCount = result.Decayed + result.Propagated + result.Credited
	return result, nil
}

// Prune deletes (or in dry-run mode, reports) aged low-utility episodes
// that never received helpful feedback.
func (en *Engine) Prune(ctx context.Context, opts utility.PruneOptions) (utility.PruneReport, error) {
	if opts.MaxAgeDays <= 0 {
		opts.MaxAgeDays = en.cfg.Prune.MaxAgeDays
	}
	if opts.MinUtility <= 0 {
		opts.MinUtility = en.cfg.Prune.MinUtilityThreshold
	}
	report, err := en.utility.Prune(ctx, opts)
	if err != nil {
		return report, translate(err)
	}
	return report, nil
}

// Stats computes the read-only rollup.
func (en *Engine) Stats(ctx context.Context, project string) (stats.View, error) {
	view, err := stats.Collect(ctx, en.store, en.vecidx, en.journal, project)
	if err != nil {
		return view, translate(err)
	}
	return view, nil
}

// HealthView reports engine health for the status operation.
type HealthView struct {
	DataDir          string `json:"data_dir"`
	Episodes         int    `json:"episodes"`
	Indexed          int    `json:"indexed"`
	NeedsIndexing    int    `json:"needs_indexing"`
	VectorIndex      bool   `json:"vector_index"`
	EmbeddingReady   bool   `json:"embedding_ready"`
	EmbeddingModel   string `json:"embedding_model,omitempty"`
	EmbeddingDim     int    `json:"embedding_dimension,omitempty"`
	JournalEvents    int    `json:"journal_events"`
	WatcherRunning   bool   `json:"watcher_running"`
}

// Status reports engine health.
func (en *Engine) Status(ctx context.Context, project string) (HealthView, error) {
	view := HealthView{
		DataDir:        en.dataDir,
		VectorIndex:    en.vecidx != nil,
		EmbeddingReady: en.provider != nil,
		WatcherRunning: en.watcher != nil,
	}
	if en.provider != nil {
		view.EmbeddingModel = en.cfg.Embedding.Model
		view.EmbeddingDim = en.provider.Dimension()
	}

	eps, err := en.store.List(ctx, store.Filter{Project: project})
	if err != nil {
		return view, translate(err)
	}
	view.Episodes = len(eps)
	for _, e := range eps {
		if e.NeedsIndexing {
			view.NeedsIndexing++
		}
	}
	if en.vecidx != nil {
		if n, err := en.vecidx.Count(ctx); err == nil {
			view.Indexed = n
		}
	}
	if events, err := en.journal.Events(); err == nil {
		view.JournalEvents = len(events)
	}
	return view, nil
}

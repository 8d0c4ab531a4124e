// Package retrieval implements the search pipeline: embed the query,
// overfetch candidates from the vector index, load full episodes, rank
// by combined similarity and utility, and record the retrieval
// footprint.
//
// When the vector index is absent or empty the same pipeline runs on
// lexical token-overlap similarity instead.
package retrieval

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/config"
	"github.com/fyrsmithlabs/recalld/internal/embeddings"
	"github.com/fyrsmithlabs/recalld/internal/episode"
	"github.com/fyrsmithlabs/recalld/internal/store"
	"github.com/fyrsmithlabs/recalld/internal/vectorstore"
)

var tracer = otel.Tracer("recalld.retrieval")

// ErrEmptyQuery indicates a retrieve call without query text.
var ErrEmptyQuery = errors.New("query cannot be empty")

// Decayer applies lazy utility decay when a score is consulted.
type Decayer interface {
	ApplyDecay(ctx context.Context, id string) (float64, error)
}

// Options tune one retrieve call. Zero values take configured defaults;
// MinSimilarity and UtilityWeight are pointers so that an explicit zero
// is distinguishable from "use default".
type Options struct {
	// K is the number of results wanted.
	K int

	// Project and TaskType prefilter candidates.
	Project  string
	TaskType episode.TaskType

	// MinSimilarity drops candidates below the floor before ranking.
	MinSimilarity *float64

	// UtilityWeight is (1-alpha); 0 gives pure-similarity ranking.
	UtilityWeight *float64

	// All disables K truncation (list-everything mode).
	All bool
}

// Scored is one ranked result.
type Scored struct {
	Episode    *episode.Episode `json:"episode"`
	Similarity float64          `json:"similarity"`
	Utility    float64          `json:"utility"`
	Score      float64          `json:"score"`
}

// Retriever runs the ranking pipeline.
type Retriever struct {
	store   *store.Store
	index   vectorstore.Index
	decayer Decayer
	journal *store.Journal
	cfg     config.RetrievalConfig
	logger  *zap.Logger

	// now is swappable for tests.
	now func() time.Time
}

// New creates a retriever. index and decayer may be nil; a nil index
// always uses the lexical path.
func New(s *store.Store, idx vectorstore.Index, decayer Decayer, journal *store.Journal, cfg config.RetrievalConfig, logger *zap.Logger) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{
		store:   s,
		index:   idx,
		decayer: decayer,
		journal: journal,
		cfg:     cfg,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Retrieve runs a semantic search for the query. The returned episodes
// are value snapshots with their retrieval footprint already recorded.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts Options) ([]Scored, error) {
	ctx, span := tracer.Start(ctx, "Retriever.Retrieve")
	defer span.End()

	if query == "" {
		return nil, ErrEmptyQuery
	}

	k := opts.K
	if k <= 0 {
		k = r.cfg.DefaultLimit
	}
	minSim := r.cfg.MinSimilarity
	if opts.MinSimilarity != nil {
		minSim = *opts.MinSimilarity
	}
	utilityWeight := r.cfg.UtilityWeight
	if opts.UtilityWeight != nil {
		utilityWeight = *opts.UtilityWeight
	}

	overfetch := 3 * k
	if k+10 > overfetch {
		overfetch = k + 10
	}
	filter := vectorstore.Filter{Project: opts.Project, TaskType: opts.TaskType}

	results, lexical, err := r.candidates(ctx, query, overfetch, filter)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("candidates", len(results)),
		attribute.Bool("lexical", lexical),
	)

	scored := make([]Scored, 0, len(results))
	for _, res := range results {
		if res.Similarity < minSim {
			continue
		}
		e, err := r.store.Get(ctx, res.ID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue // projection outlived its record; orphan sweep will catch it
			}
			return nil, err
		}
		util := r.consultUtility(ctx, e)
		scored = append(scored, Scored{
			Episode:    e,
			Similarity: res.Similarity,
			Utility:    util,
			Score:      (1-utilityWeight)*res.Similarity + utilityWeight*util,
		})
	}

	sortScored(scored)
	if !opts.All {
		if r.cfg.MMRLambda > 0 && r.cfg.MMRLambda < 1 {
			scored = diversify(scored, k, r.cfg.MMRLambda)
		}
		if len(scored) > k {
			scored = scored[:k]
		}
	}

	r.recordFootprint(ctx, query, opts.Project, scored)
	return scored, nil
}

// candidates returns the overfetched candidate set, preferring the
// vector index and falling back to lexical matching when the index is
// absent, empty, or erroring. Embedding-provider failures surface to the
// caller. The bool reports whether the lexical path was used.
func (r *Retriever) candidates(ctx context.Context, query string, overfetch int, filter vectorstore.Filter) ([]vectorstore.Result, bool, error) {
	if r.index != nil {
		count, err := r.index.Count(ctx)
		if err == nil && count > 0 {
			results, err := r.index.Search(ctx, query, overfetch, filter)
			if err == nil {
				return results, false, nil
			}
			if errors.Is(err, embeddings.ErrUnavailable) || errors.Is(err, embeddings.ErrDimensionMismatch) {
				return nil, false, err
			}
			r.logger.Warn("vector search failed, using lexical fallback", zap.Error(err))
		}
	}

	eps, err := r.store.List(ctx, store.Filter{})
	if err != nil {
		return nil, true, err
	}
	results, err := vectorstore.LexicalSearch(ctx, eps, query, overfetch, filter)
	return results, true, err
}

// consultUtility returns the episode's current utility, applying lazy
// decay through the decayer when available. Decay failures fall back to
// the stored score.
func (r *Retriever) consultUtility(ctx context.Context, e *episode.Episode) float64 {
	if r.decayer == nil {
		return e.Utility.Score
	}
	score, err := r.decayer.ApplyDecay(ctx, e.ID)
	if err != nil {
		r.logger.Warn("lazy decay failed", zap.String("id", e.ShortID()), zap.Error(err))
		return e.Utility.Score
	}
	e.Utility.Score = score
	return score
}

// sortScored orders by score desc; ties break by created_at desc, then
// id asc.
func sortScored(scored []Scored) {
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		if !scored[i].Episode.CreatedAt.Equal(scored[j].Episode.CreatedAt) {
			return scored[i].Episode.CreatedAt.After(scored[j].Episode.CreatedAt)
		}
		return scored[i].Episode.ID < scored[j].Episode.ID
	})
}

// recordFootprint bumps retrieval bookkeeping for every returned
// episode and journals the event. Best-effort: failures are logged and
// the results still return.
func (r *Retriever) recordFootprint(ctx context.Context, query, project string, scored []Scored) {
	if len(scored) == 0 {
		return
	}
	now := r.now()
	shortIDs := make([]string, 0, len(scored))
	for i := range scored {
		e := scored[i].Episode
		updated, err := r.store.Update(ctx, e.ID, func(ep *episode.Episode) error {
			ep.RecordRetrieval(now, query, project)
			return nil
		})
		if err != nil {
			r.logger.Warn("recording retrieval footprint",
				zap.String("id", e.ShortID()), zap.Error(err))
			continue
		}
		scored[i].Episode = updated
		shortIDs = append(shortIDs, e.ShortID())
	}

	if r.journal != nil && len(shortIDs) > 0 {
		if err := r.journal.Append(store.EventRetrieval, query, shortIDs); err != nil {
			r.logger.Warn("journaling retrieval", zap.Error(err))
		}
	}
}

// List returns episodes matching the filter, newest first.
func (r *Retriever) List(ctx context.Context, f store.Filter) ([]*episode.Episode, error) {
	return r.store.List(ctx, f)
}

// Fetch returns the episode for an id or store.ErrNotFound.
func (r *Retriever) Fetch(ctx context.Context, id string) (*episode.Episode, error) {
	return r.store.Get(ctx, id)
}

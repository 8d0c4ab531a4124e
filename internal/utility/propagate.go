package utility

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/episode"
	"github.com/fyrsmithlabs/recalld/internal/store"
	"github.com/fyrsmithlabs/recalld/internal/vectorstore"
)

// neighbor pairs a target episode id with its similarity to a seed.
type neighbor struct {
	id         string
	similarity float64
}

// Propagate runs one Bellman-style value spread: every episode whose
// score is at or above the seed threshold pushes a discounted,
// similarity-weighted fraction of its value to up to fanout neighbors.
//
// Seeds are visited in descending current score so high-confidence
// seeds influence neighbors before being updated themselves in the same
// pass. The pass does not iterate to a fixed point.
//
// Returns the number of neighbor updates applied.
func (en *Engine) Propagate(ctx context.Context, project string) (int, error) {
	eps, err := en.store.List(ctx, store.Filter{Project: project})
	if err != nil {
		return 0, err
	}
	if len(eps) < 2 {
		return 0, nil
	}

	seeds := make([]*episode.Episode, 0, len(eps))
	for _, e := range eps {
		if e.Utility.Score >= en.params.SeedThreshold {
			seeds = append(seeds, e)
		}
	}
	if len(seeds) == 0 {
		return 0, nil
	}
	sort.Slice(seeds, func(i, j int) bool {
		if seeds[i].Utility.Score != seeds[j].Utility.Score {
			return seeds[i].Utility.Score > seeds[j].Utility.Score
		}
		return seeds[i].ID < seeds[j].ID
	})

	updated := 0
	for _, seed := range seeds {
		if err := ctx.Err(); err != nil {
			return updated, err
		}

		neighbors, err := en.neighborsOf(ctx, seed, project)
		if err != nil {
			// Vector search down: fall back to tag overlap for this seed;
			// the next seed tries vector search again.
			en.logger.Warn("vector propagation unavailable, using tag overlap", zap.Error(err))
			neighbors = tagNeighbors(seed, eps, en.params.PropagationThreshold, en.params.Fanout)
		}

		for _, nb := range neighbors {
			target := en.params.DiscountFactor * seed.Utility.Score * nb.similarity
			e, err := en.store.UpdateUtility(ctx, nb.id, func(u *episode.Utility) {
				u.Score = clamp01(u.Score + en.params.LearningRate*(target-u.Score))
			})
			if err != nil {
				if errorsIsNotFound(err) {
					continue
				}
				return updated, err
			}
			en.mirrorScore(ctx, nb.id, e.Utility.Score)
			updated++
		}
	}

	en.logger.Info("propagation pass complete",
		zap.Int("seeds", len(seeds)),
		zap.Int("updates", updated),
	)
	return updated, nil
}

// neighborsOf finds the seed's semantic neighbors via the vector index.
func (en *Engine) neighborsOf(ctx context.Context, seed *episode.Episode, project string) ([]neighbor, error) {
	if en.vecidx == nil {
		return nil, vectorstore.ErrIndex
	}
	// Query by the seed's own projection; the top hit is the seed itself.
	results, err := en.vecidx.Search(ctx, vectorstore.Projection(seed), en.params.Fanout+1,
		vectorstore.Filter{Project: project})
	if err != nil {
		return nil, err
	}

	neighbors := make([]neighbor, 0, len(results))
	for _, r := range results {
		if r.ID == seed.ID {
			continue
		}
		if r.Similarity < en.params.PropagationThreshold {
			continue
		}
		neighbors = append(neighbors, neighbor{id: r.ID, similarity: r.Similarity})
		if len(neighbors) == en.params.Fanout {
			break
		}
	}
	return neighbors, nil
}

// tagNeighbors is the fallback similarity: Jaccard overlap of
// domain_tags (task type counts as an implicit tag).
func tagNeighbors(seed *episode.Episode, eps []*episode.Episode, threshold float64, fanout int) []neighbor {
	seedTags := tagSet(seed)
	var neighbors []neighbor
	for _, e := range eps {
		if e.ID == seed.ID {
			continue
		}
		sim := vectorstore.Jaccard(seedTags, tagSet(e))
		if sim >= threshold {
			neighbors = append(neighbors, neighbor{id: e.ID, similarity: sim})
		}
	}
	sort.Slice(neighbors, func(i, j int) bool {
		if neighbors[i].similarity != neighbors[j].similarity {
			return neighbors[i].similarity > neighbors[j].similarity
		}
		return neighbors[i].id < neighbors[j].id
	})
	if len(neighbors) > fanout {
		neighbors = neighbors[:fanout]
	}
	return neighbors
}

func tagSet(e *episode.Episode) map[string]struct{} {
	tags := make(map[string]struct{}, len(e.Intent.DomainTags)+1)
	for _, tag := range e.Intent.DomainTags {
		tags[normalizeTag(tag)] = struct{}{}
	}
	tags[string(e.Intent.TaskType)] = struct{}{}
	return tags
}

func normalizeTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}

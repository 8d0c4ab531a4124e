package vectorstore

import (
	"context"
	"sort"

	"github.com/fyrsmithlabs/recalld/internal/episode"
)

// LexicalSearch ranks episodes against the query by token-overlap
// Jaccard between the query tokens and each episode's projection text.
// It is the fallback path when the vector index is absent or empty, or a
// vector search fails for a reason other than the embedding provider;
// the retriever applies the same ranking rules on the returned
// similarities.
func LexicalSearch(ctx context.Context, eps []*episode.Episode, query string, k int, filter Filter) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 || len(eps) == 0 {
		return nil, nil
	}

	queryTokens := Tokenize(query)
	results := make([]Result, 0, len(eps))
	for _, e := range eps {
		if filter.Project != "" && e.Project != filter.Project {
			continue
		}
		if filter.TaskType != "" && e.Intent.TaskType != filter.TaskType {
			continue
		}
		sim := Jaccard(queryTokens, Tokenize(Projection(e)))
		if sim == 0 {
			continue
		}
		results = append(results, Result{
			ID:           e.ID,
			Similarity:   sim,
			UtilityScore: e.Utility.Score,
			Text:         Projection(e),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

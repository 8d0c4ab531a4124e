package retrieval

import (
	"github.com/fyrsmithlabs/recalld/internal/vectorstore"
)

// diversify re-ranks the candidate list with maximal marginal relevance:
// each pick balances the candidate's own score against its redundancy
// with what was already picked. lambda 1.0 is pure relevance, 0.0 pure
// diversity. Redundancy is token-overlap between episode projections.
func diversify(candidates []Scored, limit int, lambda float64) []Scored {
	if len(candidates) <= 1 || limit <= 0 {
		return candidates
	}
	if limit > len(candidates) {
		limit = len(candidates)
	}

	tokens := make([]map[string]struct{}, len(candidates))
	for i, c := range candidates {
		tokens[i] = vectorstore.Tokenize(vectorstore.Projection(c.Episode))
	}

	selected := make([]Scored, 0, limit)
	selectedTokens := make([]map[string]struct{}, 0, limit)
	remaining := make([]int, 0, len(candidates))
	for i := 1; i < len(candidates); i++ {
		remaining = append(remaining, i)
	}

	// The top-ranked candidate always leads.
	selected = append(selected, candidates[0])
	selectedTokens = append(selectedTokens, tokens[0])

	for len(remaining) > 0 && len(selected) < limit {
		bestPos, bestScore := -1, 0.0
		for pos, idx := range remaining {
			redundancy := 0.0
			for _, st := range selectedTokens {
				if sim := vectorstore.Jaccard(tokens[idx], st); sim > redundancy {
					redundancy = sim
				}
			}
			mmr := lambda*candidates[idx].Score - (1-lambda)*redundancy
			if bestPos == -1 || mmr > bestScore {
				bestPos, bestScore = pos, mmr
			}
		}
		idx := remaining[bestPos]
		selected = append(selected, candidates[idx])
		selectedTokens = append(selectedTokens, tokens[idx])
		remaining = append(remaining[:bestPos], remaining[bestPos+1:]...)
	}
	return selected
}

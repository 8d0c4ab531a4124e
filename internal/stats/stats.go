// Package stats computes read-only rollups over the content store.
package stats

import (
	"context"
	"sort"

	"github.com/fyrsmithlabs/recalld/internal/episode"
	"github.com/fyrsmithlabs/recalld/internal/store"
	"github.com/fyrsmithlabs/recalld/internal/vectorstore"
)

// Distribution summarizes the utility score spread.
type Distribution struct {
	Min    float64 `json:"min"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Max    float64 `json:"max"`
}

// TagCount is one entry of the top-tags rollup.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// View is the full stats rollup.
type View struct {
	Total      int            `json:"total"`
	ByProject  map[string]int `json:"by_project"`
	ByTaskType map[string]int `json:"by_task_type"`
	ByOutcome  map[string]int `json:"by_outcome"`

	// SuccessRate is successes over terminal outcomes, in [0,1].
	SuccessRate float64 `json:"success_rate"`

	Utility Distribution `json:"utility"`

	TotalRetrievals int     `json:"total_retrievals"`
	TotalHelpful    float64 `json:"total_helpful"`
	FeedbackEvents  int     `json:"feedback_events"`

	Indexed   int `json:"indexed"`
	Unindexed int `json:"unindexed"`

	TopTags []TagCount `json:"top_tags,omitempty"`
}

// topTagLimit bounds the tag rollup.
const topTagLimit = 10

// Collect computes the rollup for episodes matching the project filter
// (empty means all). The vector index and journal are optional: without
// an index every episode counts as unindexed, and without a journal
// FeedbackEvents stays zero.
func Collect(ctx context.Context, s *store.Store, vecidx vectorstore.Index, journal *store.Journal, project string) (View, error) {
	view := View{
		ByProject:  make(map[string]int),
		ByTaskType: make(map[string]int),
		ByOutcome:  make(map[string]int),
	}

	eps, err := s.List(ctx, store.Filter{Project: project})
	if err != nil {
		return view, err
	}

	indexed := make(map[string]struct{})
	if vecidx != nil {
		ids, err := vecidx.IDs(ctx)
		if err == nil {
			for _, id := range ids {
				indexed[id] = struct{}{}
			}
		}
	}

	var (
		scores    []float64
		successes int
		terminal  int
		tagCounts = make(map[string]int)
	)
	for _, e := range eps {
		view.Total++
		if e.Project != "" {
			view.ByProject[e.Project]++
		}
		view.ByTaskType[string(e.Intent.TaskType)]++
		view.ByOutcome[string(e.Outcome.Status)]++

		if e.Outcome.Status.Terminal() {
			terminal++
			if e.Outcome.Status == episode.StatusSuccess {
				successes++
			}
		}

		scores = append(scores, e.Utility.Score)
		view.TotalRetrievals += e.Utility.RetrievalCount
		view.TotalHelpful += e.Utility.HelpfulCount

		for _, tag := range e.Intent.DomainTags {
			tagCounts[tag]++
		}

		if _, ok := indexed[e.ID]; ok {
			view.Indexed++
		} else {
			view.Unindexed++
		}
	}

	if terminal > 0 {
		view.SuccessRate = float64(successes) / float64(terminal)
	}
	view.Utility = distribution(scores)
	view.TopTags = topTags(tagCounts, topTagLimit)

	if journal != nil {
		if n, err := journal.FeedbackCount(); err == nil {
			view.FeedbackEvents = n
		}
	}
	return view, nil
}

func distribution(scores []float64) Distribution {
	if len(scores) == 0 {
		return Distribution{}
	}
	sorted := append([]float64(nil), scores...)
	sort.Float64s(sorted)

	var sum float64
	for _, s := range sorted {
		sum += s
	}

	mid := len(sorted) / 2
	median := sorted[mid]
	if len(sorted)%2 == 0 {
		median = (sorted[mid-1] + sorted[mid]) / 2
	}

	return Distribution{
		Min:    sorted[0],
		Mean:   sum / float64(len(sorted)),
		Median: median,
		Max:    sorted[len(sorted)-1],
	}
}

func topTags(counts map[string]int, limit int) []TagCount {
	out := make([]TagCount, 0, len(counts))
	for tag, n := range counts {
		out = append(out, TagCount{Tag: tag, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Tag < out[j].Tag
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

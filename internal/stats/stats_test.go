package stats

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/recalld/internal/episode"
	"github.com/fyrsmithlabs/recalld/internal/store"
)

func TestCollectEmptyStore(t *testing.T) {
	s, err := store.Open(t.TempDir(), nil)
	require.NoError(t, err)

	view, err := Collect(context.Background(), s, nil, nil, "")
	require.NoError(t, err)

	assert.Equal(t, 0, view.Total)
	assert.Equal(t, 0.0, view.SuccessRate)
	assert.Equal(t, Distribution{}, view.Utility)
	assert.Equal(t, 0, view.TotalRetrievals)
	assert.Empty(t, view.TopTags)
}

func TestCollectRollups(t *testing.T) {
	dir := t.TempDir()
	s, err := store.Open(dir, nil)
	require.NoError(t, err)
	ctx := context.Background()

	put := func(project string, task episode.TaskType, status episode.Status, score float64, tags ...string) *episode.Episode {
		e := episode.New(project, "prompt for "+project)
		e.Intent.TaskType = task
		e.Intent.DomainTags = tags
		e.Outcome.Status = status
		e.Utility.Score = score
		require.NoError(t, s.Put(ctx, e))
		return e
	}

	put("webapp", episode.TaskBugfix, episode.StatusSuccess, 0.8, "auth", "go")
	put("webapp", episode.TaskFeature, episode.StatusFailure, 0.2, "auth")
	put("cli", episode.TaskBugfix, episode.StatusSuccess, 0.5, "go")
	put("cli", episode.TaskDocs, episode.StatusUnknown, 0.0)

	view, err := Collect(ctx, s, nil, nil, "")
	require.NoError(t, err)

	assert.Equal(t, 4, view.Total)
	assert.Equal(t, 2, view.ByProject["webapp"])
	assert.Equal(t, 2, view.ByProject["cli"])
	assert.Equal(t, 2, view.ByTaskType["bugfix"])
	assert.Equal(t, 2, view.ByOutcome["success"])
	// 2 successes of 3 terminal outcomes; unknown is excluded.
	assert.InDelta(t, 2.0/3.0, view.SuccessRate, 1e-9)

	assert.Equal(t, 0.0, view.Utility.Min)
	assert.Equal(t, 0.8, view.Utility.Max)
	assert.InDelta(t, 0.375, view.Utility.Mean, 1e-9)
	assert.InDelta(t, 0.35, view.Utility.Median, 1e-9)

	require.NotEmpty(t, view.TopTags)
	assert.Equal(t, "auth", view.TopTags[0].Tag)
	assert.Equal(t, 2, view.TopTags[0].Count)

	// All unindexed without a vector index.
	assert.Equal(t, 0, view.Indexed)
	assert.Equal(t, 4, view.Unindexed)
}

func TestCollectProjectFilter(t *testing.T) {
	s, err := store.Open(t.TempDir(), nil)
	require.NoError(t, err)
	ctx := context.Background()

	a := episode.New("webapp", "one")
	a.Outcome.Status = episode.StatusSuccess
	require.NoError(t, s.Put(ctx, a))
	b := episode.New("cli", "two")
	b.Outcome.Status = episode.StatusSuccess
	require.NoError(t, s.Put(ctx, b))

	view, err := Collect(ctx, s, nil, nil, "webapp")
	require.NoError(t, err)
	assert.Equal(t, 1, view.Total)
}

func TestCollectFeedbackEvents(t *testing.T) {
	dir := t.TempDir()
	s, err := store.Open(dir, nil)
	require.NoError(t, err)
	j := store.OpenJournal(dir)
	require.NoError(t, j.Append(store.EventFeedback, "helpful", []string{"aaaa"}))

	view, err := Collect(context.Background(), s, nil, j, "")
	require.NoError(t, err)
	assert.Equal(t, 1, view.FeedbackEvents)
}

package index

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/recalld/internal/embeddings"
	"github.com/fyrsmithlabs/recalld/internal/episode"
	"github.com/fyrsmithlabs/recalld/internal/store"
	"github.com/fyrsmithlabs/recalld/internal/vectorstore"
)

func newFixture(t *testing.T) (*store.Store, vectorstore.Index, *Indexer) {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(dir, nil)
	require.NoError(t, err)
	idx, err := vectorstore.NewChromemIndex(
		vectorstore.ChromemConfig{Path: dir + "/vectors"},
		embeddings.NewChecked(embeddings.NewHash(64), 64),
		nil,
	)
	require.NoError(t, err)
	return s, idx, New(s, idx, nil)
}

func putEpisode(t *testing.T, s *store.Store, prompt string) *episode.Episode {
	t.Helper()
	e := episode.New("webapp", prompt)
	e.Intent.TaskType = episode.TaskBugfix
	e.Outcome.Status = episode.StatusSuccess
	require.NoError(t, s.Put(context.Background(), e))
	return e
}

func TestIndexAllWritesEverything(t *testing.T) {
	s, idx, ix := newFixture(t)
	ctx := context.Background()

	putEpisode(t, s, "fix login redirect")
	putEpisode(t, s, "add export command")

	report, err := ix.IndexAll(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Written)
	assert.Equal(t, 0, report.Failed)

	count, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestIndexAllIdempotent(t *testing.T) {
	s, _, ix := newFixture(t)
	ctx := context.Background()

	putEpisode(t, s, "fix login redirect")

	first, err := ix.IndexAll(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Written)

	second, err := ix.IndexAll(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Written)
	assert.Equal(t, 1, second.Skipped)
}

func TestIndexAllReindexRewrites(t *testing.T) {
	s, _, ix := newFixture(t)
	ctx := context.Background()

	putEpisode(t, s, "fix login redirect")

	_, err := ix.IndexAll(ctx, false)
	require.NoError(t, err)

	report, err := ix.IndexAll(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Written)
}

func TestIndexClearsNeedsIndexing(t *testing.T) {
	s, _, ix := newFixture(t)
	ctx := context.Background()

	e := putEpisode(t, s, "fix login redirect")
	_, err := s.Update(ctx, e.ID, func(ep *episode.Episode) error {
		ep.NeedsIndexing = true
		return nil
	})
	require.NoError(t, err)

	report, err := ix.IndexAll(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Written)

	got, err := s.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.False(t, got.NeedsIndexing)
}

func TestSweepOrphans(t *testing.T) {
	s, idx, ix := newFixture(t)
	ctx := context.Background()

	kept := putEpisode(t, s, "kept episode")
	doomed := putEpisode(t, s, "doomed episode")
	_, err := ix.IndexAll(ctx, false)
	require.NoError(t, err)

	// Delete the content record only, leaving a vector orphan.
	require.NoError(t, s.Delete(ctx, doomed.ID))

	removed, err := ix.SweepOrphans(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	ids, err := idx.IDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{kept.ID}, ids)
}

func TestMirrorUtilityMissingProjection(t *testing.T) {
	_, _, ix := newFixture(t)
	// Unindexed id: mirrored later by reindex, not an error now.
	assert.NoError(t, ix.MirrorUtility(context.Background(), "not-indexed", 0.5))
}

func TestWatcherPicksUpExternalRecord(t *testing.T) {
	dir := t.TempDir()
	s, err := store.Open(dir, nil)
	require.NoError(t, err)
	idx, err := vectorstore.NewChromemIndex(
		vectorstore.ChromemConfig{Path: dir + "/vectors"},
		embeddings.NewChecked(embeddings.NewHash(64), 64),
		nil,
	)
	require.NoError(t, err)
	ix := New(s, idx, nil)

	w := NewWatcher(ix, dir, nil)
	w.debounce = 50 * time.Millisecond
	ctx := context.Background()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	// Write a record through a second store handle, simulating external
	// tooling appending to the same data dir.
	s2, err := store.Open(dir, nil)
	require.NoError(t, err)
	e := episode.New("webapp", "externally captured")
	e.Intent.TaskType = episode.TaskDebug
	e.Outcome.Status = episode.StatusSuccess
	require.NoError(t, s2.Put(ctx, e))

	require.Eventually(t, func() bool {
		n, err := idx.Count(ctx)
		return err == nil && n == 1
	}, 5*time.Second, 100*time.Millisecond)
}

package retrieval

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/recalld/internal/config"
	"github.com/fyrsmithlabs/recalld/internal/embeddings"
	"github.com/fyrsmithlabs/recalld/internal/episode"
	"github.com/fyrsmithlabs/recalld/internal/store"
	"github.com/fyrsmithlabs/recalld/internal/vectorstore"
)

func floatPtr(v float64) *float64 { return &v }

type fixture struct {
	store     *store.Store
	index     vectorstore.Index
	retriever *Retriever
	journal   *store.Journal
}

func newFixture(t *testing.T, withIndex bool) *fixture {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(dir, nil)
	require.NoError(t, err)

	var idx vectorstore.Index
	if withIndex {
		idx, err = vectorstore.NewChromemIndex(
			vectorstore.ChromemConfig{Path: dir + "/vectors"},
			embeddings.NewChecked(embeddings.NewHash(64), 64),
			nil,
		)
		require.NoError(t, err)
	}

	journal := store.OpenJournal(dir)
	cfg := config.Default().Retrieval
	cfg.MMRLambda = 1.0 // exact ranking in tests unless stated
	return &fixture{
		store:     s,
		index:     idx,
		retriever: New(s, idx, nil, journal, cfg, nil),
		journal:   journal,
	}
}

func (f *fixture) put(t *testing.T, prompt, project string) *episode.Episode {
	t.Helper()
	e := episode.New(project, prompt)
	e.Intent.TaskType = episode.TaskBugfix
	e.Outcome.Status = episode.StatusSuccess
	require.NoError(t, f.store.Put(context.Background(), e))
	if f.index != nil {
		require.NoError(t, f.index.Upsert(context.Background(), vectorstore.NewRecord(e)))
	}
	return e
}

func TestRetrieveEmptyStore(t *testing.T) {
	f := newFixture(t, true)

	results, err := f.retriever.Retrieve(context.Background(), "anything at all", Options{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRetrieveExactMatchRanksFirst(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	a := f.put(t, "fix login redirect", "webapp")
	f.put(t, "database migration tooling", "webapp")

	// The hash embedder only matches identical projection text, so query
	// with a's projection.
	loaded, err := f.store.Get(ctx, a.ID)
	require.NoError(t, err)
	query := vectorstore.Projection(loaded)

	results, err := f.retriever.Retrieve(ctx, query, Options{K: 3, UtilityWeight: floatPtr(0)})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, a.ID, results[0].Episode.ID)
	assert.GreaterOrEqual(t, results[0].Similarity, 0.5)
}

func TestRetrieveRecordsFootprint(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	a := f.put(t, "fix login redirect", "webapp")
	loaded, _ := f.store.Get(ctx, a.ID)
	query := vectorstore.Projection(loaded)

	results, err := f.retriever.Retrieve(ctx, query, Options{K: 1, Project: "webapp"})
	require.NoError(t, err)
	require.Len(t, results, 1)

	// The returned snapshot already carries the footprint.
	assert.Equal(t, 1, results[0].Episode.Utility.RetrievalCount)

	got, err := f.store.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Utility.RetrievalCount)
	require.Len(t, got.History, 1)
	assert.Equal(t, query, got.History[0].Query)
	require.NotNil(t, got.Utility.LastRetrievedAt)

	ids, err := f.journal.LastRetrievedIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{a.ShortID()}, ids)
}

func TestRetrieveStableTopResult(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	a := f.put(t, "fix login redirect", "webapp")
	f.put(t, "unrelated work entirely", "webapp")
	loaded, _ := f.store.Get(ctx, a.ID)
	query := vectorstore.Projection(loaded)

	first, err := f.retriever.Retrieve(ctx, query, Options{K: 1, UtilityWeight: floatPtr(0)})
	require.NoError(t, err)
	second, err := f.retriever.Retrieve(ctx, query, Options{K: 1, UtilityWeight: floatPtr(0)})
	require.NoError(t, err)

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].Episode.ID, second[0].Episode.ID)
}

func TestRetrieveShortQueryStillSearches(t *testing.T) {
	f := newFixture(t, true)
	f.put(t, "go", "webapp")

	// Two characters: must still run the semantic path, not silently
	// return empty.
	results, err := f.retriever.Retrieve(context.Background(), "go", Options{K: 3, MinSimilarity: floatPtr(0)})
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestRetrieveEmptyQueryRejected(t *testing.T) {
	f := newFixture(t, true)
	_, err := f.retriever.Retrieve(context.Background(), "", Options{})
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestLexicalFallbackWithoutIndex(t *testing.T) {
	f := newFixture(t, false)

	a := f.put(t, "fix login redirect", "webapp")
	f.put(t, "database migration tooling", "webapp")

	results, err := f.retriever.Retrieve(context.Background(), "login redirect bug",
		Options{K: 3, MinSimilarity: floatPtr(0.1), UtilityWeight: floatPtr(0)})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, a.ID, results[0].Episode.ID)
}

func TestLexicalFallbackWithEmptyIndex(t *testing.T) {
	f := newFixture(t, true)

	// Store has a record the index never saw.
	e := episode.New("webapp", "fix login redirect")
	e.Intent.TaskType = episode.TaskBugfix
	e.Outcome.Status = episode.StatusSuccess
	require.NoError(t, f.store.Put(context.Background(), e))

	results, err := f.retriever.Retrieve(context.Background(), "login redirect",
		Options{K: 3, MinSimilarity: floatPtr(0.1), UtilityWeight: floatPtr(0)})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, e.ID, results[0].Episode.ID)
}

func TestMinSimilarityCut(t *testing.T) {
	f := newFixture(t, false)
	f.put(t, "completely unrelated subject", "webapp")

	results, err := f.retriever.Retrieve(context.Background(), "login redirect",
		Options{K: 3, MinSimilarity: floatPtr(0.9)})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestUtilityWeightInfluencesRanking(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	// Same lexical overlap with the query, different utility.
	low := f.put(t, "login redirect alpha", "webapp")
	high := f.put(t, "login redirect omega", "webapp")
	_, err := f.store.UpdateUtility(ctx, high.ID, func(u *episode.Utility) { u.Score = 0.9 })
	require.NoError(t, err)

	results, err := f.retriever.Retrieve(ctx, "login redirect",
		Options{K: 2, MinSimilarity: floatPtr(0.01), UtilityWeight: floatPtr(0.7)})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, high.ID, results[0].Episode.ID)
	assert.Equal(t, low.ID, results[1].Episode.ID)
}

func TestTieBreakByCreatedAtThenID(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	older := f.put(t, "login redirect", "webapp")
	_, err := f.store.Update(ctx, older.ID, func(ep *episode.Episode) error {
		ep.CreatedAt = ep.CreatedAt.Add(-time.Hour)
		ep.EndedAt = ep.CreatedAt
		return nil
	})
	require.NoError(t, err)
	newer := f.put(t, "login redirect", "webapp")

	results, err := f.retriever.Retrieve(ctx, "login redirect",
		Options{K: 2, MinSimilarity: floatPtr(0.1), UtilityWeight: floatPtr(0)})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, newer.ID, results[0].Episode.ID)
	assert.Equal(t, older.ID, results[1].Episode.ID)
}

func TestProjectPrefilter(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	a := f.put(t, "fix login redirect", "webapp")
	b := f.put(t, "fix login redirect", "cli")

	loaded, _ := f.store.Get(ctx, a.ID)
	query := vectorstore.Projection(loaded)

	results, err := f.retriever.Retrieve(ctx, query, Options{K: 5, Project: "cli"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, b.ID, results[0].Episode.ID)
}

func TestFootprintFailureStillReturnsResults(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	e := f.put(t, "login redirect", "webapp")

	// Delete the record between ranking and footprinting by injecting a
	// clock function that removes the episode first.
	f.retriever.now = func() time.Time {
		_ = f.store.Delete(context.Background(), e.ID)
		return time.Now().UTC()
	}

	results, err := f.retriever.Retrieve(ctx, "login redirect",
		Options{K: 1, MinSimilarity: floatPtr(0.1)})
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestListAndFetch(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	e := f.put(t, "login redirect", "webapp")

	eps, err := f.retriever.List(ctx, store.Filter{Project: "webapp"})
	require.NoError(t, err)
	assert.Len(t, eps, 1)

	got, err := f.retriever.Fetch(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)

	_, err = f.retriever.Fetch(ctx, "ffffffff")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDiversifyKeepsTopResult(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	f.put(t, "login redirect one", "webapp")
	f.put(t, "login redirect two", "webapp")
	f.put(t, "login redirect three", "webapp")

	f.retriever.cfg.MMRLambda = 1.0
	ranked, err := f.retriever.Retrieve(ctx, "login redirect",
		Options{K: 2, MinSimilarity: floatPtr(0.01), UtilityWeight: floatPtr(0)})
	require.NoError(t, err)
	require.NotEmpty(t, ranked)

	f.retriever.cfg.MMRLambda = 0.7
	results, err := f.retriever.Retrieve(ctx, "login redirect",
		Options{K: 2, MinSimilarity: floatPtr(0.01), UtilityWeight: floatPtr(0)})
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, ranked[0].Episode.ID, results[0].Episode.ID)
}

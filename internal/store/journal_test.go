package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJournalAppendAndParse(t *testing.T) {
	dir := t.TempDir()
	j := OpenJournal(dir)

	require.NoError(t, j.Append(EventRetrieval, "login redirect bug", []string{"a1b2c3d4", "e5f6a7b8"}))
	require.NoError(t, j.Append(EventFeedback, "helpful", []string{"a1b2c3d4"}))

	events, err := j.Events()
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, EventRetrieval, events[0].Kind)
	assert.Equal(t, "login redirect bug", events[0].Value)
	assert.Equal(t, []string{"a1b2c3d4", "e5f6a7b8"}, events[0].IDs)

	assert.Equal(t, EventFeedback, events[1].Kind)
	assert.Equal(t, "helpful", events[1].Value)
}

func TestJournalLastRetrievedIDs(t *testing.T) {
	j := OpenJournal(t.TempDir())

	ids, err := j.LastRetrievedIDs()
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, j.Append(EventRetrieval, "first", []string{"aaaa"}))
	require.NoError(t, j.Append(EventFeedback, "helpful", []string{"aaaa"}))
	require.NoError(t, j.Append(EventRetrieval, "second", []string{"bbbb", "cccc"}))

	ids, err = j.LastRetrievedIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"bbbb", "cccc"}, ids)
}

func TestJournalSanitizesValues(t *testing.T) {
	j := OpenJournal(t.TempDir())
	require.NoError(t, j.Append(EventRetrieval, "tabs\tand\nnewlines", []string{"aaaa"}))

	events, err := j.Events()
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "tabs and newlines", events[0].Value)
}

func TestJournalSkipsGarbageLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, JournalFileName)
	require.NoError(t, os.WriteFile(path, []byte("garbage line\nnot\tenough\n"), 0o644))

	j := OpenJournal(dir)
	require.NoError(t, j.Append(EventFeedback, "mixed", []string{"dddd"}))

	events, err := j.Events()
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventFeedback, events[0].Kind)

	n, err := j.FeedbackCount()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

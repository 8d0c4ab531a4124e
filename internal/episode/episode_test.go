package episode

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWilsonScore(t *testing.T) {
	tests := []struct {
		name       string
		retrievals int
		helpful    float64
		want       float64
		tolerance  float64
	}{
		{"never retrieved", 0, 0, 0, 1e-9},
		{"one helpful vote", 1, 1, 0.2065, 1e-4},
		{"three helpful votes", 3, 3, 0.4385, 1e-4},
		{"ten of ten", 10, 10, 0.7225, 1e-3},
		{"zero of ten", 10, 0, 0, 1e-9},
		{"mixed half credit", 2, 1, 0.0953, 2e-3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := Utility{RetrievalCount: tt.retrievals, HelpfulCount: tt.helpful}
			assert.InDelta(t, tt.want, u.WilsonScore(), tt.tolerance)
		})
	}
}

func TestWilsonScoreBounds(t *testing.T) {
	for n := 0; n <= 20; n++ {
		for h := 0; h <= n; h++ {
			u := Utility{RetrievalCount: n, HelpfulCount: float64(h)}
			s := u.WilsonScore()
			assert.GreaterOrEqual(t, s, 0.0)
			assert.LessOrEqual(t, s, 1.0)
		}
	}
}

func TestNewDefaults(t *testing.T) {
	e := New("recalld", "fix login redirect")

	require.NotEmpty(t, e.ID)
	assert.Equal(t, TaskUnknown, e.Intent.TaskType)
	assert.Equal(t, StatusUnknown, e.Outcome.Status)
	assert.Equal(t, 0.0, e.Utility.Score)
	assert.False(t, e.EndedAt.Before(e.CreatedAt))
	assert.NoError(t, e.Validate())
}

func TestValidate(t *testing.T) {
	base := func() *Episode { return New("proj", "prompt") }

	t.Run("empty prompt", func(t *testing.T) {
		e := base()
		e.Intent.RawPrompt = ""
		assert.ErrorIs(t, e.Validate(), ErrEmptyPrompt)
	})

	t.Run("bad task type", func(t *testing.T) {
		e := base()
		e.Intent.TaskType = "yolo"
		assert.ErrorIs(t, e.Validate(), ErrInvalidTaskType)
	})

	t.Run("bad status", func(t *testing.T) {
		e := base()
		e.Outcome.Status = "maybe"
		assert.ErrorIs(t, e.Validate(), ErrInvalidStatus)
	})

	t.Run("helpful exceeds retrievals", func(t *testing.T) {
		e := base()
		e.Utility.RetrievalCount = 1
		e.Utility.HelpfulCount = 2
		assert.ErrorIs(t, e.Validate(), ErrInvalidUtility)
	})

	t.Run("score out of range", func(t *testing.T) {
		e := base()
		e.Utility.Score = 1.5
		assert.ErrorIs(t, e.Validate(), ErrInvalidUtility)
	})

	t.Run("ended before created", func(t *testing.T) {
		e := base()
		e.EndedAt = e.CreatedAt.Add(-time.Hour)
		assert.ErrorIs(t, e.Validate(), ErrInvalidTimestamp)
	})
}

func TestParseTaskType(t *testing.T) {
	assert.Equal(t, TaskBugfix, ParseTaskType("bugfix"))
	assert.Equal(t, TaskUnknown, ParseTaskType("nonsense"))
	assert.Equal(t, TaskUnknown, ParseTaskType(""))
}

func TestRecordRetrieval(t *testing.T) {
	e := New("proj", "prompt")
	now := time.Now().UTC()

	e.RecordRetrieval(now, "auth bug", "webapp")
	e.RecordRetrieval(now.Add(time.Minute), "login redirect", "webapp")

	require.Len(t, e.History, 2)
	assert.Equal(t, "login redirect", e.History[0].Query) // most recent first
	assert.Equal(t, 2, e.Utility.RetrievalCount)
	require.NotNil(t, e.Utility.LastRetrievedAt)
	assert.NoError(t, e.Validate())
}

func TestRecordRetrievalCapsHistory(t *testing.T) {
	e := New("proj", "prompt")
	at := time.Now().UTC()
	for i := 0; i < HistoryCap+10; i++ {
		e.RecordRetrieval(at.Add(time.Duration(i)*time.Second), "q", "p")
	}
	assert.Len(t, e.History, HistoryCap)
	assert.Equal(t, HistoryCap+10, e.Utility.RetrievalCount)
}

func TestRetrievedWithin(t *testing.T) {
	e := New("proj", "prompt")
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e.RecordRetrieval(at, "q", "p")

	assert.True(t, e.RetrievedWithin(at.Add(-time.Minute), at.Add(time.Minute)))
	assert.True(t, e.RetrievedWithin(at, at))
	assert.False(t, e.RetrievedWithin(at.Add(time.Minute), at.Add(time.Hour)))
}

func TestCloneIsDeep(t *testing.T) {
	e := New("proj", "prompt")
	e.Intent.DomainTags = []string{"go", "auth"}
	e.RecordRetrieval(time.Now().UTC(), "q", "p")

	c := e.Clone()
	c.Intent.DomainTags[0] = "rust"
	c.History[0].Query = "mutated"

	assert.Equal(t, "go", e.Intent.DomainTags[0])
	assert.Equal(t, "q", e.History[0].Query)
}

func TestJSONRoundTrip(t *testing.T) {
	e := New("proj", "fix login redirect")
	e.Intent.TaskType = TaskBugfix
	e.Intent.DomainTags = []string{"auth", "go"}
	e.Context.FilesModified = []string{"internal/auth/session.go"}
	e.Outcome.Status = StatusSuccess
	e.Outcome.TestsAfter = &TestCounts{Passed: 12}
	e.Outcome.CommitRef = "abc1234"

	raw, err := json.Marshal(e)
	require.NoError(t, err)

	var got Episode
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, e.Intent, got.Intent)
	assert.Equal(t, e.Outcome, got.Outcome)
	assert.True(t, e.CreatedAt.Equal(got.CreatedAt))
}

func TestMarkdown(t *testing.T) {
	e := New("webapp", "fix login redirect")
	e.Intent.TaskType = TaskBugfix
	e.Intent.DomainTags = []string{"auth"}
	e.Context.FilesModified = []string{"auth/session.go"}
	e.Context.Errors = []ErrorRecord{{Kind: "panic", Message: "nil deref | here", Resolved: true}}
	e.Outcome.Status = StatusSuccess

	md := e.Markdown()
	assert.True(t, strings.HasPrefix(md, "# Episode: fix login redirect"))
	assert.Contains(t, md, "**Project**: webapp")
	assert.Contains(t, md, "- auth/session.go")
	assert.Contains(t, md, `nil deref \| here`)
	assert.Contains(t, md, "## Tags")
}

package episode

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Common errors for episode validation.
var (
	ErrMissingID        = errors.New("episode id cannot be empty")
	ErrEmptyPrompt      = errors.New("episode raw prompt cannot be empty")
	ErrInvalidTaskType  = errors.New("invalid task type")
	ErrInvalidStatus    = errors.New("invalid outcome status")
	ErrInvalidUtility   = errors.New("utility counters out of range")
	ErrInvalidTimestamp = errors.New("episode timestamps out of order")
)

// HistoryCap bounds retrieval_history per episode. Entries beyond the cap
// are dropped oldest-first.
const HistoryCap = 50

// TaskType classifies what kind of work a session was.
type TaskType string

const (
	TaskBugfix   TaskType = "bugfix"
	TaskFeature  TaskType = "feature"
	TaskRefactor TaskType = "refactor"
	TaskTest     TaskType = "test"
	TaskDocs     TaskType = "docs"
	TaskResearch TaskType = "research"
	TaskDebug    TaskType = "debug"
	TaskSetup    TaskType = "setup"
	TaskUnknown  TaskType = "unknown"
)

// ParseTaskType maps a string to a TaskType, defaulting to TaskUnknown.
func ParseTaskType(s string) TaskType {
	switch TaskType(s) {
	case TaskBugfix, TaskFeature, TaskRefactor, TaskTest, TaskDocs,
		TaskResearch, TaskDebug, TaskSetup, TaskUnknown:
		return TaskType(s)
	default:
		return TaskUnknown
	}
}

// Valid reports whether t is a known task type.
func (t TaskType) Valid() bool {
	return ParseTaskType(string(t)) == t
}

// Status is the terminal outcome of a session.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailure Status = "failure"
	StatusUnknown Status = "unknown"
)

// Valid reports whether s is a known outcome status.
func (s Status) Valid() bool {
	switch s {
	case StatusSuccess, StatusPartial, StatusFailure, StatusUnknown:
		return true
	}
	return false
}

// Terminal reports whether the status represents a finished session,
// i.e. one that can drive temporal credit assignment.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusPartial || s == StatusFailure
}

// Intent captures what the user asked for.
type Intent struct {
	// RawPrompt is the original user request, verbatim.
	RawPrompt string `json:"raw_prompt"`

	// Summary is an optional short human-readable gloss.
	Summary string `json:"summary,omitempty"`

	// TaskType classifies the session.
	TaskType TaskType `json:"task_type"`

	// DomainTags are short language/domain keywords.
	DomainTags []string `json:"domain_tags,omitempty"`
}

// ErrorRecord is one error encountered during the session.
type ErrorRecord struct {
	Kind     string `json:"kind"`
	Message  string `json:"message"`
	Resolved bool   `json:"resolved"`

	// Resolution is an optional free-text note on how it was fixed.
	Resolution string `json:"resolution,omitempty"`
}

// Context captures what the session touched.
type Context struct {
	FilesRead     []string      `json:"files_read,omitempty"`
	FilesModified []string      `json:"files_modified,omitempty"`
	ToolsInvoked  []string      `json:"tools_invoked,omitempty"`
	Errors        []ErrorRecord `json:"errors,omitempty"`
}

// TestCounts is a pass/fail snapshot from a test run.
type TestCounts struct {
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped,omitempty"`
}

// Outcome captures how the session ended.
type Outcome struct {
	Status      Status      `json:"status"`
	TestsBefore *TestCounts `json:"tests_before,omitempty"`
	TestsAfter  *TestCounts `json:"tests_after,omitempty"`
	CommitRef   string      `json:"commit_ref,omitempty"`
	PRRef       int         `json:"pr_ref,omitempty"`
}

// RetrievalRecord is one entry in an episode's retrieval history.
type RetrievalRecord struct {
	At      time.Time `json:"at"`
	Query   string    `json:"query"`
	Project string    `json:"project,omitempty"`

	// Helpful is nil until explicit feedback arrives for this retrieval.
	Helpful *bool `json:"helpful,omitempty"`
}

// Utility is the learned value annotation of an episode.
//
// Score is maintained by the utility engine: explicit feedback recomputes
// it as a Wilson lower bound, decay shrinks it over time, and propagation
// and temporal credit nudge it toward related evidence. It always stays
// in [0,1].
type Utility struct {
	Score           float64    `json:"score"`
	RetrievalCount  int        `json:"retrieval_count"`
	HelpfulCount    float64    `json:"helpful_count"`
	LastRetrievedAt *time.Time `json:"last_retrieved_at,omitempty"`
	LastUpdatedAt   time.Time  `json:"last_updated_at"`
}

// Episode is one captured coding session.
type Episode struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	EndedAt   time.Time `json:"ended_at"`
	Project   string    `json:"project,omitempty"`

	Intent  Intent  `json:"intent"`
	Context Context `json:"context"`
	Outcome Outcome `json:"outcome"`
	Utility Utility `json:"utility"`

	// History records past retrievals of this episode, most recent first,
	// capped at HistoryCap entries.
	History []RetrievalRecord `json:"retrieval_history,omitempty"`

	// NeedsIndexing marks an episode whose vector projection could not be
	// written at capture time. Reconciled by a later reindex.
	NeedsIndexing bool `json:"needs_indexing,omitempty"`
}

// New creates an episode with a fresh id and second-precision UTC
// timestamps.
func New(project, rawPrompt string) *Episode {
	now := time.Now().UTC().Truncate(time.Second)
	return &Episode{
		ID:        uuid.New().String(),
		CreatedAt: now,
		EndedAt:   now,
		Project:   project,
		Intent: Intent{
			RawPrompt: rawPrompt,
			TaskType:  TaskUnknown,
		},
		Outcome: Outcome{Status: StatusUnknown},
		Utility: Utility{LastUpdatedAt: now},
	}
}

// Validate checks the model invariants. A violation means the episode
// must be rejected as invalid input, not stored.
func (e *Episode) Validate() error {
	if e.ID == "" {
		return ErrMissingID
	}
	if e.Intent.RawPrompt == "" {
		return ErrEmptyPrompt
	}
	if !e.Intent.TaskType.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidTaskType, e.Intent.TaskType)
	}
	if !e.Outcome.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, e.Outcome.Status)
	}
	if e.EndedAt.Before(e.CreatedAt) {
		return fmt.Errorf("%w: ended_at %s before created_at %s",
			ErrInvalidTimestamp, e.EndedAt.Format(time.RFC3339), e.CreatedAt.Format(time.RFC3339))
	}
	if e.Utility.HelpfulCount < 0 || e.Utility.RetrievalCount < 0 ||
		e.Utility.HelpfulCount > float64(e.Utility.RetrievalCount) {
		return fmt.Errorf("%w: helpful=%g retrievals=%d",
			ErrInvalidUtility, e.Utility.HelpfulCount, e.Utility.RetrievalCount)
	}
	if e.Utility.Score < 0 || e.Utility.Score > 1 {
		return fmt.Errorf("%w: score=%g", ErrInvalidUtility, e.Utility.Score)
	}
	return nil
}

// ShortID returns the first 8 characters of the id, the form used in
// file names and human output.
func (e *Episode) ShortID() string {
	return ShortID(e.ID)
}

// ShortID truncates an id to its 8-character prefix.
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Clone returns a deep copy. Consumers outside the store must treat
// episodes as value snapshots; cloning keeps annotation writes from
// leaking through shared slices.
func (e *Episode) Clone() *Episode {
	c := *e
	c.Intent.DomainTags = append([]string(nil), e.Intent.DomainTags...)
	c.Context.FilesRead = append([]string(nil), e.Context.FilesRead...)
	c.Context.FilesModified = append([]string(nil), e.Context.FilesModified...)
	c.Context.ToolsInvoked = append([]string(nil), e.Context.ToolsInvoked...)
	c.Context.Errors = append([]ErrorRecord(nil), e.Context.Errors...)
	c.History = make([]RetrievalRecord, len(e.History))
	for i, r := range e.History {
		c.History[i] = r
		if r.Helpful != nil {
			h := *r.Helpful
			c.History[i].Helpful = &h
		}
	}
	if e.Outcome.TestsBefore != nil {
		tb := *e.Outcome.TestsBefore
		c.Outcome.TestsBefore = &tb
	}
	if e.Outcome.TestsAfter != nil {
		ta := *e.Outcome.TestsAfter
		c.Outcome.TestsAfter = &ta
	}
	if e.Utility.LastRetrievedAt != nil {
		t := *e.Utility.LastRetrievedAt
		c.Utility.LastRetrievedAt = &t
	}
	return &c
}

// RecordRetrieval prepends a history entry, bumps the retrieval counter
// and stamps last_retrieved_at. The history is truncated to HistoryCap.
func (e *Episode) RecordRetrieval(at time.Time, query, project string) {
	at = at.UTC().Truncate(time.Second)
	e.History = append([]RetrievalRecord{{At: at, Query: query, Project: project}}, e.History...)
	if len(e.History) > HistoryCap {
		e.History = e.History[:HistoryCap]
	}
	e.Utility.RetrievalCount++
	e.Utility.LastRetrievedAt = &at
	if at.After(e.Utility.LastUpdatedAt) {
		e.Utility.LastUpdatedAt = at
	}
}

// RetrievedWithin reports whether any history entry falls inside
// [from, to], the check temporal credit uses to find episodes consulted
// during a session window.
func (e *Episode) RetrievedWithin(from, to time.Time) bool {
	for _, r := range e.History {
		if !r.At.Before(from) && !r.At.After(to) {
			return true
		}
	}
	return false
}

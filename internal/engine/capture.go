package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/episode"
)

// CaptureInput is the structured session handed to Capture. Parsing a
// raw transcript into this shape is a collaborator concern.
type CaptureInput struct {
	Project   string    `json:"project,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
	EndedAt   time.Time `json:"ended_at,omitempty"`

	RawPrompt  string   `json:"raw_prompt"`
	Summary    string   `json:"summary,omitempty"`
	TaskType   string   `json:"task_type,omitempty"`
	DomainTags []string `json:"domain_tags,omitempty"`

	FilesRead     []string              `json:"files_read,omitempty"`
	FilesModified []string              `json:"files_modified,omitempty"`
	ToolsInvoked  []string              `json:"tools_invoked,omitempty"`
	Errors        []episode.ErrorRecord `json:"errors,omitempty"`

	Status      string               `json:"status,omitempty"`
	TestsBefore *episode.TestCounts  `json:"tests_before,omitempty"`
	TestsAfter  *episode.TestCounts  `json:"tests_after,omitempty"`
	CommitRef   string               `json:"commit_ref,omitempty"`
	PRRef       int                  `json:"pr_ref,omitempty"`
}

// CaptureResult reports a stored episode.
type CaptureResult struct {
	ID       string `json:"id"`
	Indexed  bool   `json:"indexed"`
	Credited int    `json:"credited"`
}

// Capture stores a new episode, indexes it, and runs temporal credit
// when the outcome is terminal.
//
// The content-store write happens first; a failed vector write leaves
// the episode persisted and marked needs_indexing, and capture still
// succeeds.
func (en *Engine) Capture(ctx context.Context, input CaptureInput) (CaptureResult, error) {
	var result CaptureResult

	e, err := buildEpisode(input)
	if err != nil {
		return result, translate(err)
	}
	if err := en.store.Put(ctx, e); err != nil {
		return result, translate(err)
	}
	result.ID = e.ID

	if en.vecidx != nil {
		if err := en.indexer.Index(ctx, e); err != nil {
			en.logger.Warn("vector write failed at capture, queued for reindex",
				zap.String("id", e.ShortID()), zap.Error(err))
			en.markNeedsIndexing(ctx, e.ID)
		} else {
			result.Indexed = true
		}
	} else {
		en.markNeedsIndexing(ctx, e.ID)
	}

	if e.Outcome.Status.Terminal() {
		credited, err := en.utility.TemporalCredit(ctx, e)
		if err != nil {
			en.logger.Warn("temporal credit at capture",
				zap.String("id", e.ShortID()), zap.Error(err))
		}
		result.Credited = credited
	}

	en.logger.Info("episode captured",
		zap.String("id", e.ShortID()),
		zap.String("project", e.Project),
		zap.String("task_type", string(e.Intent.TaskType)),
		zap.String("status", string(e.Outcome.Status)),
		zap.Bool("indexed", result.Indexed),
	)
	return result, nil
}

func (en *Engine) markNeedsIndexing(ctx context.Context, id string) {
	if _, err := en.store.Update(ctx, id, func(ep *episode.Episode) error {
		ep.NeedsIndexing = true
		return nil
	}); err != nil {
		en.logger.Warn("marking needs_indexing", zap.String("id", id), zap.Error(err))
	}
}

// buildEpisode maps input onto a validated episode with server-assigned
// id and timestamps.
func buildEpisode(input CaptureInput) (*episode.Episode, error) {
	e := episode.New(input.Project, input.RawPrompt)

	if !input.StartedAt.IsZero() {
		e.CreatedAt = input.StartedAt.UTC().Truncate(time.Second)
	}
	e.EndedAt = e.CreatedAt
	if !input.EndedAt.IsZero() {
		e.EndedAt = input.EndedAt.UTC().Truncate(time.Second)
	}
	if e.Utility.LastUpdatedAt.Before(e.EndedAt) {
		e.Utility.LastUpdatedAt = e.EndedAt
	}

	e.Intent.Summary = input.Summary
	if input.TaskType != "" {
		if !episode.TaskType(input.TaskType).Valid() {
			return nil, fmt.Errorf("%w: task type %q", ErrInvalidInput, input.TaskType)
		}
		e.Intent.TaskType = episode.TaskType(input.TaskType)
	}
	e.Intent.DomainTags = input.DomainTags

	e.Context.FilesRead = input.FilesRead
	e.Context.FilesModified = input.FilesModified
	e.Context.ToolsInvoked = input.ToolsInvoked
	e.Context.Errors = input.Errors

	if input.Status != "" {
		if !episode.Status(input.Status).Valid() {
			return nil, fmt.Errorf("%w: outcome status %q", ErrInvalidInput, input.Status)
		}
		e.Outcome.Status = episode.Status(input.Status)
	}
	e.Outcome.TestsBefore = input.TestsBefore
	e.Outcome.TestsAfter = input.TestsAfter
	e.Outcome.CommitRef = input.CommitRef
	e.Outcome.PRRef = input.PRRef

	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

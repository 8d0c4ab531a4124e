package utility

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/store"
)

// PruneOptions parameterize a prune run. Zero values fall back to the
// engine's configured policy.
type PruneOptions struct {
	MaxAgeDays int
	MinUtility float64

	// Execute performs deletions; otherwise the run is a dry run.
	Execute bool
}

// PruneCandidate describes one episode selected for deletion.
type PruneCandidate struct {
	ID        string    `json:"id"`
	ShortID   string    `json:"short_id"`
	Prompt    string    `json:"prompt"`
	CreatedAt time.Time `json:"created_at"`
	AgeDays   int       `json:"age_days"`
	Score     float64   `json:"score"`
}

// PruneReport summarizes a prune run.
type PruneReport struct {
	Candidates    []PruneCandidate `json:"candidates"`
	Deleted       int              `json:"deleted"`
	ReleasedBytes int64            `json:"released_bytes"`
}

// Prune selects episodes older than max_age_days with score below
// min_utility and no helpful feedback, and (in execute mode) deletes
// them, vector entry first.
//
// The dry run is a pure function of current state. Execute is resumable:
// each candidate is deleted atomically in delete order, so an
// interrupted run leaves a consistent store and the next run picks up
// the remaining candidates.
func (en *Engine) Prune(ctx context.Context, opts PruneOptions) (PruneReport, error) {
	var report PruneReport

	eps, err := en.store.List(ctx, store.Filter{})
	if err != nil {
		return report, err
	}

	now := en.now()
	maxAge := time.Duration(opts.MaxAgeDays) * 24 * time.Hour
	for _, e := range eps {
		age := now.Sub(e.CreatedAt)
		if age <= maxAge {
			continue
		}
		if e.Utility.Score >= opts.MinUtility {
			continue
		}
		// Helpful feedback protects an episode from automatic deletion
		// regardless of age or score.
		if e.Utility.HelpfulCount > 0 {
			continue
		}
		report.Candidates = append(report.Candidates, PruneCandidate{
			ID:        e.ID,
			ShortID:   e.ShortID(),
			Prompt:    truncate(e.Intent.RawPrompt, 50),
			CreatedAt: e.CreatedAt,
			AgeDays:   int(age.Hours() / 24),
			Score:     e.Utility.Score,
		})
	}

	if !opts.Execute {
		return report, nil
	}

	for _, cand := range report.Candidates {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("%w: deleted %d of %d: %v",
				ErrPruneIncomplete, report.Deleted, len(report.Candidates), err)
		}

		size := en.store.SizeBytes(cand.ID)

		// Vector entry goes first so a crash between the two deletes
		// leaves a retrievable record, never a dangling projection.
		if en.vecidx != nil {
			if err := en.vecidx.Delete(ctx, cand.ID); err != nil {
				return report, fmt.Errorf("%w: deleted %d of %d: %v",
					ErrPruneIncomplete, report.Deleted, len(report.Candidates), err)
			}
		}
		if err := en.store.Delete(ctx, cand.ID); err != nil {
			if errorsIsNotFound(err) {
				continue
			}
			return report, fmt.Errorf("%w: deleted %d of %d: %v",
				ErrPruneIncomplete, report.Deleted, len(report.Candidates), err)
		}
		report.Deleted++
		report.ReleasedBytes += size
	}

	en.logger.Info("prune complete",
		zap.Int("candidates", len(report.Candidates)),
		zap.Int("deleted", report.Deleted),
		zap.Int64("released_bytes", report.ReleasedBytes),
	)
	return report, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

package utility

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/episode"
	"github.com/fyrsmithlabs/recalld/internal/store"
)

// Kind is an explicit feedback verdict.
type Kind string

const (
	Helpful    Kind = "helpful"
	NotHelpful Kind = "not_helpful"
	Mixed      Kind = "mixed"
)

// ParseKind maps user-facing aliases onto a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "helpful", "yes", "y", "good":
		return Helpful, nil
	case "not_helpful", "not-helpful", "unhelpful", "no", "n", "bad":
		return NotHelpful, nil
	case "mixed", "partial":
		return Mixed, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// credit returns the helpful_count increment for the kind.
func (k Kind) credit() (float64, error) {
	switch k {
	case Helpful:
		return 1, nil
	case NotHelpful:
		return 0, nil
	case Mixed:
		return 0.5, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, k)
}

// Feedback applies an explicit verdict to a set of episodes and
// recomputes each score as the Wilson lower bound.
//
// When the episode's retrieval history holds an unscored entry (the
// ranking footprint already incremented retrieval_count), the verdict
// attaches to the most recent such entry and the counter is left alone. Feedback
// with no pending retrieval counts as its own retrieval event.
//
// Returns the ids actually updated. The verdict is journaled once for
// the whole call.
func (en *Engine) Feedback(ctx context.Context, ids []string, kind Kind) ([]string, error) {
	credit, err := kind.credit()
	if err != nil {
		return nil, err
	}

	var updated []string
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return updated, err
		}
		e, err := en.store.Update(ctx, id, func(ep *episode.Episode) error {
			applyFeedback(ep, kind, credit, en.now())
			return nil
		})
		if err != nil {
			if errorsIsNotFound(err) {
				en.logger.Warn("feedback target not found", zap.String("id", id))
				continue
			}
			return updated, err
		}
		updated = append(updated, e.ID)
		en.mirrorScore(ctx, e.ID, e.Utility.Score)
	}

	if en.journal != nil && len(updated) > 0 {
		short := make([]string, len(updated))
		for i, id := range updated {
			short[i] = episode.ShortID(id)
		}
		if err := en.journal.Append(store.EventFeedback, string(kind), short); err != nil {
			en.logger.Warn("journaling feedback", zap.Error(err))
		}
	}
	return updated, nil
}

func applyFeedback(ep *episode.Episode, kind Kind, credit float64, now time.Time) {
	pending := -1
	for i := range ep.History {
		if ep.History[i].Helpful == nil {
			pending = i
			break
		}
	}

	if pending >= 0 {
		verdict := kind == Helpful
		ep.History[pending].Helpful = &verdict
	} else {
		// No footprint for this event: the feedback itself is the
		// retrieval.
		ep.Utility.RetrievalCount++
	}

	ep.Utility.HelpfulCount += credit
	if ep.Utility.HelpfulCount > float64(ep.Utility.RetrievalCount) {
		ep.Utility.HelpfulCount = float64(ep.Utility.RetrievalCount)
	}
	ep.Utility.Score = ep.Utility.WilsonScore()

	ts := now.UTC().Truncate(time.Second)
	if ts.After(ep.Utility.LastUpdatedAt) {
		ep.Utility.LastUpdatedAt = ts
	}
}

func errorsIsNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}

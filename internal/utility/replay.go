package utility

import (
	"context"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/episode"
	"github.com/fyrsmithlabs/recalld/internal/store"
)

// RebuildFromJournal recomputes every episode's retrieval and helpful
// counters from the append-only feedback log and re-derives the Wilson
// score. The journal is the audit source of truth: if counters were
// lost or corrupted (for example by restoring records from a partial
// backup), a replay reconstructs them.
//
// Retrieval histories are not rebuilt (the journal stores only query
// and ids); decay/propagation adjustments are intentionally discarded —
// the replayed score is the pure feedback-driven estimate.
//
// Returns the number of episodes rewritten.
func (en *Engine) RebuildFromJournal(ctx context.Context) (int, error) {
	if en.journal == nil {
		return 0, nil
	}
	events, err := en.journal.Events()
	if err != nil {
		return 0, err
	}

	type counters struct {
		retrievals int
		helpful    float64
		pending    int // retrievals not yet matched by a feedback event
	}
	byID := make(map[string]counters)

	resolve := func(short string) (string, bool) {
		full, err := en.store.Resolve(short)
		if err != nil {
			return "", false
		}
		return full, true
	}

	for _, ev := range events {
		switch ev.Kind {
		case store.EventRetrieval:
			for _, short := range ev.IDs {
				if id, ok := resolve(short); ok {
					c := byID[id]
					c.retrievals++
					c.pending++
					byID[id] = c
				}
			}
		case store.EventFeedback:
			kind, err := ParseKind(ev.Value)
			if err != nil {
				continue
			}
			credit, _ := kind.credit()
			for _, short := range ev.IDs {
				id, ok := resolve(short)
				if !ok {
					continue
				}
				c := byID[id]
				// Feedback attaches to a pending retrieval when one
				// exists, otherwise it counts as its own retrieval,
				// mirroring the live path.
				if c.pending > 0 {
					c.pending--
				} else {
					c.retrievals++
				}
				c.helpful += credit
				byID[id] = c
			}
		}
	}

	rewritten := 0
	for id, c := range byID {
		if err := ctx.Err(); err != nil {
			return rewritten, err
		}
		e, err := en.store.UpdateUtility(ctx, id, func(u *episode.Utility) {
			u.RetrievalCount = c.retrievals
			u.HelpfulCount = c.helpful
			u.Score = u.WilsonScore()
		})
		if err != nil {
			if errorsIsNotFound(err) {
				continue
			}
			return rewritten, err
		}
		en.mirrorScore(ctx, id, e.Utility.Score)
		rewritten++
	}

	en.logger.Info("utility rebuilt from journal",
		zap.Int("events", len(events)),
		zap.Int("episodes", rewritten),
	)
	return rewritten, nil
}

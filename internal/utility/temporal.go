package utility

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/episode"
	"github.com/fyrsmithlabs/recalld/internal/store"
)

// reward maps a terminal outcome to its credit signal.
func reward(status episode.Status) (float64, bool) {
	switch status {
	case episode.StatusSuccess:
		return 1.0, true
	case episode.StatusPartial:
		return 0.5, true
	case episode.StatusFailure:
		return 0.0, true
	}
	return 0, false
}

// TemporalCredit assigns credit for one finished session: every episode
// retrieved inside [s.created_at, s.ended_at] moves toward the
// discounted reward of s's outcome. Runs at capture time for terminal
// episodes and from explicit maintenance invocations.
//
// Returns the number of episodes credited.
func (en *Engine) TemporalCredit(ctx context.Context, s *episode.Episode) (int, error) {
	r, terminal := reward(s.Outcome.Status)
	if !terminal {
		return 0, nil
	}

	eps, err := en.store.List(ctx, store.Filter{})
	if err != nil {
		return 0, err
	}

	credited := 0
	for _, e := range eps {
		if err := ctx.Err(); err != nil {
			return credited, err
		}
		if e.ID == s.ID || !e.RetrievedWithin(s.CreatedAt, s.EndedAt) {
			continue
		}
		target := en.params.DiscountFactor * r
		updated, err := en.store.UpdateUtility(ctx, e.ID, func(u *episode.Utility) {
			u.Score = clamp01(u.Score + en.params.LearningRate*(target-u.Score))
		})
		if err != nil {
			if errorsIsNotFound(err) {
				continue
			}
			return credited, err
		}
		en.mirrorScore(ctx, e.ID, updated.Utility.Score)
		credited++
	}

	if credited > 0 {
		en.logger.Debug("temporal credit assigned",
			zap.String("session", s.ShortID()),
			zap.Float64("reward", r),
			zap.Int("credited", credited),
		)
	}
	return credited, nil
}

// TemporalCreditAll replays temporal credit for every terminal episode,
// oldest first, so later sessions see the effect of earlier ones.
func (en *Engine) TemporalCreditAll(ctx context.Context, project string) (int, error) {
	eps, err := en.store.List(ctx, store.Filter{Project: project})
	if err != nil {
		return 0, err
	}
	sort.Slice(eps, func(i, j int) bool {
		return eps[i].CreatedAt.Before(eps[j].CreatedAt)
	})

	total := 0
	for _, s := range eps {
		if _, terminal := reward(s.Outcome.Status); !terminal {
			continue
		}
		n, err := en.TemporalCredit(ctx, s)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

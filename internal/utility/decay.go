package utility

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/episode"
	"github.com/fyrsmithlabs/recalld/internal/store"
)

// decayEpsilon is the smallest score change worth persisting. Below it,
// lazy decay leaves the record untouched.
const decayEpsilon = 1e-6

// Decayed returns the episode's score after exponential time decay over
// the days since its last activity. The decay base is last activity
// (retrieval or utility update), so successive applications compose:
// decaying after d1 days and again after d2 more equals one decay over
// d1+d2.
func Decayed(u episode.Utility, rate float64, now time.Time) float64 {
	base := u.LastUpdatedAt
	if u.LastRetrievedAt != nil && u.LastRetrievedAt.After(base) {
		base = *u.LastRetrievedAt
	}
	if base.IsZero() || !now.After(base) {
		return u.Score
	}
	days := now.Sub(base).Hours() / 24
	return clamp01(u.Score * math.Exp(-rate*days))
}

// ApplyDecay applies lazy decay to one episode and persists the decayed
// score when it changed materially. Returns the current (possibly
// decayed) score. Decay never increases a score.
func (en *Engine) ApplyDecay(ctx context.Context, id string) (float64, error) {
	e, err := en.store.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	now := en.now()
	decayed := Decayed(e.Utility, en.params.DecayRate, now)
	if e.Utility.Score-decayed < decayEpsilon {
		return e.Utility.Score, nil
	}

	updated, err := en.store.UpdateUtility(ctx, id, func(u *episode.Utility) {
		// Recompute inside the lock; another writer may have touched the
		// score since the read.
		u.Score = Decayed(*u, en.params.DecayRate, now)
	})
	if err != nil {
		return decayed, err
	}
	en.mirrorScore(ctx, id, updated.Utility.Score)
	return updated.Utility.Score, nil
}

// DecayAll runs batch decay over every episode, as part of maintenance.
// Returns the number of episodes whose stored score changed.
func (en *Engine) DecayAll(ctx context.Context, filter store.Filter) (int, error) {
	eps, err := en.store.List(ctx, filter)
	if err != nil {
		return 0, err
	}

	now := en.now()
	changed := 0
	for _, e := range eps {
		if err := ctx.Err(); err != nil {
			return changed, err
		}
		decayed := Decayed(e.Utility, en.params.DecayRate, now)
		if e.Utility.Score-decayed < decayEpsilon {
			continue
		}
		updated, err := en.store.UpdateUtility(ctx, e.ID, func(u *episode.Utility) {
			u.Score = Decayed(*u, en.params.DecayRate, now)
		})
		if err != nil {
			return changed, err
		}
		en.mirrorScore(ctx, e.ID, updated.Utility.Score)
		changed++
	}
	if changed > 0 {
		en.logger.Debug("batch decay complete", zap.Int("changed", changed))
	}
	return changed, nil
}

// Package utility maintains the learned utility score of episodes.
//
// Four mechanisms drive the score, each idempotent under its own
// precondition:
//
//   - Explicit feedback recomputes the score as the Wilson score
//     interval lower bound of the helpful/retrieval ratio.
//   - Time decay shrinks the score exponentially with days of
//     inactivity.
//   - Propagation spreads value from high-scoring seeds to their
//     semantic neighbors in a single conservative pass.
//   - Temporal credit rewards episodes that were retrieved during the
//     session window of a later-observed outcome.
//
// All updates clamp the score to [0,1], never move last_updated_at
// backwards, and mirror the new score into the vector index on a
// best-effort basis.
package utility

// Package recency computes the decaying relevance score attached to every feature.
//
// The score halves every HalfLife seconds since the feature was last updated:
//
//	score = 2^(-(now - last_updated) / HalfLife)
//
// It is 1.0 at the instant of an update and approaches, but never reaches, zero.
package recency

import (
	"math"

	"github.com/nickthorpe71/legend/internal/feature"
)

// HalfLife is the elapsed time, in seconds, after which a score halves.
const HalfLife = 7 * 24 * 60 * 60

// Score returns the recency of a feature last touched at lastUpdated, as seen
// at now. Both are seconds since epoch. A lastUpdated in the future counts
// as "just now".
func Score(lastUpdated, now int64) float64 {
	elapsed := now - lastUpdated
	if elapsed <= 0 {
		return 1.0
	}
	score := math.Exp2(-float64(elapsed) / HalfLife)
	if score <= 0 {
		return math.SmallestNonzeroFloat64
	}
	return score
}

// Rescore recomputes the score of every feature in s. Elapsed time advances
// for all features between invocations, so untouched records are rescored too.
func Rescore(s *feature.State, now int64) {
	for i := range s.Features {
		s.Features[i].RecencyScore = Score(s.Features[i].LastUpdated, now)
	}
}

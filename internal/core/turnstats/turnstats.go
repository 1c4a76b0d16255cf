// Package turnstats folds a per-turn score distribution into campaign
// metrics: the expected number of turns to reach a target, percentile
// turn counts and reach-by-turn probabilities.
//
// Turns are modeled as independent draws from the distribution. The fold
// tracks the probability mass still below the target after each turn and
// reads every output off that survival curve.
package turnstats

import (
	"math"
	"sort"
)

// DefaultMaxTurns bounds the fold when the caller does not specify one.
const DefaultMaxTurns = 60

// reachedEnough stops the fold early once this much mass is at or past
// the target.
const reachedEnough = 0.995

// Metrics is the folded view of a per-turn score distribution.
type Metrics struct {
	// EVTurns is the expected number of turns to reach the target.
	EVTurns float64

	// PWithin maps a requested turn count to the probability of having
	// reached the target by then.
	PWithin map[int]float64

	// EVPoints is the unconditional expected score of one turn.
	EVPoints float64

	// P50Turns and P90Turns are the smallest turn counts whose reach
	// probability is at least 0.5 and 0.9, or +Inf when never reached
	// within the fold.
	P50Turns float64
	P90Turns float64

	// EVPointsSE is the standard error of the simulated mean score.
	// It is filled in by the simulator, not by Compute.
	EVPointsSE float64
}

// Compute folds dist into metrics. dist is indexed by score and should
// sum to roughly 1; target is the score to accumulate across turns;
// maxTurns bounds the fold (DefaultMaxTurns when ≤ 0); probTurns lists
// the turn counts to report reach probabilities for.
func Compute(dist []float64, target, maxTurns int, probTurns []int) Metrics {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}

	m := Metrics{PWithin: make(map[int]float64, len(probTurns))}
	for s, p := range dist {
		m.EVPoints += float64(s) * p
	}

	if target <= 0 {
		m.EVTurns = 0
		m.P50Turns = 1
		m.P90Turns = 1
		for _, t := range probTurns {
			m.PWithin[t] = 1
		}
		return m
	}

	support := make([]int, 0, len(dist))
	for s, p := range dist {
		if p > 0 {
			support = append(support, s)
		}
	}
	if len(support) <= 1 {
		m.EVTurns = math.Inf(1)
		m.P50Turns = math.Inf(1)
		m.P90Turns = math.Inf(1)
		for _, t := range probTurns {
			m.PWithin[t] = 0
		}
		return m
	}
	sort.Ints(support)

	// below[x] is the probability of sitting on accumulated score x with
	// the target not yet reached. reachedBy[t] is the complement of its
	// total mass after t turns.
	below := make([]float64, target)
	below[0] = 1
	reachedBy := make([]float64, 1, maxTurns+1)

	for t := 1; t <= maxTurns; t++ {
		m.EVTurns += 1 - reachedBy[t-1]

		next := make([]float64, target)
		for x, mass := range below {
			if mass == 0 {
				continue
			}
			for _, s := range support {
				if x+s >= target {
					break
				}
				next[x+s] += mass * dist[s]
			}
		}

		remaining := 0.0
		for _, mass := range next {
			remaining += mass
		}
		reachedBy = append(reachedBy, 1-remaining)
		below = next

		if reachedBy[t] >= reachedEnough {
			break
		}
	}

	last := len(reachedBy) - 1
	for _, t := range probTurns {
		switch {
		case t <= 0:
			m.PWithin[t] = 0
		case t <= last:
			m.PWithin[t] = reachedBy[t]
		default:
			m.PWithin[t] = reachedBy[last]
		}
	}

	m.P50Turns = smallestReach(reachedBy, 0.5)
	m.P90Turns = smallestReach(reachedBy, 0.9)
	return m
}

func smallestReach(reachedBy []float64, threshold float64) float64 {
	for t := 1; t < len(reachedBy); t++ {
		if reachedBy[t] >= threshold {
			return float64(t)
		}
	}
	return math.Inf(1)
}

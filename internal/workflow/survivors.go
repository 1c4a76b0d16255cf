package workflow

import (
	"math"

	"github.com/louisbranch/hotdice/internal/core/dice"
	"github.com/louisbranch/hotdice/internal/core/simulate"
	"github.com/louisbranch/hotdice/internal/rank"
	"github.com/louisbranch/hotdice/internal/settings"
)

// filterSurvivors ranks a stage's results and keeps the top slice plus
// every near-tie within the stage epsilon. The survivor list keeps rank
// order so downstream stages stay deterministic.
func filterSurvivors(results []simulate.Result, objective rank.Objective, stage settings.Stage) []dice.CountVector {
	if len(results) == 0 {
		return nil
	}

	ranked := make([]simulate.Result, len(results))
	copy(ranked, results)
	rank.Sort(ranked, objective)

	keep := int(math.Ceil(float64(len(ranked)) * stage.KeepPercent / 100))
	if keep < stage.MinSurvivors {
		keep = stage.MinSurvivors
	}
	if keep > len(ranked) {
		keep = len(ranked)
	}
	cutoff := ranked[keep-1]

	var survivors []dice.CountVector
	if objective == rank.MaxScore {
		limit := cutoff.Metrics.EVTurns + stage.Epsilon
		for _, res := range ranked {
			if res.Metrics.EVTurns <= limit {
				survivors = append(survivors, res.Counts)
			}
		}
	} else {
		floor := rank.Score(cutoff, objective) - stage.Epsilon
		for _, res := range ranked {
			if rank.Score(res, objective) >= floor {
				survivors = append(survivors, res.Counts)
			}
		}
	}

	if len(survivors) == 0 {
		survivors = []dice.CountVector{ranked[0].Counts}
	}
	return survivors
}

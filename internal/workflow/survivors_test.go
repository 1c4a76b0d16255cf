package workflow

import (
	"testing"

	"github.com/louisbranch/hotdice/internal/core/dice"
	"github.com/louisbranch/hotdice/internal/core/simulate"
	"github.com/louisbranch/hotdice/internal/core/turnstats"
	"github.com/louisbranch/hotdice/internal/rank"
	"github.com/louisbranch/hotdice/internal/settings"
)

func maxScoreResult(id int, evTurns float64) simulate.Result {
	return simulate.Result{
		Counts:  dice.CountVector{id, dice.LoadoutSize - id},
		Metrics: turnstats.Metrics{EVTurns: evTurns, EVPoints: 100},
	}
}

func TestFilterSurvivorsMaxScore(t *testing.T) {
	results := []simulate.Result{
		maxScoreResult(0, 12.0),
		maxScoreResult(1, 10.0),
		maxScoreResult(2, 10.05),
		maxScoreResult(3, 15.0),
		maxScoreResult(4, 11.0),
		maxScoreResult(5, 20.0),
	}
	stage := settings.Stage{KeepPercent: 34, Epsilon: 0.1, MinSurvivors: 1}

	survivors := filterSurvivors(results, rank.MaxScore, stage)
	// keep = ceil(6·0.34) = 3, cutoff EVTurns 11.0, epsilon keeps ≤ 11.1.
	if len(survivors) != 3 {
		t.Fatalf("got %d survivors, want 3", len(survivors))
	}
	if survivors[0][0] != 1 || survivors[1][0] != 2 || survivors[2][0] != 4 {
		t.Errorf("survivors = %v, want loadouts 1, 2, 4 in rank order", survivors)
	}
}

func TestFilterSurvivorsEpsilonWidens(t *testing.T) {
	results := []simulate.Result{
		maxScoreResult(0, 10.0),
		maxScoreResult(1, 10.2),
		maxScoreResult(2, 10.3),
		maxScoreResult(3, 30.0),
	}
	stage := settings.Stage{KeepPercent: 25, Epsilon: 0.5, MinSurvivors: 1}

	survivors := filterSurvivors(results, rank.MaxScore, stage)
	// keep = 1, cutoff 10.0, epsilon admits everything within 10.5.
	if len(survivors) != 3 {
		t.Errorf("got %d survivors, want 3", len(survivors))
	}
}

func TestFilterSurvivorsMinSurvivorsFloor(t *testing.T) {
	results := []simulate.Result{
		maxScoreResult(0, 10),
		maxScoreResult(1, 11),
		maxScoreResult(2, 12),
		maxScoreResult(3, 13),
	}
	stage := settings.Stage{KeepPercent: 1, Epsilon: 0, MinSurvivors: 3}

	survivors := filterSurvivors(results, rank.MaxScore, stage)
	if len(survivors) != 3 {
		t.Errorf("got %d survivors, want MinSurvivors floor of 3", len(survivors))
	}
}

func TestFilterSurvivorsFrequencyObjective(t *testing.T) {
	mk := func(id, singles, total int) simulate.Result {
		return simulate.Result{
			Counts:      dice.CountVector{id, dice.LoadoutSize - id},
			TagCounts:   map[string]int{"single_1": singles},
			TotalGroups: total,
		}
	}
	results := []simulate.Result{
		mk(0, 10, 100), // 0.10
		mk(1, 50, 100), // 0.50
		mk(2, 48, 100), // 0.48
		mk(3, 5, 100),  // 0.05
	}
	stage := settings.Stage{KeepPercent: 25, Epsilon: 0.03, MinSurvivors: 1}

	survivors := filterSurvivors(results, rank.SingleOne, stage)
	// keep = 1 (score 0.50); epsilon 0.03 admits 0.48 as well.
	if len(survivors) != 2 {
		t.Fatalf("got %d survivors, want 2", len(survivors))
	}
	if survivors[0][0] != 1 || survivors[1][0] != 2 {
		t.Errorf("survivors = %v", survivors)
	}
}

func TestFilterSurvivorsKeepsAll(t *testing.T) {
	results := []simulate.Result{
		maxScoreResult(0, 10),
		maxScoreResult(1, 11),
	}
	stage := settings.Stage{KeepPercent: 100, Epsilon: 0, MinSurvivors: 1}
	survivors := filterSurvivors(results, rank.MaxScore, stage)
	if len(survivors) != 2 {
		t.Errorf("got %d survivors, want all", len(survivors))
	}
}

func TestFilterSurvivorsEmptyInput(t *testing.T) {
	if got := filterSurvivors(nil, rank.MaxScore, settings.Stage{KeepPercent: 50, MinSurvivors: 1}); got != nil {
		t.Errorf("filterSurvivors(nil) = %v", got)
	}
}

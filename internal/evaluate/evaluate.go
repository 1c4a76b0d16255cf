// Package evaluate turns count vectors into simulation results, one at
// a time or in cancellable batches.
package evaluate

import (
	"context"
	"time"

	"github.com/louisbranch/hotdice/internal/core/dice"
	"github.com/louisbranch/hotdice/internal/core/policy"
	"github.com/louisbranch/hotdice/internal/core/scoring"
	"github.com/louisbranch/hotdice/internal/core/simulate"
	"github.com/louisbranch/hotdice/internal/platform/perf"
	"github.com/louisbranch/hotdice/internal/settings"
)

// Evaluator runs campaigns against a shared scoring table.
type Evaluator struct {
	table *scoring.Table
	sink  perf.Sink
}

// New creates an evaluator. A nil sink disables observation.
func New(table *scoring.Table, sink perf.Sink) *Evaluator {
	return &Evaluator{table: table, sink: perf.OrNull(sink)}
}

// Single evaluates one loadout under the given settings. A non-nil
// seedBase makes the campaign deterministic per count vector.
func (e *Evaluator) Single(counts dice.CountVector, catalog dice.Catalog, set settings.Optimization, seedBase *int64) (simulate.Result, error) {
	profile, err := policy.ProfileFor(set.Risk)
	if err != nil {
		return simulate.Result{}, err
	}

	start := time.Now()
	res, err := simulate.Run(e.table, simulate.Config{
		Counts:   counts,
		Catalog:  catalog,
		Turns:    set.NumTurns,
		Target:   set.Target,
		ScoreCap: set.Cap,
		MaxTurns: set.MaxTurns,
		ProbTurn: set.ProbTurns,
		Profile:  profile,
		SeedBase: seedBase,
	})
	if err != nil {
		e.sink.Incr("evaluate.errors", 1)
		return simulate.Result{}, err
	}

	e.sink.Incr("evaluate.campaigns", 1)
	e.sink.ObserveDuration("evaluate.campaign", time.Since(start))
	return res, nil
}

// Batch evaluates loadouts in order, checking for cancellation before
// each one. On cancellation it returns ctx.Err() and no results.
func (e *Evaluator) Batch(ctx context.Context, loadouts []dice.CountVector, catalog dice.Catalog, set settings.Optimization, seedBase *int64) ([]simulate.Result, error) {
	results := make([]simulate.Result, 0, len(loadouts))
	for _, counts := range loadouts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := e.Single(counts, catalog, set, seedBase)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

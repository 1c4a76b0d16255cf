// Package workflow orchestrates an optimization run: a staged pruning
// cascade over candidate loadouts with cache-aware parallel evaluation,
// survivor filtering between stages, progress reporting and telemetry.
//
// Pilot stages run short seeded campaigns to discard weak candidates
// cheaply; the final stage re-evaluates the survivors at full fidelity
// with fresh randomness. Every evaluation is keyed and cached, so
// re-running an identical configuration is nearly free.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/louisbranch/hotdice/internal/core/dice"
	"github.com/louisbranch/hotdice/internal/core/scoring"
	"github.com/louisbranch/hotdice/internal/core/simulate"
	"github.com/louisbranch/hotdice/internal/evaluate"
	"github.com/louisbranch/hotdice/internal/keys"
	"github.com/louisbranch/hotdice/internal/platform/perf"
	"github.com/louisbranch/hotdice/internal/rank"
	"github.com/louisbranch/hotdice/internal/settings"
	"github.com/louisbranch/hotdice/internal/storage"
)

// Progress interval bounds; configured intervals are clamped into them.
const (
	minProgressInterval = 10 * time.Millisecond
	maxProgressInterval = 5 * time.Second

	defaultProgressInterval = 500 * time.Millisecond
)

// ErrNoLoadouts reports a run without candidates.
var ErrNoLoadouts = errors.New("workflow: no loadouts to evaluate")

// Runner executes optimization runs.
type Runner struct {
	table     *scoring.Table
	evaluator *evaluate.Evaluator
	store     storage.CacheStore
	sink      perf.Sink

	workers          int
	progress         ProgressFunc
	progressInterval time.Duration
}

// Option configures a Runner.
type Option func(*Runner)

// WithCache attaches a cache store. Without one every evaluation is a
// miss.
func WithCache(store storage.CacheStore) Option {
	return func(r *Runner) { r.store = store }
}

// WithWorkers sets the evaluation worker count, clamped at run time to
// the hardware parallelism.
func WithWorkers(n int) Option {
	return func(r *Runner) { r.workers = n }
}

// WithProgress attaches a progress sink firing at most once per
// interval (clamped to 10ms..5s) plus a final event per stage.
func WithProgress(fn ProgressFunc, interval time.Duration) Option {
	return func(r *Runner) {
		r.progress = fn
		r.progressInterval = interval
	}
}

// WithPerfSink attaches an observation sink.
func WithPerfSink(sink perf.Sink) Option {
	return func(r *Runner) { r.sink = sink }
}

// New creates a Runner sharing the given scoring table.
func New(table *scoring.Table, opts ...Option) *Runner {
	r := &Runner{
		table:            table,
		workers:          1,
		progressInterval: defaultProgressInterval,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	r.sink = perf.OrNull(r.sink)
	r.evaluator = evaluate.New(table, r.sink)
	return r
}

// Outcome is the product of a run: the final results, ranked best
// first, plus run telemetry.
type Outcome struct {
	Results   []simulate.Result
	Telemetry Telemetry
}

// Run evaluates the loadouts under the settings and returns the ranked
// outcome. With staged pruning enabled and more than one candidate, the
// efficiency plan drives a pilot cascade; otherwise a single
// full-fidelity pass evaluates everything.
func (r *Runner) Run(ctx context.Context, loadouts []dice.CountVector, catalog dice.Catalog, set settings.Optimization) (*Outcome, error) {
	if len(loadouts) == 0 {
		return nil, ErrNoLoadouts
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tel := Telemetry{RunID: uuid.NewString()}
	runStart := time.Now()
	signature := keys.DiceSignature(catalog)

	var final []simulate.Result
	if set.EfficiencyEnabled && len(loadouts) > 1 {
		staged, err := r.runStaged(ctx, loadouts, catalog, signature, set, &tel)
		if err != nil {
			return nil, err
		}
		final = staged
	}
	if final == nil {
		flat, err := r.runFlat(ctx, loadouts, catalog, signature, set, &tel)
		if err != nil {
			return nil, err
		}
		final = flat
	}

	rank.Sort(final, set.Objective)
	tel.Wall = time.Since(runStart)
	r.sink.ObserveDuration("workflow.run", tel.Wall)
	return &Outcome{Results: final, Telemetry: tel}, nil
}

// runStaged walks the efficiency plan. It returns nil (and no error)
// when every stage was skipped, leaving the flat path to the caller.
func (r *Runner) runStaged(ctx context.Context, loadouts []dice.CountVector, catalog dice.Catalog, signature string, set settings.Optimization, tel *Telemetry) ([]simulate.Result, error) {
	candidates := loadouts
	var lastResults []simulate.Result
	executed := false

	for idx, stage := range set.Stages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(candidates) < stage.MinTotal {
			continue
		}
		executed = true

		spec := stageSpec{
			index: idx,
			count: len(set.Stages),
			kind:  storage.KindFull,
			set:   set,
		}
		spec.set.NumTurns = stage.PilotTurns
		if idx < len(set.Stages)-1 {
			seedBase := set.EfficiencySeed + int64(idx)
			spec.seedBase = &seedBase
			spec.kind = storage.KindPilot
		}

		results, st, err := r.evaluateStage(ctx, spec, candidates, catalog, signature)
		if err != nil {
			return nil, err
		}
		lastResults = results

		candidates = filterSurvivors(results, set.Objective, stage)
		st.Survivors = len(candidates)
		tel.addStage(st)

		if len(candidates) <= 1 {
			break
		}
	}

	if !executed {
		return nil, nil
	}

	keep := make(map[string]bool, len(candidates))
	for _, counts := range candidates {
		keep[counts.Fingerprint()] = true
	}
	final := make([]simulate.Result, 0, len(candidates))
	for _, res := range lastResults {
		if keep[res.Counts.Fingerprint()] {
			final = append(final, res)
		}
	}
	if len(final) == 0 {
		return nil, fmt.Errorf("workflow: no survivor results after %d stages", len(tel.Stages))
	}
	return final, nil
}

// runFlat evaluates every loadout once at full fidelity.
func (r *Runner) runFlat(ctx context.Context, loadouts []dice.CountVector, catalog dice.Catalog, signature string, set settings.Optimization, tel *Telemetry) ([]simulate.Result, error) {
	spec := stageSpec{
		index: 0,
		count: 1,
		kind:  storage.KindFull,
		set:   set,
	}
	results, st, err := r.evaluateStage(ctx, spec, loadouts, catalog, signature)
	if err != nil {
		return nil, err
	}
	st.Survivors = len(results)
	tel.addStage(st)
	return results, nil
}

// Package settings models an optimization run: target and fidelity
// knobs, risk profile, objective and the staged efficiency plan, with
// the validators and normalizers that guard them at the API boundary.
package settings

import (
	"errors"
	"fmt"

	"github.com/louisbranch/hotdice/internal/core/policy"
	"github.com/louisbranch/hotdice/internal/rank"
)

// Defaults for a fresh optimization.
const (
	DefaultTarget   = 2000
	DefaultCap      = 3500
	DefaultNumTurns = 50000
	DefaultMaxTurns = 60
)

// DefaultProbTurns are the reach-by-turn checkpoints reported by default.
func DefaultProbTurns() []int {
	return []int{10, 15, 20}
}

// ErrInvalidSettings reports settings rejected at the API boundary.
var ErrInvalidSettings = errors.New("settings: invalid")

// Stage is one row of the efficiency plan. Stages run in order; every
// stage but the last is a pilot that evaluates candidates at reduced
// fidelity and keeps only the most promising ones.
type Stage struct {
	// MinTotal skips the stage when fewer candidates remain.
	MinTotal int `yaml:"min_total"`

	// PilotTurns is the campaign length used for this stage.
	PilotTurns int `yaml:"pilot_turns"`

	// KeepPercent of candidates survive, bounded below by MinSurvivors.
	KeepPercent float64 `yaml:"keep_percent"`

	// Epsilon widens the survivor cutoff to keep near-ties alive.
	Epsilon float64 `yaml:"epsilon"`

	// MinSurvivors floors the survivor count.
	MinSurvivors int `yaml:"min_survivors"`
}

// DefaultStages is the recommended pruning plan: three pilots of rising
// fidelity and a full-fidelity final pass.
func DefaultStages() []Stage {
	return []Stage{
		{MinTotal: 100000, PilotTurns: 100, KeepPercent: 30, Epsilon: 0.10, MinSurvivors: 100},
		{MinTotal: 10000, PilotTurns: 500, KeepPercent: 10, Epsilon: 0.05, MinSurvivors: 100},
		{MinTotal: 1000, PilotTurns: 1000, KeepPercent: 10, Epsilon: 0.00, MinSurvivors: 100},
		{MinTotal: 0, PilotTurns: 50000, KeepPercent: 100, Epsilon: 0.00, MinSurvivors: 100},
	}
}

// Optimization is the full configuration of one run.
type Optimization struct {
	Target    int
	Cap       int
	NumTurns  int
	MaxTurns  int
	Risk      policy.Kind
	Objective rank.Objective
	ProbTurns []int

	EfficiencyEnabled bool
	EfficiencySeed    int64
	Stages            []Stage
}

// Default returns a balanced MaxScore run with the recommended plan.
func Default() Optimization {
	return Optimization{
		Target:            DefaultTarget,
		Cap:               DefaultCap,
		NumTurns:          DefaultNumTurns,
		MaxTurns:          DefaultMaxTurns,
		Risk:              policy.Balanced,
		Objective:         rank.MaxScore,
		ProbTurns:         DefaultProbTurns(),
		EfficiencyEnabled: true,
		EfficiencySeed:    1,
		Stages:            DefaultStages(),
	}
}

// Validate checks the run configuration, including the plan when staged
// pruning is enabled.
func (o Optimization) Validate() error {
	if o.Target <= 0 {
		return fmt.Errorf("%w: target %d must be positive", ErrInvalidSettings, o.Target)
	}
	if o.NumTurns < 1 {
		return fmt.Errorf("%w: num turns %d must be at least 1", ErrInvalidSettings, o.NumTurns)
	}
	if o.Cap < 0 {
		return fmt.Errorf("%w: cap %d must be non-negative", ErrInvalidSettings, o.Cap)
	}
	if _, err := policy.ProfileFor(o.Risk); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	if !o.Objective.Valid() {
		return fmt.Errorf("%w: unknown objective %q", ErrInvalidSettings, o.Objective)
	}
	for _, t := range o.ProbTurns {
		if t < 1 {
			return fmt.Errorf("%w: prob turn %d must be at least 1", ErrInvalidSettings, t)
		}
	}
	if o.EfficiencyEnabled {
		if errs := ValidatePlan(o.Stages); len(errs) > 0 {
			return &PlanError{Problems: errs}
		}
	}
	return nil
}

// PlanError collects everything wrong with an efficiency plan. The
// workflow refuses to start while it is non-empty.
type PlanError struct {
	Problems []error
}

func (e *PlanError) Error() string {
	if len(e.Problems) == 0 {
		return "settings: invalid plan"
	}
	return fmt.Sprintf("settings: invalid plan: %v (and %d more)", e.Problems[0], len(e.Problems)-1)
}

// ValidatePlan applies the per-row and cross-row plan rules and returns
// every violation found.
func ValidatePlan(stages []Stage) []error {
	var errs []error
	if len(stages) == 0 {
		return []error{fmt.Errorf("plan has no stages")}
	}
	for i, s := range stages {
		if s.MinTotal < 0 {
			errs = append(errs, fmt.Errorf("stage %d: min_total %d must be non-negative", i+1, s.MinTotal))
		}
		if s.PilotTurns < 1 {
			errs = append(errs, fmt.Errorf("stage %d: pilot_turns %d must be at least 1", i+1, s.PilotTurns))
		}
		if s.KeepPercent <= 0 || s.KeepPercent > 100 {
			errs = append(errs, fmt.Errorf("stage %d: keep_percent %g must be in (0, 100]", i+1, s.KeepPercent))
		}
		if s.Epsilon < 0 {
			errs = append(errs, fmt.Errorf("stage %d: epsilon %g must be non-negative", i+1, s.Epsilon))
		}
		if s.MinSurvivors < 1 {
			errs = append(errs, fmt.Errorf("stage %d: min_survivors %d must be at least 1", i+1, s.MinSurvivors))
		}
		if i > 0 {
			if s.MinTotal > stages[i-1].MinTotal {
				errs = append(errs, fmt.Errorf("stage %d: min_total %d exceeds previous %d", i+1, s.MinTotal, stages[i-1].MinTotal))
			}
			if s.PilotTurns <= stages[i-1].PilotTurns {
				errs = append(errs, fmt.Errorf("stage %d: pilot_turns %d must exceed previous %d", i+1, s.PilotTurns, stages[i-1].PilotTurns))
			}
		}
	}
	return errs
}

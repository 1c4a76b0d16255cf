// Package policy computes the risk side of the banking decision: for a
// loadout and a number of dice still in hand, the exact probability that
// the next roll busts and the expected points of the best single
// selection. The pair feeds the simulator's keep-rolling-or-bank rule.
package policy

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/louisbranch/hotdice/internal/core/dice"
	"github.com/louisbranch/hotdice/internal/core/scoring"
)

// ErrInvalidLoadout reports a loadout the estimator cannot work with.
var ErrInvalidLoadout = errors.New("policy: invalid loadout")

// Kind names a risk profile.
type Kind string

const (
	Conservative Kind = "conservative"
	Balanced     Kind = "balanced"
	Aggressive   Kind = "aggressive"
)

// Profile tunes the banking decision. Alpha scales the expected
// continuation value, Beta scales the bust penalty, BankThreshold banks
// any accumulation at or above it, and BustLimit is the highest
// acceptable bust probability for rolling again.
type Profile struct {
	Alpha         float64
	Beta          float64
	BankThreshold int
	BustLimit     float64
}

var profiles = map[Kind]Profile{
	Conservative: {Alpha: 0.6, Beta: 1.4, BankThreshold: 300, BustLimit: 0.25},
	Balanced:     {Alpha: 0.8, Beta: 1.1, BankThreshold: 200, BustLimit: 0.35},
	Aggressive:   {Alpha: 1.0, Beta: 0.9, BankThreshold: 120, BustLimit: 0.45},
}

// ProfileFor resolves a profile by kind.
func ProfileFor(kind Kind) (Profile, error) {
	p, ok := profiles[kind]
	if !ok {
		return Profile{}, fmt.Errorf("policy: unknown risk profile %q", kind)
	}
	return p, nil
}

// Kinds lists the known profile kinds in fixed order.
func Kinds() []Kind {
	return []Kind{Conservative, Balanced, Aggressive}
}

// Estimate is the exact bust probability and expected best-selection
// points for one roll of k dice.
type Estimate struct {
	Bust float64
	EV   float64
}

// pattern is one multinomial face outcome with its coefficient
// k!/(n1!·…·n6!).
type pattern struct {
	counts dice.FaceCount
	coef   float64
}

var (
	patternsOnce sync.Once
	patternsByK  [dice.LoadoutSize + 1][]pattern
)

// patternsFor returns every multinomial face pattern of size k. The
// patterns are enumerated once per process and shared.
func patternsFor(k int) []pattern {
	patternsOnce.Do(func() {
		for n := 1; n <= dice.LoadoutSize; n++ {
			var fc dice.FaceCount
			patternsByK[n] = appendPatterns(patternsByK[n], &fc, 0, n)
		}
	})
	return patternsByK[k]
}

func appendPatterns(out []pattern, fc *dice.FaceCount, face, left int) []pattern {
	if face == dice.Faces-1 {
		fc[face] = left
		out = append(out, pattern{counts: *fc, coef: multinomial(*fc)})
		fc[face] = 0
		return out
	}
	for n := 0; n <= left; n++ {
		fc[face] = n
		out = appendPatterns(out, fc, face+1, left-n)
	}
	fc[face] = 0
	return out
}

func multinomial(fc dice.FaceCount) float64 {
	coef := factorial(fc.Total())
	for _, n := range fc {
		coef /= factorial(n)
	}
	return coef
}

func factorial(n int) float64 {
	f := 1.0
	for i := 2; i <= n; i++ {
		f *= float64(i)
	}
	return f
}

// Estimator memoizes per-k estimates for one loadout. It uses the
// loadout's arithmetic-mean face distribution, so mixed loadouts are
// approximated by their average die.
type Estimator struct {
	table *scoring.Table
	avg   [dice.Faces]float64

	mu   sync.Mutex
	memo [dice.LoadoutSize + 1]*Estimate
}

// NewEstimator builds an estimator for the given expanded loadout.
func NewEstimator(table *scoring.Table, loadout []dice.Type) (*Estimator, error) {
	if len(loadout) == 0 {
		return nil, fmt.Errorf("%w: no dice", ErrInvalidLoadout)
	}
	e := &Estimator{table: table}
	for _, d := range loadout {
		for face := 1; face <= dice.Faces; face++ {
			e.avg[face-1] += d.Probabilities[face]
		}
	}
	sum := 0.0
	for face := 0; face < dice.Faces; face++ {
		e.avg[face] /= float64(len(loadout))
		sum += e.avg[face]
	}
	if sum <= 0 || math.IsNaN(sum) {
		return nil, fmt.Errorf("%w: degenerate probability sum %g", ErrInvalidLoadout, sum)
	}
	return e, nil
}

// Estimate returns the memoized bust/EV pair for rolling k dice.
func (e *Estimator) Estimate(k int) (Estimate, error) {
	if k < 1 || k > dice.LoadoutSize {
		return Estimate{}, fmt.Errorf("policy: k %d out of range 1..%d", k, dice.LoadoutSize)
	}

	e.mu.Lock()
	cached := e.memo[k]
	e.mu.Unlock()
	if cached != nil {
		return *cached, nil
	}

	est, err := e.compute(k)
	if err != nil {
		return Estimate{}, err
	}

	e.mu.Lock()
	e.memo[k] = &est
	e.mu.Unlock()
	return est, nil
}

func (e *Estimator) compute(k int) (Estimate, error) {
	var est Estimate
	for _, pat := range patternsFor(k) {
		prob := pat.coef
		for face := 0; face < dice.Faces; face++ {
			for i := 0; i < pat.counts[face]; i++ {
				prob *= e.avg[face]
			}
		}
		if prob == 0 {
			continue
		}
		sels, err := e.table.Score(pat.counts)
		if err != nil {
			return Estimate{}, err
		}
		if len(sels) == 0 {
			est.Bust += prob
			continue
		}
		est.EV += prob * float64(scoring.MaxPoints(sels))
	}
	return est, nil
}

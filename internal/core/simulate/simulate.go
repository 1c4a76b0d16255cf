// Package simulate runs seeded Monte Carlo campaigns for a loadout.
//
// Each turn walks the banking state machine: roll the remaining dice,
// pick the best scoring selection under the risk policy, spend those
// dice (lowest quality first), and either bank, bust, or roll again.
// Spending every die refills the full loadout (hot dice). The campaign
// accumulates a capped score histogram plus scoring-group tag counts and
// folds the histogram through the turnstats metrics.
package simulate

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/louisbranch/hotdice/internal/core/dice"
	"github.com/louisbranch/hotdice/internal/core/policy"
	"github.com/louisbranch/hotdice/internal/core/scoring"
	"github.com/louisbranch/hotdice/internal/core/turnstats"
	"github.com/louisbranch/hotdice/internal/random"
)

// bustPenalty scales the bust probability inside the selection value
// formula. Busting forfeits the turn, so the penalty is on the order of
// a decent turn's points.
const bustPenalty = 500

// Config describes one campaign.
type Config struct {
	Counts   dice.CountVector
	Catalog  dice.Catalog
	Turns    int
	Target   int
	ScoreCap int
	MaxTurns int
	ProbTurn []int
	Profile  policy.Profile

	// SeedBase, when set, derives the campaign seed from the counts so
	// identical configurations replay identically. When nil the seed
	// comes from the clock.
	SeedBase *int64
}

// Result is the outcome of one campaign.
type Result struct {
	Counts       dice.CountVector
	Metrics      turnstats.Metrics
	MeanPoints   float64
	Std          float64
	TagCounts    map[string]int
	TotalGroups  int
	ScoringTurns int
}

type die struct {
	cdf     [dice.Faces]float64
	quality float64
}

type campaign struct {
	table   *scoring.Table
	est     *policy.Estimator
	profile policy.Profile
	dice    []die
	target  int
	rng     *rand.Rand

	// choice memoizes the winning selection index per packed roll key.
	// The remaining-dice count is implied by the key's total, so the key
	// alone determines the decision.
	choice map[int]int

	remaining []int
	faces     []int
	spendBuf  []int
}

// Run executes the campaign and folds its histogram into metrics.
func Run(table *scoring.Table, cfg Config) (Result, error) {
	if cfg.Turns < 1 {
		return Result{}, fmt.Errorf("simulate: turns %d out of range", cfg.Turns)
	}
	loadout, err := cfg.Counts.Expand(cfg.Catalog)
	if err != nil {
		return Result{}, err
	}
	est, err := policy.NewEstimator(table, loadout)
	if err != nil {
		return Result{}, err
	}

	cap := cfg.ScoreCap
	if cap <= 0 {
		cap = cfg.Target + 1500
		if cap < 1500 {
			cap = 1500
		}
	}

	var seed int64
	if cfg.SeedBase != nil {
		seed = int64(random.DeriveSeed(*cfg.SeedBase, cfg.Counts))
	} else {
		seed = time.Now().UnixNano()
	}

	c := &campaign{
		table:     table,
		est:       est,
		profile:   cfg.Profile,
		target:    cfg.Target,
		rng:       rand.New(rand.NewSource(seed)),
		choice:    make(map[int]int),
		dice:      make([]die, len(loadout)),
		remaining: make([]int, 0, len(loadout)),
		faces:     make([]int, len(loadout)),
		spendBuf:  make([]int, 0, len(loadout)),
	}
	for i, d := range loadout {
		c.dice[i] = die{cdf: d.CDF(), quality: d.Quality()}
	}

	hist := make([]float64, cap+1)
	tagCounts := make(map[string]int)
	totalGroups := 0
	scoringTurns := 0
	sum, sumSq := 0.0, 0.0

	for turn := 0; turn < cfg.Turns; turn++ {
		score, turnTags := c.playTurn()
		bucket := score
		if bucket > cap {
			bucket = cap
		}
		hist[bucket]++
		sum += float64(score)
		sumSq += float64(score) * float64(score)
		if score > 0 {
			scoringTurns++
			for tag, n := range turnTags {
				tagCounts[tag] += n
				totalGroups += n
			}
		}
	}

	n := float64(cfg.Turns)
	mean := sum / n
	variance := sumSq/n - mean*mean
	if variance < 0 {
		variance = 0
	}
	std := math.Sqrt(variance)

	for i := range hist {
		hist[i] /= n
	}

	maxTurns := cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = turnstats.DefaultMaxTurns
	}
	metrics := turnstats.Compute(hist, cfg.Target, maxTurns, cfg.ProbTurn)
	metrics.EVPointsSE = std / math.Sqrt(n)

	return Result{
		Counts:       cfg.Counts.Clone(),
		Metrics:      metrics,
		MeanPoints:   mean,
		Std:          std,
		TagCounts:    tagCounts,
		TotalGroups:  totalGroups,
		ScoringTurns: scoringTurns,
	}, nil
}

// playTurn returns the banked score (0 on bust) and the tag counts of
// the groups spent during the turn.
func (c *campaign) playTurn() (int, map[string]int) {
	c.remaining = c.remaining[:0]
	for i := range c.dice {
		c.remaining = append(c.remaining, i)
	}
	accumulated := 0
	tags := make(map[string]int)

	for {
		var fc dice.FaceCount
		for pos, idx := range c.remaining {
			face := c.roll(idx)
			c.faces[pos] = face
			fc[face-1]++
		}

		key := fc.Pack()
		sels, err := c.table.ScorePacked(key)
		if err != nil || len(sels) == 0 {
			return 0, nil
		}

		sel := sels[c.choose(key, sels, len(c.remaining))]
		c.spend(sel)
		accumulated += sel.Points
		for _, tc := range sel.Tags {
			tags[tc.Tag] += tc.Count
		}

		if accumulated >= c.target {
			return accumulated, tags
		}
		if len(c.remaining) == 0 {
			// Hot dice: refill and keep rolling.
			for i := range c.dice {
				c.remaining = append(c.remaining, i)
			}
			continue
		}
		if accumulated >= c.profile.BankThreshold {
			return accumulated, tags
		}
		est, err := c.est.Estimate(len(c.remaining))
		if err != nil || est.Bust > c.profile.BustLimit {
			return accumulated, tags
		}
	}
}

func (c *campaign) roll(idx int) int {
	r := c.rng.Float64()
	cdf := c.dice[idx].cdf
	for face := 0; face < dice.Faces-1; face++ {
		if r < cdf[face] {
			return face + 1
		}
	}
	return dice.Faces
}

// choose picks the selection maximizing points plus the risk-adjusted
// value of the dice left after spending, memoized per packed key.
func (c *campaign) choose(key int, sels []scoring.Selection, rolled int) int {
	if idx, ok := c.choice[key]; ok {
		return idx
	}
	bestIdx, bestValue := 0, math.Inf(-1)
	for i, sel := range sels {
		left := rolled - sel.UsedDice
		if left == 0 {
			// Spending everything refills the full loadout.
			left = dice.LoadoutSize
		}
		value := float64(sel.Points)
		if est, err := c.est.Estimate(left); err == nil {
			value += c.profile.Alpha*est.EV - c.profile.Beta*est.Bust*bustPenalty
		}
		if value > bestValue {
			bestIdx, bestValue = i, value
		}
	}
	c.choice[key] = bestIdx
	return bestIdx
}

// spend removes the dice a selection consumes from the remaining set,
// preferring the lowest-quality die for each face and falling back to
// insertion order on ties.
func (c *campaign) spend(sel scoring.Selection) {
	for face := 1; face <= dice.Faces; face++ {
		need := sel.UsedCounts[face-1]
		if need == 0 {
			continue
		}

		c.spendBuf = c.spendBuf[:0]
		for pos := range c.remaining {
			if c.faces[pos] == face {
				c.spendBuf = append(c.spendBuf, pos)
			}
		}
		sort.SliceStable(c.spendBuf, func(i, j int) bool {
			qi := c.dice[c.remaining[c.spendBuf[i]]].quality
			qj := c.dice[c.remaining[c.spendBuf[j]]].quality
			return qi < qj
		})

		drop := make(map[int]bool, need)
		for i := 0; i < need && i < len(c.spendBuf); i++ {
			drop[c.spendBuf[i]] = true
		}

		kept := 0
		for pos, idx := range c.remaining {
			if drop[pos] {
				continue
			}
			c.remaining[kept] = idx
			c.faces[kept] = c.faces[pos]
			kept++
		}
		c.remaining = c.remaining[:kept]
	}
}

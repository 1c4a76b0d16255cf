package workflow

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/louisbranch/hotdice/internal/core/dice"
	"github.com/louisbranch/hotdice/internal/core/simulate"
	"github.com/louisbranch/hotdice/internal/core/turnstats"
)

// extFloat marshals like a plain float64 but survives the infinities
// that unreachable targets produce.
type extFloat float64

func (f extFloat) MarshalJSON() ([]byte, error) {
	if math.IsInf(float64(f), 1) {
		return []byte(`"inf"`), nil
	}
	if math.IsInf(float64(f), -1) {
		return []byte(`"-inf"`), nil
	}
	return json.Marshal(float64(f))
}

func (f *extFloat) UnmarshalJSON(b []byte) error {
	switch string(b) {
	case `"inf"`:
		*f = extFloat(math.Inf(1))
		return nil
	case `"-inf"`:
		*f = extFloat(math.Inf(-1))
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = extFloat(v)
	return nil
}

// resultPayload is the cache wire format of a simulation result. Field
// order is fixed and maps marshal with sorted keys, so equal results
// serialize to equal bytes.
type resultPayload struct {
	Counts       []int            `json:"counts"`
	MeanPoints   float64          `json:"mean_points"`
	Std          float64          `json:"std"`
	TagCounts    map[string]int   `json:"tag_counts"`
	TotalGroups  int              `json:"total_groups"`
	ScoringTurns int              `json:"scoring_turns"`
	EVTurns      extFloat         `json:"ev_turns"`
	EVPoints     float64          `json:"ev_points"`
	EVPointsSE   float64          `json:"ev_points_se"`
	P50Turns     extFloat         `json:"p50_turns"`
	P90Turns     extFloat         `json:"p90_turns"`
	PWithin      map[int]extFloat `json:"p_within"`
}

// encodeResult serializes a result for the cache.
func encodeResult(res simulate.Result) ([]byte, error) {
	p := resultPayload{
		Counts:       res.Counts,
		MeanPoints:   res.MeanPoints,
		Std:          res.Std,
		TagCounts:    res.TagCounts,
		TotalGroups:  res.TotalGroups,
		ScoringTurns: res.ScoringTurns,
		EVTurns:      extFloat(res.Metrics.EVTurns),
		EVPoints:     res.Metrics.EVPoints,
		EVPointsSE:   res.Metrics.EVPointsSE,
		P50Turns:     extFloat(res.Metrics.P50Turns),
		P90Turns:     extFloat(res.Metrics.P90Turns),
	}
	if res.Metrics.PWithin != nil {
		p.PWithin = make(map[int]extFloat, len(res.Metrics.PWithin))
		for t, v := range res.Metrics.PWithin {
			p.PWithin[t] = extFloat(v)
		}
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("workflow: encode result: %w", err)
	}
	return b, nil
}

// decodeResult parses a cached payload back into a result.
func decodeResult(b []byte) (simulate.Result, error) {
	var p resultPayload
	if err := json.Unmarshal(b, &p); err != nil {
		return simulate.Result{}, fmt.Errorf("workflow: decode result: %w", err)
	}
	res := simulate.Result{
		Counts:       dice.CountVector(p.Counts),
		MeanPoints:   p.MeanPoints,
		Std:          p.Std,
		TagCounts:    p.TagCounts,
		TotalGroups:  p.TotalGroups,
		ScoringTurns: p.ScoringTurns,
		Metrics: turnstats.Metrics{
			EVTurns:    float64(p.EVTurns),
			EVPoints:   p.EVPoints,
			EVPointsSE: p.EVPointsSE,
			P50Turns:   float64(p.P50Turns),
			P90Turns:   float64(p.P90Turns),
		},
	}
	if p.PWithin != nil {
		res.Metrics.PWithin = make(map[int]float64, len(p.PWithin))
		for t, v := range p.PWithin {
			res.Metrics.PWithin[t] = float64(v)
		}
	}
	return res, nil
}

package settings

import (
	"fmt"
	"math"
	"strconv"
)

// NormalizeStages coerces heterogeneous external plan rows (as decoded
// from YAML or JSON) into stages. Numeric fields accept integers, floats
// and numeric strings; out-of-range values are clamped into validity;
// rows with uncoercible numerics are dropped and reported.
func NormalizeStages(rows []map[string]any) ([]Stage, []error) {
	var stages []Stage
	var errs []error

	for i, row := range rows {
		stage, err := normalizeRow(row)
		if err != nil {
			errs = append(errs, fmt.Errorf("row %d: %w", i+1, err))
			continue
		}
		stages = append(stages, stage)
	}
	return stages, errs
}

func normalizeRow(row map[string]any) (Stage, error) {
	minTotal, err := coerceInt(row, "min_total", 0)
	if err != nil {
		return Stage{}, err
	}
	pilotTurns, err := coerceInt(row, "pilot_turns", 1)
	if err != nil {
		return Stage{}, err
	}
	keepPercent, err := coerceFloat(row, "keep_percent", 100)
	if err != nil {
		return Stage{}, err
	}
	epsilon, err := coerceFloat(row, "epsilon", 0)
	if err != nil {
		return Stage{}, err
	}
	minSurvivors, err := coerceInt(row, "min_survivors", 1)
	if err != nil {
		return Stage{}, err
	}

	return Stage{
		MinTotal:     clampInt(minTotal, 0, math.MaxInt),
		PilotTurns:   clampInt(pilotTurns, 1, math.MaxInt),
		KeepPercent:  clampFloat(keepPercent, 1, 100),
		Epsilon:      clampFloat(epsilon, 0, math.MaxFloat64),
		MinSurvivors: clampInt(minSurvivors, 1, math.MaxInt),
	}, nil
}

func coerceInt(row map[string]any, field string, fallback int) (int, error) {
	v, ok := row[field]
	if !ok || v == nil {
		return fallback, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, fmt.Errorf("%s: %v is not a number", field, n)
		}
		return int(n), nil
	case string:
		parsed, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("%s: cannot coerce %q", field, n)
		}
		return int(parsed), nil
	default:
		return 0, fmt.Errorf("%s: cannot coerce %T", field, v)
	}
}

func coerceFloat(row map[string]any, field string, fallback float64) (float64, error) {
	v, ok := row[field]
	if !ok || v == nil {
		return fallback, nil
	}
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, fmt.Errorf("%s: %v is not a number", field, n)
		}
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case string:
		parsed, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("%s: cannot coerce %q", field, n)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("%s: cannot coerce %T", field, v)
	}
}

func clampInt(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

func clampFloat(n, lo, hi float64) float64 {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

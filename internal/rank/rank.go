// Package rank orders simulation results by the user's objective and
// renders tag counts into presentation buckets.
package rank

import (
	"math"
	"sort"
	"strings"

	"github.com/louisbranch/hotdice/internal/core/scoring"
	"github.com/louisbranch/hotdice/internal/core/simulate"
)

// Objective selects the rank function.
type Objective string

const (
	// MaxScore ranks by expected turns to target, then expected points.
	MaxScore Objective = "max_score"

	// Tag-frequency objectives rank by how often a group occurs.
	SingleOne   Objective = "single_1"
	SingleFive  Objective = "single_5"
	Straight15  Objective = "straight_1_5"
	Straight26  Objective = "straight_2_6"
	Straight16  Objective = "straight_1_6"
	StraightAny Objective = "straight"
	Kind3Plus1  Objective = "kind_1"
	Kind3Plus2  Objective = "kind_2"
	Kind3Plus3  Objective = "kind_3"
	Kind3Plus4  Objective = "kind_4"
	Kind3Plus5  Objective = "kind_5"
	Kind3Plus6  Objective = "kind_6"
)

// Objectives lists every known objective in fixed order.
func Objectives() []Objective {
	return []Objective{
		MaxScore,
		SingleOne, SingleFive,
		Straight15, Straight26, Straight16, StraightAny,
		Kind3Plus1, Kind3Plus2, Kind3Plus3, Kind3Plus4, Kind3Plus5, Kind3Plus6,
	}
}

// Valid reports whether the objective is known.
func (o Objective) Valid() bool {
	for _, known := range Objectives() {
		if o == known {
			return true
		}
	}
	return false
}

var kindFaces = map[Objective]int{
	Kind3Plus1: 1, Kind3Plus2: 2, Kind3Plus3: 3,
	Kind3Plus4: 4, Kind3Plus5: 5, Kind3Plus6: 6,
}

// Score computes the objective score of a result. MaxScore returns 0;
// its ordering lives entirely in Less. Frequency objectives divide tag
// occurrences by the total number of scoring groups.
func Score(res simulate.Result, o Objective) float64 {
	if o == MaxScore {
		return 0
	}
	if res.TotalGroups == 0 {
		return 0
	}
	total := float64(res.TotalGroups)

	switch o {
	case SingleOne:
		return float64(res.TagCounts[scoring.TagSingleOne]) / total
	case SingleFive:
		return float64(res.TagCounts[scoring.TagSingleFive]) / total
	case Straight15:
		return float64(res.TagCounts[scoring.TagStraight15]) / total
	case Straight26:
		return float64(res.TagCounts[scoring.TagStraight26]) / total
	case Straight16:
		return float64(res.TagCounts[scoring.TagStraight16]) / total
	case StraightAny:
		n := res.TagCounts[scoring.TagStraight15] +
			res.TagCounts[scoring.TagStraight26] +
			res.TagCounts[scoring.TagStraight16]
		return float64(n) / total
	}

	if face, ok := kindFaces[o]; ok {
		prefix := scoring.KindTagPrefix(face)
		n := 0
		for tag, count := range res.TagCounts {
			if strings.HasPrefix(tag, prefix) {
				n += count
			}
		}
		return float64(n) / total
	}
	return 0
}

// Less reports whether a ranks strictly better than b under the
// objective. Ascending sort by Less puts the best result first.
func Less(a, b simulate.Result, o Objective) bool {
	if o == MaxScore {
		if a.Metrics.EVTurns != b.Metrics.EVTurns {
			return a.Metrics.EVTurns < b.Metrics.EVTurns
		}
		return a.Metrics.EVPoints > b.Metrics.EVPoints
	}
	sa, sb := Score(a, o), Score(b, o)
	if sa != sb {
		return sa > sb
	}
	return a.Metrics.EVTurns < b.Metrics.EVTurns
}

// Sort orders results best-first, stably so equal results keep their
// input order.
func Sort(results []simulate.Result, o Objective) {
	sort.SliceStable(results, func(i, j int) bool {
		return Less(results[i], results[j], o)
	})
}

// Grouped presentation buckets.
const (
	BucketSingleOne = "1_ok"
	BucketKind3     = "3_ok"
	BucketKind4     = "4_ok"
	BucketKind5     = "5_ok"
	BucketKind6     = "6_ok"
	BucketShortRun  = "5_s"
	BucketFullRun   = "6_s"
)

var kindBuckets = map[int]string{
	3: BucketKind3,
	4: BucketKind4,
	5: BucketKind5,
	6: BucketKind6,
}

// GroupedHandPercentages maps tag counts into the display buckets as
// integer percentages of the total group count, rounded half to even.
// Five-die straights of either span share one bucket; the full straight
// has its own.
func GroupedHandPercentages(tagCounts map[string]int, totalGroups int) map[string]int {
	buckets := map[string]int{
		BucketSingleOne: 0,
		BucketKind3:     0,
		BucketKind4:     0,
		BucketKind5:     0,
		BucketKind6:     0,
		BucketShortRun:  0,
		BucketFullRun:   0,
	}
	if totalGroups <= 0 {
		return buckets
	}

	raw := make(map[string]int, len(buckets))
	for tag, count := range tagCounts {
		switch {
		case tag == scoring.TagSingleOne:
			raw[BucketSingleOne] += count
		case tag == scoring.TagStraight15 || tag == scoring.TagStraight26:
			raw[BucketShortRun] += count
		case tag == scoring.TagStraight16:
			raw[BucketFullRun] += count
		case strings.HasPrefix(tag, "kind_"):
			if n, ok := kindSize(tag); ok {
				if bucket, ok := kindBuckets[n]; ok {
					raw[bucket] += count
				}
			}
		}
	}

	for bucket, count := range raw {
		pct := 100 * float64(count) / float64(totalGroups)
		buckets[bucket] = int(math.RoundToEven(pct))
	}
	return buckets
}

// kindSize extracts n from a "kind_<f>_<n>ok" tag.
func kindSize(tag string) (int, bool) {
	rest, ok := strings.CutPrefix(tag, "kind_")
	if !ok {
		return 0, false
	}
	parts := strings.SplitN(rest, "_", 2)
	if len(parts) != 2 || len(parts[0]) != 1 {
		return 0, false
	}
	face := int(parts[0][0] - '0')
	if face < 1 || face > 6 {
		return 0, false
	}
	sizePart, ok := strings.CutSuffix(parts[1], "ok")
	if !ok || len(sizePart) != 1 {
		return 0, false
	}
	n := int(sizePart[0] - '0')
	if n < 3 || n > 6 {
		return 0, false
	}
	return n, true
}

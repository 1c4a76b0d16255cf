// Package scoring enumerates the scoring selections available for a roll.
//
// The rules are the classic dice-banking set: ones and fives score as
// singles, three or more of a kind score base·(n−2), and the three
// straights score fixed amounts. For every legal face-count vector the
// engine precomputes the full list of undominated selections, indexed by
// an 18-bit packed key, so the simulation hot path is a single array
// lookup.
package scoring

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/louisbranch/hotdice/internal/core/dice"
)

// Tag names for the primitive scoring groups.
const (
	TagSingleOne   = "single_1"
	TagSingleFive  = "single_5"
	TagStraight15  = "straight_1_5"
	TagStraight26  = "straight_2_6"
	TagStraight16  = "straight_1_6"
	kindTagPattern = "kind_%d_%dok"
)

// KindTagPrefix returns the tag prefix shared by all of-a-kind groups for
// a face, e.g. "kind_3_" for triples and better of face 3.
func KindTagPrefix(face int) string {
	return fmt.Sprintf("kind_%d_", face)
}

// ErrInvalidFaceCount reports a face-count vector outside the legal range.
var ErrInvalidFaceCount = errors.New("scoring: invalid face count")

// TagCount pairs a scoring-group tag with how many times the group
// occurs in a selection.
type TagCount struct {
	Tag   string
	Count int
}

// Selection is one way to spend dice from a roll for points.
type Selection struct {
	UsedCounts [dice.Faces]int
	UsedDice   int
	Points     int
	Tags       []TagCount
}

// Table holds the precomputed selection lists for every packed key.
// Build once and share; lookups are read-only.
type Table struct {
	selections [][]Selection
}

// NewTable builds the full selection table. Roughly nine hundred keys are
// legal (face counts with total ≤ 6); every other key stays empty.
func NewTable() *Table {
	t := &Table{selections: make([][]Selection, dice.PackedKeySpace)}
	var fc dice.FaceCount
	t.build(&fc, 0, 0)
	return t
}

func (t *Table) build(fc *dice.FaceCount, face, total int) {
	if face == dice.Faces {
		t.selections[fc.Pack()] = enumerate(*fc)
		return
	}
	for n := 0; n+total <= dice.LoadoutSize; n++ {
		fc[face] = n
		t.build(fc, face+1, total+n)
	}
	fc[face] = 0
}

// Score returns every undominated selection for the given face counts.
// The returned slice is shared and must not be mutated. An empty result
// means the roll is a bust.
func (t *Table) Score(fc dice.FaceCount) ([]Selection, error) {
	if err := fc.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFaceCount, err)
	}
	return t.selections[fc.Pack()], nil
}

// ScorePacked is the hot-path lookup by packed key.
func (t *Table) ScorePacked(key int) ([]Selection, error) {
	if key < 0 || key >= dice.PackedKeySpace {
		return nil, fmt.Errorf("%w: key %d out of range", ErrInvalidFaceCount, key)
	}
	fc := dice.UnpackFaceCount(key)
	if err := fc.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFaceCount, err)
	}
	return t.selections[key], nil
}

// group is a primitive scoring group before combination.
type group struct {
	uses   [dice.Faces]int
	points int
	tag    string
	mult   int
}

// primitiveGroups lists every group the face counts can form on its own.
func primitiveGroups(fc dice.FaceCount) []group {
	var groups []group

	for n := 1; n <= fc[0]; n++ {
		g := group{points: 100 * n, tag: TagSingleOne, mult: n}
		g.uses[0] = n
		groups = append(groups, g)
	}
	for n := 1; n <= fc[4]; n++ {
		g := group{points: 50 * n, tag: TagSingleFive, mult: n}
		g.uses[4] = n
		groups = append(groups, g)
	}

	for face := 1; face <= dice.Faces; face++ {
		base := 100 * face
		if face == 1 {
			base = 1000
		}
		for n := 3; n <= fc[face-1]; n++ {
			g := group{
				points: base * (n - 2),
				tag:    fmt.Sprintf(kindTagPattern, face, n),
				mult:   1,
			}
			g.uses[face-1] = n
			groups = append(groups, g)
		}
	}

	if hasRun(fc, 0, 4) {
		groups = append(groups, straightGroup(0, 4, 500, TagStraight15))
	}
	if hasRun(fc, 1, 5) {
		groups = append(groups, straightGroup(1, 5, 750, TagStraight26))
	}
	if hasRun(fc, 0, 5) {
		groups = append(groups, straightGroup(0, 5, 1500, TagStraight16))
	}

	return groups
}

func hasRun(fc dice.FaceCount, lo, hi int) bool {
	for i := lo; i <= hi; i++ {
		if fc[i] == 0 {
			return false
		}
	}
	return true
}

func straightGroup(lo, hi, points int, tag string) group {
	g := group{points: points, tag: tag, mult: 1}
	for i := lo; i <= hi; i++ {
		g.uses[i] = 1
	}
	return g
}

// enumerate combines primitive groups into every distinct selection the
// face counts support, then drops dominated ones.
func enumerate(fc dice.FaceCount) []Selection {
	groups := primitiveGroups(fc)
	if len(groups) == 0 {
		return nil
	}

	seen := make(map[string]Selection)
	var used [dice.Faces]int
	tags := make(map[string]int)
	combine(fc, groups, 0, used, 0, tags, seen)

	selections := make([]Selection, 0, len(seen))
	for _, sel := range seen {
		selections = append(selections, sel)
	}
	selections = dropDominated(selections)

	sort.Slice(selections, func(i, j int) bool {
		a, b := selections[i], selections[j]
		if a.Points != b.Points {
			return a.Points > b.Points
		}
		if a.UsedDice != b.UsedDice {
			return a.UsedDice < b.UsedDice
		}
		for f := 0; f < dice.Faces; f++ {
			if a.UsedCounts[f] != b.UsedCounts[f] {
				return a.UsedCounts[f] < b.UsedCounts[f]
			}
		}
		return false
	})
	return selections
}

func combine(fc dice.FaceCount, groups []group, idx int, used [dice.Faces]int, points int, tags map[string]int, seen map[string]Selection) {
	if idx == len(groups) {
		if points == 0 {
			return
		}
		record(used, points, tags, seen)
		return
	}

	// Skip this group.
	combine(fc, groups, idx+1, used, points, tags, seen)

	// Take it if the faces are still available.
	g := groups[idx]
	for f := 0; f < dice.Faces; f++ {
		if used[f]+g.uses[f] > fc[f] {
			return
		}
	}
	for f := 0; f < dice.Faces; f++ {
		used[f] += g.uses[f]
	}
	tags[g.tag] += g.mult
	combine(fc, groups, idx+1, used, points+g.points, tags, seen)
	tags[g.tag] -= g.mult
	if tags[g.tag] == 0 {
		delete(tags, g.tag)
	}
}

func record(used [dice.Faces]int, points int, tags map[string]int, seen map[string]Selection) {
	names := make([]string, 0, len(tags))
	for tag := range tags {
		names = append(names, tag)
	}
	sort.Strings(names)

	tcs := make([]TagCount, 0, len(names))
	var key strings.Builder
	for f := 0; f < dice.Faces; f++ {
		fmt.Fprintf(&key, "%d,", used[f])
	}
	fmt.Fprintf(&key, "|%d|", points)
	for _, tag := range names {
		tcs = append(tcs, TagCount{Tag: tag, Count: tags[tag]})
		fmt.Fprintf(&key, "%s:%d;", tag, tags[tag])
	}
	if _, ok := seen[key.String()]; ok {
		return
	}

	usedDice := 0
	for _, n := range used {
		usedDice += n
	}
	seen[key.String()] = Selection{
		UsedCounts: used,
		UsedDice:   usedDice,
		Points:     points,
		Tags:       tcs,
	}
}

// dropDominated removes selections that spend the same dice as another
// selection for strictly fewer points. Spending the same dice for less
// can never win under the decision policy.
func dropDominated(selections []Selection) []Selection {
	best := make(map[[dice.Faces]int]int, len(selections))
	for _, sel := range selections {
		if p, ok := best[sel.UsedCounts]; !ok || sel.Points > p {
			best[sel.UsedCounts] = sel.Points
		}
	}
	out := selections[:0]
	for _, sel := range selections {
		if sel.Points == best[sel.UsedCounts] {
			out = append(out, sel)
		}
	}
	return out
}

// MaxPoints returns the highest point total among the selections, or 0
// when the list is empty.
func MaxPoints(selections []Selection) int {
	max := 0
	for _, sel := range selections {
		if sel.Points > max {
			max = sel.Points
		}
	}
	return max
}

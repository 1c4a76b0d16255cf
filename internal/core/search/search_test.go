package search

import (
	"reflect"
	"sort"
	"testing"

	"github.com/louisbranch/hotdice/internal/core/dice"
)

func TestCountCombinations(t *testing.T) {
	tests := []struct {
		name      string
		inventory []int
		total     int
		want      int64
	}{
		{name: "bounded triple", inventory: []int{2, 2, 2}, total: 3, want: 7},
		{name: "single bucket exact", inventory: []int{6}, total: 6, want: 1},
		{name: "single bucket short", inventory: []int{5}, total: 6, want: 0},
		{name: "empty inventory", inventory: nil, total: 6, want: 0},
		{name: "zero total", inventory: []int{3, 3}, total: 0, want: 1},
		{name: "unbounded-ish", inventory: []int{6, 6, 6, 6}, total: 6, want: 84},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CountCombinations(tt.inventory, tt.total); got != tt.want {
				t.Errorf("CountCombinations(%v, %d) = %d, want %d", tt.inventory, tt.total, got, tt.want)
			}
		})
	}
}

func TestEnumerateMatchesCount(t *testing.T) {
	inventories := [][]int{
		{2, 2, 2},
		{6, 6},
		{1, 1, 1, 1, 1, 1},
		{3, 0, 4, 2},
		{6, 6, 6, 6, 6},
	}
	for _, inv := range inventories {
		vectors := Enumerate(inv, dice.LoadoutSize, 0)
		want := CountCombinations(inv, dice.LoadoutSize)
		if int64(len(vectors)) != want {
			t.Errorf("Enumerate(%v) yields %d vectors, CountCombinations says %d", inv, len(vectors), want)
		}

		seen := make(map[string]bool)
		for _, v := range vectors {
			if v.Sum() != dice.LoadoutSize {
				t.Errorf("Enumerate(%v): vector %v sums to %d", inv, v, v.Sum())
			}
			for i, n := range v {
				if n > inv[i] {
					t.Errorf("Enumerate(%v): vector %v exceeds inventory at %d", inv, v, i)
				}
			}
			fp := v.Fingerprint()
			if seen[fp] {
				t.Errorf("Enumerate(%v): duplicate vector %v", inv, v)
			}
			seen[fp] = true
		}
	}
}

func TestEnumerateLexicographic(t *testing.T) {
	vectors := Enumerate([]int{2, 2, 2}, 3, 0)
	sorted := make([]dice.CountVector, len(vectors))
	copy(sorted, vectors)
	sort.Slice(sorted, func(i, j int) bool {
		for k := range sorted[i] {
			if sorted[i][k] != sorted[j][k] {
				return sorted[i][k] < sorted[j][k]
			}
		}
		return false
	})
	if !reflect.DeepEqual(vectors, sorted) {
		t.Errorf("Enumerate() not lexicographic: %v", vectors)
	}
}

func TestEnumerateLimit(t *testing.T) {
	vectors := Enumerate([]int{6, 6, 6}, 6, 3)
	if len(vectors) != 3 {
		t.Errorf("Enumerate(limit=3) yields %d vectors", len(vectors))
	}
	full := Enumerate([]int{6, 6, 6}, 6, 0)
	for i := range vectors {
		if !reflect.DeepEqual(vectors[i], full[i]) {
			t.Errorf("limited enumeration diverges at %d: %v vs %v", i, vectors[i], full[i])
		}
	}
}

func TestEnumerateEmptyInventory(t *testing.T) {
	if got := Enumerate(nil, 6, 0); got != nil {
		t.Errorf("Enumerate(nil) = %v, want nil", got)
	}
}

func TestRandomLoadouts(t *testing.T) {
	inv := []int{6, 6, 6, 6}
	qualities := []float64{33, 50, 40, 35}

	loadouts := RandomLoadouts(inv, qualities, dice.LoadoutSize, 20, 99)
	if len(loadouts) != 20 {
		t.Fatalf("RandomLoadouts() yields %d loadouts, want 20", len(loadouts))
	}

	seen := make(map[string]bool)
	for _, v := range loadouts {
		if v.Sum() != dice.LoadoutSize {
			t.Errorf("loadout %v sums to %d", v, v.Sum())
		}
		for i, n := range v {
			if n > inv[i] {
				t.Errorf("loadout %v exceeds inventory at %d", v, i)
			}
		}
		fp := v.Fingerprint()
		if seen[fp] {
			t.Errorf("duplicate loadout %v", v)
		}
		seen[fp] = true
	}
}

func TestRandomLoadoutsDeterministic(t *testing.T) {
	inv := []int{6, 6, 6}
	qualities := []float64{33, 50, 40}
	a := RandomLoadouts(inv, qualities, dice.LoadoutSize, 10, 7)
	b := RandomLoadouts(inv, qualities, dice.LoadoutSize, 10, 7)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("same seed produced different samples: %v vs %v", a, b)
	}
}

func TestRandomLoadoutsExhaustsUniverse(t *testing.T) {
	// Only 7 distinct vectors exist; asking for more returns them all.
	inv := []int{2, 2, 2}
	loadouts := RandomLoadouts(inv, []float64{1, 1, 1}, 3, 50, 5)
	if len(loadouts) != 7 {
		t.Errorf("RandomLoadouts() found %d of 7 vectors", len(loadouts))
	}
}

func TestRandomLoadoutsInfeasible(t *testing.T) {
	if got := RandomLoadouts([]int{1, 1}, []float64{1, 1}, 6, 5, 1); got != nil {
		t.Errorf("RandomLoadouts() on short inventory = %v, want nil", got)
	}
}

// Package search enumerates the feasible loadouts of an inventory:
// every bounded multiset of dice summing to the loadout size, counted by
// a stars-and-bars fold, listed by depth-first recursion, or sampled by
// quality-weighted draws.
package search

import (
	"math/rand"

	"github.com/louisbranch/hotdice/internal/core/dice"
)

// CountCombinations returns how many count vectors fit the inventory
// bounds and sum to total. A one-dimensional DP over catalog positions
// keeps it linear in len(inventory)·total².
func CountCombinations(inventory []int, total int) int64 {
	if total < 0 {
		return 0
	}
	ways := make([]int64, total+1)
	ways[0] = 1
	for _, cap := range inventory {
		next := make([]int64, total+1)
		for sum := 0; sum <= total; sum++ {
			if ways[sum] == 0 {
				continue
			}
			for take := 0; take <= cap && sum+take <= total; take++ {
				next[sum+take] += ways[sum]
			}
		}
		ways = next
	}
	return ways[total]
}

// Enumerate lists the count vectors in lexicographic order. A limit > 0
// stops the recursion after that many vectors; an empty inventory yields
// no results.
func Enumerate(inventory []int, total, limit int) []dice.CountVector {
	if len(inventory) == 0 || total < 0 {
		return nil
	}
	var out []dice.CountVector
	current := make(dice.CountVector, len(inventory))
	var walk func(idx, left int) bool
	walk = func(idx, left int) bool {
		if limit > 0 && len(out) >= limit {
			return false
		}
		if idx == len(inventory) {
			if left == 0 {
				out = append(out, current.Clone())
			}
			return limit <= 0 || len(out) < limit
		}
		max := inventory[idx]
		if max > left {
			max = left
		}
		for n := 0; n <= max; n++ {
			current[idx] = n
			if !walk(idx+1, left-n) {
				current[idx] = 0
				return false
			}
		}
		current[idx] = 0
		return true
	}
	walk(0, total)
	return out
}

// RandomLoadouts samples up to limit distinct count vectors. Each vector
// is built die by die with draws weighted by remaining inventory times
// die quality, so better dice show up more often without any rejection
// loop inside a draw. Uniqueness is enforced by count fingerprint and
// the whole search gives up after max(limit·50, 1) attempts.
func RandomLoadouts(inventory []int, qualities []float64, total, limit int, seed int64) []dice.CountVector {
	if len(inventory) == 0 || limit <= 0 || total <= 0 {
		return nil
	}
	capacity := 0
	for _, n := range inventory {
		capacity += n
	}
	if capacity < total {
		return nil
	}

	rng := rand.New(rand.NewSource(seed))
	attempts := limit * 50
	if attempts < 1 {
		attempts = 1
	}

	seen := make(map[string]bool, limit)
	var out []dice.CountVector
	for attempt := 0; attempt < attempts && len(out) < limit; attempt++ {
		counts := drawLoadout(rng, inventory, qualities, total)
		if counts == nil {
			continue
		}
		fp := counts.Fingerprint()
		if seen[fp] {
			continue
		}
		seen[fp] = true
		out = append(out, counts)
	}
	return out
}

func drawLoadout(rng *rand.Rand, inventory []int, qualities []float64, total int) dice.CountVector {
	counts := make(dice.CountVector, len(inventory))
	for drawn := 0; drawn < total; drawn++ {
		totalWeight := 0.0
		for i, cap := range inventory {
			left := cap - counts[i]
			if left <= 0 {
				continue
			}
			totalWeight += weight(qualities, i, left)
		}
		if totalWeight <= 0 {
			return nil
		}

		r := rng.Float64() * totalWeight
		picked := -1
		for i, cap := range inventory {
			left := cap - counts[i]
			if left <= 0 {
				continue
			}
			r -= weight(qualities, i, left)
			if r <= 0 {
				picked = i
				break
			}
		}
		if picked < 0 {
			// Float round-off: fall back to the last available index.
			for i := len(inventory) - 1; i >= 0; i-- {
				if inventory[i]-counts[i] > 0 {
					picked = i
					break
				}
			}
		}
		counts[picked]++
	}
	return counts
}

func weight(qualities []float64, idx int, left int) float64 {
	w := float64(left)
	if idx < len(qualities) && qualities[idx] > 0 {
		w *= qualities[idx]
	}
	return w
}

// Package catalog loads the dice-probability catalog from its JSON
// file and derives the search inventory from it.
//
// The file is a single object mapping die names to length-7 probability
// arrays: [0.0, p1, ..., p6]. Anything else at the root is rejected.
package catalog

import (
	"errors"
	"fmt"
	"os"

	"github.com/tidwall/gjson"

	"github.com/louisbranch/hotdice/internal/core/dice"
)

// OrdinaryDieName is the canonical fair die every player owns.
const OrdinaryDieName = "Ordinary die"

// DefaultPerDie is the inventory assumed for each weighted die design.
const DefaultPerDie = 6

// ErrInvalidCatalog reports a malformed catalog file.
var ErrInvalidCatalog = errors.New("catalog: invalid catalog")

// LoadFile reads and parses a catalog file.
func LoadFile(path string) (dice.Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse validates the catalog document and returns the catalog sorted
// by die name.
func Parse(data []byte) (dice.Catalog, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: not valid JSON", ErrInvalidCatalog)
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: root must be an object", ErrInvalidCatalog)
	}

	var types []dice.Type
	var parseErr error
	root.ForEach(func(key, value gjson.Result) bool {
		probs, err := parseProbabilities(key.String(), value)
		if err != nil {
			parseErr = err
			return false
		}
		d, err := dice.FromProbabilities(key.String(), probs)
		if err != nil {
			parseErr = fmt.Errorf("%w: die %q: %v", ErrInvalidCatalog, key.String(), err)
			return false
		}
		types = append(types, d)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	if len(types) == 0 {
		return nil, fmt.Errorf("%w: no dice defined", ErrInvalidCatalog)
	}

	catalog, err := dice.NewCatalog(types)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	return catalog, nil
}

func parseProbabilities(name string, value gjson.Result) ([]float64, error) {
	if !value.IsArray() {
		return nil, fmt.Errorf("%w: die %q: value must be an array", ErrInvalidCatalog, name)
	}
	elems := value.Array()
	if len(elems) != dice.Faces+1 {
		return nil, fmt.Errorf("%w: die %q: want %d entries, got %d", ErrInvalidCatalog, name, dice.Faces+1, len(elems))
	}
	probs := make([]float64, len(elems))
	for i, e := range elems {
		if e.Type != gjson.Number {
			return nil, fmt.Errorf("%w: die %q: entry %d is not a number", ErrInvalidCatalog, name, i)
		}
		probs[i] = e.Float()
	}
	return probs, nil
}

// Inventory derives the per-die search inventory. Uniform dice carry no
// information the ordinary die lacks, so they are excluded from the
// search; the canonical ordinary die itself is forced to a full
// loadout's worth.
func Inventory(c dice.Catalog, perDie int) []int {
	if perDie <= 0 {
		perDie = DefaultPerDie
	}
	inv := make([]int, len(c))
	for i, d := range c {
		switch {
		case d.Name == OrdinaryDieName:
			inv[i] = dice.LoadoutSize
		case d.Uniform():
			inv[i] = 0
		default:
			inv[i] = perDie
		}
	}
	return inv
}

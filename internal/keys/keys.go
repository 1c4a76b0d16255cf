// Package keys builds the content-addressed identities of cached
// evaluation results.
//
// A key is the SHA-256 of a canonical JSON document: object keys sorted
// byte-wise, arrays in given order, numbers in their shortest form. The
// document covers everything that changes a result (the dice catalog,
// the evaluation settings and the count vector), so equal keys imply
// interchangeable payloads and any format change invalidates the cache
// through the embedded version numbers.
package keys

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/louisbranch/hotdice/internal/core/dice"
)

// CacheVersion and CacheSchema are embedded in every key context.
// Bumping either orphans all previously persisted entries.
const (
	CacheVersion = 1
	CacheSchema  = 1
)

// DiceSignature fingerprints a catalog: the SHA-256 hex of the JSON
// array [{name, probs}, ...] sorted by die name.
func DiceSignature(catalog dice.Catalog) string {
	type entry struct {
		Name  string    `json:"name"`
		Probs []float64 `json:"probs"`
	}
	entries := make([]entry, len(catalog))
	for i, d := range catalog {
		entries[i] = entry{Name: d.Name, Probs: d.Probabilities[:]}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	return hashJSON(entries)
}

// ContextSettings is the slice of the optimization settings that affects
// evaluation results.
type ContextSettings struct {
	Target      int
	RiskProfile string
	NumTurns    int
	Cap         int

	// SeedBase pins pilot-stage determinism; nil for full evaluations.
	SeedBase *int64
}

// Context is the per-stage half of a cache key: everything except the
// loadout itself.
type Context struct {
	fields map[string]any
}

// NewContext assembles a key context from a catalog signature and
// settings.
func NewContext(signature string, set ContextSettings) Context {
	fields := map[string]any{
		"v":            CacheVersion,
		"schema":       CacheSchema,
		"dice":         signature,
		"target":       set.Target,
		"risk_profile": set.RiskProfile,
		"num_turns":    set.NumTurns,
		"cap":          set.Cap,
	}
	if set.SeedBase != nil {
		fields["seed_base"] = *set.SeedBase
	}
	return Context{fields: fields}
}

// Key derives the cache key for a count vector under this context.
func (c Context) Key(counts dice.CountVector) (string, error) {
	if len(c.fields) == 0 {
		return "", fmt.Errorf("keys: empty context")
	}
	doc := make(map[string]any, len(c.fields)+1)
	for k, v := range c.fields {
		doc[k] = v
	}
	doc["counts"] = []int(counts)
	return hashJSON(doc), nil
}

// hashJSON canonicalizes via encoding/json (sorted object keys, shortest
// number forms, UTF-8 strings) and returns the lowercase hex digest.
func hashJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		// Only marshalable values reach this point; keep the failure loud.
		panic(fmt.Sprintf("keys: marshal: %v", err))
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

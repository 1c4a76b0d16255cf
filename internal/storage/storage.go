// Package storage defines the cache contract consumed by the workflow:
// a keyed store of serialized evaluation results, partitioned into
// pilot and full entries so low-fidelity results can be cleared without
// touching authoritative ones.
package storage

import (
	"context"
	"errors"
	"time"
)

// Kind partitions cache entries by evaluation fidelity.
type Kind string

const (
	// KindPilot marks reduced-fidelity pruning results.
	KindPilot Kind = "pilot"

	// KindFull marks authoritative final-stage results.
	KindFull Kind = "full"
)

// Valid reports whether the kind is known.
func (k Kind) Valid() bool {
	return k == KindPilot || k == KindFull
}

// Entry is one cached evaluation result.
type Entry struct {
	Key       string
	Kind      Kind
	Payload   []byte
	UpdatedAt time.Time
}

// ErrUnavailable wraps I/O and database failures. Callers degrade reads
// to cache misses; writes are best-effort.
var ErrUnavailable = errors.New("storage: cache unavailable")

// Stats is a snapshot of a store's write-behind counters. Stores
// without a write-behind buffer report zeros.
type Stats struct {
	Pending      int
	PeakPending  int
	DroppedPilot int64
	WriteErrors  int64
}

// StatsReader is implemented by stores that track write-behind counters.
type StatsReader interface {
	Stats() Stats
}

// CacheStore is the persistence capability used by the workflow.
type CacheStore interface {
	// Load returns the payloads of the requested keys that are present,
	// including entries still buffered for write-behind.
	Load(ctx context.Context, keys []string) (map[string][]byte, error)

	// Save persists entries, either transactionally or via the
	// write-behind buffer depending on the store configuration.
	Save(ctx context.Context, entries []Entry) error

	// Delete removes specific keys.
	Delete(ctx context.Context, keys []string) error

	// ClearKind removes every entry of one kind.
	ClearKind(ctx context.Context, kind Kind) error

	// ClearAll empties the store.
	ClearAll(ctx context.Context) error
}

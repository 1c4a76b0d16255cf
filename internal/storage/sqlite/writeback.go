package sqlite

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/louisbranch/hotdice/internal/storage"
)

// flushPollInterval is how often Flush re-checks the pending buffer.
const flushPollInterval = 10 * time.Millisecond

// ErrClosed reports a save against a store that is shutting down.
var ErrClosed = errors.New("storage: store is closed")

// pendingEntry tags a buffered entry with the epoch it was accepted in.
// Bulk deletes bump the epoch, which makes older entries self-ignoring
// at drain time without scanning the buffer.
type pendingEntry struct {
	entry storage.Entry
	epoch uint64
}

// pendingState is the write-behind buffer plus its counters. All fields
// are guarded by mu.
type pendingState struct {
	mu           sync.Mutex
	entries      map[string]pendingEntry
	epoch        uint64
	closed       bool
	droppedPilot int64
	writeErrors  int64
	peakPending  int
}

// Stats returns the current write-behind counters.
func (s *Store) Stats() storage.Stats {
	s.pend.mu.Lock()
	defer s.pend.mu.Unlock()
	return storage.Stats{
		Pending:      len(s.pend.entries),
		PeakPending:  s.pend.peakPending,
		DroppedPilot: s.pend.droppedPilot,
		WriteErrors:  s.pend.writeErrors,
	}
}

// buffer accepts entries into the pending map. Once the buffer holds
// maxPending entries, pilot entries are dropped and counted; full
// entries are always accepted so authoritative results survive pressure.
func (p *pendingState) buffer(entries []storage.Entry, maxPending int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	for _, e := range entries {
		if len(p.entries) >= maxPending && e.Kind == storage.KindPilot {
			if _, replaces := p.entries[e.Key]; !replaces {
				p.droppedPilot++
				continue
			}
		}
		if e.UpdatedAt.IsZero() {
			e.UpdatedAt = time.Now()
		}
		p.entries[e.Key] = pendingEntry{entry: e, epoch: p.epoch}
		if len(p.entries) > p.peakPending {
			p.peakPending = len(p.entries)
		}
	}
	return nil
}

// overlay copies current-epoch pending payloads for the requested keys
// into out, shadowing persisted values.
func (p *pendingState) overlay(keys []string, out map[string][]byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, k := range keys {
		pe, ok := p.entries[k]
		if !ok || pe.epoch != p.epoch {
			continue
		}
		out[k] = pe.entry.Payload
	}
}

// invalidate bumps the epoch and empties the buffer. A batch the writer
// snapshotted before the bump is still upserted; the bulk delete that
// called invalidate then waits for the DB lock and removes it.
func (p *pendingState) invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.epoch++
	p.entries = make(map[string]pendingEntry)
}

// snapshot swaps out the buffer and returns the entries belonging to the
// current epoch.
func (p *pendingState) snapshot() []storage.Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.entries) == 0 {
		return nil
	}
	taken := p.entries
	p.entries = make(map[string]pendingEntry, len(taken))
	epoch := p.epoch

	out := make([]storage.Entry, 0, len(taken))
	for _, pe := range taken {
		if pe.epoch != epoch {
			continue
		}
		out = append(out, pe.entry)
	}
	return out
}

func (p *pendingState) empty() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries) == 0
}

func (p *pendingState) recordWriteErrors(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeErrors += int64(n)
}

func (p *pendingState) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

// wake nudges the writer without blocking; a full signal channel already
// guarantees a wake-up.
func (s *Store) wake() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// writerLoop is the single consumer of the pending buffer. It drains on
// signal, on the flush interval, and one final time on shutdown.
func (s *Store) writerLoop() {
	defer close(s.joined)
	timer := time.NewTimer(s.flushInterval)
	defer timer.Stop()

	for {
		select {
		case <-s.done:
			s.drain()
			return
		case <-s.signal:
		case <-timer.C:
		}
		s.drain()

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(s.flushInterval)
	}
}

// drain snapshots the buffer and upserts the surviving entries. The DB
// lock is held across snapshot and upsert so a concurrent bulk delete
// either sees the batch persisted (and removes it) or invalidated it
// before the snapshot. Write failures are counted and the batch is
// dropped; persistence is best-effort on this path.
func (s *Store) drain() {
	s.dbMu.Lock()
	defer s.dbMu.Unlock()
	batch := s.pend.snapshot()
	if len(batch) == 0 {
		return
	}
	if err := s.upsert(context.Background(), batch); err != nil {
		s.pend.recordWriteErrors(len(batch))
	}
}

// Flush blocks until the pending buffer is empty or the timeout lapses.
func (s *Store) Flush(timeout time.Duration) error {
	if !s.async {
		return nil
	}
	deadline := time.Now().Add(timeout)
	for {
		if s.pend.empty() {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: flush timed out with %d pending", storage.ErrUnavailable, s.Stats().Pending)
		}
		s.wake()
		time.Sleep(flushPollInterval)
	}
}

// Shutdown stops accepting writes, drains within the budget, joins the
// writer and closes the database.
func (s *Store) Shutdown(drainTimeout time.Duration) error {
	if !s.async {
		return s.sqlDB.Close()
	}
	s.pend.close()
	flushErr := s.Flush(drainTimeout)
	s.stopWriter(drainTimeout)
	if err := s.sqlDB.Close(); err != nil {
		return fmt.Errorf("%w: close db: %v", storage.ErrUnavailable, err)
	}
	return flushErr
}

// stopWriter cancels the writer loop and waits for it with a bound.
func (s *Store) stopWriter(wait time.Duration) {
	select {
	case <-s.done:
		// Already stopped.
	default:
		close(s.done)
	}
	select {
	case <-s.joined:
	case <-time.After(wait):
	}
}

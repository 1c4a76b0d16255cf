package sqlite

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/louisbranch/hotdice/internal/storage"
)

func openTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "cache.db"), opts...)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func entry(key string, kind storage.Kind, payload string) storage.Entry {
	return storage.Entry{Key: key, Kind: kind, Payload: []byte(payload)}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	entries := []storage.Entry{
		entry("k1", storage.KindPilot, `{"mean":100}`),
		entry("k2", storage.KindFull, `{"mean":200}`),
	}
	if err := s.Save(ctx, entries); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := s.Load(ctx, []string{"k1", "k2", "missing"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Load() returned %d entries, want 2", len(got))
	}
	for _, e := range entries {
		if !bytes.Equal(got[e.Key], e.Payload) {
			t.Errorf("payload for %s = %q, want %q", e.Key, got[e.Key], e.Payload)
		}
	}
}

func TestSaveOverwrites(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, []storage.Entry{entry("k", storage.KindPilot, "old")}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := s.Save(ctx, []storage.Entry{entry("k", storage.KindFull, "new")}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := s.Load(ctx, []string{"k"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if string(got["k"]) != "new" {
		t.Errorf("payload = %q, want %q", got["k"], "new")
	}

	n, err := s.Count(ctx, storage.KindFull)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Count(full) = %d, want 1", n)
	}
}

func TestLoadDeduplicatesKeys(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, []storage.Entry{entry("k", storage.KindFull, "v")}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := s.Load(ctx, []string{"k", "k", "k", ""})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got) != 1 || string(got["k"]) != "v" {
		t.Errorf("Load() = %v", got)
	}
}

func TestLoadManyKeysBatches(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var entries []storage.Entry
	var keysList []string
	for i := 0; i < 2000; i++ {
		key := keyN(i)
		entries = append(entries, entry(key, storage.KindPilot, key))
		keysList = append(keysList, key)
	}
	if err := s.Save(ctx, entries); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := s.Load(ctx, keysList)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got) != 2000 {
		t.Errorf("Load() returned %d entries, want 2000", len(got))
	}
}

func keyN(i int) string {
	return string(rune('a'+i%26)) + "-" + time.Unix(int64(i), 0).UTC().Format("20060102150405")
}

func TestClearKind(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, []storage.Entry{
		entry("k1", storage.KindPilot, "a"),
		entry("k2", storage.KindFull, "b"),
		entry("k3", storage.KindPilot, "c"),
	}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if err := s.ClearKind(ctx, storage.KindPilot); err != nil {
		t.Fatalf("ClearKind() error = %v", err)
	}
	got, err := s.Load(ctx, []string{"k1", "k2", "k3"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got) != 1 || string(got["k2"]) != "b" {
		t.Errorf("after ClearKind(pilot): %v", got)
	}

	if err := s.ClearKind(ctx, storage.KindFull); err != nil {
		t.Fatalf("ClearKind() error = %v", err)
	}
	n, err := s.Count(ctx, "")
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 0 {
		t.Errorf("store holds %d entries after clearing both kinds", n)
	}
}

func TestDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, []storage.Entry{
		entry("k1", storage.KindFull, "a"),
		entry("k2", storage.KindFull, "b"),
	}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := s.Delete(ctx, []string{"k1"}); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	got, err := s.Load(ctx, []string{"k1", "k2"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, ok := got["k1"]; ok {
		t.Error("deleted key still loads")
	}
	if _, ok := got["k2"]; !ok {
		t.Error("unrelated key vanished")
	}
}

func TestSaveRejectsUnknownKind(t *testing.T) {
	s := openTestStore(t)
	if err := s.Save(context.Background(), []storage.Entry{entry("k", "tentative", "v")}); err == nil {
		t.Error("Save() accepted unknown kind")
	}
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Error("Open(\"\") succeeded")
	}
}

func TestAsyncOverlayBeforeDrain(t *testing.T) {
	// Whether or not the writer has drained yet, a save must be visible
	// to the next load: from the pending overlay before the drain, from
	// the database after it.
	s := openTestStore(t, WithAsyncWrites(100, time.Hour))
	ctx := context.Background()

	if err := s.Save(ctx, []storage.Entry{entry("k1", storage.KindPilot, "v1")}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := s.Load(ctx, []string{"k1"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if string(got["k1"]) != "v1" {
		t.Errorf("overlay missed pending entry: %v", got)
	}
}

func TestAsyncClearAllHidesPending(t *testing.T) {
	s := openTestStore(t, WithAsyncWrites(100, time.Hour))
	ctx := context.Background()

	if err := s.Save(ctx, []storage.Entry{entry("k1", storage.KindPilot, "v1")}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := s.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll() error = %v", err)
	}
	got, err := s.Load(ctx, []string{"k1"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Load() after ClearAll = %v, want empty", got)
	}

	// Even a forced drain must not resurrect the invalidated entry.
	if err := s.Flush(time.Second); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	n, err := s.Count(ctx, "")
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 0 {
		t.Errorf("invalidated entries were persisted: %d", n)
	}
}

func TestAsyncFlushPersists(t *testing.T) {
	s := openTestStore(t, WithAsyncWrites(100, time.Hour))
	ctx := context.Background()

	if err := s.Save(ctx, []storage.Entry{
		entry("k1", storage.KindPilot, "v1"),
		entry("k2", storage.KindFull, "v2"),
	}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := s.Flush(5 * time.Second); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	n, err := s.Count(ctx, "")
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Count() = %d after flush, want 2", n)
	}
	if stats := s.Stats(); stats.Pending != 0 {
		t.Errorf("Stats().Pending = %d after flush", stats.Pending)
	}
}

func TestAsyncPilotDropWhenFull(t *testing.T) {
	s := openTestStore(t, WithAsyncWrites(2, time.Hour))
	ctx := context.Background()

	if err := s.Save(ctx, []storage.Entry{
		entry("k1", storage.KindPilot, "v1"),
		entry("k2", storage.KindPilot, "v2"),
		entry("k3", storage.KindPilot, "v3"),
		entry("k4", storage.KindFull, "v4"),
	}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	stats := s.Stats()
	if stats.DroppedPilot != 1 {
		t.Errorf("DroppedPilot = %d, want 1", stats.DroppedPilot)
	}
	// The full entry is accepted despite the full buffer.
	got, err := s.Load(ctx, []string{"k4"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if string(got["k4"]) != "v4" {
		t.Error("full entry was dropped under pressure")
	}
}

func TestShutdownDrains(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	s, err := Open(path, WithAsyncWrites(100, time.Hour))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	ctx := context.Background()
	if err := s.Save(ctx, []storage.Entry{entry("k1", storage.KindFull, "v1")}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := s.Shutdown(5 * time.Second); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if err := s.Save(ctx, []storage.Entry{entry("k2", storage.KindFull, "v2")}); err == nil {
		t.Error("Save() accepted entries after Shutdown()")
	}

	// A fresh store on the same file observes the drained entry.
	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer reopened.Close()
	got, err := reopened.Load(ctx, []string{"k1"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if string(got["k1"]) != "v1" {
		t.Errorf("drained entry missing after reopen: %v", got)
	}
}

func TestAsyncWriterDrainsOnInterval(t *testing.T) {
	s := openTestStore(t, WithAsyncWrites(100, 20*time.Millisecond))
	ctx := context.Background()

	if err := s.Save(ctx, []storage.Entry{entry("k1", storage.KindFull, "v1")}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		n, err := s.Count(ctx, "")
		if err != nil {
			t.Fatalf("Count() error = %v", err)
		}
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("writer never drained the pending entry")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

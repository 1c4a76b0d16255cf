package workflow

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/louisbranch/hotdice/internal/core/dice"
	"github.com/louisbranch/hotdice/internal/core/simulate"
	"github.com/louisbranch/hotdice/internal/keys"
	"github.com/louisbranch/hotdice/internal/settings"
	"github.com/louisbranch/hotdice/internal/storage"
)

// minChunk is the smallest work chunk handed to a worker. Larger chunks
// amortize the dispatch overhead; the divisor keeps enough chunks in
// flight to even out uneven loadouts.
const minChunk = 16

// stageSpec describes one evaluation pass.
type stageSpec struct {
	index    int
	count    int
	kind     storage.Kind
	seedBase *int64
	set      settings.Optimization
}

// evaluateStage computes results for every candidate: cache hits are
// decoded, misses are evaluated across the worker pool, and fresh
// results are written back. The returned slice preserves candidate
// order.
func (r *Runner) evaluateStage(ctx context.Context, spec stageSpec, candidates []dice.CountVector, catalog dice.Catalog, signature string) ([]simulate.Result, StageTelemetry, error) {
	st := StageTelemetry{Stage: spec.index, Kind: spec.kind, Candidates: len(candidates)}
	wallStart := time.Now()

	kctx := keys.NewContext(signature, keys.ContextSettings{
		Target:      spec.set.Target,
		RiskProfile: string(spec.set.Risk),
		NumTurns:    spec.set.NumTurns,
		Cap:         spec.set.Cap,
		SeedBase:    spec.seedBase,
	})
	keyList := make([]string, len(candidates))
	for i, counts := range candidates {
		key, err := kctx.Key(counts)
		if err != nil {
			return nil, st, err
		}
		keyList[i] = key
	}

	var hits map[string][]byte
	if r.store != nil {
		loadStart := time.Now()
		loaded, err := r.store.Load(ctx, keyList)
		st.CacheLoad = time.Since(loadStart)
		if err != nil {
			// A broken cache degrades to a cold one.
			r.sink.Incr("workflow.cache_load_errors", 1)
		} else {
			hits = loaded
		}
	}

	results := make([]simulate.Result, len(candidates))
	entries := make([]storage.Entry, len(candidates))
	var missing []int
	for i, key := range keyList {
		if payload, ok := hits[key]; ok {
			if res, err := decodeResult(payload); err == nil {
				results[i] = res
				st.CacheHits++
				continue
			}
			r.sink.Incr("workflow.cache_decode_errors", 1)
		}
		missing = append(missing, i)
	}
	st.CacheMisses = len(missing)

	var processed atomic.Int64
	processed.Store(int64(st.CacheHits))
	stopProgress := r.startProgress(spec, len(candidates), st.CacheHits, st.CacheMisses, &processed, wallStart)
	defer stopProgress()

	if len(missing) > 0 {
		evalStart := time.Now()
		if err := r.dispatch(ctx, spec, candidates, catalog, keyList, missing, results, entries, &processed); err != nil {
			return nil, st, err
		}
		st.Evaluation = time.Since(evalStart)
		st.Evaluated = len(missing)

		if r.store != nil {
			toSave := make([]storage.Entry, 0, len(missing))
			for _, slot := range missing {
				toSave = append(toSave, entries[slot])
			}
			saveStart := time.Now()
			if err := r.store.Save(ctx, toSave); err != nil {
				r.sink.Incr("workflow.cache_save_errors", 1)
			}
			st.CacheSave = time.Since(saveStart)
		}
	}

	if reader, ok := r.store.(storage.StatsReader); ok {
		st.PeakPending = reader.Stats().PeakPending
	}
	st.Wall = time.Since(wallStart)
	return results, st, nil
}

// dispatch fans the missing slots out across the worker pool. Workers
// claim fixed-size chunks off a shared cursor and write into disjoint
// result slots, so no aggregation lock is needed.
func (r *Runner) dispatch(ctx context.Context, spec stageSpec, candidates []dice.CountVector, catalog dice.Catalog, keyList []string, missing []int, results []simulate.Result, entries []storage.Entry, processed *atomic.Int64) error {
	workers := r.workers
	if workers < 1 {
		workers = 1
	}
	if hw := runtime.NumCPU(); workers > hw {
		workers = hw
	}
	if workers > len(missing) {
		workers = len(missing)
	}

	chunk := len(missing) / (8 * workers)
	if chunk < minChunk {
		chunk = minChunk
	}

	var cursor atomic.Int64
	var stopped atomic.Bool
	var errOnce sync.Once
	var firstErr error
	fail := func(err error) {
		errOnce.Do(func() { firstErr = err })
		stopped.Store(true)
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				start := int(cursor.Add(int64(chunk))) - chunk
				if start >= len(missing) {
					return
				}
				end := start + chunk
				if end > len(missing) {
					end = len(missing)
				}
				for _, slot := range missing[start:end] {
					if stopped.Load() {
						return
					}
					if err := ctx.Err(); err != nil {
						fail(err)
						return
					}
					res, err := r.evaluator.Single(candidates[slot], catalog, spec.set, spec.seedBase)
					if err != nil {
						fail(err)
						return
					}
					payload, err := encodeResult(res)
					if err != nil {
						fail(err)
						return
					}
					results[slot] = res
					entries[slot] = storage.Entry{Key: keyList[slot], Kind: spec.kind, Payload: payload}
					processed.Add(1)
				}
			}
		}()
	}
	wg.Wait()
	return firstErr
}

// startProgress launches the sidecar reporter for one stage and returns
// a stop function that joins it and emits the final event. Without a
// progress sink it is a no-op.
func (r *Runner) startProgress(spec stageSpec, total, hits, misses int, processed *atomic.Int64, start time.Time) func() {
	if r.progress == nil {
		return func() {}
	}

	interval := r.progressInterval
	if interval < minProgressInterval {
		interval = minProgressInterval
	}
	if interval > maxProgressInterval {
		interval = maxProgressInterval
	}

	emit := func() {
		r.progress(Progress{
			StageIndex:  spec.index,
			StageCount:  spec.count,
			Kind:        spec.kind,
			Processed:   int(processed.Load()),
			Total:       total,
			CacheHits:   hits,
			CacheMisses: misses,
			Elapsed:     time.Since(start),
		})
	}

	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				emit()
			}
		}
	}()

	return func() {
		close(done)
		<-finished
		emit()
	}
}

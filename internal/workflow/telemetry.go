package workflow

import (
	"time"

	"github.com/louisbranch/hotdice/internal/storage"
)

// Progress is the event delivered to a progress sink during a stage.
type Progress struct {
	StageIndex  int
	StageCount  int
	Kind        storage.Kind
	Processed   int
	Total       int
	CacheHits   int
	CacheMisses int
	Elapsed     time.Duration
}

// ProgressFunc receives progress events, at most one call at a time.
// Periodic events come from a sidecar goroutine; each stage's final
// event comes from the goroutine running the stage.
type ProgressFunc func(Progress)

// StageTelemetry summarizes one executed stage.
type StageTelemetry struct {
	Stage       int
	Kind        storage.Kind
	Candidates  int
	Evaluated   int
	CacheHits   int
	CacheMisses int
	Survivors   int

	Wall       time.Duration
	Evaluation time.Duration
	CacheLoad  time.Duration
	CacheSave  time.Duration

	PeakPending int
}

// Telemetry aggregates a whole optimization run.
type Telemetry struct {
	RunID  string
	Stages []StageTelemetry

	TotalEvaluated   int
	TotalCacheHits   int
	TotalCacheMisses int
	Wall             time.Duration
}

func (t *Telemetry) addStage(st StageTelemetry) {
	t.Stages = append(t.Stages, st)
	t.TotalEvaluated += st.Evaluated
	t.TotalCacheHits += st.CacheHits
	t.TotalCacheMisses += st.CacheMisses
}

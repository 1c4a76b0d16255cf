package perf

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// OTelSink bridges the perf capability to an OpenTelemetry meter.
// Instruments are created lazily, once per name.
type OTelSink struct {
	meter metric.Meter

	mu         sync.Mutex
	counters   map[string]metric.Int64Counter
	histograms map[string]metric.Float64Histogram
}

// NewOTelSink wraps a meter as a Sink.
func NewOTelSink(meter metric.Meter) *OTelSink {
	return &OTelSink{
		meter:      meter,
		counters:   make(map[string]metric.Int64Counter),
		histograms: make(map[string]metric.Float64Histogram),
	}
}

func (s *OTelSink) Incr(name string, delta int64) {
	c := s.counter(name)
	if c == nil {
		return
	}
	c.Add(context.Background(), delta)
}

func (s *OTelSink) ObserveDuration(name string, d time.Duration) {
	s.Observe(name, float64(d.Milliseconds()))
}

func (s *OTelSink) Observe(name string, value float64) {
	h := s.histogram(name)
	if h == nil {
		return
	}
	h.Record(context.Background(), value)
}

func (s *OTelSink) counter(name string) metric.Int64Counter {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.counters[name]; ok {
		return c
	}
	c, err := s.meter.Int64Counter(name)
	if err != nil {
		return nil
	}
	s.counters[name] = c
	return c
}

func (s *OTelSink) histogram(name string) metric.Float64Histogram {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.histograms[name]; ok {
		return h
	}
	h, err := s.meter.Float64Histogram(name)
	if err != nil {
		return nil
	}
	s.histograms[name] = h
	return h
}

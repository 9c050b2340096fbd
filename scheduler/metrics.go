package scheduler

import (
	"time"
)

// Metrics receives the counters and timings the scheduler emits. The
// server wires a Prometheus implementation; tests and library embedders get
// the nop one.
type Metrics interface {
	CustomCounter(name string, tags map[string]string, delta int64)
	CustomGauge(name string, tags map[string]string, value float64)
	CustomTimer(name string, tags map[string]string, value time.Duration)
}

type nopMetrics struct{}

// NewNopMetrics returns a Metrics sink that discards everything.
func NewNopMetrics() Metrics { return nopMetrics{} }

func (nopMetrics) CustomCounter(string, map[string]string, int64)       {}
func (nopMetrics) CustomGauge(string, map[string]string, float64)       {}
func (nopMetrics) CustomTimer(string, map[string]string, time.Duration) {}

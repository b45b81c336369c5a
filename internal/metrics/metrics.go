// Package metrics wires the replication core's counters and timers
// into hashicorp/go-metrics.
package metrics

import (
	"time"

	gometrics "github.com/hashicorp/go-metrics"
)

// Sink is the set of instruments the replication core reports through.
// It wraps a go-metrics *gometrics.Metrics instance so call sites don't
// need to know the label conventions.
type Sink struct {
	m *gometrics.Metrics
}

// New creates a Sink reporting under serviceName using go-metrics'
// in-memory sink (suitable for a /metrics-less deployment; swap the
// sink passed to gometrics.New to ship elsewhere).
func New(serviceName string) (*Sink, error) {
	inm := gometrics.NewInmemSink(10*time.Second, time.Minute)
	cfg := gometrics.DefaultConfig(serviceName)
	cfg.EnableHostname = false
	m, err := gometrics.New(cfg, inm)
	if err != nil {
		return nil, err
	}
	return &Sink{m: m}, nil
}

// ReconcilePass records one reconciliation pass's shape.
func (s *Sink) ReconcilePass(edgesAdded, translated, deduped, untouched int) {
	s.m.IncrCounter([]string{"reconcile", "edges_added"}, float32(edgesAdded))
	s.m.IncrCounter([]string{"reconcile", "translated"}, float32(translated))
	s.m.IncrCounter([]string{"reconcile", "deduped"}, float32(deduped))
	s.m.IncrCounter([]string{"reconcile", "untouched"}, float32(untouched))
}

// ReconcileDuration records how long a reconciliation pass took.
func (s *Sink) ReconcileDuration(d time.Duration) {
	s.m.AddSample([]string{"reconcile", "duration_ms"}, float32(d.Milliseconds()))
}

// ConnectionOutcome records whether a connection attempt completed
// successfully or failed (e.g. auth failure, read or write error). The
// node's push loop does not report dial failures here.
func (s *Sink) ConnectionOutcome(role string, ok bool) {
	status := "ok"
	if !ok {
		status = "failed"
	}
	s.m.IncrCounter([]string{"connection", role, status}, 1)
}

// PlotsStored records the plot store's current size.
func (s *Sink) PlotsStored(n int) {
	s.m.SetGauge([]string{"plotstore", "size"}, float32(n))
}

// SkewEdgesKnown records the skew graph's current edge count.
func (s *Sink) SkewEdgesKnown(n int) {
	s.m.SetGauge([]string{"skewgraph", "edges"}, float32(n))
}

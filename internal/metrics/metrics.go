package metrics

import "time"

// Collector receives operation-level measurements from the orchestrator.
// Implementations export to a backend (Prometheus here); NoOpCollector is
// the default when metrics are not wired.
type Collector interface {
	RecordPayment(kind string, outcome string, duration time.Duration)
	RecordEmission(amount int64)
	RecordTokenIssued()
}

// NoOpCollector discards every measurement.
type NoOpCollector struct{}

func (NoOpCollector) RecordPayment(string, string, time.Duration) {}

func (NoOpCollector) RecordEmission(int64) {}

func (NoOpCollector) RecordTokenIssued() {}

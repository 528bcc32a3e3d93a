package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety.
type Metrics struct {
	// Counters
	commandsApplied  atomic.Uint64
	commandsRejected atomic.Uint64
	positionsOpened  atomic.Uint64
	positionsClosed  atomic.Uint64
	errorsTotal      atomic.Uint64

	// Latency tracking
	latencySumNs atomic.Int64
	latencyCount atomic.Uint64

	// Gauges
	subscribers atomic.Int32
	lastSeq     atomic.Uint64
}

// GlobalMetrics is the process-wide metrics instance.
var GlobalMetrics = &Metrics{}

// RecordApplied records an applied command and how long the ledger took.
func (m *Metrics) RecordApplied(seq uint64, latencyNs int64) {
	m.commandsApplied.Add(1)
	m.lastSeq.Store(seq)
	m.latencySumNs.Add(latencyNs)
	m.latencyCount.Add(1)
}

// RecordRejected records a command the ledger refused.
func (m *Metrics) RecordRejected() {
	m.commandsRejected.Add(1)
}

// RecordPositionOpened records a new or merged open.
func (m *Metrics) RecordPositionOpened() {
	m.positionsOpened.Add(1)
}

// RecordPositionClosed records a full or partial close.
func (m *Metrics) RecordPositionClosed() {
	m.positionsClosed.Add(1)
}

// RecordError records an error occurrence.
func (m *Metrics) RecordError() {
	m.errorsTotal.Add(1)
}

// IncrementSubscribers increments active stream subscribers by 1.
func (m *Metrics) IncrementSubscribers() {
	m.subscribers.Add(1)
}

// DecrementSubscribers decrements active stream subscribers by 1.
func (m *Metrics) DecrementSubscribers() {
	m.subscribers.Add(-1)
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	CommandsApplied  uint64    `json:"commands_applied"`
	CommandsRejected uint64    `json:"commands_rejected"`
	PositionsOpened  uint64    `json:"positions_opened"`
	PositionsClosed  uint64    `json:"positions_closed"`
	ErrorsTotal      uint64    `json:"errors_total"`
	AvgLatencyNs     int64     `json:"avg_latency_ns"`
	Subscribers      int32     `json:"subscribers"`
	LastSeq          uint64    `json:"last_seq"`
	Timestamp        time.Time `json:"timestamp"`
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var avgLatency int64
	count := m.latencyCount.Load()
	if count > 0 {
		avgLatency = m.latencySumNs.Load() / int64(count)
	}

	return MetricsSnapshot{
		CommandsApplied:  m.commandsApplied.Load(),
		CommandsRejected: m.commandsRejected.Load(),
		PositionsOpened:  m.positionsOpened.Load(),
		PositionsClosed:  m.positionsClosed.Load(),
		ErrorsTotal:      m.errorsTotal.Load(),
		AvgLatencyNs:     avgLatency,
		Subscribers:      m.subscribers.Load(),
		LastSeq:          m.lastSeq.Load(),
		Timestamp:        time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.commandsApplied.Store(0)
	m.commandsRejected.Store(0)
	m.positionsOpened.Store(0)
	m.positionsClosed.Store(0)
	m.errorsTotal.Store(0)
	m.latencySumNs.Store(0)
	m.latencyCount.Store(0)
	m.subscribers.Store(0)
	m.lastSeq.Store(0)
}

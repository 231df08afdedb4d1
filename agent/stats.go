package agent

import (
	"sync/atomic"
	"time"
)

// Snapshot is a point-in-time view of agent counters
type Snapshot struct {
	Processed int64         `json:"processed"`
	Dropped   int64         `json:"dropped"`
	Errors    int64         `json:"errors"`
	Uptime    time.Duration `json:"uptime"`
}

// StatsReader exposes counters read-only. Consumers take explicit
// snapshots; there is no ambient global state.
type StatsReader interface {
	Snapshot() Snapshot
}

// Stats tracks cumulative agent counters. It implements
// producer.Recorder for the event producers and StatsReader for
// status reporting.
type Stats struct {
	processed atomic.Int64
	dropped   atomic.Int64
	errors    atomic.Int64
	startTime time.Time
}

// NewStats creates a counter set anchored at now
func NewStats() *Stats {
	return &Stats{startTime: time.Now()}
}

// RecordProcessed counts a successfully delivered detection
func (s *Stats) RecordProcessed() { s.processed.Add(1) }

// RecordDropped counts a detection dropped while disconnected
func (s *Stats) RecordDropped() { s.dropped.Add(1) }

// RecordError counts a producer-level failure
func (s *Stats) RecordError() { s.errors.Add(1) }

// Snapshot implements StatsReader
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Processed: s.processed.Load(),
		Dropped:   s.dropped.Load(),
		Errors:    s.errors.Load(),
		Uptime:    time.Since(s.startTime),
	}
}

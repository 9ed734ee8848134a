package processor

import (
	"sync/atomic"
	"time"
)

// ServiceMetrics counts outcomes of dispatched stream entries since the last Reset.
type ServiceMetrics struct {
	processed  atomic.Int64
	failed     atomic.Int64
	skipped    atomic.Int64
	durationNs atomic.Int64
	sinceNs    atomic.Int64
}

type MetricsSnapshot struct {
	Processed     int64
	Failed        int64
	Skipped       int64
	RatePerSecond float64
	AvgDuration   time.Duration
	Uptime        time.Duration
}

func NewServiceMetrics() *ServiceMetrics {
	m := &ServiceMetrics{}
	m.sinceNs.Store(time.Now().UnixNano())
	return m
}

func (m *ServiceMetrics) RecordSuccess(d time.Duration) {
	m.processed.Add(1)
	m.durationNs.Add(int64(d))
}

func (m *ServiceMetrics) RecordFailure() { m.failed.Add(1) }

// RecordSkipped counts entries acked without a processor.
func (m *ServiceMetrics) RecordSkipped() { m.skipped.Add(1) }

func (m *ServiceMetrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		Processed: m.processed.Load(),
		Failed:    m.failed.Load(),
		Skipped:   m.skipped.Load(),
		Uptime:    time.Since(time.Unix(0, m.sinceNs.Load())),
	}
	if secs := s.Uptime.Seconds(); secs > 0 {
		s.RatePerSecond = float64(s.Processed) / secs
	}
	if s.Processed > 0 {
		s.AvgDuration = time.Duration(m.durationNs.Load() / s.Processed)
	}
	return s
}

func (m *ServiceMetrics) Reset() {
	m.processed.Store(0)
	m.failed.Store(0)
	m.skipped.Store(0)
	m.durationNs.Store(0)
	m.sinceNs.Store(time.Now().UnixNano())
}

package processor

import (
	"time"

	"github.com/nimasrn/matatu-pay/pkg/logger"
	"github.com/nimasrn/matatu-pay/pkg/prom"
)

// Pending entries above this are reported as consumer lag.
const lagWarningThreshold = 10000

func (s *ProcessorService) startMonitors() {
	s.wg.Add(2)
	go s.every(MetricsInterval, s.reportMetrics)
	go s.every(HealthInterval, s.checkHealth)
}

func (s *ProcessorService) every(interval time.Duration, fn func()) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fn()
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *ProcessorService) reportMetrics() {
	m := s.metrics.Snapshot()
	logger.Info("Processor metrics",
		"processed", m.Processed,
		"failed", m.Failed,
		"skipped", m.Skipped,
		"rate_per_second", m.RatePerSecond,
		"avg_duration_ms", m.AvgDuration.Milliseconds(),
		"uptime", m.Uptime.Round(time.Second).String(),
		"unread_jobs", s.pool.GetUnreadCount())

	// every instance shares one group, so the first queue's view covers the stream
	if len(s.queues) == 0 {
		return
	}
	q := s.queues[0]
	if st, err := q.GetStats(); err == nil {
		prom.SetQueueBacklog(q.Name(), st.TotalMessages, st.PendingMessages, st.InFlight)
	}
}

func (s *ProcessorService) checkHealth() {
	if err := s.adapter.Ping(s.ctx); err != nil {
		logger.Error("Health check failed: redis unreachable", "error", err)
		return
	}

	for i, q := range s.queues {
		st, err := q.GetStats()
		if err != nil {
			logger.Warn("Health check: queue stats unavailable", "instance", i, "error", err)
			continue
		}
		if st.PendingMessages > lagWarningThreshold {
			logger.Warn("Health check: consumer lag", "instance", i, "pending", st.PendingMessages)
		}
	}
}

package services

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// Pinger is any dependency whose reachability decides service health.
type Pinger interface {
	Ping(ctx context.Context) error
}

type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type HealthService struct {
	checks  map[string]Pinger
	timeout time.Duration
}

func NewHealthService(checks map[string]Pinger) *HealthService {
	return &HealthService{checks: checks, timeout: 2 * time.Second}
}

// Check pings every dependency and returns the first failure, named after the dependency.
func (s *HealthService) Check(ctx context.Context) (map[string]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	status := make(map[string]string, len(s.checks))
	var firstErr error
	for name, p := range s.checks {
		if err := p.Ping(ctx); err != nil {
			status[name] = "down"
			if firstErr == nil {
				firstErr = errors.Wrap(err, name)
			}
			continue
		}
		status[name] = "up"
	}
	return status, firstErr
}

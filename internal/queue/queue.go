package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nimasrn/matatu-pay/pkg/logger"
	"github.com/nimasrn/matatu-pay/pkg/redis"
)

// MessageHandler processes a message. A nil return acks the entry; an error leaves it
// pending so it is claimed again after the visibility timeout.
type MessageHandler func(ctx context.Context, msg *Message) error

type QueueConfig struct {
	Name              string
	ConsumerGroup     string
	ConsumerName      string
	MaxRetries        int
	VisibilityTimeout time.Duration
	PollInterval      time.Duration
	// ClaimInterval is how often pending entries of dead consumers are checked.
	// Defaults to PollInterval.
	ClaimInterval time.Duration
	BatchSize     int64
	MaxLen        int64
	EnableDLQ     bool
}

func (c QueueConfig) withDefaults() QueueConfig {
	if c.ConsumerGroup == "" {
		c.ConsumerGroup = "default-group"
	}
	if c.ConsumerName == "" {
		c.ConsumerName = fmt.Sprintf("consumer-%d", time.Now().UnixNano())
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.VisibilityTimeout == 0 {
		c.VisibilityTimeout = 30 * time.Second
	}
	if c.PollInterval == 0 {
		c.PollInterval = time.Second
	}
	if c.ClaimInterval == 0 {
		c.ClaimInterval = c.PollInterval
	}
	if c.BatchSize == 0 {
		c.BatchSize = 10
	}
	return c
}

// Queue is a redis stream with one consumer group. The same value serves as the
// publisher on the API side and the consumer on the processor side.
type Queue struct {
	adapter redis.RedisAdapter
	config  QueueConfig
	handler MessageHandler
	started atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.RWMutex
	inFlight map[string]struct{}
}

type QueueStats struct {
	TotalMessages   int64
	PendingMessages int64
	ConsumerCount   int64
	InFlight        int64
}

func NewQueue(adapter redis.RedisAdapter, config QueueConfig) (*Queue, error) {
	if config.Name == "" {
		return nil, fmt.Errorf("queue name is required")
	}
	config = config.withDefaults()

	err := adapter.XGroupCreateMkStream(config.Name, config.ConsumerGroup, "0")
	if err != nil && !isBusyGroup(err) {
		return nil, fmt.Errorf("failed to create consumer group %s on %s: %w", config.ConsumerGroup, config.Name, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		adapter:  adapter,
		config:   config,
		ctx:      ctx,
		cancel:   cancel,
		inFlight: make(map[string]struct{}),
	}, nil
}

func isBusyGroup(err error) bool {
	return strings.HasPrefix(err.Error(), "BUSYGROUP")
}

func (q *Queue) Name() string {
	return q.config.Name
}

// Publish appends an entry and trims the stream to roughly MaxLen when set.
func (q *Queue) Publish(ctx context.Context, data []byte, metadata map[string]string) (string, error) {
	id, err := q.adapter.XAdd(q.config.Name, encodeEntry(data, metadata, time.Now()))
	if err != nil {
		return "", fmt.Errorf("failed to publish to %s: %w", q.config.Name, err)
	}

	if q.config.MaxLen > 0 {
		if err := q.adapter.XTrimApprox(q.config.Name, q.config.MaxLen); err != nil {
			logger.Warn("Failed to trim stream", "stream", q.config.Name, "error", err)
		}
	}
	return id, nil
}

func (q *Queue) PublishJSON(ctx context.Context, data interface{}, metadata map[string]string) (string, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return q.Publish(ctx, raw, metadata)
}

// Stop halts consumption and waits up to timeout for in-flight handlers.
func (q *Queue) Stop(timeout time.Duration) error {
	q.cancel()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timeout waiting for queue %s to stop", q.config.Name)
	}
}

func (q *Queue) GetStats() (*QueueStats, error) {
	total, err := q.adapter.XLen(q.config.Name)
	if err != nil {
		return nil, err
	}
	stats := &QueueStats{TotalMessages: total}

	if pending, err := q.adapter.XPending(q.config.Name, q.config.ConsumerGroup); err == nil && pending != nil {
		stats.PendingMessages = pending.Count
		stats.ConsumerCount = int64(len(pending.Consumers))
	}

	q.mu.RLock()
	stats.InFlight = int64(len(q.inFlight))
	q.mu.RUnlock()

	return stats, nil
}

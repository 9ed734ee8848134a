package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nimasrn/matatu-pay/pkg/logger"
	"github.com/nimasrn/matatu-pay/pkg/redis"
)

const claimScanLimit = 100

// Consume starts the read and claim loops. It may be called once per Queue.
func (q *Queue) Consume(handler MessageHandler) error {
	if handler == nil {
		return fmt.Errorf("message handler is required")
	}
	if !q.started.CompareAndSwap(false, true) {
		return fmt.Errorf("queue %s is already consuming", q.config.Name)
	}

	q.handler = handler
	q.wg.Add(2)
	go q.every(q.config.PollInterval, q.readNew)
	go q.every(q.config.ClaimInterval, q.claimStale)
	return nil
}

func (q *Queue) every(interval time.Duration, fn func()) {
	defer q.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-q.ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

func (q *Queue) readNew() {
	entries, err := q.adapter.XReadGroup(q.config.ConsumerGroup, q.config.ConsumerName, q.config.Name, ">", q.config.BatchSize)
	if err != nil {
		if !errors.Is(err, redis.NilError) {
			logger.Error("Failed to read from stream", "stream", q.config.Name, "consumer", q.config.ConsumerName, "error", err)
		}
		return
	}

	for _, e := range entries {
		if q.ctx.Err() != nil {
			return
		}
		q.dispatch(decodeEntry(e))
	}
}

// claimStale takes over entries that stayed unacked past the visibility timeout,
// whether their reader crashed or its handler failed.
func (q *Queue) claimStale() {
	pending, err := q.adapter.XPendingExt(q.config.Name, q.config.ConsumerGroup, "-", "+", claimScanLimit)
	if err != nil {
		logger.Warn("Failed to list pending entries", "stream", q.config.Name, "error", err)
		return
	}

	deliveries := make(map[string]int64)
	var ids []string
	for _, p := range pending {
		if p.Idle < q.config.VisibilityTimeout {
			continue
		}
		if q.isInFlight(p.ID) {
			continue
		}
		ids = append(ids, p.ID)
		deliveries[p.ID] = p.RetryCount
	}
	if len(ids) == 0 {
		return
	}

	entries, err := q.adapter.XClaim(q.config.Name, q.config.ConsumerGroup, q.config.ConsumerName, q.config.VisibilityTimeout, ids...)
	if err != nil {
		logger.Warn("Failed to claim pending entries", "stream", q.config.Name, "count", len(ids), "error", err)
		return
	}

	for _, e := range entries {
		if q.ctx.Err() != nil {
			return
		}
		msg := decodeEntry(e)
		msg.Attempts = int(deliveries[msg.ID])
		q.dispatch(msg)
	}
}

func (q *Queue) dispatch(msg *Message) {
	q.track(msg.ID)
	defer q.untrack(msg.ID)

	if msg.Attempts >= q.config.MaxRetries {
		logger.Warn("Message exceeded max deliveries",
			"stream", q.config.Name,
			"id", msg.ID,
			"attempts", msg.Attempts,
			"dlq", q.config.EnableDLQ)
		if q.config.EnableDLQ {
			q.deadLetter(msg)
		}
		q.ack(msg.ID)
		return
	}

	ctx, cancel := context.WithTimeout(q.ctx, q.config.VisibilityTimeout)
	defer cancel()

	if err := q.handler(ctx, msg); err != nil {
		logger.Warn("Message handler failed, entry left pending",
			"stream", q.config.Name,
			"id", msg.ID,
			"attempts", msg.Attempts,
			"error", err)
		return
	}
	q.ack(msg.ID)
}

func (q *Queue) ack(id string) {
	if err := q.adapter.XAck(q.config.Name, q.config.ConsumerGroup, id); err != nil {
		logger.Error("Failed to ack message", "stream", q.config.Name, "id", id, "error", err)
	}
}

func (q *Queue) deadLetter(msg *Message) {
	values := encodeEntry(msg.Data, msg.Metadata, time.Now())
	values[fieldAttempts] = msg.Attempts
	values["original_id"] = msg.ID
	values["original_queue"] = q.config.Name
	values["failed_at"] = time.Now().Unix()

	if _, err := q.adapter.XAdd(q.config.Name+dlqSuffix, values); err != nil {
		logger.Error("Failed to move message to dead letter stream", "stream", q.config.Name, "id", msg.ID, "error", err)
	}
}

func (q *Queue) track(id string) {
	q.mu.Lock()
	q.inFlight[id] = struct{}{}
	q.mu.Unlock()
}

func (q *Queue) untrack(id string) {
	q.mu.Lock()
	delete(q.inFlight, id)
	q.mu.Unlock()
}

func (q *Queue) isInFlight(id string) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	_, ok := q.inFlight[id]
	return ok
}

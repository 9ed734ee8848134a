package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/nimasrn/matatu-pay/internal/queue"
	"github.com/nimasrn/matatu-pay/pkg/logger"
)

type job struct {
	ctx    context.Context
	msg    *queue.Message
	result chan error
}

// dispatch is the queue handler: it hands the entry to the pool and waits for the
// outcome so the queue can ack it or leave it pending.
func (s *ProcessorService) dispatch(ctx context.Context, msg *queue.Message) error {
	ctx, cancel := context.WithTimeout(ctx, ProcessingTimeout+time.Second)
	defer cancel()

	j := &job{ctx: ctx, msg: msg, result: make(chan error, 1)}
	if err := s.pool.Enqueue(ctx, j); err != nil {
		return err
	}

	select {
	case err := <-j.result:
		return err
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for worker to process message: %w", ctx.Err())
	}
}

func (s *ProcessorService) work(workerIndex int, j *job) {
	if j.ctx.Err() != nil {
		logger.Warn("Job expired before a worker picked it up", "worker", workerIndex, "id", j.msg.ID)
		return
	}

	// result is buffered and read at most once, so the send never blocks
	j.result <- s.process(workerIndex, j)
}

func (s *ProcessorService) process(workerIndex int, j *job) error {
	msgType := j.msg.Metadata["type"]
	p, ok := s.processors[msgType]
	if !ok {
		// no processor will appear on redelivery either, so the entry is acked
		logger.Warn("No processor for message type", "worker", workerIndex, "type", msgType, "id", j.msg.ID)
		s.metrics.RecordSkipped()
		return nil
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(j.ctx, ProcessingTimeout)
	defer cancel()

	if err := p.Process(ctx, j.msg); err != nil {
		s.metrics.RecordFailure()
		logger.Error("Failed to process message", "worker", workerIndex, "type", msgType, "id", j.msg.ID, "error", err)
		return err
	}
	s.metrics.RecordSuccess(time.Since(start))
	return nil
}

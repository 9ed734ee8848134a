package processor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nimasrn/matatu-pay/internal/config"
	"github.com/nimasrn/matatu-pay/internal/queue"
	"github.com/nimasrn/matatu-pay/pkg/logger"
	"github.com/nimasrn/matatu-pay/pkg/redis"
	"github.com/nimasrn/matatu-pay/pkg/worker"
)

const (
	ProcessingTimeout = 5 * time.Second
	HealthInterval    = 30 * time.Second
	MetricsInterval   = 30 * time.Second
	ShutdownTimeout   = time.Minute
)

// ServiceConfig sizes the consumers and the worker pool behind them.
type ServiceConfig struct {
	Queue      queue.QueueConfig
	Consumers  int
	Workers    int
	BufferSize int
}

func ServiceConfigFrom(c *config.Config) ServiceConfig {
	return ServiceConfig{
		Queue: queue.QueueConfig{
			Name:              c.SettledStreamName,
			ConsumerGroup:     c.QueueConsumerGroup,
			ConsumerName:      c.QueueConsumerName,
			MaxRetries:        c.QueueMaxRetries,
			VisibilityTimeout: c.QueueVisibilityTimeout,
			PollInterval:      c.QueuePollInterval,
			BatchSize:         c.QueueBatchSize,
			MaxLen:            c.QueueMaxLen,
			EnableDLQ:         c.QueueEnableDLQ,
		},
		Consumers:  c.QueueConsumers,
		Workers:    c.QueueWorkers,
		BufferSize: c.QueueWorkers * 4,
	}
}

// Processor handles one message type. A returned error leaves the entry pending.
type Processor interface {
	Process(ctx context.Context, message *queue.Message) error
	GetType() string
}

// ProcessorService consumes the settlement stream with several consumers of one
// group and runs every entry through the processor registered for its type.
type ProcessorService struct {
	adapter    redis.RedisAdapter
	config     ServiceConfig
	queues     []*queue.Queue
	processors map[string]Processor
	metrics    *ServiceMetrics
	pool       *worker.WorkerManager[*job]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewProcessorService(adapter redis.RedisAdapter, cfg ServiceConfig) (*ProcessorService, error) {
	if cfg.Queue.Name == "" {
		return nil, fmt.Errorf("stream name is required")
	}
	cfg.Consumers = max(cfg.Consumers, 1)
	cfg.Workers = max(cfg.Workers, 1)
	cfg.BufferSize = max(cfg.BufferSize, cfg.Workers)

	ctx, cancel := context.WithCancel(context.Background())
	return &ProcessorService{
		adapter:    adapter,
		config:     cfg,
		processors: make(map[string]Processor),
		metrics:    NewServiceMetrics(),
		pool:       worker.NewWorkerManager[*job](cfg.BufferSize, cfg.Workers),
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// RegisterProcessor must be called before Start.
func (s *ProcessorService) RegisterProcessor(p Processor) {
	s.processors[p.GetType()] = p
	logger.Info("Registered processor", "type", p.GetType())
}

func (s *ProcessorService) Metrics() *ServiceMetrics {
	return s.metrics
}

// Start runs the worker pool, one queue consumer per configured instance and the
// background monitors. It does not block.
func (s *ProcessorService) Start() error {
	logger.Info("Starting processor service", "stream", s.config.Queue.Name)

	s.pool.SetWorker(s.work)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.pool.Start(); err != nil {
			logger.Info("Worker pool stopped", "reason", err)
		}
	}()

	for i := 0; i < s.config.Consumers; i++ {
		qc := s.config.Queue
		qc.ConsumerName = fmt.Sprintf("%s-instance-%d", qc.ConsumerName, i)

		q, err := queue.NewQueue(s.adapter, qc)
		if err != nil {
			return fmt.Errorf("failed to create consumer %d: %w", i, err)
		}
		if err := q.Consume(s.dispatch); err != nil {
			return fmt.Errorf("failed to start consumer %d: %w", i, err)
		}
		s.queues = append(s.queues, q)
		logger.Info("Started consumer", "instance", i, "consumer", qc.ConsumerName)
	}

	s.startMonitors()

	logger.Info("Processor service started", "consumers", len(s.queues), "workers", s.config.Workers)
	return nil
}

// Stop stops consumers first so no new entries are dispatched, then the pool.
// Entries whose handlers were cut short stay pending and are claimed on restart.
func (s *ProcessorService) Stop() {
	logger.Info("Shutting down processor service")
	s.cancel()

	var qwg sync.WaitGroup
	for i, q := range s.queues {
		qwg.Add(1)
		go func(i int, q *queue.Queue) {
			defer qwg.Done()
			if err := q.Stop(ShutdownTimeout); err != nil {
				logger.Error("Error stopping consumer", "instance", i, "error", err)
			}
		}(i, q)
	}
	qwg.Wait()

	s.pool.Exit()
	s.wg.Wait()
	s.reportMetrics()

	logger.Info("Processor service stopped")
}

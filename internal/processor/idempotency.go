package processor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nimasrn/matatu-pay/pkg/logger"
	"github.com/nimasrn/matatu-pay/pkg/redis"
)

var (
	ErrAlreadyProcessed   = errors.New("key already processed")
	ErrLockAcquireFailed  = errors.New("failed to acquire processing lock")
	ErrLockUnavailable    = errors.New("lock store unavailable")
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")
)

// IdempotencyConfig controls the redis keys guarding settlement and stats work.
// A key moves through lock -> processed, or lock -> retry on failure.
type IdempotencyConfig struct {
	LockTTL      time.Duration
	ProcessedTTL time.Duration
	MaxRetries   int

	RetryKeyPrefix     string
	LockKeyPrefix      string
	ProcessedKeyPrefix string
}

func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		LockTTL:            30 * time.Second,
		ProcessedTTL:       48 * time.Hour,
		MaxRetries:         3,
		RetryKeyPrefix:     "matatu:retry:",
		LockKeyPrefix:      "matatu:lock:",
		ProcessedKeyPrefix: "matatu:processed:",
	}
}

type IdempotencyService struct {
	redis  redis.RedisAdapter
	config IdempotencyConfig
}

func NewIdempotencyService(redisAdapter redis.RedisAdapter, config IdempotencyConfig) *IdempotencyService {
	return &IdempotencyService{
		redis:  redisAdapter,
		config: config,
	}
}

// ProcessingContext is handed out by AcquireProcessingLock and must be passed
// back to exactly one of MarkSuccess, MarkFailure or ReleaseLock.
type ProcessingContext struct {
	Key        string
	RetryCount int
	IsRetry    bool

	held bool
}

func (s *IdempotencyService) lockKey(key string) string  { return s.config.LockKeyPrefix + key }
func (s *IdempotencyService) retryKey(key string) string { return s.config.RetryKeyPrefix + key }
func (s *IdempotencyService) processedKey(key string) string {
	return s.config.ProcessedKeyPrefix + key
}

func (s *IdempotencyService) AcquireProcessingLock(ctx context.Context, key string) (*ProcessingContext, error) {
	done, err := s.IsProcessed(ctx, key)
	switch {
	case err != nil:
		// a redis hiccup here must not stall settlement; the ledger update is conditional anyway
		logger.Warn("Processed marker lookup failed", "key", key, "error", err)
	case done:
		logger.Debug("Key already processed", "key", key)
		return nil, ErrAlreadyProcessed
	}

	retries, err := s.GetRetryCount(ctx, key)
	if err != nil {
		logger.Warn("Retry counter lookup failed", "key", key, "error", err)
	}
	if retries >= s.config.MaxRetries {
		logger.Error("Giving up on key", "key", key, "retry_count", retries)
		return nil, fmt.Errorf("%w: key=%s, retries=%d", ErrMaxRetriesExceeded, key, retries)
	}

	owner := []byte(strconv.FormatInt(time.Now().UnixNano(), 10))
	ok, err := s.redis.SetNX(s.lockKey(key), owner, s.config.LockTTL)
	if err != nil {
		logger.Error("Lock acquisition failed", "key", key, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrLockUnavailable, err)
	}
	if !ok {
		logger.Debug("Lock held elsewhere", "key", key)
		return nil, ErrLockAcquireFailed
	}

	logger.Debug("Lock acquired", "key", key, "retry_count", retries)
	return &ProcessingContext{Key: key, RetryCount: retries, IsRetry: retries > 0, held: true}, nil
}

// MarkSuccess records the key as done for ProcessedTTL and clears its lock and retry counter.
func (s *IdempotencyService) MarkSuccess(ctx context.Context, pc *ProcessingContext) error {
	if err := s.redis.Set(s.processedKey(pc.Key), []byte("1"), s.config.ProcessedTTL); err != nil {
		logger.Error("Failed to set processed marker", "key", pc.Key, "error", err)
		return fmt.Errorf("failed to mark as processed: %w", err)
	}

	s.del(pc.Key, s.lockKey(pc.Key))
	s.del(pc.Key, s.retryKey(pc.Key))
	pc.held = false
	return nil
}

// MarkFailure bumps the retry counter and frees the lock so a redelivery can try again.
func (s *IdempotencyService) MarkFailure(ctx context.Context, pc *ProcessingContext, reason error) error {
	next := pc.RetryCount + 1
	if err := s.redis.Set(s.retryKey(pc.Key), []byte(strconv.Itoa(next)), s.config.ProcessedTTL); err != nil {
		logger.Error("Failed to bump retry counter", "key", pc.Key, "error", err)
	}

	s.del(pc.Key, s.lockKey(pc.Key))
	pc.held = false

	logger.Warn("Processing failed",
		"key", pc.Key,
		"retry_count", next,
		"max_retries", s.config.MaxRetries,
		"reason", reason)
	return nil
}

func (s *IdempotencyService) ReleaseLock(ctx context.Context, pc *ProcessingContext) error {
	if pc == nil || !pc.held {
		return nil
	}
	if err := s.redis.Del(s.lockKey(pc.Key)); err != nil {
		logger.Warn("Failed to release lock", "key", pc.Key, "error", err)
		return err
	}
	pc.held = false
	return nil
}

func (s *IdempotencyService) GetRetryCount(ctx context.Context, key string) (int, error) {
	raw, err := s.redis.Get(s.retryKey(key))
	if errors.Is(err, redis.NilError) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0, fmt.Errorf("corrupt retry counter for %s: %w", key, err)
	}
	return n, nil
}

func (s *IdempotencyService) IsProcessed(ctx context.Context, key string) (bool, error) {
	n, err := s.redis.Exist(s.processedKey(key))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *IdempotencyService) del(key, redisKey string) {
	if err := s.redis.Del(redisKey); err != nil {
		logger.Warn("Failed to delete idempotency key", "key", key, "redis_key", redisKey, "error", err)
	}
}

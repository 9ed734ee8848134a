package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nimasrn/matatu-pay/internal/model"
	"github.com/nimasrn/matatu-pay/internal/queue"
	"github.com/nimasrn/matatu-pay/pkg/logger"
	"github.com/nimasrn/matatu-pay/pkg/prom"
)

const statsKeyPrefix = "stats:"

var errLockHeld = errors.New("lock held by another consumer")

type StatsStore interface {
	HIncrementBatch(coreName, keySuffix string, fieldAndValues map[string]int64, ttl time.Duration) error
}

// StatsProcessor folds settlement events into per-vehicle daily totals.
type StatsProcessor struct {
	store       StatsStore
	idempotency *IdempotencyService
	retention   time.Duration
}

func NewStatsProcessor(store StatsStore, idempotency *IdempotencyService, retention time.Duration) *StatsProcessor {
	return &StatsProcessor{
		store:       store,
		idempotency: idempotency,
		retention:   retention,
	}
}

func (p *StatsProcessor) GetType() string {
	return "payment.settled"
}

// Process counts each transaction at most once, however often its event is delivered.
func (p *StatsProcessor) Process(ctx context.Context, queueMessage *queue.Message) error {
	var event model.SettlementEvent
	if err := json.Unmarshal(queueMessage.Data, &event); err != nil {
		logger.Error("Failed to unmarshal settlement event", "id", queueMessage.ID, "error", err)
		prom.IncStatsEventProcessed("invalid")
		return err
	}
	if event.TransactionID == "" || event.VehicleCode == "" || !event.Status.IsTerminal() {
		logger.Error("Settlement event is incomplete, dropping",
			"id", queueMessage.ID,
			"transaction_id", event.TransactionID,
			"status", event.Status)
		prom.IncStatsEventProcessed("invalid")
		return nil
	}

	key := statsKeyPrefix + event.TransactionID
	procCtx, err := p.idempotency.AcquireProcessingLock(ctx, key)
	if err != nil {
		switch {
		case errors.Is(err, ErrAlreadyProcessed):
			prom.IncStatsEventProcessed("duplicate")
			return nil
		case errors.Is(err, ErrMaxRetriesExceeded):
			logger.Error("Giving up on settlement event", "transaction_id", event.TransactionID)
			prom.IncStatsEventProcessed("abandoned")
			return nil
		case errors.Is(err, ErrLockAcquireFailed):
			return errLockHeld
		default:
			return err
		}
	}
	defer func() {
		if err := p.idempotency.ReleaseLock(context.WithoutCancel(ctx), procCtx); err != nil {
			logger.Warn("Failed to release stats lock", "transaction_id", event.TransactionID, "error", err)
		}
	}()

	date := model.StatsDate(event.SettledAt)
	if err := p.store.HIncrementBatch(model.VehicleStatsKeyPrefix, model.VehicleStatsKeySuffix(event.VehicleCode, date), statsFields(event), p.retention); err != nil {
		logger.Error("Failed to update vehicle stats", "transaction_id", event.TransactionID, "error", err)
		if markErr := p.idempotency.MarkFailure(ctx, procCtx, err); markErr != nil {
			logger.Error("Failed to mark failure", "transaction_id", event.TransactionID, "error", markErr)
		}
		return fmt.Errorf("update stats of vehicle %s: %w", event.VehicleCode, err)
	}

	if err := p.idempotency.MarkSuccess(ctx, procCtx); err != nil {
		logger.Error("Failed to mark success", "transaction_id", event.TransactionID, "error", err)
	}

	prom.IncStatsEventProcessed(string(event.Status))
	logger.Info("Vehicle stats updated",
		"transaction_id", event.TransactionID,
		"vehicle", event.VehicleCode,
		"date", date,
		"status", event.Status,
		"retry_count", procCtx.RetryCount)
	return nil
}

// statsFields only adds money totals for completed payments.
func statsFields(e model.SettlementEvent) map[string]int64 {
	if e.Status != model.TransactionStatusCompleted {
		return map[string]int64{model.StatsFieldFailed: 1}
	}
	return map[string]int64{
		model.StatsFieldCompleted:     1,
		model.StatsFieldFareTotal:     e.FareAmount,
		model.StatsFieldChargeTotal:   e.ServiceCharge,
		model.StatsFieldOwnerTotal:    e.OwnerShare,
		model.StatsFieldPlatformTotal: e.PlatformShare,
	}
}

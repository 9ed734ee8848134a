package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/nimasrn/matatu-pay/internal/apperrors"
	gateway "github.com/nimasrn/matatu-pay/internal/gateways"
	"github.com/nimasrn/matatu-pay/internal/model"
	"github.com/nimasrn/matatu-pay/internal/processor"
	"github.com/nimasrn/matatu-pay/internal/repository"
	"github.com/nimasrn/matatu-pay/internal/validation"
	"github.com/nimasrn/matatu-pay/pkg/logger"
	"github.com/nimasrn/matatu-pay/pkg/pg"
	"github.com/nimasrn/matatu-pay/pkg/prom"
)

const (
	settleKeyPrefix     = "settle:"
	EventTypeSettled    = "payment.settled"
	callbackAcceptedMsg = "Accepted"
)

type NotificationRepository interface {
	Create(ctx context.Context, n *model.GatewayNotification) (*model.GatewayNotification, error)
}

type StatusQuerier interface {
	Query(ctx context.Context, checkoutID string) (*gateway.QueryResponse, error)
}

type SettlementLocker interface {
	AcquireProcessingLock(ctx context.Context, key string) (*processor.ProcessingContext, error)
	MarkSuccess(ctx context.Context, pc *processor.ProcessingContext) error
	ReleaseLock(ctx context.Context, pc *processor.ProcessingContext) error
}

type EventPublisher interface {
	PublishJSON(ctx context.Context, data interface{}, metadata map[string]string) (string, error)
}

type ReconciliationService struct {
	transactions  TransactionRepository
	notifications NotificationRepository
	gateway       StatusQuerier
	locker        SettlementLocker
	publisher     EventPublisher
	now           func() time.Time
}

// NewReconciliationService wires the settlement state machine. locker and publisher may be nil.
func NewReconciliationService(
	transactions TransactionRepository,
	notifications NotificationRepository,
	gw StatusQuerier,
	locker SettlementLocker,
	publisher EventPublisher,
) *ReconciliationService {
	return &ReconciliationService{
		transactions:  transactions,
		notifications: notifications,
		gateway:       gw,
		locker:        locker,
		publisher:     publisher,
		now:           time.Now,
	}
}

// outcome is one gateway report about a checkout, from either path.
type outcome struct {
	checkoutID string
	source     model.NotificationSource
	resultCode int
	resultDesc string
	receipt    string
	payload    []byte
}

// HandleCallback applies a pushed gateway result. Unknown checkout ids and repeated
// deliveries are acknowledged without touching the ledger.
func (s *ReconciliationService) HandleCallback(ctx context.Context, payload []byte) (*model.CallbackAck, error) {
	var cb model.STKCallback
	if err := json.Unmarshal(payload, &cb); err != nil {
		prom.IncCallbackReceived("invalid")
		logger.Warn("Malformed gateway callback", "error", err)
		return nil, apperrors.Validationf("malformed callback payload")
	}
	if err := validation.Struct(cb); err != nil {
		prom.IncCallbackReceived("invalid")
		logger.Warn("Invalid gateway callback", "error", err)
		return nil, apperrors.Validation(err)
	}

	res := cb.Body.StkCallback
	o := outcome{
		checkoutID: res.CheckoutRequestID,
		source:     model.NotificationSourceCallback,
		resultCode: *res.ResultCode,
		resultDesc: res.ResultDesc,
		receipt:    res.Receipt(),
		payload:    payload,
	}

	_, applied, err := s.reconcile(ctx, o)
	ack := &model.CallbackAck{ResultCode: 0, ResultDesc: callbackAcceptedMsg}
	switch {
	case apperrors.IsKind(err, apperrors.KindUnknownTransaction):
		prom.IncCallbackReceived("unknown")
		logger.Warn("Callback for unknown checkout discarded", "checkout_id", o.checkoutID, "result_code", o.resultCode)
		return ack, nil
	case err != nil:
		prom.IncCallbackReceived("error")
		return nil, err
	case applied:
		prom.IncCallbackReceived("applied")
	default:
		prom.IncCallbackReceived("duplicate")
	}
	return ack, nil
}

// Poll asks the gateway for the outcome of a pending transaction. A failed query leaves
// the transaction as it was.
func (s *ReconciliationService) Poll(ctx context.Context, txn *model.Transaction) (*model.Transaction, error) {
	if txn.Status.IsTerminal() || txn.GatewayCheckoutID == nil || *txn.GatewayCheckoutID == "" {
		return txn, nil
	}
	checkoutID := *txn.GatewayCheckoutID

	resp, err := s.gateway.Query(ctx, checkoutID)
	if err != nil {
		logger.Warn("Status query failed, transaction left pending",
			"transaction_id", txn.TransactionID,
			"checkout_id", checkoutID,
			"error", err)
		return txn, nil
	}

	payload, _ := json.Marshal(resp)
	updated, _, err := s.reconcile(ctx, outcome{
		checkoutID: checkoutID,
		source:     model.NotificationSourcePoll,
		resultCode: resp.ResultCode,
		resultDesc: resp.ResultDesc,
		payload:    payload,
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// reconcile moves the transaction behind o.checkoutID to its terminal state at most once
// and reports whether this call made the transition.
func (s *ReconciliationService) reconcile(ctx context.Context, o outcome) (*model.Transaction, bool, error) {
	// a lagging replica would hide freshly attached checkout ids and settled rows
	ctx = pg.WithPrimary(ctx)

	txn, err := s.transactions.GetByCheckoutID(ctx, o.checkoutID)
	if err != nil {
		if errors.Is(err, repository.ErrTransactionNotFound) {
			s.audit(ctx, nil, o, false)
			return nil, false, apperrors.UnknownTransaction(o.checkoutID)
		}
		return nil, false, apperrors.Persistence("failed to read transaction", err)
	}

	if txn.Status.IsTerminal() {
		logger.Info("Transaction already settled, notification ignored",
			"transaction_id", txn.TransactionID,
			"status", txn.Status,
			"source", o.source)
		s.audit(ctx, txn, o, false)
		return txn, false, nil
	}

	if s.locker != nil {
		pc, err := s.locker.AcquireProcessingLock(ctx, settleKeyPrefix+o.checkoutID)
		switch {
		case errors.Is(err, processor.ErrAlreadyProcessed):
			return s.lost(ctx, txn, o)
		case errors.Is(err, processor.ErrLockAcquireFailed):
			logger.Debug("Settlement lock contended, ledger guard decides", "checkout_id", o.checkoutID, "source", o.source)
		case err != nil:
			logger.Warn("Settlement lock unavailable, ledger guard decides", "checkout_id", o.checkoutID, "error", err)
		default:
			defer func() {
				if err := s.locker.ReleaseLock(context.WithoutCancel(ctx), pc); err != nil {
					logger.Warn("Failed to release settlement lock", "checkout_id", o.checkoutID, "error", err)
				}
			}()
			defer func() {
				if txn.Status.IsTerminal() {
					_ = s.locker.MarkSuccess(context.WithoutCancel(ctx), pc)
				}
			}()
		}
	}

	settlement := model.Settlement{
		CheckoutID: o.checkoutID,
		ResultCode: o.resultCode,
		SettledAt:  s.now(),
	}
	if o.resultCode == gateway.ResultCodeSuccess {
		settlement.Status = model.TransactionStatusCompleted
		settlement.ResultDesc = o.resultDesc
		settlement.ReceiptID = o.receipt
		if o.receipt == "" {
			logger.Warn("Successful payment reported without a receipt", "transaction_id", txn.TransactionID, "source", o.source)
		}
	} else {
		settlement.Status = model.TransactionStatusFailed
		settlement.ResultDesc = gateway.DescribeResultCode(o.resultCode)
	}

	applied, err := s.transactions.ApplySettlement(ctx, settlement)
	if err != nil {
		logger.Error("Failed to apply settlement", "transaction_id", txn.TransactionID, "error", err)
		return nil, false, apperrors.Persistence("failed to update transaction", err)
	}
	if !applied {
		return s.lost(ctx, txn, o)
	}

	s.audit(ctx, txn, o, true)

	updated, err := s.transactions.GetByTransactionID(ctx, txn.TransactionID)
	if err != nil {
		return nil, false, apperrors.Persistence("failed to read transaction", err)
	}
	txn = updated

	prom.IncPaymentSettled(string(txn.Status), string(o.source))
	logger.Info("Transaction settled",
		"transaction_id", txn.TransactionID,
		"status", txn.Status,
		"result_code", o.resultCode,
		"source", o.source)
	s.publish(ctx, txn)

	return txn, true, nil
}

// lost handles a notification that arrived after another path settled the transaction.
func (s *ReconciliationService) lost(ctx context.Context, txn *model.Transaction, o outcome) (*model.Transaction, bool, error) {
	s.audit(ctx, txn, o, false)
	current, err := s.transactions.GetByTransactionID(ctx, txn.TransactionID)
	if err != nil {
		return nil, false, apperrors.Persistence("failed to read transaction", err)
	}
	logger.Info("Concurrent settlement detected, notification ignored",
		"transaction_id", txn.TransactionID,
		"status", current.Status,
		"source", o.source)
	return current, false, nil
}

func (s *ReconciliationService) audit(ctx context.Context, txn *model.Transaction, o outcome, applied bool) {
	if s.notifications == nil {
		return
	}
	n := &model.GatewayNotification{
		CheckoutID: o.checkoutID,
		Source:     o.source,
		ResultCode: o.resultCode,
		ResultDesc: o.resultDesc,
		Applied:    applied,
		Payload:    o.payload,
	}
	if txn != nil {
		id := txn.TransactionID
		n.TransactionID = &id
	}
	if o.receipt != "" {
		r := o.receipt
		n.Receipt = &r
	}
	if _, err := s.notifications.Create(ctx, n); err != nil {
		logger.Error("Failed to record gateway notification", "checkout_id", o.checkoutID, "error", err)
	}
}

func (s *ReconciliationService) publish(ctx context.Context, txn *model.Transaction) {
	if s.publisher == nil {
		return
	}
	id, err := s.publisher.PublishJSON(ctx, txn.SettlementEvent(), map[string]string{
		"type":           EventTypeSettled,
		"transaction_id": txn.TransactionID,
	})
	if err != nil {
		logger.Error("Failed to publish settlement event", "transaction_id", txn.TransactionID, "error", err)
		return
	}
	logger.Debug("Settlement event published", "transaction_id", txn.TransactionID, "stream_id", id)
}

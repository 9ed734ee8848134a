package repository

import (
	"context"
	"errors"
	"time"

	"github.com/nimasrn/matatu-pay/internal/model"
	"github.com/nimasrn/matatu-pay/pkg/pg"
	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"
)

const pendingStatus = string(model.TransactionStatusPending)

type TransactionRepository struct {
	*pg.DB
}

func NewTransactionRepository(db *pg.DB) *TransactionRepository {
	return &TransactionRepository{
		db,
	}
}

func (r *TransactionRepository) Create(ctx context.Context, txn *model.Transaction) (*model.Transaction, error) {
	entity := toTransactionEntity(txn)

	if err := r.Write(ctx).Create(entity).Error; err != nil {
		if pg.IsUniqueViolation(err) {
			return nil, ErrDuplicateTransaction
		}
		return nil, pkgerrors.Wrapf(err, "create transaction %s", txn.TransactionID)
	}

	return toTransactionModel(entity), nil
}

func (r *TransactionRepository) GetByTransactionID(ctx context.Context, transactionID string) (*model.Transaction, error) {
	return r.first(ctx, "transaction_id = ?", transactionID)
}

func (r *TransactionRepository) GetByCheckoutID(ctx context.Context, checkoutID string) (*model.Transaction, error) {
	return r.first(ctx, "gateway_checkout_id = ?", checkoutID)
}

func (r *TransactionRepository) first(ctx context.Context, cond string, arg any) (*model.Transaction, error) {
	var entity TransactionEntity
	err := r.Read(ctx).Where(cond, arg).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, pkgerrors.Wrap(err, "find transaction")
	}
	return toTransactionModel(&entity), nil
}

// AttachGatewayIDs records the provider identifiers once, while the transaction is still pending.
func (r *TransactionRepository) AttachGatewayIDs(ctx context.Context, transactionID, requestID, checkoutID string) error {
	result := r.Write(ctx).
		Model(&TransactionEntity{}).
		Where("transaction_id = ? AND status = ? AND gateway_checkout_id IS NULL", transactionID, pendingStatus).
		Updates(map[string]any{
			"gateway_request_id":  requestID,
			"gateway_checkout_id": checkoutID,
			"updated_at":          time.Now().UTC(),
		})

	if result.Error != nil {
		if pg.IsUniqueViolation(result.Error) {
			return ErrDuplicateCheckoutID
		}
		return pkgerrors.Wrapf(result.Error, "attach gateway ids to %s", transactionID)
	}
	if result.RowsAffected == 0 {
		return ErrGatewayIDsAlreadySet
	}
	return nil
}

// MarkFailed fails a pending transaction that never reached the gateway. The returned
// flag is false when the transaction was no longer pending.
func (r *TransactionRepository) MarkFailed(ctx context.Context, transactionID, reason string) (bool, error) {
	now := time.Now().UTC()
	result := r.Write(ctx).
		Model(&TransactionEntity{}).
		Where("transaction_id = ? AND status = ?", transactionID, pendingStatus).
		Updates(map[string]any{
			"status":         string(model.TransactionStatusFailed),
			"failure_reason": reason,
			"completed_at":   now,
			"updated_at":     now,
		})

	if result.Error != nil {
		return false, pkgerrors.Wrapf(result.Error, "mark transaction %s failed", transactionID)
	}
	return result.RowsAffected == 1, nil
}

// ApplySettlement moves the transaction owning the checkout id out of PENDING. Only one
// caller can ever observe applied == true for a given checkout id.
func (r *TransactionRepository) ApplySettlement(ctx context.Context, s model.Settlement) (bool, error) {
	if !model.TransactionStatusPending.CanTransitionTo(s.Status) {
		return false, pkgerrors.Errorf("invalid settlement status %q", s.Status)
	}

	settledAt := s.SettledAt
	if settledAt.IsZero() {
		settledAt = time.Now().UTC()
	}

	values := map[string]any{
		"status":       string(s.Status),
		"result_code":  s.ResultCode,
		"result_desc":  s.ResultDesc,
		"completed_at": settledAt,
		"updated_at":   settledAt,
	}
	if s.Status == model.TransactionStatusCompleted {
		if s.ReceiptID != "" {
			values["provider_receipt_id"] = s.ReceiptID
		}
	} else {
		values["failure_reason"] = s.ResultDesc
	}

	result := r.Write(ctx).
		Model(&TransactionEntity{}).
		Where("gateway_checkout_id = ? AND status = ?", s.CheckoutID, pendingStatus).
		Updates(values)

	if result.Error != nil {
		return false, pkgerrors.Wrapf(result.Error, "apply settlement for %s", s.CheckoutID)
	}
	return result.RowsAffected == 1, nil
}

// ListByVehicle returns the most recent transactions of a vehicle first.
func (r *TransactionRepository) ListByVehicle(ctx context.Context, vehicleCode string, limit int) ([]*model.Transaction, error) {
	var entities []*TransactionEntity
	err := r.Read(ctx).
		Where("vehicle_code = ?", vehicleCode).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&entities).Error
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "list transactions of vehicle %s", vehicleCode)
	}
	return toTransactionModels(entities), nil
}

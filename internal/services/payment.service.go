package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nimasrn/matatu-pay/internal/apperrors"
	"github.com/nimasrn/matatu-pay/internal/charges"
	gateway "github.com/nimasrn/matatu-pay/internal/gateways"
	"github.com/nimasrn/matatu-pay/internal/model"
	"github.com/nimasrn/matatu-pay/internal/repository"
	"github.com/nimasrn/matatu-pay/internal/validation"
	"github.com/nimasrn/matatu-pay/pkg/logger"
	"github.com/nimasrn/matatu-pay/pkg/prom"
)

const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

type TransactionRepository interface {
	Create(ctx context.Context, txn *model.Transaction) (*model.Transaction, error)
	GetByTransactionID(ctx context.Context, transactionID string) (*model.Transaction, error)
	GetByCheckoutID(ctx context.Context, checkoutID string) (*model.Transaction, error)
	AttachGatewayIDs(ctx context.Context, transactionID, requestID, checkoutID string) error
	MarkFailed(ctx context.Context, transactionID, reason string) (bool, error)
	ApplySettlement(ctx context.Context, s model.Settlement) (bool, error)
	ListByVehicle(ctx context.Context, vehicleCode string, limit int) ([]*model.Transaction, error)
}

type VehicleRepository interface {
	GetByCode(ctx context.Context, code string) (*model.Vehicle, error)
}

type AccountRepository interface {
	GetByID(ctx context.Context, id int64) (*model.Account, error)
	GetActivePlatform(ctx context.Context) (*model.Account, error)
}

type PaymentGateway interface {
	Initiate(ctx context.Context, req gateway.InitiateRequest) (*gateway.InitiateResponse, error)
	Query(ctx context.Context, checkoutID string) (*gateway.QueryResponse, error)
}

type MobileNormalizer interface {
	Normalize(s string) (string, error)
}

type PaymentSettingsProvider interface {
	PaymentSettings(ctx context.Context) (model.PaymentSettings, error)
}

type StatusPoller interface {
	Poll(ctx context.Context, txn *model.Transaction) (*model.Transaction, error)
}

type PaymentService struct {
	transactions TransactionRepository
	vehicles     VehicleRepository
	accounts     AccountRepository
	gateway      PaymentGateway
	settings     PaymentSettingsProvider
	poller       StatusPoller
	mobileNorm   MobileNormalizer
	now          func() time.Time
}

func NewPaymentService(
	transactions TransactionRepository,
	vehicles VehicleRepository,
	accounts AccountRepository,
	gw PaymentGateway,
	settings PaymentSettingsProvider,
	poller StatusPoller,
) *PaymentService {
	return &PaymentService{
		transactions: transactions,
		vehicles:     vehicles,
		accounts:     accounts,
		gateway:      gw,
		settings:     settings,
		poller:       poller,
		mobileNorm:   validation.PhoneNormalizer{},
		now:          time.Now,
	}
}

// Initiate records a PENDING fare payment and sends the payment prompt to the payer.
func (s *PaymentService) Initiate(ctx context.Context, req model.PaymentRequest) (*model.TransactionSummary, error) {
	if err := validation.Struct(req); err != nil {
		return nil, apperrors.Validation(err)
	}

	phone, err := s.mobileNorm.Normalize(req.Phone)
	if err != nil {
		return nil, apperrors.Validation(err)
	}
	code, err := validation.ValidateVehicleCode(req.VehicleCode)
	if err != nil {
		return nil, apperrors.Validation(err)
	}

	settings, err := s.settings.PaymentSettings(ctx)
	if err != nil {
		logger.Error("Failed to read payment settings", "error", err)
		return nil, apperrors.Persistence("failed to read payment settings", err)
	}
	if err := validation.ValidateAmount(req.Amount, settings.MinAmount); err != nil {
		return nil, apperrors.Validation(err)
	}

	owner, platform, err := s.resolveAccounts(ctx, code)
	if err != nil {
		return nil, err
	}

	charge := charges.ComputeServiceCharge(req.Amount)
	var split charges.Split
	if charge > 0 {
		split, err = charges.ComputeSplit(charge, settings.PlatformPercent)
		if err != nil {
			return nil, apperrors.BusinessRule(err.Error())
		}
	}

	txn := &model.Transaction{
		TransactionID:     model.NewTransactionID(s.now()),
		VehicleCode:       code,
		PayerPhone:        phone,
		FareAmount:        req.Amount,
		ServiceCharge:     charge,
		TotalAmount:       req.Amount + charge,
		OwnerShare:        split.OwnerShare,
		PlatformShare:     split.PlatformShare,
		PlatformPercent:   settings.PlatformPercent.String(),
		OwnerAccountID:    owner.ID,
		PlatformAccountID: platform.ID,
		Status:            model.TransactionStatusPending,
	}

	txn, err = s.transactions.Create(ctx, txn)
	if err != nil {
		logger.Error("Failed to record payment", "vehicle", code, "error", err)
		return nil, apperrors.Persistence("failed to record payment", err)
	}

	resp, err := s.gateway.Initiate(ctx, gateway.InitiateRequest{
		Phone:       phone,
		Amount:      txn.TotalAmount,
		Reference:   code,
		Description: "Fare " + code,
	})
	if err != nil {
		msg := gatewayMessage(err)
		reason := msg
		if indeterminate(err) {
			// no checkout id means neither a callback nor a poll can settle this row
			reason = msg + "; provider outcome unknown, the prompt may have reached the payer"
			logger.Error("Payment prompt outcome unknown",
				"transaction_id", txn.TransactionID,
				"phone", logger.MaskPhone(phone),
				"amount", txn.TotalAmount,
				"error", err)
		}
		if _, markErr := s.transactions.MarkFailed(ctx, txn.TransactionID, reason); markErr != nil {
			logger.Error("Failed to mark payment failed", "transaction_id", txn.TransactionID, "error", markErr)
		}
		prom.IncPaymentInitiated("gateway_error")
		logger.Warn("Payment prompt failed", "transaction_id", txn.TransactionID, "error", err)
		return nil, apperrors.Gateway(msg, err)
	}

	if err := s.transactions.AttachGatewayIDs(ctx, txn.TransactionID, resp.MerchantRequestID, resp.CheckoutRequestID); err != nil {
		logger.Error("Failed to attach gateway ids", "transaction_id", txn.TransactionID, "checkout_id", resp.CheckoutRequestID, "error", err)
		return nil, apperrors.Persistence("failed to record payment", err)
	}
	txn.GatewayRequestID = &resp.MerchantRequestID
	txn.GatewayCheckoutID = &resp.CheckoutRequestID

	prom.IncPaymentInitiated("pending")
	logger.Info("Payment initiated",
		"transaction_id", txn.TransactionID,
		"vehicle", code,
		"phone", logger.MaskPhone(txn.PayerPhone),
		"fare", txn.FareAmount,
		"charge", txn.ServiceCharge,
		"checkout_id", resp.CheckoutRequestID)

	summary := txn.Summary()
	summary.CustomerMessage = resp.CustomerMessage
	return summary, nil
}

// GetStatus returns the current state of a transaction, asking the gateway first when
// the outcome is still unknown.
func (s *PaymentService) GetStatus(ctx context.Context, transactionID string) (*model.TransactionSummary, error) {
	txn, err := s.transactions.GetByTransactionID(ctx, transactionID)
	if err != nil {
		if errors.Is(err, repository.ErrTransactionNotFound) {
			return nil, apperrors.NotFound("transaction not found")
		}
		return nil, apperrors.Persistence("failed to read transaction", err)
	}

	if txn.Status == model.TransactionStatusPending && txn.GatewayCheckoutID != nil && s.poller != nil {
		polled, err := s.poller.Poll(ctx, txn)
		if err != nil {
			return nil, err
		}
		txn = polled
	}

	return txn.Summary(), nil
}

func (s *PaymentService) History(ctx context.Context, vehicleCode string, limit int) ([]*model.TransactionSummary, error) {
	code, err := validation.ValidateVehicleCode(vehicleCode)
	if err != nil {
		return nil, apperrors.Validation(err)
	}

	switch {
	case limit <= 0:
		limit = DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		limit = MaxHistoryLimit
	}

	txns, err := s.transactions.ListByVehicle(ctx, code, limit)
	if err != nil {
		return nil, apperrors.Persistence("failed to read transactions", err)
	}

	out := make([]*model.TransactionSummary, 0, len(txns))
	for _, t := range txns {
		out = append(out, t.Summary())
	}
	return out, nil
}

func (s *PaymentService) resolveAccounts(ctx context.Context, code string) (*model.Account, *model.Account, error) {
	vehicle, err := s.vehicles.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrVehicleNotFound) {
			return nil, nil, apperrors.BusinessRule(fmt.Sprintf("vehicle %s is not registered", code))
		}
		return nil, nil, apperrors.Persistence("failed to read vehicle", err)
	}
	if !vehicle.IsActive {
		return nil, nil, apperrors.BusinessRule(fmt.Sprintf("vehicle %s is not active", code))
	}

	owner, err := s.accounts.GetByID(ctx, vehicle.OwnerAccountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, nil, apperrors.BusinessRule(fmt.Sprintf("vehicle %s has no owner account", code))
		}
		return nil, nil, apperrors.Persistence("failed to read owner account", err)
	}
	if !owner.IsActive || owner.Type != model.AccountTypeOwner {
		return nil, nil, apperrors.BusinessRule(fmt.Sprintf("owner account of vehicle %s is not active", code))
	}

	platform, err := s.accounts.GetActivePlatform(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrPlatformAccountMissing) || errors.Is(err, repository.ErrPlatformAccountTooMany) {
			logger.Error("Platform account misconfigured", "error", err)
			return nil, nil, apperrors.BusinessRule("payments are not available: platform account is not configured")
		}
		return nil, nil, apperrors.Persistence("failed to read platform account", err)
	}

	return owner, platform, nil
}

// gatewayMessage is the payer-facing text of a gateway failure.
func indeterminate(err error) bool {
	var ge *gateway.GatewayError
	return errors.As(err, &ge) && ge.Indeterminate
}

func gatewayMessage(err error) string {
	var ge *gateway.GatewayError
	if errors.As(err, &ge) && ge.Message != "" {
		return ge.Message
	}
	return "payment provider request failed"
}

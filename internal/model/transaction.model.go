package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
)

func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionStatusCompleted || s == TransactionStatusFailed
}

// CanTransitionTo only allows PENDING to move to one of the terminal states.
func (s TransactionStatus) CanTransitionTo(next TransactionStatus) bool {
	return s == TransactionStatusPending && next.IsTerminal()
}

type Transaction struct {
	ID                int64             `json:"-"`
	TransactionID     string            `json:"transaction_id"`
	VehicleCode       string            `json:"vehicle_code"`
	PayerPhone        string            `json:"payer_phone"`
	FareAmount        int64             `json:"fare_amount"`
	ServiceCharge     int64             `json:"service_charge"`
	TotalAmount       int64             `json:"total_amount"`
	OwnerShare        int64             `json:"owner_share"`
	PlatformShare     int64             `json:"platform_share"`
	PlatformPercent   string            `json:"platform_percent"`
	OwnerAccountID    int64             `json:"owner_account_id"`
	PlatformAccountID int64             `json:"platform_account_id"`
	Status            TransactionStatus `json:"status"`
	GatewayRequestID  *string           `json:"gateway_request_id,omitempty"`
	GatewayCheckoutID *string           `json:"gateway_checkout_id,omitempty"`
	ProviderReceiptID *string           `json:"provider_receipt_id,omitempty"`
	ResultCode        *int              `json:"result_code,omitempty"`
	ResultDesc        *string           `json:"result_desc,omitempty"`
	FailureReason     *string           `json:"failure_reason,omitempty"`
	CompletedAt       *time.Time        `json:"completed_at,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// NewTransactionID returns MTX + UTC timestamp + six hex characters of a random uuid.
func NewTransactionID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return fmt.Sprintf("MTX%s%s", now.UTC().Format("20060102150405"), strings.ToUpper(suffix))
}

// PaymentRequest is the raw input of a fare payment before normalisation.
type PaymentRequest struct {
	VehicleCode string `json:"vehicle_code" validate:"required,vehicle_code"`
	Phone       string `json:"phone"        validate:"required,ke_phone"`
	Amount      int64  `json:"amount"       validate:"required"`
}

// TransactionSummary is what callers see of a transaction.
type TransactionSummary struct {
	TransactionID     string            `json:"transaction_id"`
	VehicleCode       string            `json:"vehicle_code"`
	Phone             string            `json:"phone"`
	FareAmount        int64             `json:"fare_amount"`
	ServiceCharge     int64             `json:"service_charge"`
	TotalAmount       int64             `json:"total_amount"`
	OwnerShare        int64             `json:"owner_share"`
	PlatformShare     int64             `json:"platform_share"`
	Status            TransactionStatus `json:"status"`
	CheckoutRequestID string            `json:"checkout_request_id,omitempty"`
	ReceiptNumber     string            `json:"receipt_number,omitempty"`
	ResultDesc        string            `json:"result_desc,omitempty"`
	CustomerMessage   string            `json:"customer_message,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	CompletedAt       *time.Time        `json:"completed_at,omitempty"`
}

func (t *Transaction) Summary() *TransactionSummary {
	s := &TransactionSummary{
		TransactionID: t.TransactionID,
		VehicleCode:   t.VehicleCode,
		Phone:         t.PayerPhone,
		FareAmount:    t.FareAmount,
		ServiceCharge: t.ServiceCharge,
		TotalAmount:   t.TotalAmount,
		OwnerShare:    t.OwnerShare,
		PlatformShare: t.PlatformShare,
		Status:        t.Status,
		CreatedAt:     t.CreatedAt,
		CompletedAt:   t.CompletedAt,
	}
	if t.GatewayCheckoutID != nil {
		s.CheckoutRequestID = *t.GatewayCheckoutID
	}
	if t.ProviderReceiptID != nil {
		s.ReceiptNumber = *t.ProviderReceiptID
	}
	if t.ResultDesc != nil {
		s.ResultDesc = *t.ResultDesc
	}
	return s
}

// Settlement is the outcome applied to a pending transaction.
type Settlement struct {
	CheckoutID string
	Status     TransactionStatus
	ResultCode int
	ResultDesc string
	ReceiptID  string
	SettledAt  time.Time
}

// SettlementEvent is published once per transaction after its terminal transition.
type SettlementEvent struct {
	TransactionID string            `json:"transaction_id"`
	VehicleCode   string            `json:"vehicle_code"`
	Status        TransactionStatus `json:"status"`
	FareAmount    int64             `json:"fare_amount"`
	ServiceCharge int64             `json:"service_charge"`
	OwnerShare    int64             `json:"owner_share"`
	PlatformShare int64             `json:"platform_share"`
	SettledAt     time.Time         `json:"settled_at"`
}

func (t *Transaction) SettlementEvent() SettlementEvent {
	settledAt := t.UpdatedAt
	if t.CompletedAt != nil {
		settledAt = *t.CompletedAt
	}
	return SettlementEvent{
		TransactionID: t.TransactionID,
		VehicleCode:   t.VehicleCode,
		Status:        t.Status,
		FareAmount:    t.FareAmount,
		ServiceCharge: t.ServiceCharge,
		OwnerShare:    t.OwnerShare,
		PlatformShare: t.PlatformShare,
		SettledAt:     settledAt,
	}
}

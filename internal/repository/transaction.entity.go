package repository

import (
	"time"

	"github.com/nimasrn/matatu-pay/internal/model"
)

type TransactionEntity struct {
	ID                int64      `db:"id"                  gorm:"primaryKey;autoIncrement;column:id"`
	TransactionID     string     `db:"transaction_id"      gorm:"column:transaction_id;size:32;not null;uniqueIndex"`
	VehicleCode       string     `db:"vehicle_code"        gorm:"column:vehicle_code;size:4;not null;index:idx_transactions_vehicle_created,priority:1"`
	PayerPhone        string     `db:"payer_phone"         gorm:"column:payer_phone;size:12;not null"`
	FareAmount        int64      `db:"fare_amount"         gorm:"column:fare_amount;not null"`
	ServiceCharge     int64      `db:"service_charge"      gorm:"column:service_charge;not null"`
	TotalAmount       int64      `db:"total_amount"        gorm:"column:total_amount;not null"`
	OwnerShare        int64      `db:"owner_share"         gorm:"column:owner_share;not null"`
	PlatformShare     int64      `db:"platform_share"      gorm:"column:platform_share;not null"`
	PlatformPercent   string     `db:"platform_percent"    gorm:"column:platform_percent;not null"`
	OwnerAccountID    int64      `db:"owner_account_id"    gorm:"column:owner_account_id;not null"`
	PlatformAccountID int64      `db:"platform_account_id" gorm:"column:platform_account_id;not null"`
	Status            string     `db:"status"              gorm:"column:status;size:16;not null;index"`
	GatewayRequestID  *string    `db:"gateway_request_id"  gorm:"column:gateway_request_id"`
	GatewayCheckoutID *string    `db:"gateway_checkout_id" gorm:"column:gateway_checkout_id;uniqueIndex"`
	ProviderReceiptID *string    `db:"provider_receipt_id" gorm:"column:provider_receipt_id"`
	ResultCode        *int       `db:"result_code"         gorm:"column:result_code"`
	ResultDesc        *string    `db:"result_desc"         gorm:"column:result_desc"`
	FailureReason     *string    `db:"failure_reason"      gorm:"column:failure_reason"`
	CompletedAt       *time.Time `db:"completed_at"        gorm:"column:completed_at"`
	CreatedAt         time.Time  `db:"created_at"          gorm:"column:created_at;autoCreateTime;index:idx_transactions_vehicle_created,priority:2"`
	UpdatedAt         time.Time  `db:"updated_at"          gorm:"column:updated_at;autoUpdateTime"`
}

func (TransactionEntity) TableName() string {
	return "transactions"
}

func toTransactionEntity(m *model.Transaction) *TransactionEntity {
	if m == nil {
		return nil
	}
	return &TransactionEntity{
		ID:                m.ID,
		TransactionID:     m.TransactionID,
		VehicleCode:       m.VehicleCode,
		PayerPhone:        m.PayerPhone,
		FareAmount:        m.FareAmount,
		ServiceCharge:     m.ServiceCharge,
		TotalAmount:       m.TotalAmount,
		OwnerShare:        m.OwnerShare,
		PlatformShare:     m.PlatformShare,
		PlatformPercent:   m.PlatformPercent,
		OwnerAccountID:    m.OwnerAccountID,
		PlatformAccountID: m.PlatformAccountID,
		Status:            string(m.Status),
		GatewayRequestID:  m.GatewayRequestID,
		GatewayCheckoutID: m.GatewayCheckoutID,
		ProviderReceiptID: m.ProviderReceiptID,
		ResultCode:        m.ResultCode,
		ResultDesc:        m.ResultDesc,
		FailureReason:     m.FailureReason,
		CompletedAt:       m.CompletedAt,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func toTransactionModel(e *TransactionEntity) *model.Transaction {
	if e == nil {
		return nil
	}
	return &model.Transaction{
		ID:                e.ID,
		TransactionID:     e.TransactionID,
		VehicleCode:       e.VehicleCode,
		PayerPhone:        e.PayerPhone,
		FareAmount:        e.FareAmount,
		ServiceCharge:     e.ServiceCharge,
		TotalAmount:       e.TotalAmount,
		OwnerShare:        e.OwnerShare,
		PlatformShare:     e.PlatformShare,
		PlatformPercent:   e.PlatformPercent,
		OwnerAccountID:    e.OwnerAccountID,
		PlatformAccountID: e.PlatformAccountID,
		Status:            model.TransactionStatus(e.Status),
		GatewayRequestID:  e.GatewayRequestID,
		GatewayCheckoutID: e.GatewayCheckoutID,
		ProviderReceiptID: e.ProviderReceiptID,
		ResultCode:        e.ResultCode,
		ResultDesc:        e.ResultDesc,
		FailureReason:     e.FailureReason,
		CompletedAt:       e.CompletedAt,
		CreatedAt:         e.CreatedAt,
		UpdatedAt:         e.UpdatedAt,
	}
}

func toTransactionModels(entities []*TransactionEntity) []*model.Transaction {
	if entities == nil {
		return nil
	}
	models := make([]*model.Transaction, len(entities))
	for i, e := range entities {
		models[i] = toTransactionModel(e)
	}
	return models
}

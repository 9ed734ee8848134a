package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	SettingPlatformPercentage = "developer_percentage"
	SettingMinAmount          = "min_amount"
)

type SystemSetting struct {
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	Description string    `json:"description"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PaymentSettings are the typed business settings read for a single payment.
type PaymentSettings struct {
	PlatformPercent decimal.Decimal
	MinAmount       int64
}

package model

import "time"

type AccountType string

const (
	AccountTypeOwner    AccountType = "OWNER"
	AccountTypePlatform AccountType = "PLATFORM"
)

type Account struct {
	ID            int64       `json:"id"`
	AccountNumber string      `json:"account_number"`
	Name          string      `json:"name"`
	Type          AccountType `json:"type"`
	IsActive      bool        `json:"is_active"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

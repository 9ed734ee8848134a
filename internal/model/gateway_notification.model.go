package model

import "time"

type NotificationSource string

const (
	NotificationSourceCallback NotificationSource = "CALLBACK"
	NotificationSourcePoll     NotificationSource = "POLL"
)

// GatewayNotification is the audit record of one outcome report from the gateway.
type GatewayNotification struct {
	ID            int64              `json:"id"`
	TransactionID *string            `json:"transaction_id,omitempty"`
	CheckoutID    string             `json:"checkout_id"`
	Source        NotificationSource `json:"source"`
	ResultCode    int                `json:"result_code"`
	ResultDesc    string             `json:"result_desc"`
	Receipt       *string            `json:"receipt,omitempty"`
	Applied       bool               `json:"applied"`
	Payload       []byte             `json:"-"`
	CreatedAt     time.Time          `json:"created_at"`
}

package repository

import (
	"time"

	"github.com/nimasrn/matatu-pay/internal/model"
	"gorm.io/datatypes"
)

type GatewayNotificationEntity struct {
	ID            int64          `db:"id"             gorm:"primaryKey;autoIncrement;column:id"`
	TransactionID *string        `db:"transaction_id" gorm:"column:transaction_id;index"`
	CheckoutID    string         `db:"checkout_id"    gorm:"column:checkout_id;not null;index"`
	Source        string         `db:"source"         gorm:"column:source;size:16;not null"`
	ResultCode    int            `db:"result_code"    gorm:"column:result_code;not null"`
	ResultDesc    string         `db:"result_desc"    gorm:"column:result_desc;not null;default:''"`
	Receipt       *string        `db:"receipt"        gorm:"column:receipt"`
	Applied       bool           `db:"applied"        gorm:"column:applied;not null;default:false"`
	Payload       datatypes.JSON `db:"payload"        gorm:"column:payload"`
	CreatedAt     time.Time      `db:"created_at"     gorm:"column:created_at;autoCreateTime"`
}

func (GatewayNotificationEntity) TableName() string {
	return "gateway_notifications"
}

func toGatewayNotificationEntity(m *model.GatewayNotification) *GatewayNotificationEntity {
	if m == nil {
		return nil
	}
	e := &GatewayNotificationEntity{
		ID:            m.ID,
		TransactionID: m.TransactionID,
		CheckoutID:    m.CheckoutID,
		Source:        string(m.Source),
		ResultCode:    m.ResultCode,
		ResultDesc:    m.ResultDesc,
		Receipt:       m.Receipt,
		Applied:       m.Applied,
		CreatedAt:     m.CreatedAt,
	}
	if len(m.Payload) > 0 {
		e.Payload = datatypes.JSON(m.Payload)
	}
	return e
}

func toGatewayNotificationModel(e *GatewayNotificationEntity) *model.GatewayNotification {
	if e == nil {
		return nil
	}
	return &model.GatewayNotification{
		ID:            e.ID,
		TransactionID: e.TransactionID,
		CheckoutID:    e.CheckoutID,
		Source:        model.NotificationSource(e.Source),
		ResultCode:    e.ResultCode,
		ResultDesc:    e.ResultDesc,
		Receipt:       e.Receipt,
		Applied:       e.Applied,
		Payload:       []byte(e.Payload),
		CreatedAt:     e.CreatedAt,
	}
}

func toGatewayNotificationModels(entities []*GatewayNotificationEntity) []*model.GatewayNotification {
	if entities == nil {
		return nil
	}
	models := make([]*model.GatewayNotification, len(entities))
	for i, e := range entities {
		models[i] = toGatewayNotificationModel(e)
	}
	return models
}

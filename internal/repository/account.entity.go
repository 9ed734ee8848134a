package repository

import (
	"time"

	"github.com/nimasrn/matatu-pay/internal/model"
)

type AccountEntity struct {
	ID            int64     `db:"id"             gorm:"primaryKey;autoIncrement;column:id"`
	AccountNumber string    `db:"account_number" gorm:"column:account_number;not null;uniqueIndex"`
	Name          string    `db:"name"           gorm:"column:name;not null"`
	Type          string    `db:"type"           gorm:"column:type;size:16;not null;index"`
	IsActive      bool      `db:"is_active"      gorm:"column:is_active;not null;default:true"`
	CreatedAt     time.Time `db:"created_at"     gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `db:"updated_at"     gorm:"column:updated_at;autoUpdateTime"`
}

func (AccountEntity) TableName() string {
	return "accounts"
}

func toAccountEntity(m *model.Account) *AccountEntity {
	if m == nil {
		return nil
	}
	return &AccountEntity{
		ID:            m.ID,
		AccountNumber: m.AccountNumber,
		Name:          m.Name,
		Type:          string(m.Type),
		IsActive:      m.IsActive,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func toAccountModel(e *AccountEntity) *model.Account {
	if e == nil {
		return nil
	}
	return &model.Account{
		ID:            e.ID,
		AccountNumber: e.AccountNumber,
		Name:          e.Name,
		Type:          model.AccountType(e.Type),
		IsActive:      e.IsActive,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
}

func toAccountModels(entities []*AccountEntity) []*model.Account {
	if entities == nil {
		return nil
	}
	models := make([]*model.Account, len(entities))
	for i, e := range entities {
		models[i] = toAccountModel(e)
	}
	return models
}

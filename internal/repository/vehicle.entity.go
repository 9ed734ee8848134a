package repository

import (
	"time"

	"github.com/nimasrn/matatu-pay/internal/model"
)

type VehicleEntity struct {
	ID             int64          `db:"id"               gorm:"primaryKey;autoIncrement;column:id"`
	Code           string         `db:"code"             gorm:"column:code;size:4;not null;uniqueIndex"`
	Route          string         `db:"route"            gorm:"column:route;not null;default:''"`
	OwnerAccountID int64          `db:"owner_account_id" gorm:"column:owner_account_id;not null;index"`
	OwnerAccount   *AccountEntity `gorm:"foreignKey:OwnerAccountID;references:ID"`
	IsActive       bool           `db:"is_active"        gorm:"column:is_active;not null;default:true"`
	CreatedAt      time.Time      `db:"created_at"       gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time      `db:"updated_at"       gorm:"column:updated_at;autoUpdateTime"`
}

func (VehicleEntity) TableName() string {
	return "vehicles"
}

func toVehicleEntity(m *model.Vehicle) *VehicleEntity {
	if m == nil {
		return nil
	}
	return &VehicleEntity{
		ID:             m.ID,
		Code:           m.Code,
		Route:          m.Route,
		OwnerAccountID: m.OwnerAccountID,
		IsActive:       m.IsActive,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func toVehicleModel(e *VehicleEntity) *model.Vehicle {
	if e == nil {
		return nil
	}
	return &model.Vehicle{
		ID:             e.ID,
		Code:           e.Code,
		Route:          e.Route,
		OwnerAccountID: e.OwnerAccountID,
		IsActive:       e.IsActive,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
}

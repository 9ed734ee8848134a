package repository

import (
	"time"

	"github.com/nimasrn/matatu-pay/internal/model"
)

type SystemSettingEntity struct {
	Key         string    `db:"key"         gorm:"primaryKey;column:key;size:64"`
	Value       string    `db:"value"       gorm:"column:value;not null"`
	Description string    `db:"description" gorm:"column:description;not null;default:''"`
	UpdatedAt   time.Time `db:"updated_at"  gorm:"column:updated_at;autoUpdateTime"`
}

func (SystemSettingEntity) TableName() string {
	return "system_settings"
}

func toSystemSettingModel(e *SystemSettingEntity) *model.SystemSetting {
	if e == nil {
		return nil
	}
	return &model.SystemSetting{
		Key:         e.Key,
		Value:       e.Value,
		Description: e.Description,
		UpdatedAt:   e.UpdatedAt,
	}
}

package repository

import (
	"context"
	"errors"
	"time"

	"github.com/nimasrn/matatu-pay/internal/model"
	"github.com/nimasrn/matatu-pay/pkg/pg"
	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SettingRepository struct {
	*pg.DB
}

func NewSettingRepository(db *pg.DB) *SettingRepository {
	return &SettingRepository{
		db,
	}
}

func (r *SettingRepository) Get(ctx context.Context, key string) (*model.SystemSetting, error) {
	var entity SystemSettingEntity
	err := r.Read(ctx).Where(`"key" = ?`, key).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSettingNotFound
		}
		return nil, pkgerrors.Wrapf(err, "read setting %s", key)
	}
	return toSystemSettingModel(&entity), nil
}

// GetMany returns the settings found among keys, indexed by key. Missing keys are absent.
func (r *SettingRepository) GetMany(ctx context.Context, keys ...string) (map[string]*model.SystemSetting, error) {
	var entities []*SystemSettingEntity
	if err := r.Read(ctx).Where(`"key" IN ?`, keys).Find(&entities).Error; err != nil {
		return nil, pkgerrors.Wrap(err, "read settings")
	}
	out := make(map[string]*model.SystemSetting, len(entities))
	for _, e := range entities {
		out[e.Key] = toSystemSettingModel(e)
	}
	return out, nil
}

func (r *SettingRepository) Set(ctx context.Context, key, value, description string) error {
	entity := &SystemSettingEntity{
		Key:         key,
		Value:       value,
		Description: description,
		UpdatedAt:   time.Now().UTC(),
	}
	err := r.Write(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "description", "updated_at"}),
		}).
		Create(entity).Error
	if err != nil {
		return pkgerrors.Wrapf(err, "write setting %s", key)
	}
	return nil
}

package repository

import (
	"context"
	"errors"

	"github.com/nimasrn/matatu-pay/internal/model"
	"github.com/nimasrn/matatu-pay/pkg/pg"
	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"
)

type VehicleRepository struct {
	*pg.DB
}

func NewVehicleRepository(db *pg.DB) *VehicleRepository {
	return &VehicleRepository{
		db,
	}
}

func (r *VehicleRepository) Create(ctx context.Context, v *model.Vehicle) (*model.Vehicle, error) {
	entity := toVehicleEntity(v)

	if err := r.Write(ctx).Create(entity).Error; err != nil {
		if pg.IsUniqueViolation(err) {
			return nil, ErrDuplicateVehicle
		}
		return nil, pkgerrors.Wrapf(err, "create vehicle %s", v.Code)
	}

	return toVehicleModel(entity), nil
}

func (r *VehicleRepository) GetByCode(ctx context.Context, code string) (*model.Vehicle, error) {
	var entity VehicleEntity
	err := r.Read(ctx).Where("code = ?", code).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVehicleNotFound
		}
		return nil, pkgerrors.Wrapf(err, "find vehicle %s", code)
	}
	return toVehicleModel(&entity), nil
}

func (r *VehicleRepository) SetActive(ctx context.Context, code string, active bool) error {
	result := r.Write(ctx).
		Model(&VehicleEntity{}).
		Where("code = ?", code).
		Update("is_active", active)
	if result.Error != nil {
		return pkgerrors.Wrapf(result.Error, "update vehicle %s", code)
	}
	if result.RowsAffected == 0 {
		return ErrVehicleNotFound
	}
	return nil
}

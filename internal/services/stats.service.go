package services

import (
	"context"
	"time"

	"github.com/nimasrn/matatu-pay/internal/apperrors"
	"github.com/nimasrn/matatu-pay/internal/model"
	"github.com/nimasrn/matatu-pay/internal/validation"
)

type StatsStore interface {
	HGetAll(key string) (map[string]string, error)
}

type StatsService struct {
	store StatsStore
	now   func() time.Time
}

func NewStatsService(store StatsStore) *StatsService {
	return &StatsService{store: store, now: time.Now}
}

// VehicleDaily returns the settled totals of a vehicle for one Nairobi calendar day.
// An empty date means today.
func (s *StatsService) VehicleDaily(ctx context.Context, vehicleCode, date string) (*model.VehicleStats, error) {
	code, err := validation.ValidateVehicleCode(vehicleCode)
	if err != nil {
		return nil, apperrors.Validation(err)
	}

	if date == "" {
		date = model.StatsDate(s.now())
	} else if _, err := time.Parse(time.DateOnly, date); err != nil {
		return nil, apperrors.Validationf("date must be formatted as YYYY-MM-DD")
	}

	h, err := s.store.HGetAll(model.VehicleStatsKeyPrefix + model.VehicleStatsKeySuffix(code, date))
	if err != nil {
		return nil, apperrors.Persistence("failed to read vehicle stats", err)
	}
	return model.VehicleStatsFromHash(code, date, h), nil
}

package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/nimasrn/matatu-pay/internal/model"
	"github.com/nimasrn/matatu-pay/internal/validation"
	"github.com/nimasrn/matatu-pay/pkg/logger"
	"github.com/shopspring/decimal"
)

var (
	ErrUnknownSetting = errors.New("unknown setting")
	ErrInvalidSetting = errors.New("invalid setting value")
)

var DefaultPlatformPercent = decimal.NewFromInt(10)

var settingDescriptions = map[string]string{
	model.SettingPlatformPercentage: "Percent of the service charge attributed to the platform account",
	model.SettingMinAmount:          "Minimum fare accepted for a payment",
}

type SettingRepository interface {
	Get(ctx context.Context, key string) (*model.SystemSetting, error)
	GetMany(ctx context.Context, keys ...string) (map[string]*model.SystemSetting, error)
	Set(ctx context.Context, key, value, description string) error
}

type SettingsService struct {
	repo SettingRepository
}

func NewSettingsService(repo SettingRepository) *SettingsService {
	return &SettingsService{repo: repo}
}

// PaymentSettings reads the business settings in force for a new payment. Missing or
// unparsable values fall back to their defaults.
func (s *SettingsService) PaymentSettings(ctx context.Context) (model.PaymentSettings, error) {
	out := model.PaymentSettings{
		PlatformPercent: DefaultPlatformPercent,
		MinAmount:       validation.DefaultMinAmount,
	}

	rows, err := s.repo.GetMany(ctx, model.SettingPlatformPercentage, model.SettingMinAmount)
	if err != nil {
		return out, err
	}

	if row, ok := rows[model.SettingPlatformPercentage]; ok {
		if pct, err := parsePercent(row.Value); err == nil {
			out.PlatformPercent = pct
		} else {
			logger.Warn("Ignoring invalid setting", "key", row.Key, "value", row.Value, "error", err)
		}
	}
	if row, ok := rows[model.SettingMinAmount]; ok {
		if minAmount, err := parseMinAmount(row.Value); err == nil {
			out.MinAmount = minAmount
		} else {
			logger.Warn("Ignoring invalid setting", "key", row.Key, "value", row.Value, "error", err)
		}
	}

	return out, nil
}

func (s *SettingsService) Get(ctx context.Context, key string) (*model.SystemSetting, error) {
	if _, ok := settingDescriptions[key]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSetting, key)
	}
	return s.repo.Get(ctx, key)
}

// Update validates value for a known key and stores it. The new value only affects
// payments initiated afterwards.
func (s *SettingsService) Update(ctx context.Context, key, value string) error {
	desc, ok := settingDescriptions[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSetting, key)
	}

	switch key {
	case model.SettingPlatformPercentage:
		pct, err := parsePercent(value)
		if err != nil {
			return err
		}
		value = pct.String()
	case model.SettingMinAmount:
		minAmount, err := parseMinAmount(value)
		if err != nil {
			return err
		}
		value = strconv.FormatInt(minAmount, 10)
	}

	if err := s.repo.Set(ctx, key, value, desc); err != nil {
		return err
	}
	logger.Info("Setting updated", "key", key, "value", value)
	return nil
}

// Defaults writes every known setting with its default value.
func (s *SettingsService) Defaults(ctx context.Context) error {
	if err := s.repo.Set(ctx, model.SettingPlatformPercentage, DefaultPlatformPercent.String(), settingDescriptions[model.SettingPlatformPercentage]); err != nil {
		return err
	}
	return s.repo.Set(ctx, model.SettingMinAmount, strconv.FormatInt(validation.DefaultMinAmount, 10), settingDescriptions[model.SettingMinAmount])
}

func parsePercent(v string) (decimal.Decimal, error) {
	pct, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s is not a number", ErrInvalidSetting, v)
	}
	if pct.IsNegative() || pct.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.Zero, fmt.Errorf("%w: percent must be between 0 and 100", ErrInvalidSetting)
	}
	return pct, nil
}

func parseMinAmount(v string) (int64, error) {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s is not an integer", ErrInvalidSetting, v)
	}
	if n < 1 || n > validation.MaxAmount {
		return 0, fmt.Errorf("%w: minimum amount must be between 1 and %d", ErrInvalidSetting, validation.MaxAmount)
	}
	return n, nil
}

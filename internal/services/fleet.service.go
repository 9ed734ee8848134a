package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nimasrn/matatu-pay/internal/apperrors"
	"github.com/nimasrn/matatu-pay/internal/model"
	"github.com/nimasrn/matatu-pay/internal/repository"
	"github.com/nimasrn/matatu-pay/internal/validation"
	"github.com/nimasrn/matatu-pay/pkg/logger"
)

type FleetAccountStore interface {
	Create(ctx context.Context, a *model.Account) (*model.Account, error)
	GetByAccountNumber(ctx context.Context, number string) (*model.Account, error)
	GetActivePlatform(ctx context.Context) (*model.Account, error)
	ListByType(ctx context.Context, t model.AccountType) ([]*model.Account, error)
	SetActive(ctx context.Context, id int64, active bool) error
}

type FleetVehicleStore interface {
	Create(ctx context.Context, v *model.Vehicle) (*model.Vehicle, error)
	GetByCode(ctx context.Context, code string) (*model.Vehicle, error)
	SetActive(ctx context.Context, code string, active bool) error
}

// FleetService registers the accounts and vehicles payments are routed to.
type FleetService struct {
	accounts FleetAccountStore
	vehicles FleetVehicleStore
}

func NewFleetService(accounts FleetAccountStore, vehicles FleetVehicleStore) *FleetService {
	return &FleetService{accounts: accounts, vehicles: vehicles}
}

// RegisterAccount creates an active account. Only one active platform account may exist.
func (s *FleetService) RegisterAccount(ctx context.Context, number, name string, typ model.AccountType) (*model.Account, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, apperrors.Validationf("account number is required")
	}
	if typ != model.AccountTypeOwner && typ != model.AccountTypePlatform {
		return nil, apperrors.Validationf("account type must be %s or %s", model.AccountTypeOwner, model.AccountTypePlatform)
	}

	if typ == model.AccountTypePlatform {
		_, err := s.accounts.GetActivePlatform(ctx)
		switch {
		case err == nil, errors.Is(err, repository.ErrPlatformAccountTooMany):
			return nil, apperrors.BusinessRule("an active platform account already exists")
		case !errors.Is(err, repository.ErrPlatformAccountMissing):
			return nil, apperrors.Persistence("failed to check platform account", err)
		}
	}

	acc, err := s.accounts.Create(ctx, &model.Account{
		AccountNumber: number,
		Name:          strings.TrimSpace(name),
		Type:          typ,
		IsActive:      true,
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateAccount) {
			return nil, apperrors.BusinessRule(fmt.Sprintf("account %s already exists", number))
		}
		return nil, apperrors.Persistence("failed to save account", err)
	}

	logger.Info("Account registered", "account_number", acc.AccountNumber, "type", acc.Type)
	return acc, nil
}

// RegisterVehicle creates an active vehicle owned by an existing owner account.
func (s *FleetService) RegisterVehicle(ctx context.Context, code, route, ownerNumber string) (*model.Vehicle, error) {
	code, err := validation.ValidateVehicleCode(code)
	if err != nil {
		return nil, apperrors.Validation(err)
	}

	owner, err := s.accounts.GetByAccountNumber(ctx, strings.TrimSpace(ownerNumber))
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, apperrors.NotFound(fmt.Sprintf("account %s not found", ownerNumber))
		}
		return nil, apperrors.Persistence("failed to load owner account", err)
	}
	if owner.Type != model.AccountTypeOwner {
		return nil, apperrors.BusinessRule(fmt.Sprintf("account %s is not an owner account", owner.AccountNumber))
	}

	v, err := s.vehicles.Create(ctx, &model.Vehicle{
		Code:           code,
		Route:          strings.TrimSpace(route),
		OwnerAccountID: owner.ID,
		IsActive:       true,
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateVehicle) {
			return nil, apperrors.BusinessRule(fmt.Sprintf("vehicle %s already exists", code))
		}
		return nil, apperrors.Persistence("failed to save vehicle", err)
	}

	logger.Info("Vehicle registered", "vehicle_code", v.Code, "owner", owner.AccountNumber)
	return v, nil
}

func (s *FleetService) SetVehicleActive(ctx context.Context, code string, active bool) error {
	code, err := validation.ValidateVehicleCode(code)
	if err != nil {
		return apperrors.Validation(err)
	}
	if err := s.vehicles.SetActive(ctx, code, active); err != nil {
		if errors.Is(err, repository.ErrVehicleNotFound) {
			return apperrors.NotFound(fmt.Sprintf("vehicle %s not found", code))
		}
		return apperrors.Persistence("failed to update vehicle", err)
	}
	return nil
}

// SetAccountActive toggles an account. Activating a platform account while another is active is refused.
func (s *FleetService) SetAccountActive(ctx context.Context, number string, active bool) error {
	acc, err := s.accounts.GetByAccountNumber(ctx, strings.TrimSpace(number))
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return apperrors.NotFound(fmt.Sprintf("account %s not found", number))
		}
		return apperrors.Persistence("failed to load account", err)
	}

	if active && !acc.IsActive && acc.Type == model.AccountTypePlatform {
		if _, err := s.accounts.GetActivePlatform(ctx); !errors.Is(err, repository.ErrPlatformAccountMissing) {
			if err == nil || errors.Is(err, repository.ErrPlatformAccountTooMany) {
				return apperrors.BusinessRule("an active platform account already exists")
			}
			return apperrors.Persistence("failed to check platform account", err)
		}
	}

	if err := s.accounts.SetActive(ctx, acc.ID, active); err != nil {
		return apperrors.Persistence("failed to update account", err)
	}
	return nil
}

func (s *FleetService) Accounts(ctx context.Context, typ model.AccountType) ([]*model.Account, error) {
	out, err := s.accounts.ListByType(ctx, typ)
	if err != nil {
		return nil, apperrors.Persistence("failed to list accounts", err)
	}
	return out, nil
}

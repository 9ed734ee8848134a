package repository

import (
	"context"
	"errors"

	"github.com/nimasrn/matatu-pay/internal/model"
	"github.com/nimasrn/matatu-pay/pkg/pg"
	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"
)

type AccountRepository struct {
	*pg.DB
}

func NewAccountRepository(db *pg.DB) *AccountRepository {
	return &AccountRepository{
		db,
	}
}

func (r *AccountRepository) Create(ctx context.Context, a *model.Account) (*model.Account, error) {
	entity := toAccountEntity(a)

	if err := r.Write(ctx).Create(entity).Error; err != nil {
		if pg.IsUniqueViolation(err) {
			return nil, ErrDuplicateAccount
		}
		return nil, pkgerrors.Wrapf(err, "create account %s", a.AccountNumber)
	}

	return toAccountModel(entity), nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*model.Account, error) {
	var entity AccountEntity
	err := r.Read(ctx).Where("id = ?", id).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, pkgerrors.Wrapf(err, "find account %d", id)
	}
	return toAccountModel(&entity), nil
}

func (r *AccountRepository) GetByAccountNumber(ctx context.Context, number string) (*model.Account, error) {
	var entity AccountEntity
	err := r.Read(ctx).Where("account_number = ?", number).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, pkgerrors.Wrapf(err, "find account %s", number)
	}
	return toAccountModel(&entity), nil
}

// GetActivePlatform returns the single active platform account and fails when there
// is none or more than one.
func (r *AccountRepository) GetActivePlatform(ctx context.Context) (*model.Account, error) {
	var entities []*AccountEntity
	err := r.Read(ctx).
		Where("type = ? AND is_active = ?", string(model.AccountTypePlatform), true).
		Limit(2).
		Find(&entities).Error
	if err != nil {
		return nil, pkgerrors.Wrap(err, "find platform account")
	}

	switch len(entities) {
	case 0:
		return nil, ErrPlatformAccountMissing
	case 1:
		return toAccountModel(entities[0]), nil
	default:
		return nil, ErrPlatformAccountTooMany
	}
}

func (r *AccountRepository) ListByType(ctx context.Context, t model.AccountType) ([]*model.Account, error) {
	var entities []*AccountEntity
	if err := r.Read(ctx).Where("type = ?", string(t)).Order("id").Find(&entities).Error; err != nil {
		return nil, pkgerrors.Wrapf(err, "list %s accounts", t)
	}
	return toAccountModels(entities), nil
}

func (r *AccountRepository) SetActive(ctx context.Context, id int64, active bool) error {
	result := r.Write(ctx).
		Model(&AccountEntity{}).
		Where("id = ?", id).
		Update("is_active", active)
	if result.Error != nil {
		return pkgerrors.Wrapf(result.Error, "update account %d", id)
	}
	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

package repository

import "errors"

var (
	ErrTransactionNotFound    = errors.New("transaction not found")
	ErrDuplicateTransaction   = errors.New("transaction id already exists")
	ErrDuplicateCheckoutID    = errors.New("checkout id already belongs to another transaction")
	ErrGatewayIDsAlreadySet   = errors.New("gateway ids already attached")
	ErrVehicleNotFound        = errors.New("vehicle not found")
	ErrDuplicateVehicle       = errors.New("vehicle code already exists")
	ErrAccountNotFound        = errors.New("account not found")
	ErrDuplicateAccount       = errors.New("account number already exists")
	ErrPlatformAccountMissing = errors.New("no active platform account")
	ErrPlatformAccountTooMany = errors.New("more than one active platform account")
	ErrSettingNotFound        = errors.New("setting not found")
)

// Entities lists every persisted entity, in dependency order, for schema creation in tests and tools.
func Entities() []any {
	return []any{
		&AccountEntity{},
		&VehicleEntity{},
		&TransactionEntity{},
		&SystemSettingEntity{},
		&GatewayNotificationEntity{},
	}
}

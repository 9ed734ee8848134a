package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	MaxAmount        int64 = 150000
	DefaultMinAmount int64 = 10
)

var (
	ErrInvalidPhone       = errors.New("invalid phone number")
	ErrInvalidVehicleCode = errors.New("vehicle code must be 1 to 4 digits")
	ErrAmountTooLow       = errors.New("amount is below the minimum fare")
	ErrAmountTooHigh      = errors.New("amount exceeds the maximum fare")
)

var (
	nonDigit     = regexp.MustCompile(`\D`)
	phonePattern = regexp.MustCompile(`^254[71]\d{8}$`)
	vehicleCode  = regexp.MustCompile(`^\d{1,4}$`)
)

// NormalizePhone converts local and international subscriber formats to 254XXXXXXXXX.
func NormalizePhone(raw string) (string, error) {
	digits := nonDigit.ReplaceAllString(raw, "")

	switch {
	case len(digits) == 10 && strings.HasPrefix(digits, "0"):
		digits = "254" + digits[1:]
	case len(digits) == 9 && (digits[0] == '7' || digits[0] == '1'):
		digits = "254" + digits
	case strings.HasPrefix(digits, "254"):
	default:
		return "", ErrInvalidPhone
	}

	if !phonePattern.MatchString(digits) {
		return "", ErrInvalidPhone
	}
	return digits, nil
}

// PhoneNormalizer adapts NormalizePhone to the normalizer interfaces used by services.
type PhoneNormalizer struct{}

func (PhoneNormalizer) Normalize(s string) (string, error) {
	return NormalizePhone(s)
}

func ValidateVehicleCode(raw string) (string, error) {
	code := strings.TrimSpace(raw)
	if !vehicleCode.MatchString(code) {
		return "", ErrInvalidVehicleCode
	}
	return code, nil
}

func ValidateAmount(amount, minAmount int64) error {
	if amount < minAmount {
		return fmt.Errorf("%w: minimum is %d", ErrAmountTooLow, minAmount)
	}
	if amount > MaxAmount {
		return fmt.Errorf("%w: maximum is %d", ErrAmountTooHigh, MaxAmount)
	}
	return nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("ke_phone", func(fl validator.FieldLevel) bool {
		_, err := NormalizePhone(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("vehicle_code", func(fl validator.FieldLevel) bool {
		_, err := ValidateVehicleCode(fl.Field().String())
		return err == nil
	})
	return v
}

// Struct checks `validate` tags and flattens the first failure into a readable error.
func Struct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}

	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s is required", fe.Field())
	case "ke_phone":
		return ErrInvalidPhone
	case "vehicle_code":
		return ErrInvalidVehicleCode
	default:
		return fmt.Errorf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}

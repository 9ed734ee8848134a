package charges

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidCharge     = errors.New("service charge must be at least 1")
	ErrInvalidPercentage = errors.New("platform percentage must be between 0 and 100")
)

var hundred = decimal.NewFromInt(100)

// Tier is an inclusive upper bound on the fare and the percentage charged on it.
// A zero UpTo marks the open-ended last tier.
type Tier struct {
	UpTo    int64
	Percent decimal.Decimal
}

// DefaultTiers are evaluated in order, first match wins.
var DefaultTiers = []Tier{
	{UpTo: 500, Percent: decimal.RequireFromString("1.5")},
	{UpTo: 1000, Percent: decimal.RequireFromString("1.2")},
	{UpTo: 2000, Percent: decimal.RequireFromString("1.0")},
	{UpTo: 0, Percent: decimal.RequireFromString("0.8")},
}

type Split struct {
	OwnerShare    int64 `json:"owner_share"`
	PlatformShare int64 `json:"platform_share"`
}

// ComputeServiceCharge returns the fee for a validated fare, rounded half-up to a whole unit.
func ComputeServiceCharge(fareAmount int64) int64 {
	return ComputeServiceChargeWith(DefaultTiers, fareAmount)
}

func ComputeServiceChargeWith(tiers []Tier, fareAmount int64) int64 {
	pct := tierPercent(tiers, fareAmount)
	return roundHalfUp(decimal.NewFromInt(fareAmount).Mul(pct).Div(hundred))
}

// TierPercent exposes the percentage applied to a fare for display purposes.
func TierPercent(fareAmount int64) decimal.Decimal {
	return tierPercent(DefaultTiers, fareAmount)
}

func tierPercent(tiers []Tier, fareAmount int64) decimal.Decimal {
	for _, t := range tiers {
		if t.UpTo == 0 || fareAmount <= t.UpTo {
			return t.Percent
		}
	}
	return decimal.Zero
}

// ComputeSplit divides a service charge between the vehicle owner and the platform.
// The platform share is rounded half-up and the owner takes the remainder. When that
// leaves the owner with nothing on a charge larger than one unit, one unit moves back
// to the owner.
func ComputeSplit(serviceCharge int64, platformPercent decimal.Decimal) (Split, error) {
	if serviceCharge < 1 {
		return Split{}, ErrInvalidCharge
	}
	if platformPercent.IsNegative() || platformPercent.GreaterThan(hundred) {
		return Split{}, ErrInvalidPercentage
	}

	platform := roundHalfUp(decimal.NewFromInt(serviceCharge).Mul(platformPercent).Div(hundred))
	owner := serviceCharge - platform

	if owner < 1 && serviceCharge > 1 {
		platform--
		owner = serviceCharge - platform
	}

	return Split{OwnerShare: owner, PlatformShare: platform}, nil
}

// decimal.Round rounds half away from zero, which is half-up for the non-negative
// amounts handled here.
func roundHalfUp(d decimal.Decimal) int64 {
	return d.Round(0).IntPart()
}

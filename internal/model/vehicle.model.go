package model

import (
	"strconv"
	"time"
)

type Vehicle struct {
	ID             int64     `json:"id"`
	Code           string    `json:"code"`
	Route          string    `json:"route"`
	OwnerAccountID int64     `json:"owner_account_id"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// VehicleStats are the per-day collection totals of a vehicle.
type VehicleStats struct {
	VehicleCode   string `json:"vehicle_code"`
	Date          string `json:"date"`
	Completed     int64  `json:"completed"`
	Failed        int64  `json:"failed"`
	FareTotal     int64  `json:"fare_total"`
	ChargeTotal   int64  `json:"charge_total"`
	OwnerTotal    int64  `json:"owner_total"`
	PlatformTotal int64  `json:"platform_total"`
}

const VehicleStatsKeyPrefix = "stats:vehicle:"

// VehicleStatsKeySuffix completes VehicleStatsKeyPrefix into stats:vehicle:<code>:<date>.
func VehicleStatsKeySuffix(code, date string) string {
	return code + ":" + date
}

// Hash fields of a vehicle stats key.
const (
	StatsFieldCompleted     = "completed"
	StatsFieldFailed        = "failed"
	StatsFieldFareTotal     = "fare_total"
	StatsFieldChargeTotal   = "charge_total"
	StatsFieldOwnerTotal    = "owner_total"
	StatsFieldPlatformTotal = "platform_total"
)

func VehicleStatsFromHash(code, date string, h map[string]string) *VehicleStats {
	field := func(name string) int64 {
		v, _ := strconv.ParseInt(h[name], 10, 64)
		return v
	}
	return &VehicleStats{
		VehicleCode:   code,
		Date:          date,
		Completed:     field(StatsFieldCompleted),
		Failed:        field(StatsFieldFailed),
		FareTotal:     field(StatsFieldFareTotal),
		ChargeTotal:   field(StatsFieldChargeTotal),
		OwnerTotal:    field(StatsFieldOwnerTotal),
		PlatformTotal: field(StatsFieldPlatformTotal),
	}
}

// StatsLocation is the business timezone vehicle days are counted in.
var StatsLocation = func() *time.Location {
	loc, err := time.LoadLocation("Africa/Nairobi")
	if err != nil {
		return time.FixedZone("EAT", 3*60*60)
	}
	return loc
}()

func StatsDate(t time.Time) string {
	return t.In(StatsLocation).Format(time.DateOnly)
}

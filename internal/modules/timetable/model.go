// README: Timetable configuration and derived service-instance definitions.
package timetable

import (
	"fmt"
	"time"

	"solbus/internal/types"
)

type PricingModel string

const (
	PricingFixed       PricingModel = "fixed"
	PricingDynamic     PricingModel = "dynamic"
	PricingCooperative PricingModel = "cooperative"
)

// Timetable is the recurring definition of a scheduled service. Per-date
// instances are resolved lazily from it rather than materialized as rows.
type Timetable struct {
	ID       types.ID
	TenantID types.ID
	RouteID  types.ID
	Name     string
	// DaysMask uses Go weekday numbering: bit 1<<time.Weekday.
	DaysMask         int
	DepartureTime    string // "15:04" local wall-clock
	TotalSeats       int
	WheelchairSpaces int

	PricingModel              PricingModel
	FixedFare                 types.Money
	MinimumFareFloor          types.Money
	MaximumAcceptableFare     types.Money
	NonMemberSurchargePercent int64

	BookingOpensDaysAdvance int
	BookingCutoffHours      int

	SurplusReservesPercent int64
	SurplusBusinessPercent int64
	SurplusDividendPercent int64
}

// OperatesOn reports whether the timetable runs on the given date's weekday.
func (t Timetable) OperatesOn(date time.Time) bool {
	return t.DaysMask&(1<<int(date.Weekday())) != 0
}

// Instance is one date-occurrence of a timetable, identified by
// (TimetableID, ServiceDate). It carries the full pricing and window
// configuration so downstream modules never re-read the timetable.
type Instance struct {
	TimetableID      types.ID     `json:"timetable_id"`
	TenantID         types.ID     `json:"tenant_id"`
	RouteID          types.ID     `json:"route_id"`
	ServiceDate      time.Time    `json:"service_date"`
	Departure        time.Time    `json:"departure"`
	TotalSeats       int          `json:"total_seats"`
	WheelchairSpaces int          `json:"wheelchair_spaces"`
	PricingModel     PricingModel `json:"pricing_model"`

	FixedFare                 types.Money `json:"fixed_fare"`
	MinimumFareFloor          types.Money `json:"minimum_fare_floor"`
	MaximumAcceptableFare     types.Money `json:"maximum_acceptable_fare"`
	NonMemberSurchargePercent int64       `json:"non_member_surcharge_percent"`

	BookingOpensDaysAdvance int `json:"booking_opens_days_advance"`
	BookingCutoffHours      int `json:"booking_cutoff_hours"`

	SurplusReservesPercent int64 `json:"surplus_reserves_percent"`
	SurplusBusinessPercent int64 `json:"surplus_business_percent"`
	SurplusDividendPercent int64 `json:"surplus_dividend_percent"`
}

// Key is the canonical arena/cache key for one instance.
func (i Instance) Key() string {
	return InstanceKey(i.TimetableID, i.ServiceDate)
}

func InstanceKey(timetableID types.ID, date time.Time) string {
	return fmt.Sprintf("%s@%s", timetableID, types.DateKey(date))
}

// README: Passenger tiers and fare quote definitions.
package fare

import (
	"solbus/internal/modules/costmodel"
	"solbus/internal/modules/timetable"
	"solbus/internal/types"
)

type Tier string

const (
	TierAdult         Tier = "adult"
	TierChild         Tier = "child"
	TierConcessionary Tier = "concessionary"
	TierWheelchair    Tier = "wheelchair"
	TierCompanion     Tier = "companion"
)

// tierMultipliers is fixed policy, expressed in percent. Companions of
// wheelchair users ride free.
var tierMultipliers = map[Tier]int64{
	TierAdult:         100,
	TierChild:         50,
	TierConcessionary: 50,
	TierWheelchair:    100,
	TierCompanion:     0,
}

func ValidTier(t Tier) bool {
	_, ok := tierMultipliers[t]
	return ok
}

// Occupancy is the calculator's view of who is riding right now.
type Occupancy struct {
	CurrentPassengers int `json:"current_passengers"`
	AvailableSeats    int `json:"available_seats"`
}

// Quote is the transparent fare picture shown to a passenger before and at
// booking time. All derived figures are kept so the quote explains itself.
type Quote struct {
	PricingModel timetable.PricingModel `json:"pricing_model"`
	TripCost     costmodel.Breakdown    `json:"trip_cost"`
	Occupancy    Occupancy              `json:"occupancy"`
	Tier         Tier                   `json:"tier"`
	IsMember     bool                   `json:"is_member"`

	BreakEvenPassengers    int         `json:"break_even_passengers"`
	BreakEvenFarePerPerson types.Money `json:"break_even_fare_per_person"`
	CurrentFarePerPerson   types.Money `json:"current_fare_per_person"`
	FareAtCapacity         types.Money `json:"fare_at_capacity"`
	QuotedFare             types.Money `json:"quoted_fare"`
	SavingsVsBreakEven     types.Money `json:"savings_vs_break_even"`

	FareReductionMessage   string `json:"fare_reduction_message,omitempty"`
	CommunityImpactMessage string `json:"community_impact_message,omitempty"`
}

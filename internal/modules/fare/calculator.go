// README: Solidarity fare calculator; cost-split pricing with tier and membership policy.
package fare

import (
	"errors"
	"fmt"

	"solbus/internal/modules/costmodel"
	"solbus/internal/modules/timetable"
	"solbus/internal/types"
)

var ErrUnknownTier = errors.New("unknown passenger tier")

// Compute produces a fare quote for one prospective passenger. The pricing
// model is a tagged variant selecting the per-person base fare; tier and
// membership policy apply uniformly on top. Pure function: the same inputs
// always produce the same quote.
func Compute(inst timetable.Instance, cost costmodel.Breakdown, occ Occupancy, tier Tier, isMember bool) (Quote, error) {
	if !ValidTier(tier) {
		return Quote{}, fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}

	total := cost.TotalTripCost
	q := Quote{
		PricingModel: inst.PricingModel,
		TripCost:     cost,
		Occupancy:    occ,
		Tier:         tier,
		IsMember:     isMember,
	}

	// Break-even economics are reported for every model; they make even a
	// fixed fare auditable against real cost.
	q.BreakEvenPassengers = ceilDiv(total.Amount, inst.MaximumAcceptableFare.Amount)
	if q.BreakEvenPassengers > 0 {
		q.BreakEvenFarePerPerson = total.DivRound(int64(q.BreakEvenPassengers))
	}

	riders := occ.CurrentPassengers
	if riders < 1 {
		riders = 1
	}
	solidarity := total.DivRound(int64(riders)).Clamp(inst.MinimumFareFloor, inst.MaximumAcceptableFare)
	atCapacity := total.DivRound(int64(occ.CurrentPassengers + occ.AvailableSeats)).
		Clamp(inst.MinimumFareFloor, inst.MaximumAcceptableFare)

	switch inst.PricingModel {
	case timetable.PricingFixed:
		q.CurrentFarePerPerson = inst.FixedFare
		q.FareAtCapacity = inst.FixedFare
	case timetable.PricingDynamic, timetable.PricingCooperative:
		q.CurrentFarePerPerson = solidarity
		q.FareAtCapacity = atCapacity
	default:
		return Quote{}, fmt.Errorf("%w: unknown pricing model %q", timetable.ErrInvalidConfig, inst.PricingModel)
	}

	if q.BreakEvenFarePerPerson.Amount > q.CurrentFarePerPerson.Amount {
		q.SavingsVsBreakEven = q.BreakEvenFarePerPerson.Sub(q.CurrentFarePerPerson)
	} else {
		q.SavingsVsBreakEven = types.Pence(0)
	}

	quoted := q.CurrentFarePerPerson.MulRatio(tierMultipliers[tier], 100)
	if !isMember {
		quoted = quoted.MulRatio(100+inst.NonMemberSurchargePercent, 100)
	}
	q.QuotedFare = quoted

	q.FareReductionMessage = reductionMessage(q)
	q.CommunityImpactMessage = impactMessage(q)
	return q, nil
}

// SurplusFromConfirmed computes the surplus realized by confirmed fares
// only, never from the speculative per-head split.
func SurplusFromConfirmed(confirmedFareTotal, totalTripCost types.Money) types.Money {
	if confirmedFareTotal.Amount <= totalTripCost.Amount {
		return types.Pence(0)
	}
	return confirmedFareTotal.Sub(totalTripCost)
}

func ceilDiv(a, b int64) int {
	if b <= 0 {
		return 0
	}
	return int((a + b - 1) / b)
}

// Display strings only; nothing branches on them.
func reductionMessage(q Quote) string {
	if q.FareAtCapacity.Amount < q.CurrentFarePerPerson.Amount && q.Occupancy.AvailableSeats > 0 {
		return fmt.Sprintf("Every extra passenger brings the fare down: a full bus would cost %s each instead of %s.",
			q.FareAtCapacity, q.CurrentFarePerPerson)
	}
	return ""
}

func impactMessage(q Quote) string {
	if q.PricingModel != timetable.PricingCooperative {
		return ""
	}
	if q.SavingsVsBreakEven.Amount > 0 {
		return fmt.Sprintf("Riding together is saving each passenger %s against the break-even fare.", q.SavingsVsBreakEven)
	}
	return fmt.Sprintf("This service breaks even at %d passengers; fares above that build the cooperative's reserves and member dividends.",
		q.BreakEvenPassengers)
}

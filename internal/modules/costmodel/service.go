// README: Trip cost model; pure computation over rate card and route metrics.
package costmodel

import (
	"context"
	"errors"
	"math"

	"solbus/internal/types"
)

var ErrInvalidRateConfig = errors.New("invalid rate config")

type Service struct {
	store *Store
}

func NewService(store *Store) *Service {
	return &Service{store: store}
}

// Compute derives the itemized operating cost of one run. It fails with
// ErrInvalidRateConfig when any rate is negative or the route metrics are
// non-positive; a zero rate is a legitimate configuration (e.g. volunteer
// drivers have no wage cost).
func Compute(rates RateCard, metrics RouteMetrics) (Breakdown, error) {
	if metrics.DistanceMiles <= 0 || metrics.DurationHours <= 0 {
		return Breakdown{}, ErrInvalidRateConfig
	}
	for _, r := range []types.Money{
		rates.WagePerHour, rates.FuelPerMile, rates.DepreciationPerMile,
		rates.InsurancePerTrip, rates.MaintenancePerMile, rates.OverheadPerTrip,
	} {
		if r.Amount < 0 {
			return Breakdown{}, ErrInvalidRateConfig
		}
	}

	b := Breakdown{
		DriverWages:           scale(rates.WagePerHour, metrics.DurationHours),
		FuelCost:              scale(rates.FuelPerMile, metrics.DistanceMiles),
		VehicleDepreciation:   scale(rates.DepreciationPerMile, metrics.DistanceMiles),
		InsuranceAllocation:   rates.InsurancePerTrip,
		MaintenanceAllocation: scale(rates.MaintenancePerMile, metrics.DistanceMiles),
		OverheadAllocation:    rates.OverheadPerTrip,
	}
	b.TotalTripCost = b.DriverWages.
		Add(b.FuelCost).
		Add(b.VehicleDepreciation).
		Add(b.InsuranceAllocation).
		Add(b.MaintenanceAllocation).
		Add(b.OverheadAllocation)
	return b, nil
}

// TripCost loads the tenant's rate card and the route's measured metrics,
// then computes the breakdown.
func (s *Service) TripCost(ctx context.Context, tenantID, routeID types.ID) (Breakdown, error) {
	rates, err := s.store.GetRateCard(ctx, tenantID)
	if err != nil {
		return Breakdown{}, err
	}
	metrics, err := s.store.GetRouteMetrics(ctx, routeID)
	if err != nil {
		return Breakdown{}, err
	}
	return Compute(rates, metrics)
}

func scale(rate types.Money, units float64) types.Money {
	return types.Money{
		Amount:   int64(math.Round(float64(rate.Amount) * units)),
		Currency: rate.Currency,
	}
}

// README: Cost model store backed by PostgreSQL.
package costmodel

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"solbus/internal/types"
)

var ErrNotFound = errors.New("rate card not found")

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) GetRateCard(ctx context.Context, tenantID types.ID) (RateCard, error) {
	row := s.db.QueryRow(ctx, `
		SELECT wage_per_hour, fuel_per_mile, depreciation_per_mile,
		       insurance_per_trip, maintenance_per_mile, overhead_per_trip
		FROM rate_cards
		WHERE tenant_id = $1`, string(tenantID),
	)
	rc := RateCard{TenantID: tenantID}
	err := row.Scan(
		&rc.WagePerHour.Amount,
		&rc.FuelPerMile.Amount,
		&rc.DepreciationPerMile.Amount,
		&rc.InsurancePerTrip.Amount,
		&rc.MaintenancePerMile.Amount,
		&rc.OverheadPerTrip.Amount,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return RateCard{}, ErrNotFound
	}
	if err != nil {
		return RateCard{}, err
	}
	fillCurrency(&rc)
	return rc, nil
}

func (s *Store) GetRouteMetrics(ctx context.Context, routeID types.ID) (RouteMetrics, error) {
	row := s.db.QueryRow(ctx, `
		SELECT distance_miles, duration_hours
		FROM routes
		WHERE id = $1`, string(routeID),
	)
	m := RouteMetrics{RouteID: routeID}
	err := row.Scan(&m.DistanceMiles, &m.DurationHours)
	if errors.Is(err, pgx.ErrNoRows) {
		return RouteMetrics{}, ErrNotFound
	}
	if err != nil {
		return RouteMetrics{}, err
	}
	return m, nil
}

func fillCurrency(rc *RateCard) {
	for _, m := range []*types.Money{
		&rc.WagePerHour, &rc.FuelPerMile, &rc.DepreciationPerMile,
		&rc.InsurancePerTrip, &rc.MaintenancePerMile, &rc.OverheadPerTrip,
	} {
		if m.Currency == "" {
			m.Currency = types.DefaultCurrency
		}
	}
}

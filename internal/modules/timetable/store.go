// README: Timetable store backed by PostgreSQL.
package timetable

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"solbus/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) GetTimetable(ctx context.Context, id types.ID) (Timetable, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, tenant_id, route_id, name, days_mask, departure_time,
		       total_seats, wheelchair_spaces, pricing_model, fixed_fare,
		       minimum_fare_floor, maximum_acceptable_fare, non_member_surcharge_percent,
		       booking_opens_days_advance, booking_cutoff_hours,
		       surplus_reserves_percent, surplus_business_percent, surplus_dividend_percent
		FROM timetables
		WHERE id = $1 AND deleted_at IS NULL`, string(id),
	)
	var t Timetable
	err := row.Scan(
		&t.ID, &t.TenantID, &t.RouteID, &t.Name, &t.DaysMask, &t.DepartureTime,
		&t.TotalSeats, &t.WheelchairSpaces, &t.PricingModel, &t.FixedFare.Amount,
		&t.MinimumFareFloor.Amount, &t.MaximumAcceptableFare.Amount, &t.NonMemberSurchargePercent,
		&t.BookingOpensDaysAdvance, &t.BookingCutoffHours,
		&t.SurplusReservesPercent, &t.SurplusBusinessPercent, &t.SurplusDividendPercent,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Timetable{}, ErrNotFound
	}
	if err != nil {
		return Timetable{}, err
	}
	for _, m := range []*types.Money{&t.FixedFare, &t.MinimumFareFloor, &t.MaximumAcceptableFare} {
		m.Currency = types.DefaultCurrency
	}
	return t, nil
}

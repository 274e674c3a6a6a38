// README: Surplus allocation and dividend ledger store backed by PostgreSQL.
package surplus

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"solbus/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// SaveSettlement writes the allocation row and its dividend ledger entries
// in one transaction. A duplicate allocation aborts the whole settlement
// with ErrAlreadyAllocated, so the first writer's ledger stands alone.
func (s *Store) SaveSettlement(ctx context.Context, a *Allocation, entries []LedgerEntry) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO surplus_allocations (
				id, timetable_id, service_date,
				confirmed_fare_total, trip_cost, surplus,
				to_reserves, to_business, to_dividends, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			string(a.ID),
			string(a.TimetableID),
			a.ServiceDate,
			a.ConfirmedFareTotal.Amount,
			a.TripCost.Amount,
			a.Surplus.Amount,
			a.ToReserves.Amount,
			a.ToBusiness.Amount,
			a.ToDividends.Amount,
			a.CreatedAt,
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return ErrAlreadyAllocated
			}
			return err
		}
		if len(entries) == 0 {
			return nil
		}

		batch := &pgx.Batch{}
		for _, e := range entries {
			batch.Queue(`
				INSERT INTO dividend_ledger (id, allocation_id, customer_id, amount, trips, created_at)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				string(e.ID), string(e.AllocationID), string(e.CustomerID),
				e.Amount.Amount, e.Trips, e.CreatedAt,
			)
		}
		br := tx.SendBatch(ctx, batch)
		for range entries {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return err
			}
		}
		return br.Close()
	})
}

func (s *Store) GetAllocation(ctx context.Context, timetableID types.ID, date time.Time) (*Allocation, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, timetable_id, service_date,
		       confirmed_fare_total, trip_cost, surplus,
		       to_reserves, to_business, to_dividends, created_at
		FROM surplus_allocations
		WHERE timetable_id = $1 AND service_date = $2`,
		string(timetableID), date,
	)
	var a Allocation
	err := row.Scan(
		&a.ID, &a.TimetableID, &a.ServiceDate,
		&a.ConfirmedFareTotal.Amount, &a.TripCost.Amount, &a.Surplus.Amount,
		&a.ToReserves.Amount, &a.ToBusiness.Amount, &a.ToDividends.Amount,
		&a.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	for _, m := range []*types.Money{
		&a.ConfirmedFareTotal, &a.TripCost, &a.Surplus,
		&a.ToReserves, &a.ToBusiness, &a.ToDividends,
	} {
		m.Currency = types.DefaultCurrency
	}
	return &a, nil
}

func (s *Store) ListLedgerForCustomer(ctx context.Context, customerID types.ID) ([]LedgerEntry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, allocation_id, customer_id, amount, trips, created_at
		FROM dividend_ledger
		WHERE customer_id = $1
		ORDER BY created_at DESC`,
		string(customerID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		if err := rows.Scan(&e.ID, &e.AllocationID, &e.CustomerID, &e.Amount.Amount, &e.Trips, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Amount.Currency = types.DefaultCurrency
		out = append(out, e)
	}
	return out, rows.Err()
}

// ConfirmedTripCounts counts each member's bookings that reached confirmed
// or a later state since the given time, across the operator's services.
func (s *Store) ConfirmedTripCounts(ctx context.Context, tenantID types.ID, since time.Time) ([]MemberTrips, error) {
	rows, err := s.db.Query(ctx, `
		SELECT b.customer_id, COUNT(*)
		FROM bookings b
		JOIN timetables t ON t.id = b.timetable_id
		WHERE t.tenant_id = $1
		  AND b.is_member
		  AND b.status IN ('confirmed', 'completed', 'no_show')
		  AND b.service_date >= $2
		GROUP BY b.customer_id`,
		string(tenantID), since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MemberTrips
	for rows.Next() {
		var m MemberTrips
		if err := rows.Scan(&m.CustomerID, &m.Trips); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

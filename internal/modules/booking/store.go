// README: Booking and fare-snapshot store backed by PostgreSQL.
package booking

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"solbus/internal/modules/roster"
	"solbus/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Create(ctx context.Context, b *Booking) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO bookings (
			id, timetable_id, service_date, departure, customer_id,
			passenger_tier, seat_number, wheelchair_required, is_member,
			status, status_version, payment_status, created_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12, $13
		)`,
		string(b.ID),
		string(b.TimetableID),
		b.ServiceDate,
		b.Departure,
		string(b.CustomerID),
		string(b.PassengerTier),
		nullString(b.SeatNumber),
		b.WheelchairRequired,
		b.IsMember,
		string(b.Status),
		b.StatusVersion,
		string(b.PaymentStatus),
		b.CreatedAt,
	)
	return err
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Booking, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, timetable_id, service_date, departure, customer_id,
		       passenger_tier, seat_number, wheelchair_required, is_member,
		       status, status_version, payment_status, fare_snapshot_id,
		       created_at, confirmed_at, cancelled_at, completed_at
		FROM bookings
		WHERE id = $1`, string(id),
	)

	var b Booking
	var seat, snapshotID sql.NullString
	var confirmedAt, cancelledAt, completedAt sql.NullTime

	err := row.Scan(
		&b.ID, &b.TimetableID, &b.ServiceDate, &b.Departure, &b.CustomerID,
		&b.PassengerTier, &seat, &b.WheelchairRequired, &b.IsMember,
		&b.Status, &b.StatusVersion, &b.PaymentStatus, &snapshotID,
		&b.CreatedAt, &confirmedAt, &cancelledAt, &completedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if seat.Valid {
		b.SeatNumber = seat.String
	}
	if snapshotID.Valid {
		id := types.ID(snapshotID.String)
		b.FareSnapshotID = &id
	}
	b.ConfirmedAt = timePtr(confirmedAt)
	b.CancelledAt = timePtr(cancelledAt)
	b.CompletedAt = timePtr(completedAt)
	return &b, nil
}

// UpdateStatus applies a compare-and-swap transition guarded by the status
// version, so racing confirmations and cancellations cannot both win.
func (s *Store) UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE bookings
		SET status = $1,
		    status_version = status_version + 1,
		    confirmed_at = CASE WHEN $1 = 'confirmed' THEN NOW() ELSE confirmed_at END,
		    cancelled_at = CASE WHEN $1 = 'cancelled' THEN NOW() ELSE cancelled_at END,
		    completed_at = CASE WHEN $1 IN ('completed', 'no_show') THEN NOW() ELSE completed_at END
		WHERE id = $2 AND status = $3 AND status_version = $4`,
		string(to),
		string(id),
		string(from),
		version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) SetPaymentStatus(ctx context.Context, id types.ID, from, to PaymentStatus) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE bookings
		SET payment_status = $1
		WHERE id = $2 AND payment_status = $3`,
		string(to), string(id), string(from),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// CreateSnapshot writes the one immutable fare record for a booking. The
// unique index on booking_id backs the write-once discipline at the store
// level; there is deliberately no update statement for this table.
func (s *Store) CreateSnapshot(ctx context.Context, snap *Snapshot) error {
	costJSON, err := json.Marshal(snap.TripCost)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO fare_snapshots (
			id, booking_id, trip_cost, passengers_at_quote, available_at_quote,
			tier, quoted_fare, break_even_fare, fare_at_capacity, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		string(snap.ID),
		string(snap.BookingID),
		costJSON,
		snap.Occupancy.CurrentPassengers,
		snap.Occupancy.AvailableSeats,
		string(snap.Tier),
		snap.QuotedFare.Amount,
		snap.BreakEvenFarePerPerson.Amount,
		snap.FareAtCapacity.Amount,
		snap.CreatedAt,
	)
	return err
}

func (s *Store) GetSnapshotByBooking(ctx context.Context, bookingID types.ID) (*Snapshot, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, booking_id, trip_cost, passengers_at_quote, available_at_quote,
		       tier, quoted_fare, break_even_fare, fare_at_capacity, created_at
		FROM fare_snapshots
		WHERE booking_id = $1`, string(bookingID),
	)
	var snap Snapshot
	var costJSON []byte
	err := row.Scan(
		&snap.ID, &snap.BookingID, &costJSON,
		&snap.Occupancy.CurrentPassengers, &snap.Occupancy.AvailableSeats,
		&snap.Tier, &snap.QuotedFare.Amount, &snap.BreakEvenFarePerPerson.Amount,
		&snap.FareAtCapacity.Amount, &snap.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(costJSON, &snap.TripCost); err != nil {
		return nil, err
	}
	for _, m := range []*types.Money{&snap.QuotedFare, &snap.BreakEvenFarePerPerson, &snap.FareAtCapacity} {
		m.Currency = types.DefaultCurrency
	}
	return &snap, nil
}

func (s *Store) AttachSnapshot(ctx context.Context, bookingID, snapshotID types.ID) error {
	_, err := s.db.Exec(ctx, `
		UPDATE bookings SET fare_snapshot_id = $1 WHERE id = $2`,
		string(snapshotID), string(bookingID),
	)
	return err
}

// ListForService implements roster.BookingSource: only live bookings feed
// the effective passenger list.
func (s *Store) ListForService(ctx context.Context, timetableID types.ID, date time.Time, confirmedOnly bool) ([]roster.BookingEntry, error) {
	statuses := []string{string(StatusPending), string(StatusConfirmed)}
	if confirmedOnly {
		statuses = []string{string(StatusConfirmed)}
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, customer_id, seat_number, wheelchair_required
		FROM bookings
		WHERE timetable_id = $1 AND service_date = $2 AND status = ANY($3)
		ORDER BY id`,
		string(timetableID), date, statuses,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []roster.BookingEntry
	for rows.Next() {
		var e roster.BookingEntry
		var seat sql.NullString
		if err := rows.Scan(&e.BookingID, &e.CustomerID, &seat, &e.Wheelchair); err != nil {
			return nil, err
		}
		if seat.Valid {
			e.SeatNumber = seat.String
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ConfirmedFareTotal sums the snapshot fares of bookings that reached
// confirmed or a later ridership state. Cancellations drop out; the figures
// feed surplus allocation.
func (s *Store) ConfirmedFareTotal(ctx context.Context, timetableID types.ID, date time.Time) (types.Money, int, error) {
	row := s.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(fs.quoted_fare), 0), COUNT(fs.id)
		FROM bookings b
		JOIN fare_snapshots fs ON fs.booking_id = b.id
		WHERE b.timetable_id = $1 AND b.service_date = $2
		  AND b.status IN ('confirmed', 'completed', 'no_show')`,
		string(timetableID), date,
	)
	var total int64
	var count int
	if err := row.Scan(&total, &count); err != nil {
		return types.Money{}, 0, err
	}
	return types.Pence(total), count, nil
}

func (s *Store) ListExpiredConfirmed(ctx context.Context, departedBefore time.Time) ([]Booking, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, status_version
		FROM bookings
		WHERE status = 'confirmed' AND departure < $1`,
		departedBefore,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Booking
	for rows.Next() {
		b := Booking{Status: StatusConfirmed}
		if err := rows.Scan(&b.ID, &b.StatusVersion); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ListSettledInstances returns instances whose departure (plus grace) has
// passed and which have at least one booking eligible for surplus
// accounting.
func (s *Store) ListSettledInstances(ctx context.Context, departedBefore time.Time) ([]InstanceRef, error) {
	rows, err := s.db.Query(ctx, `
		SELECT DISTINCT timetable_id, service_date
		FROM bookings
		WHERE departure < $1 AND status IN ('confirmed', 'completed', 'no_show')`,
		departedBefore,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []InstanceRef
	for rows.Next() {
		var ref InstanceRef
		if err := rows.Scan(&ref.TimetableID, &ref.ServiceDate); err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

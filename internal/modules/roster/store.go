// README: Registration and absence stores backed by PostgreSQL.
package roster

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"solbus/internal/types"
)

type RegistrationStore struct {
	db *pgxpool.Pool
}

func NewRegistrationStore(db *pgxpool.Pool) *RegistrationStore {
	return &RegistrationStore{db: db}
}

const registrationColumns = `
	id, customer_id, timetable_id, days_mask, seat_number,
	wheelchair, valid_from, valid_until, status`

func (s *RegistrationStore) ListForTimetable(ctx context.Context, timetableID types.ID, date time.Time) ([]RegularRegistration, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+registrationColumns+`
		FROM regular_registrations
		WHERE timetable_id = $1
		  AND status = 'active'
		  AND valid_from <= $2
		  AND (valid_until IS NULL OR valid_until >= $2)`,
		string(timetableID), date,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRegistrations(rows)
}

func (s *RegistrationStore) ListByCustomer(ctx context.Context, customerID types.ID) ([]RegularRegistration, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+registrationColumns+`
		FROM regular_registrations
		WHERE customer_id = $1 AND status = 'active'`,
		string(customerID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRegistrations(rows)
}

func scanRegistrations(rows pgx.Rows) ([]RegularRegistration, error) {
	var out []RegularRegistration
	for rows.Next() {
		var r RegularRegistration
		var seat sql.NullString
		var until sql.NullTime
		if err := rows.Scan(
			&r.ID, &r.CustomerID, &r.TimetableID, &r.DaysMask, &seat,
			&r.Wheelchair, &r.ValidFrom, &until, &r.Status,
		); err != nil {
			return nil, err
		}
		if seat.Valid {
			r.SeatNumber = seat.String
		}
		if until.Valid {
			t := until.Time
			r.ValidUntil = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type AbsenceRepo struct {
	db *pgxpool.Pool
}

func NewAbsenceRepo(db *pgxpool.Pool) *AbsenceRepo {
	return &AbsenceRepo{db: db}
}

func (s *AbsenceRepo) ListForDate(ctx context.Context, date time.Time) ([]Absence, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, customer_id, absence_date, timetable_id, reason, cancelled, created_at
		FROM absences
		WHERE absence_date = $1 AND cancelled = false`,
		date,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Absence
	for rows.Next() {
		var a Absence
		var tid sql.NullString
		if err := rows.Scan(&a.ID, &a.CustomerID, &a.AbsenceDate, &tid, &a.Reason, &a.Cancelled, &a.CreatedAt); err != nil {
			return nil, err
		}
		if tid.Valid {
			id := types.ID(tid.String)
			a.TimetableID = &id
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *AbsenceRepo) Create(ctx context.Context, a *Absence) error {
	var tid *string
	if a.TimetableID != nil {
		v := string(*a.TimetableID)
		tid = &v
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO absences (id, customer_id, absence_date, timetable_id, reason, cancelled, created_at)
		VALUES ($1, $2, $3, $4, $5, false, $6)`,
		string(a.ID), string(a.CustomerID), a.AbsenceDate, tid, a.Reason, a.CreatedAt,
	)
	return err
}

func (s *AbsenceRepo) Get(ctx context.Context, id types.ID) (Absence, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, customer_id, absence_date, timetable_id, reason, cancelled, created_at
		FROM absences
		WHERE id = $1`, string(id),
	)
	var a Absence
	var tid sql.NullString
	err := row.Scan(&a.ID, &a.CustomerID, &a.AbsenceDate, &tid, &a.Reason, &a.Cancelled, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Absence{}, ErrNotFound
	}
	if err != nil {
		return Absence{}, err
	}
	if tid.Valid {
		v := types.ID(tid.String)
		a.TimetableID = &v
	}
	return a, nil
}

func (s *AbsenceRepo) Cancel(ctx context.Context, id types.ID) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE absences SET cancelled = true WHERE id = $1 AND cancelled = false`,
		string(id),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

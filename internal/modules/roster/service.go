// README: Effective passenger resolution and absence reporting.
package roster

import (
	"context"
	"errors"
	"sort"
	"time"

	"solbus/internal/types"
)

var (
	ErrNotFound     = errors.New("absence not found")
	ErrCutoffPassed = errors.New("booking cutoff has passed")
)

type RegistrationSource interface {
	ListForTimetable(ctx context.Context, timetableID types.ID, date time.Time) ([]RegularRegistration, error)
	ListByCustomer(ctx context.Context, customerID types.ID) ([]RegularRegistration, error)
}

type AbsenceStore interface {
	ListForDate(ctx context.Context, date time.Time) ([]Absence, error)
	Create(ctx context.Context, a *Absence) error
	Get(ctx context.Context, id types.ID) (Absence, error)
	Cancel(ctx context.Context, id types.ID) error
}

type BookingSource interface {
	ListForService(ctx context.Context, timetableID types.ID, date time.Time, confirmedOnly bool) ([]BookingEntry, error)
}

// CutoffChecker reports whether now is inside a service's booking cutoff.
type CutoffChecker interface {
	WithinCutoff(ctx context.Context, timetableID types.ID, date time.Time, now time.Time) (bool, error)
}

type Service struct {
	registrations RegistrationSource
	absences      AbsenceStore
	bookings      BookingSource
	cutoff        CutoffChecker
	now           func() time.Time
	// invalidate tells the capacity allocator to reload an instance after
	// roster-changing writes. Best effort, never blocks.
	invalidate func(timetableID types.ID, date time.Time)
}

func NewService(
	registrations RegistrationSource,
	absences AbsenceStore,
	bookings BookingSource,
	cutoff CutoffChecker,
	now func() time.Time,
) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		registrations: registrations,
		absences:      absences,
		bookings:      bookings,
		cutoff:        cutoff,
		now:           now,
	}
}

// SetInvalidator wires the allocator invalidation hook. Done post-construction
// because the allocator's loader points back at this service.
func (s *Service) SetInvalidator(fn func(timetableID types.ID, date time.Time)) {
	s.invalidate = fn
}

// Resolve produces the ordered effective passenger list for one service
// instance: matching registrations, minus absent customers, plus bookings,
// deduplicated by customer. The output is a pure function of current state,
// so resolving twice without intervening writes yields identical results.
func (s *Service) Resolve(ctx context.Context, timetableID types.ID, date time.Time, opts Options) (Result, error) {
	regs, err := s.registrations.ListForTimetable(ctx, timetableID, date)
	if err != nil {
		return Result{}, err
	}
	absences, err := s.absences.ListForDate(ctx, date)
	if err != nil {
		return Result{}, err
	}
	bookings, err := s.bookings.ListForService(ctx, timetableID, date, opts.ConfirmedOnly)
	if err != nil {
		return Result{}, err
	}

	absent := make(map[types.ID]bool)
	for _, a := range absences {
		if a.Covers(timetableID) {
			absent[a.CustomerID] = true
		}
	}

	var res Result
	ridingCustomers := make(map[types.ID]bool)
	for _, r := range regs {
		if !r.AppliesOn(date) || absent[r.CustomerID] {
			continue
		}
		res.Entries = append(res.Entries, Entry{
			Ref:        r.CustomerID,
			CustomerID: r.CustomerID,
			SeatNumber: r.SeatNumber,
			Wheelchair: r.Wheelchair,
			IsRegular:  true,
		})
		ridingCustomers[r.CustomerID] = true
	}

	for _, b := range bookings {
		if ridingCustomers[b.CustomerID] {
			res.Duplicates = append(res.Duplicates, Duplicate{BookingID: b.BookingID, CustomerID: b.CustomerID})
			continue
		}
		res.Entries = append(res.Entries, Entry{
			Ref:        b.BookingID,
			CustomerID: b.CustomerID,
			SeatNumber: b.SeatNumber,
			Wheelchair: b.Wheelchair,
			IsRegular:  false,
		})
	}

	// Deterministic ordering: regulars by customer, then bookings by ref.
	sort.SliceStable(res.Entries, func(i, j int) bool {
		a, b := res.Entries[i], res.Entries[j]
		if a.IsRegular != b.IsRegular {
			return a.IsRegular
		}
		return a.Ref < b.Ref
	})
	sort.Slice(res.Duplicates, func(i, j int) bool {
		return res.Duplicates[i].BookingID < res.Duplicates[j].BookingID
	})
	return res, nil
}

type ReportAbsenceCommand struct {
	CustomerID  types.ID
	AbsenceDate time.Time
	TimetableID *types.ID
	Reason      string
}

// ReportAbsence records an absence without approval. It never holds the
// allocator lock; it only invalidates affected instances so subsequent fare
// computations observe the change.
func (s *Service) ReportAbsence(ctx context.Context, cmd ReportAbsenceCommand) (Absence, error) {
	a := Absence{
		ID:          types.NewID(),
		CustomerID:  cmd.CustomerID,
		AbsenceDate: cmd.AbsenceDate,
		TimetableID: cmd.TimetableID,
		Reason:      cmd.Reason,
		CreatedAt:   s.now(),
	}
	if err := s.absences.Create(ctx, &a); err != nil {
		return Absence{}, err
	}
	s.invalidateFor(ctx, a)
	return a, nil
}

// CancelAbsence reinstates the customer for that date. Blocked once the
// service's booking cutoff has passed, to keep the roster stable for
// operational planning.
func (s *Service) CancelAbsence(ctx context.Context, id types.ID) error {
	a, err := s.absences.Get(ctx, id)
	if err != nil {
		return err
	}
	if a.Cancelled {
		return nil
	}
	if a.TimetableID != nil && s.cutoff != nil {
		within, err := s.cutoff.WithinCutoff(ctx, *a.TimetableID, a.AbsenceDate, s.now())
		if err != nil {
			return err
		}
		if within {
			return ErrCutoffPassed
		}
	}
	if err := s.absences.Cancel(ctx, id); err != nil {
		return err
	}
	s.invalidateFor(ctx, a)
	return nil
}

func (s *Service) invalidateFor(ctx context.Context, a Absence) {
	if s.invalidate == nil {
		return
	}
	if a.TimetableID != nil {
		s.invalidate(*a.TimetableID, a.AbsenceDate)
		return
	}
	// Date-wide absence: touch every timetable the customer rides.
	regs, err := s.registrations.ListByCustomer(ctx, a.CustomerID)
	if err != nil {
		return
	}
	seen := make(map[types.ID]bool)
	for _, r := range regs {
		if seen[r.TimetableID] {
			continue
		}
		seen[r.TimetableID] = true
		s.invalidate(r.TimetableID, a.AbsenceDate)
	}
}

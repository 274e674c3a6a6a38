// README: Booking lifecycle: quotes, confirmation with fare snapshots, cancellation, sweeps.
package booking

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"solbus/internal/modules/costmodel"
	"solbus/internal/modules/fare"
	"solbus/internal/modules/occupancy"
	"solbus/internal/modules/roster"
	"solbus/internal/modules/timetable"
	"solbus/internal/types"
)

var (
	ErrNotFound              = errors.New("booking not found")
	ErrInvalidState          = errors.New("invalid booking state transition")
	ErrConflict              = errors.New("booking state conflict")
	ErrBadRequest            = errors.New("bad request")
	ErrDuplicateRegistration = errors.New("customer already rides this service as a regular")
	// ErrSnapshotImmutable marks an attempted rewrite of a finalized fare
	// snapshot. Always a programming error; logged loudly, never retried.
	ErrSnapshotImmutable = errors.New("fare snapshot is immutable")
)

type InstanceResolver interface {
	Resolve(ctx context.Context, timetableID types.ID, date time.Time) (timetable.Instance, error)
	WithinCutoff(ctx context.Context, timetableID types.ID, date time.Time, now time.Time) (bool, error)
}

type Roster interface {
	Resolve(ctx context.Context, timetableID types.ID, date time.Time, opts roster.Options) (roster.Result, error)
}

type Cost interface {
	TripCost(ctx context.Context, tenantID, routeID types.ID) (costmodel.Breakdown, error)
}

type Seats interface {
	TryReserve(ctx context.Context, inst timetable.Instance, req occupancy.Request) (occupancy.Reservation, error)
	Release(key string, ref types.ID)
}

// BookingStore is the persistence surface the service needs; *Store is the
// Postgres implementation.
type BookingStore interface {
	Create(ctx context.Context, b *Booking) error
	Get(ctx context.Context, id types.ID) (*Booking, error)
	UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int) (bool, error)
	SetPaymentStatus(ctx context.Context, id types.ID, from, to PaymentStatus) (bool, error)
	CreateSnapshot(ctx context.Context, snap *Snapshot) error
	GetSnapshotByBooking(ctx context.Context, bookingID types.ID) (*Snapshot, error)
	AttachSnapshot(ctx context.Context, bookingID, snapshotID types.ID) error
	ListExpiredConfirmed(ctx context.Context, departedBefore time.Time) ([]Booking, error)
}

type Service struct {
	store     BookingStore
	instances InstanceResolver
	roster    Roster
	cost      Cost
	seats     Seats
	log       *slog.Logger
	now       func() time.Time
}

func NewService(
	store BookingStore,
	instances InstanceResolver,
	rosterSvc Roster,
	cost Cost,
	seats Seats,
	log *slog.Logger,
	now func() time.Time,
) *Service {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:     store,
		instances: instances,
		roster:    rosterSvc,
		cost:      cost,
		seats:     seats,
		log:       log,
		now:       now,
	}
}

// Quote returns a non-binding fare preview against current occupancy.
// Pending bookings count toward the passenger figure so fares reflect
// demand before confirmation.
func (s *Service) Quote(ctx context.Context, timetableID types.ID, date time.Time, tier fare.Tier, isMember bool) (fare.Quote, error) {
	inst, err := s.instances.Resolve(ctx, timetableID, date)
	if err != nil {
		return fare.Quote{}, err
	}
	cost, err := s.cost.TripCost(ctx, inst.TenantID, inst.RouteID)
	if err != nil {
		return fare.Quote{}, err
	}
	occ, err := s.pressure(ctx, inst)
	if err != nil {
		return fare.Quote{}, err
	}
	return fare.Compute(inst, cost, occ, tier, isMember)
}

func (s *Service) Get(ctx context.Context, bookingID types.ID) (*Booking, error) {
	return s.store.Get(ctx, bookingID)
}

// FareSnapshot returns the immutable fare record for a confirmed booking.
func (s *Service) FareSnapshot(ctx context.Context, bookingID types.ID) (*Snapshot, error) {
	return s.store.GetSnapshotByBooking(ctx, bookingID)
}

type CreateCommand struct {
	TimetableID        types.ID
	ServiceDate        time.Time
	CustomerID         types.ID
	PassengerTier      fare.Tier
	SeatNumber         string
	WheelchairRequired bool
	IsMember           bool
}

// Create records a pending booking. The seat is not claimed until Confirm;
// pending bookings only add occupancy pressure.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Booking, error) {
	if cmd.TimetableID == "" || cmd.CustomerID == "" || !fare.ValidTier(cmd.PassengerTier) {
		return nil, ErrBadRequest
	}
	inst, err := s.instances.Resolve(ctx, cmd.TimetableID, cmd.ServiceDate)
	if err != nil {
		return nil, err
	}

	// A customer with a standing registration for this date already holds a
	// seat; the duplicate is a data-integrity problem for staff, not a
	// second reservation.
	current, err := s.roster.Resolve(ctx, cmd.TimetableID, cmd.ServiceDate, roster.Options{})
	if err != nil {
		return nil, err
	}
	for _, e := range current.Entries {
		if e.IsRegular && e.CustomerID == cmd.CustomerID {
			return nil, ErrDuplicateRegistration
		}
	}

	b := &Booking{
		ID:                 types.NewID(),
		TimetableID:        cmd.TimetableID,
		ServiceDate:        inst.ServiceDate,
		Departure:          inst.Departure,
		CustomerID:         cmd.CustomerID,
		PassengerTier:      cmd.PassengerTier,
		SeatNumber:         cmd.SeatNumber,
		WheelchairRequired: cmd.WheelchairRequired,
		IsMember:           cmd.IsMember,
		Status:             StatusPending,
		PaymentStatus:      PaymentUnpaid,
		CreatedAt:          s.now(),
	}
	if err := s.store.Create(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Confirm claims capacity, recomputes the fare against the occupancy
// observed at the moment of reservation, writes the immutable snapshot, and
// transitions the booking. The reservation is rolled back if the state
// transition loses a race.
func (s *Service) Confirm(ctx context.Context, bookingID types.ID) (*Booking, error) {
	b, err := s.store.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.Status == StatusConfirmed {
		return b, nil
	}
	if !CanTransition(b.Status, StatusConfirmed) {
		return nil, ErrInvalidState
	}
	inst, err := s.instances.Resolve(ctx, b.TimetableID, b.ServiceDate)
	if err != nil {
		return nil, err
	}

	res, err := s.seats.TryReserve(ctx, inst, occupancy.Request{Ref: b.ID, Wheelchair: b.WheelchairRequired})
	if err != nil {
		return nil, err
	}

	snap, err := s.snapshotFor(ctx, b, inst, res)
	if err != nil {
		s.releaseUnlessConfirmed(ctx, b.ID, res.Key)
		return nil, err
	}

	ok, err := s.store.UpdateStatus(ctx, b.ID, b.Status, StatusConfirmed, b.StatusVersion)
	if err != nil {
		s.releaseUnlessConfirmed(ctx, b.ID, res.Key)
		return nil, err
	}
	if !ok {
		// Lost the transition race. A concurrent confirm of this same
		// booking reserves under the same ref, so the seat belongs to the
		// winner and must survive; only a competing state change (cancel,
		// no-show sweep) gets the reservation rolled back.
		cur, getErr := s.store.Get(ctx, b.ID)
		if getErr == nil && cur.Status == StatusConfirmed {
			return s.finishConfirm(ctx, cur, snap)
		}
		if getErr == nil {
			s.seats.Release(res.Key, b.ID)
		}
		return nil, ErrConflict
	}
	return s.finishConfirm(ctx, b, snap)
}

// releaseUnlessConfirmed rolls back a reservation after a failed confirm
// attempt. The booking is re-read first: if a concurrent confirm already won,
// the reservation is the winner's and stays. When the re-read itself fails the
// seat is kept; a leaked hold is recoverable, an oversold one is not.
func (s *Service) releaseUnlessConfirmed(ctx context.Context, bookingID types.ID, key string) {
	cur, err := s.store.Get(ctx, bookingID)
	if err != nil || cur.Status == StatusConfirmed {
		return
	}
	s.seats.Release(key, bookingID)
}

// snapshotFor computes and persists the fare snapshot, or resumes an
// existing one left by an interrupted confirmation. A stored snapshot with
// different figures is never overwritten.
func (s *Service) snapshotFor(ctx context.Context, b *Booking, inst timetable.Instance, res occupancy.Reservation) (*Snapshot, error) {
	cost, err := s.cost.TripCost(ctx, inst.TenantID, inst.RouteID)
	if err != nil {
		return nil, err
	}
	occ, err := s.pressure(ctx, inst)
	if err != nil {
		return nil, err
	}
	// Capacity truth comes from the reservation taken a moment ago; the
	// roster read supplies demand pressure including pending bookings.
	if res.Occupied > occ.CurrentPassengers {
		occ.CurrentPassengers = res.Occupied
		occ.AvailableSeats = res.Available
	}

	quote, err := fare.Compute(inst, cost, occ, b.PassengerTier, b.IsMember)
	if err != nil {
		return nil, err
	}

	existing, err := s.store.GetSnapshotByBooking(ctx, b.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		if existing.QuotedFare.Amount != quote.QuotedFare.Amount {
			s.log.Error("refusing to rewrite finalized fare snapshot",
				"booking_id", b.ID,
				"snapshot_id", existing.ID,
				"stored_fare", existing.QuotedFare.Amount,
				"recomputed_fare", quote.QuotedFare.Amount,
			)
		}
		return existing, nil
	}

	snap := &Snapshot{
		ID:                     types.NewID(),
		BookingID:              b.ID,
		TripCost:               cost,
		Occupancy:              occ,
		Tier:                   b.PassengerTier,
		QuotedFare:             quote.QuotedFare,
		BreakEvenFarePerPerson: quote.BreakEvenFarePerPerson,
		FareAtCapacity:         quote.FareAtCapacity,
		CreatedAt:              s.now(),
	}
	if err := s.store.CreateSnapshot(ctx, snap); err != nil {
		// One snapshot per booking is enforced by the store; a concurrent
		// confirm that wrote first wins and its figures stand.
		if existing, getErr := s.store.GetSnapshotByBooking(ctx, b.ID); getErr == nil {
			return existing, nil
		}
		return nil, err
	}
	return snap, nil
}

func (s *Service) finishConfirm(ctx context.Context, b *Booking, snap *Snapshot) (*Booking, error) {
	if err := s.store.AttachSnapshot(ctx, b.ID, snap.ID); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, b.ID)
}

type CancelCommand struct {
	BookingID types.ID
	ActorType string // "customer" or "staff"
	Reason    string
}

// Cancel releases the booking's seat. Inside the cutoff the roster is
// frozen for operational planning, so occupancy-changing cancellations are
// rejected. Already-issued snapshots of other passengers are never revised.
func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) error {
	b, err := s.store.Get(ctx, cmd.BookingID)
	if err != nil {
		return err
	}
	if b.Status == StatusCancelled {
		return nil
	}
	if !CanTransition(b.Status, StatusCancelled) {
		return ErrInvalidState
	}
	within, err := s.instances.WithinCutoff(ctx, b.TimetableID, b.ServiceDate, s.now())
	if err != nil {
		return err
	}
	if within {
		return occupancy.ErrOutsideBookingWindow
	}
	ok, err := s.store.UpdateStatus(ctx, b.ID, b.Status, StatusCancelled, b.StatusVersion)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	s.seats.Release(timetable.InstanceKey(b.TimetableID, b.ServiceDate), b.ID)
	return nil
}

// Complete marks a confirmed passenger as departed with the service.
func (s *Service) Complete(ctx context.Context, bookingID types.ID) error {
	return s.transition(ctx, bookingID, StatusCompleted)
}

// MarkNoShow moves a confirmed booking whose service has departed without
// check-in to its terminal no-show state.
func (s *Service) MarkNoShow(ctx context.Context, bookingID types.ID) error {
	return s.transition(ctx, bookingID, StatusNoShow)
}

func (s *Service) transition(ctx context.Context, bookingID types.ID, to Status) error {
	b, err := s.store.Get(ctx, bookingID)
	if err != nil {
		return err
	}
	if b.Status == to {
		return nil
	}
	if !CanTransition(b.Status, to) {
		return ErrInvalidState
	}
	ok, err := s.store.UpdateStatus(ctx, b.ID, b.Status, to, b.StatusVersion)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	return nil
}

// MarkPaid records payment. Payment is only meaningful once the booking is
// confirmed or later.
func (s *Service) MarkPaid(ctx context.Context, bookingID types.ID) error {
	return s.payment(ctx, bookingID, PaymentUnpaid, PaymentPaid)
}

// Refund is only reachable from paid.
func (s *Service) Refund(ctx context.Context, bookingID types.ID) error {
	return s.payment(ctx, bookingID, PaymentPaid, PaymentRefunded)
}

func (s *Service) payment(ctx context.Context, bookingID types.ID, from, to PaymentStatus) error {
	b, err := s.store.Get(ctx, bookingID)
	if err != nil {
		return err
	}
	if to == PaymentPaid && b.Status != StatusConfirmed && b.Status != StatusCompleted && b.Status != StatusNoShow {
		return ErrInvalidState
	}
	if !CanTransitionPayment(from, to) || b.PaymentStatus != from {
		return ErrInvalidState
	}
	ok, err := s.store.SetPaymentStatus(ctx, b.ID, from, to)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	return nil
}

// SweepNoShows transitions confirmed bookings on departed services to
// no_show once the grace period has elapsed. Safe to re-run.
func (s *Service) SweepNoShows(ctx context.Context, grace time.Duration) (int, error) {
	expired, err := s.store.ListExpiredConfirmed(ctx, s.now().Add(-grace))
	if err != nil {
		return 0, err
	}
	swept := 0
	for _, b := range expired {
		if ok, err := s.store.UpdateStatus(ctx, b.ID, StatusConfirmed, StatusNoShow, b.StatusVersion); err == nil && ok {
			swept++
		}
	}
	return swept, nil
}

// RunSweepTicker periodically applies the no-show sweep until ctx is done.
func (s *Service) RunSweepTicker(ctx context.Context, interval, grace time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.SweepNoShows(ctx, grace); err != nil {
				s.log.Error("no-show sweep failed", "err", err)
			} else if n > 0 {
				s.log.Info("no-show sweep", "marked", n)
			}
		}
	}
}

func (s *Service) pressure(ctx context.Context, inst timetable.Instance) (fare.Occupancy, error) {
	current, err := s.roster.Resolve(ctx, inst.TimetableID, inst.ServiceDate, roster.Options{})
	if err != nil {
		return fare.Occupancy{}, err
	}
	riders := len(current.Entries)
	available := inst.TotalSeats - riders
	if available < 0 {
		available = 0
	}
	return fare.Occupancy{CurrentPassengers: riders, AvailableSeats: available}, nil
}

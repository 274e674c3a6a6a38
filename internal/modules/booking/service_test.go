package booking

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"solbus/internal/modules/costmodel"
	"solbus/internal/modules/fare"
	"solbus/internal/modules/occupancy"
	"solbus/internal/modules/roster"
	"solbus/internal/modules/timetable"
	"solbus/internal/types"
)

type memStore struct {
	mu        sync.Mutex
	bookings  map[types.ID]*Booking
	snapshots map[types.ID]*Snapshot // keyed by booking ID
}

func newMemStore() *memStore {
	return &memStore{
		bookings:  make(map[types.ID]*Booking),
		snapshots: make(map[types.ID]*Snapshot),
	}
}

func (m *memStore) Create(_ context.Context, b *Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *b
	m.bookings[b.ID] = &cp
	return nil
}

func (m *memStore) Get(_ context.Context, id types.ID) (*Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *memStore) UpdateStatus(_ context.Context, id types.ID, from, to Status, version int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok || b.Status != from || b.StatusVersion != version {
		return false, nil
	}
	b.Status = to
	b.StatusVersion++
	return true, nil
}

func (m *memStore) SetPaymentStatus(_ context.Context, id types.ID, from, to PaymentStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok || b.PaymentStatus != from {
		return false, nil
	}
	b.PaymentStatus = to
	return true, nil
}

func (m *memStore) CreateSnapshot(_ context.Context, snap *Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *snap
	m.snapshots[snap.BookingID] = &cp
	return nil
}

func (m *memStore) GetSnapshotByBooking(_ context.Context, bookingID types.ID) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snapshots[bookingID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *snap
	return &cp, nil
}

func (m *memStore) AttachSnapshot(_ context.Context, bookingID, snapshotID types.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[bookingID]
	if !ok {
		return ErrNotFound
	}
	b.FareSnapshotID = &snapshotID
	return nil
}

func (m *memStore) ListExpiredConfirmed(_ context.Context, departedBefore time.Time) ([]Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Booking
	for _, b := range m.bookings {
		if b.Status == StatusConfirmed && b.Departure.Before(departedBefore) {
			out = append(out, *b)
		}
	}
	return out, nil
}

type fakeInstances struct {
	inst         timetable.Instance
	withinCutoff bool
}

func (f *fakeInstances) Resolve(context.Context, types.ID, time.Time) (timetable.Instance, error) {
	return f.inst, nil
}

func (f *fakeInstances) WithinCutoff(context.Context, types.ID, time.Time, time.Time) (bool, error) {
	return f.withinCutoff, nil
}

type fakeRoster struct {
	entries []roster.Entry
}

func (f *fakeRoster) Resolve(context.Context, types.ID, time.Time, roster.Options) (roster.Result, error) {
	return roster.Result{Entries: f.entries}, nil
}

type fakeCost struct {
	total int64
}

func (f *fakeCost) TripCost(context.Context, types.ID, types.ID) (costmodel.Breakdown, error) {
	return costmodel.Breakdown{TotalTripCost: types.Pence(f.total)}, nil
}

func testInstance() timetable.Instance {
	return timetable.Instance{
		TimetableID:             "tt1",
		TenantID:                "coop",
		RouteID:                 "route1",
		ServiceDate:             time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		Departure:               time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC),
		TotalSeats:              16,
		WheelchairSpaces:        2,
		PricingModel:            timetable.PricingCooperative,
		MinimumFareFloor:        types.Pence(200),
		MaximumAcceptableFare:   types.Pence(800),
		BookingOpensDaysAdvance: 14,
		BookingCutoffHours:      2,
	}
}

func fixedNow() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

type testRig struct {
	svc       *Service
	store     *memStore
	instances *fakeInstances
	rosterSvc *fakeRoster
	seats     *occupancy.Allocator
}

func newTestRig() *testRig {
	store := newMemStore()
	instances := &fakeInstances{inst: testInstance()}
	rosterSvc := &fakeRoster{}
	seats := occupancy.NewAllocator(nil, fixedNow)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(store, instances, rosterSvc, &fakeCost{total: 12000}, seats, log, fixedNow)
	return &testRig{svc: svc, store: store, instances: instances, rosterSvc: rosterSvc, seats: seats}
}

func mustCreate(t *testing.T, rig *testRig, customer types.ID) *Booking {
	t.Helper()
	b, err := rig.svc.Create(context.Background(), CreateCommand{
		TimetableID:   "tt1",
		ServiceDate:   time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		CustomerID:    customer,
		PassengerTier: fare.TierAdult,
		IsMember:      true,
	})
	if err != nil {
		t.Fatalf("create booking: %v", err)
	}
	return b
}

func TestConfirmWritesFareSnapshot(t *testing.T) {
	rig := newTestRig()
	b := mustCreate(t, rig, "cust-1")

	confirmed, err := rig.svc.Confirm(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if confirmed.Status != StatusConfirmed {
		t.Fatalf("status: got %s, want confirmed", confirmed.Status)
	}
	if confirmed.FareSnapshotID == nil {
		t.Fatal("confirmed booking has no fare snapshot attached")
	}
	snap, err := rig.store.GetSnapshotByBooking(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	// Sole reserved passenger: 12000/1 clamped to the £8 ceiling.
	if snap.QuotedFare.Amount != 800 {
		t.Errorf("quoted fare: got %d, want 800", snap.QuotedFare.Amount)
	}
	if snap.FareAtCapacity.Amount != 750 {
		t.Errorf("fare at capacity: got %d, want 750", snap.FareAtCapacity.Amount)
	}
}

func TestConfirmIsIdempotent(t *testing.T) {
	rig := newTestRig()
	b := mustCreate(t, rig, "cust-1")

	first, err := rig.svc.Confirm(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("first confirm: %v", err)
	}
	second, err := rig.svc.Confirm(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("second confirm: %v", err)
	}
	if *first.FareSnapshotID != *second.FareSnapshotID {
		t.Errorf("snapshot changed across confirms: %s vs %s", *first.FareSnapshotID, *second.FareSnapshotID)
	}
	inst := rig.instances.inst
	view, err := rig.seats.View(context.Background(), inst)
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if view.Occupied != 1 {
		t.Errorf("occupied after double confirm: got %d, want 1", view.Occupied)
	}
}

func TestCreateRejectsStandingRegular(t *testing.T) {
	rig := newTestRig()
	rig.rosterSvc.entries = []roster.Entry{{Ref: "cust-1", CustomerID: "cust-1", IsRegular: true}}

	_, err := rig.svc.Create(context.Background(), CreateCommand{
		TimetableID:   "tt1",
		ServiceDate:   time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		CustomerID:    "cust-1",
		PassengerTier: fare.TierAdult,
	})
	if !errors.Is(err, ErrDuplicateRegistration) {
		t.Fatalf("got %v, want ErrDuplicateRegistration", err)
	}
}

func TestCancelReleasesSeatAndKeepsOtherSnapshots(t *testing.T) {
	rig := newTestRig()
	a := mustCreate(t, rig, "cust-a")
	b := mustCreate(t, rig, "cust-b")

	if _, err := rig.svc.Confirm(context.Background(), a.ID); err != nil {
		t.Fatalf("confirm a: %v", err)
	}
	snapBefore, err := rig.store.GetSnapshotByBooking(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if _, err := rig.svc.Confirm(context.Background(), b.ID); err != nil {
		t.Fatalf("confirm b: %v", err)
	}

	if err := rig.svc.Cancel(context.Background(), CancelCommand{BookingID: b.ID, ActorType: "customer"}); err != nil {
		t.Fatalf("cancel b: %v", err)
	}
	got, _ := rig.store.Get(context.Background(), b.ID)
	if got.Status != StatusCancelled {
		t.Errorf("cancelled booking status: got %s", got.Status)
	}

	view, err := rig.seats.View(context.Background(), rig.instances.inst)
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if view.Occupied != 1 {
		t.Errorf("occupied after cancel: got %d, want 1", view.Occupied)
	}

	snapAfter, err := rig.store.GetSnapshotByBooking(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("reload snapshot: %v", err)
	}
	if snapAfter.QuotedFare.Amount != snapBefore.QuotedFare.Amount || snapAfter.ID != snapBefore.ID {
		t.Error("passenger a's snapshot changed after passenger b cancelled")
	}

	// Cancel is idempotent.
	if err := rig.svc.Cancel(context.Background(), CancelCommand{BookingID: b.ID}); err != nil {
		t.Errorf("repeat cancel: %v", err)
	}
}

func TestCancelBlockedInsideCutoff(t *testing.T) {
	rig := newTestRig()
	b := mustCreate(t, rig, "cust-1")
	if _, err := rig.svc.Confirm(context.Background(), b.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	rig.instances.withinCutoff = true
	err := rig.svc.Cancel(context.Background(), CancelCommand{BookingID: b.ID, ActorType: "customer"})
	if !errors.Is(err, occupancy.ErrOutsideBookingWindow) {
		t.Fatalf("got %v, want ErrOutsideBookingWindow", err)
	}
	got, _ := rig.store.Get(context.Background(), b.ID)
	if got.Status != StatusConfirmed {
		t.Errorf("booking left cutoff as %s, want confirmed", got.Status)
	}
}

func TestConfirmCapacityExhausted(t *testing.T) {
	rig := newTestRig()
	rig.instances.inst.TotalSeats = 2

	var last *Booking
	for _, c := range []types.ID{"c1", "c2", "c3"} {
		last = mustCreate(t, rig, c)
		_, err := rig.svc.Confirm(context.Background(), last.ID)
		if c != "c3" && err != nil {
			t.Fatalf("confirm %s: %v", c, err)
		}
		if c == "c3" && !errors.Is(err, occupancy.ErrCapacityExceeded) {
			t.Fatalf("confirm c3: got %v, want ErrCapacityExceeded", err)
		}
	}
	got, _ := rig.store.Get(context.Background(), last.ID)
	if got.Status != StatusPending {
		t.Errorf("overflow booking status: got %s, want pending", got.Status)
	}
}

func TestPaymentLifecycle(t *testing.T) {
	rig := newTestRig()
	b := mustCreate(t, rig, "cust-1")

	if err := rig.svc.MarkPaid(context.Background(), b.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("pay while pending: got %v, want ErrInvalidState", err)
	}
	if _, err := rig.svc.Confirm(context.Background(), b.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if err := rig.svc.MarkPaid(context.Background(), b.ID); err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if err := rig.svc.MarkPaid(context.Background(), b.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("double pay: got %v, want ErrInvalidState", err)
	}
	if err := rig.svc.Refund(context.Background(), b.ID); err != nil {
		t.Fatalf("refund: %v", err)
	}
	if err := rig.svc.Refund(context.Background(), b.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("double refund: got %v, want ErrInvalidState", err)
	}
	got, _ := rig.store.Get(context.Background(), b.ID)
	if got.PaymentStatus != PaymentRefunded {
		t.Errorf("payment status: got %s, want refunded", got.PaymentStatus)
	}
}

func TestRidershipTransitions(t *testing.T) {
	rig := newTestRig()
	b := mustCreate(t, rig, "cust-1")

	if err := rig.svc.Complete(context.Background(), b.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("complete pending: got %v, want ErrInvalidState", err)
	}
	if _, err := rig.svc.Confirm(context.Background(), b.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if err := rig.svc.Complete(context.Background(), b.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := rig.svc.MarkNoShow(context.Background(), b.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("no-show after completed: got %v, want ErrInvalidState", err)
	}
}

func TestSweepMarksDepartedNoShows(t *testing.T) {
	rig := newTestRig()
	b := mustCreate(t, rig, "cust-1")
	if _, err := rig.svc.Confirm(context.Background(), b.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	// Departure is 2026-03-02 09:30; nothing to sweep yet.
	n, err := rig.svc.SweepNoShows(context.Background(), 2*time.Hour)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 0 {
		t.Fatalf("premature sweep marked %d bookings", n)
	}

	rig.store.mu.Lock()
	rig.store.bookings[b.ID].Departure = fixedNow().Add(-3 * time.Hour)
	rig.store.mu.Unlock()

	n, err = rig.svc.SweepNoShows(context.Background(), 2*time.Hour)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("sweep marked %d bookings, want 1", n)
	}
	got, _ := rig.store.Get(context.Background(), b.ID)
	if got.Status != StatusNoShow {
		t.Errorf("swept status: got %s, want no_show", got.Status)
	}
}

func TestInterruptedConfirmResumesStoredSnapshot(t *testing.T) {
	rig := newTestRig()
	b := mustCreate(t, rig, "cust-1")

	// A previous attempt wrote the snapshot but crashed before the status
	// flip. The figure is deliberately different from what a fresh compute
	// would produce; the stored record must win.
	stored := &Snapshot{
		ID:         types.NewID(),
		BookingID:  b.ID,
		Tier:       fare.TierAdult,
		QuotedFare: types.Pence(650),
		CreatedAt:  fixedNow(),
	}
	if err := rig.store.CreateSnapshot(context.Background(), stored); err != nil {
		t.Fatalf("seed snapshot: %v", err)
	}

	confirmed, err := rig.svc.Confirm(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if confirmed.FareSnapshotID == nil || *confirmed.FareSnapshotID != stored.ID {
		t.Fatal("confirm did not resume the stored snapshot")
	}
	snap, _ := rig.store.GetSnapshotByBooking(context.Background(), b.ID)
	if snap.QuotedFare.Amount != 650 {
		t.Errorf("stored snapshot rewritten: got %d, want 650", snap.QuotedFare.Amount)
	}
}

func TestQuoteReflectsRosterPressure(t *testing.T) {
	rig := newTestRig()
	rig.rosterSvc.entries = make([]roster.Entry, 10)

	q, err := rig.svc.Quote(context.Background(), "tt1", time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), fare.TierAdult, true)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if q.Occupancy.CurrentPassengers != 10 {
		t.Errorf("quote passengers: got %d, want 10", q.Occupancy.CurrentPassengers)
	}
	if q.BreakEvenPassengers != 15 {
		t.Errorf("break-even passengers: got %d, want 15", q.BreakEvenPassengers)
	}
	if q.QuotedFare.Amount != 800 {
		t.Errorf("quoted fare: got %d, want 800", q.QuotedFare.Amount)
	}
}

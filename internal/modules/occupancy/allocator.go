// README: Per-instance seat and wheelchair counters with atomic reserve/release.
package occupancy

import (
	"context"
	"sync"
	"time"

	"solbus/internal/modules/timetable"
	"solbus/internal/types"
)

// Loader seeds an instance's counters from persisted state: regular
// registrations net of absences plus confirmed bookings. It is called once
// per instance, and again after Invalidate.
type Loader func(ctx context.Context, timetableID types.ID, date time.Time) ([]Rider, error)

// Allocator owns all per-instance occupancy state. Each (timetableID, date)
// pair is an independent unit of work guarded by its own lock; nothing
// outside this package mutates the counters.
type Allocator struct {
	mu        sync.Mutex
	instances map[string]*instanceState
	load      Loader
	now       func() time.Time
}

type instanceState struct {
	mu     sync.Mutex
	loaded bool
	// seats maps rider ref to wheelchair flag. Counts derive from it, so
	// reserve/release stay idempotent per ref.
	seats map[types.ID]bool
}

func NewAllocator(load Loader, now func() time.Time) *Allocator {
	if now == nil {
		now = time.Now
	}
	return &Allocator{
		instances: make(map[string]*instanceState),
		load:      load,
		now:       now,
	}
}

// TryReserve atomically checks the booking window and both capacity bounds,
// then claims one seat (and, if requested, one wheelchair space). A request
// that would violate either bound is rejected as a whole. Re-reserving an
// already-held ref returns the existing reservation.
func (a *Allocator) TryReserve(ctx context.Context, inst timetable.Instance, req Request) (Reservation, error) {
	if err := a.checkWindow(inst); err != nil {
		return Reservation{}, err
	}

	st := a.state(inst.Key())
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := st.ensureLoaded(ctx, a.load, inst.TimetableID, inst.ServiceDate); err != nil {
		return Reservation{}, err
	}

	if _, held := st.seats[req.Ref]; !held {
		occupied, wheelchairs := st.counts()
		if occupied+1 > inst.TotalSeats {
			return Reservation{}, ErrCapacityExceeded
		}
		if req.Wheelchair && wheelchairs+1 > inst.WheelchairSpaces {
			return Reservation{}, ErrCapacityExceeded
		}
		st.seats[req.Ref] = req.Wheelchair
	}

	occupied, wheelchairs := st.counts()
	return Reservation{
		Key:                inst.Key(),
		Ref:                req.Ref,
		Wheelchair:         st.seats[req.Ref],
		Occupied:           occupied,
		OccupiedWheelchair: wheelchairs,
		Available:          inst.TotalSeats - occupied,
	}, nil
}

// Release frees the seat held by ref. Releasing an unknown or already
// released ref is a no-op so that retried cancellations stay safe.
func (a *Allocator) Release(key string, ref types.ID) {
	a.mu.Lock()
	st, ok := a.instances[key]
	a.mu.Unlock()
	if !ok {
		return
	}
	st.mu.Lock()
	delete(st.seats, ref)
	st.mu.Unlock()
}

// Invalidate drops in-memory state for an instance so the next reservation
// reloads from persisted rosters. Absence reporting calls this; it never
// blocks a concurrent reserve beyond the instance lock.
func (a *Allocator) Invalidate(key string) {
	a.mu.Lock()
	delete(a.instances, key)
	a.mu.Unlock()
}

// View reads current counters without reserving.
func (a *Allocator) View(ctx context.Context, inst timetable.Instance) (Snapshot, error) {
	st := a.state(inst.Key())
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := st.ensureLoaded(ctx, a.load, inst.TimetableID, inst.ServiceDate); err != nil {
		return Snapshot{}, err
	}
	occupied, wheelchairs := st.counts()
	return Snapshot{
		Key:                 inst.Key(),
		TotalSeats:          inst.TotalSeats,
		WheelchairSpaces:    inst.WheelchairSpaces,
		Occupied:            occupied,
		OccupiedWheelchair:  wheelchairs,
		Available:           inst.TotalSeats - occupied,
		AvailableWheelchair: inst.WheelchairSpaces - wheelchairs,
	}, nil
}

func (a *Allocator) checkWindow(inst timetable.Instance) error {
	now := a.now()
	opens := inst.ServiceDate.AddDate(0, 0, -inst.BookingOpensDaysAdvance)
	if now.Before(opens) {
		return ErrOutsideBookingWindow
	}
	cutoff := inst.Departure.Add(-time.Duration(inst.BookingCutoffHours) * time.Hour)
	if !now.Before(cutoff) {
		return ErrOutsideBookingWindow
	}
	return nil
}

func (a *Allocator) state(key string) *instanceState {
	a.mu.Lock()
	defer a.mu.Unlock()
	st, ok := a.instances[key]
	if !ok {
		st = &instanceState{seats: make(map[types.ID]bool)}
		a.instances[key] = st
	}
	return st
}

// ensureLoaded must run under st.mu.
func (st *instanceState) ensureLoaded(ctx context.Context, load Loader, timetableID types.ID, date time.Time) error {
	if st.loaded || load == nil {
		st.loaded = true
		return nil
	}
	riders, err := load(ctx, timetableID, date)
	if err != nil {
		return err
	}
	for _, r := range riders {
		st.seats[r.Ref] = r.Wheelchair
	}
	st.loaded = true
	return nil
}

// counts must run under st.mu.
func (st *instanceState) counts() (occupied, wheelchairs int) {
	occupied = len(st.seats)
	for _, wc := range st.seats {
		if wc {
			wheelchairs++
		}
	}
	return occupied, wheelchairs
}

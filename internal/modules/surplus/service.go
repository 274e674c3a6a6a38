// README: Settles per-instance surplus into reserves, business funds, and member dividends.
package surplus

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"solbus/internal/modules/booking"
	"solbus/internal/modules/costmodel"
	"solbus/internal/modules/fare"
	"solbus/internal/modules/timetable"
	"solbus/internal/types"
)

type InstanceResolver interface {
	Resolve(ctx context.Context, timetableID types.ID, date time.Time) (timetable.Instance, error)
}

type Bookings interface {
	ConfirmedFareTotal(ctx context.Context, timetableID types.ID, date time.Time) (types.Money, int, error)
	ListSettledInstances(ctx context.Context, departedBefore time.Time) ([]booking.InstanceRef, error)
}

type Cost interface {
	TripCost(ctx context.Context, tenantID, routeID types.ID) (costmodel.Breakdown, error)
}

type AllocationStore interface {
	// SaveSettlement persists the allocation and its dividend ledger entries
	// as one unit; either both land or neither does.
	SaveSettlement(ctx context.Context, a *Allocation, entries []LedgerEntry) error
	GetAllocation(ctx context.Context, timetableID types.ID, date time.Time) (*Allocation, error)
	ListLedgerForCustomer(ctx context.Context, customerID types.ID) ([]LedgerEntry, error)
	// ConfirmedTripCounts returns per-member confirmed ridership since the
	// given time, for the pro-rata dividend split.
	ConfirmedTripCounts(ctx context.Context, tenantID types.ID, since time.Time) ([]MemberTrips, error)
}

type Service struct {
	store      AllocationStore
	instances  InstanceResolver
	bookings   Bookings
	cost       Cost
	windowDays int
	log        *slog.Logger
	now        func() time.Time
}

func NewService(
	store AllocationStore,
	instances InstanceResolver,
	bookings Bookings,
	cost Cost,
	windowDays int,
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
		store:      store,
		instances:  instances,
		bookings:   bookings,
		cost:       cost,
		windowDays: windowDays,
		log:        log,
		now:        now,
	}
}

// Allocate settles the surplus for one departed service instance. Idempotent:
// a second call returns the stored allocation untouched. The three shares
// always sum exactly to the surplus; rounding pennies land in the business
// share so no money is created or lost.
func (s *Service) Allocate(ctx context.Context, timetableID types.ID, date time.Time) (*Allocation, error) {
	if existing, err := s.store.GetAllocation(ctx, timetableID, date); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	inst, err := s.instances.Resolve(ctx, timetableID, date)
	if err != nil {
		return nil, err
	}
	collected, confirmed, err := s.bookings.ConfirmedFareTotal(ctx, timetableID, date)
	if err != nil {
		return nil, err
	}
	cost, err := s.cost.TripCost(ctx, inst.TenantID, inst.RouteID)
	if err != nil {
		return nil, err
	}

	surplus := fare.SurplusFromConfirmed(collected, cost.TotalTripCost)
	toReserves := surplus.MulRatio(inst.SurplusReservesPercent, 100)
	toDividends := surplus.MulRatio(inst.SurplusDividendPercent, 100)
	toBusiness := surplus.Sub(toReserves).Sub(toDividends)

	alloc := &Allocation{
		ID:                 types.NewID(),
		TimetableID:        timetableID,
		ServiceDate:        inst.ServiceDate,
		ConfirmedFareTotal: collected,
		TripCost:           cost.TotalTripCost,
		Surplus:            surplus,
		ToReserves:         toReserves,
		ToBusiness:         toBusiness,
		ToDividends:        toDividends,
		CreatedAt:          s.now(),
	}
	// The dividend split can fold an empty pot back into the business share,
	// so it runs before the allocation row is written.
	entries, err := s.distributeDividends(ctx, alloc, inst.TenantID)
	if err != nil {
		return nil, err
	}

	// Allocation row and ledger credits commit together; a failure here
	// leaves nothing behind and the sweep retries the whole settlement.
	if err := s.store.SaveSettlement(ctx, alloc, entries); err != nil {
		if errors.Is(err, ErrAlreadyAllocated) {
			return s.store.GetAllocation(ctx, timetableID, date)
		}
		return nil, err
	}

	s.log.Info("surplus allocated",
		"timetable_id", timetableID,
		"service_date", types.DateKey(date),
		"confirmed", confirmed,
		"surplus", surplus.Amount,
		"reserves", toReserves.Amount,
		"business", toBusiness.Amount,
		"dividends", toDividends.Amount,
		"members_credited", len(entries),
	)
	return alloc, nil
}

// distributeDividends splits the dividend pot pro rata by each member's
// confirmed trips over the trailing qualification window. Leftover pennies
// go one each to members in customer-ID order, so repeated settlement of
// the same figures credits identically. An empty window folds the pot into
// the business share.
func (s *Service) distributeDividends(ctx context.Context, alloc *Allocation, tenantID types.ID) ([]LedgerEntry, error) {
	if alloc.ToDividends.Amount <= 0 {
		return nil, nil
	}
	since := s.now().AddDate(0, 0, -s.windowDays)
	members, err := s.store.ConfirmedTripCounts(ctx, tenantID, since)
	if err != nil {
		return nil, err
	}
	totalTrips := 0
	for _, m := range members {
		totalTrips += m.Trips
	}
	if totalTrips == 0 {
		s.log.Warn("no qualifying member trips; dividend pot folded into business share",
			"allocation_id", alloc.ID, "pot", alloc.ToDividends.Amount)
		alloc.ToBusiness = alloc.ToBusiness.Add(alloc.ToDividends)
		alloc.ToDividends = types.Pence(0)
		return nil, nil
	}

	sort.Slice(members, func(i, j int) bool { return members[i].CustomerID < members[j].CustomerID })

	pot := alloc.ToDividends.Amount
	entries := make([]LedgerEntry, 0, len(members))
	distributed := int64(0)
	for _, m := range members {
		share := pot * int64(m.Trips) / int64(totalTrips)
		distributed += share
		entries = append(entries, LedgerEntry{
			ID:           types.NewID(),
			AllocationID: alloc.ID,
			CustomerID:   m.CustomerID,
			Amount:       types.Pence(share),
			Trips:        m.Trips,
			CreatedAt:    s.now(),
		})
	}
	for i := 0; distributed < pot; i = (i + 1) % len(entries) {
		entries[i].Amount = entries[i].Amount.Add(types.Pence(1))
		distributed++
	}
	return entries, nil
}

func (s *Service) Get(ctx context.Context, timetableID types.ID, date time.Time) (*Allocation, error) {
	return s.store.GetAllocation(ctx, timetableID, date)
}

func (s *Service) LedgerForMember(ctx context.Context, customerID types.ID) ([]LedgerEntry, error) {
	return s.store.ListLedgerForCustomer(ctx, customerID)
}

// SweepSettlements allocates every departed instance that still lacks an
// allocation. Instances already settled short-circuit inside Allocate.
func (s *Service) SweepSettlements(ctx context.Context, grace time.Duration) (int, error) {
	due, err := s.bookings.ListSettledInstances(ctx, s.now().Add(-grace))
	if err != nil {
		return 0, err
	}
	settled := 0
	for _, ref := range due {
		if _, err := s.Allocate(ctx, ref.TimetableID, ref.ServiceDate); err != nil {
			s.log.Error("surplus settlement failed",
				"timetable_id", ref.TimetableID,
				"service_date", types.DateKey(ref.ServiceDate),
				"err", err,
			)
			continue
		}
		settled++
	}
	return settled, nil
}

// RunSettlementTicker periodically sweeps departed instances until ctx is
// done.
func (s *Service) RunSettlementTicker(ctx context.Context, interval, grace time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepSettlements(ctx, grace); err != nil {
				s.log.Error("settlement sweep failed", "err", err)
			}
		}
	}
}

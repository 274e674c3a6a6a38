// README: Service-instance resolution; lazy per-date expansion with cache.
package timetable

import (
	"context"
	"errors"
	"fmt"
	"time"

	"solbus/internal/types"
)

var (
	ErrNotFound      = errors.New("timetable not found")
	ErrNotOperating  = errors.New("timetable does not operate on this date")
	ErrInvalidConfig = errors.New("invalid timetable config")
)

// TimetableSource abstracts the Postgres store for tests.
type TimetableSource interface {
	GetTimetable(ctx context.Context, id types.ID) (Timetable, error)
}

// InstanceCache abstracts the Redis instance cache for tests.
type InstanceCache interface {
	Get(ctx context.Context, key string) (Instance, bool, error)
	Set(ctx context.Context, key string, inst Instance) error
}

type Service struct {
	store TimetableSource
	cache InstanceCache
}

func NewService(store TimetableSource, cache InstanceCache) *Service {
	return &Service{store: store, cache: cache}
}

// Validate checks a timetable's configuration. Surplus percentages must sum
// to exactly 100 under cooperative pricing; this is the configuration-time
// guard behind the surplus-split invariant.
func Validate(t Timetable) error {
	if t.TotalSeats <= 0 {
		return fmt.Errorf("%w: total seats must be positive", ErrInvalidConfig)
	}
	if t.WheelchairSpaces < 0 || t.WheelchairSpaces > t.TotalSeats {
		return fmt.Errorf("%w: wheelchair spaces must be within total seats", ErrInvalidConfig)
	}
	if t.MinimumFareFloor.Amount < 0 {
		return fmt.Errorf("%w: minimum fare floor must not be negative", ErrInvalidConfig)
	}
	if t.MaximumAcceptableFare.Amount <= 0 {
		return fmt.Errorf("%w: maximum acceptable fare must be positive", ErrInvalidConfig)
	}
	if t.MaximumAcceptableFare.Amount < t.MinimumFareFloor.Amount {
		return fmt.Errorf("%w: maximum acceptable fare below minimum floor", ErrInvalidConfig)
	}
	if _, err := time.Parse("15:04", t.DepartureTime); err != nil {
		return fmt.Errorf("%w: departure time %q", ErrInvalidConfig, t.DepartureTime)
	}
	switch t.PricingModel {
	case PricingFixed:
		if t.FixedFare.Amount <= 0 {
			return fmt.Errorf("%w: fixed pricing requires a fixed fare", ErrInvalidConfig)
		}
	case PricingDynamic:
	case PricingCooperative:
		sum := t.SurplusReservesPercent + t.SurplusBusinessPercent + t.SurplusDividendPercent
		if sum != 100 {
			return fmt.Errorf("%w: surplus split sums to %d, want 100", ErrInvalidConfig, sum)
		}
	default:
		return fmt.Errorf("%w: unknown pricing model %q", ErrInvalidConfig, t.PricingModel)
	}
	return nil
}

// Resolve returns the service instance for (timetableID, date), building it
// from the timetable definition when the cache misses. Instances are never
// stored per date; the cache only shortcuts re-derivation.
func (s *Service) Resolve(ctx context.Context, timetableID types.ID, date time.Time) (Instance, error) {
	key := InstanceKey(timetableID, date)
	if s.cache != nil {
		if inst, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			return inst, nil
		}
	}

	t, err := s.store.GetTimetable(ctx, timetableID)
	if err != nil {
		return Instance{}, err
	}
	if err := Validate(t); err != nil {
		return Instance{}, err
	}
	if !t.OperatesOn(date) {
		return Instance{}, ErrNotOperating
	}

	dep, _ := time.Parse("15:04", t.DepartureTime)
	day := date.UTC()
	inst := Instance{
		TimetableID:      t.ID,
		TenantID:         t.TenantID,
		RouteID:          t.RouteID,
		ServiceDate:      time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC),
		Departure:        time.Date(day.Year(), day.Month(), day.Day(), dep.Hour(), dep.Minute(), 0, 0, time.UTC),
		TotalSeats:       t.TotalSeats,
		WheelchairSpaces: t.WheelchairSpaces,
		PricingModel:     t.PricingModel,

		FixedFare:                 t.FixedFare,
		MinimumFareFloor:          t.MinimumFareFloor,
		MaximumAcceptableFare:     t.MaximumAcceptableFare,
		NonMemberSurchargePercent: t.NonMemberSurchargePercent,

		BookingOpensDaysAdvance: t.BookingOpensDaysAdvance,
		BookingCutoffHours:      t.BookingCutoffHours,

		SurplusReservesPercent: t.SurplusReservesPercent,
		SurplusBusinessPercent: t.SurplusBusinessPercent,
		SurplusDividendPercent: t.SurplusDividendPercent,
	}

	if s.cache != nil {
		_ = s.cache.Set(ctx, key, inst)
	}
	return inst, nil
}

// WithinCutoff reports whether now falls inside the instance's booking
// cutoff. Cancellations that would change occupancy are blocked inside it.
func (s *Service) WithinCutoff(ctx context.Context, timetableID types.ID, date time.Time, now time.Time) (bool, error) {
	inst, err := s.Resolve(ctx, timetableID, date)
	if err != nil {
		return false, err
	}
	cutoff := inst.Departure.Add(-time.Duration(inst.BookingCutoffHours) * time.Hour)
	return !now.Before(cutoff), nil
}

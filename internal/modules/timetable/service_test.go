package timetable

import (
	"context"
	"testing"
	"time"

	"solbus/internal/types"
)

type fakeSource struct {
	timetables map[types.ID]Timetable
}

func (f *fakeSource) GetTimetable(_ context.Context, id types.ID) (Timetable, error) {
	t, ok := f.timetables[id]
	if !ok {
		return Timetable{}, ErrNotFound
	}
	return t, nil
}

type memCache struct {
	entries map[string]Instance
	hits    int
}

func (c *memCache) Get(_ context.Context, key string) (Instance, bool, error) {
	inst, ok := c.entries[key]
	if ok {
		c.hits++
	}
	return inst, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, inst Instance) error {
	c.entries[key] = inst
	return nil
}

func validTimetable() Timetable {
	return Timetable{
		ID:                    "tt1",
		TenantID:              "tenant1",
		RouteID:               "route1",
		Name:                  "Village Loop",
		DaysMask:              1<<int(time.Monday) | 1<<int(time.Wednesday),
		DepartureTime:         "09:30",
		TotalSeats:            16,
		WheelchairSpaces:      2,
		PricingModel:          PricingCooperative,
		MinimumFareFloor:      types.Pence(200),
		MaximumAcceptableFare: types.Pence(800),
		BookingOpensDaysAdvance: 14,
		BookingCutoffHours:      2,
		SurplusReservesPercent:  40,
		SurplusBusinessPercent:  20,
		SurplusDividendPercent:  40,
	}
}

func TestValidateSurplusSplit(t *testing.T) {
	tt := validTimetable()
	if err := Validate(tt); err != nil {
		t.Fatalf("valid timetable rejected: %v", err)
	}

	tt.SurplusDividendPercent = 30 // sums to 90
	if err := Validate(tt); err == nil {
		t.Fatal("expected invalid config for surplus split != 100")
	}

	// Split only constrained under cooperative pricing.
	tt.PricingModel = PricingDynamic
	if err := Validate(tt); err != nil {
		t.Fatalf("dynamic pricing should not validate surplus split: %v", err)
	}
}

func TestValidateCapacityAndFares(t *testing.T) {
	tt := validTimetable()
	tt.WheelchairSpaces = 20
	if err := Validate(tt); err == nil {
		t.Fatal("expected rejection: wheelchair spaces exceed total seats")
	}

	tt = validTimetable()
	tt.MaximumAcceptableFare = types.Pence(100) // below floor
	if err := Validate(tt); err == nil {
		t.Fatal("expected rejection: max fare below floor")
	}

	tt = validTimetable()
	tt.PricingModel = PricingFixed
	if err := Validate(tt); err == nil {
		t.Fatal("expected rejection: fixed pricing without fixed fare")
	}
}

func TestResolveOperatingDays(t *testing.T) {
	svc := NewService(&fakeSource{timetables: map[types.ID]Timetable{"tt1": validTimetable()}}, nil)
	ctx := context.Background()

	monday := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	inst, err := svc.Resolve(ctx, "tt1", monday)
	if err != nil {
		t.Fatalf("resolve monday: %v", err)
	}
	if inst.Departure.Hour() != 9 || inst.Departure.Minute() != 30 {
		t.Errorf("unexpected departure: %v", inst.Departure)
	}
	if inst.Key() != "tt1@2026-03-02" {
		t.Errorf("unexpected instance key: %s", inst.Key())
	}

	tuesday := monday.AddDate(0, 0, 1)
	if _, err := svc.Resolve(ctx, "tt1", tuesday); err != ErrNotOperating {
		t.Errorf("expected ErrNotOperating on tuesday, got %v", err)
	}
}

func TestResolveUsesCache(t *testing.T) {
	cache := &memCache{entries: map[string]Instance{}}
	svc := NewService(&fakeSource{timetables: map[types.ID]Timetable{"tt1": validTimetable()}}, cache)
	ctx := context.Background()
	monday := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	first, err := svc.Resolve(ctx, "tt1", monday)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	second, err := svc.Resolve(ctx, "tt1", monday)
	if err != nil {
		t.Fatalf("resolve (cached): %v", err)
	}
	if cache.hits != 1 {
		t.Errorf("expected 1 cache hit, got %d", cache.hits)
	}
	if first.Key() != second.Key() || first.TotalSeats != second.TotalSeats {
		t.Errorf("cached instance differs from derived instance")
	}
}

func TestWithinCutoff(t *testing.T) {
	svc := NewService(&fakeSource{timetables: map[types.ID]Timetable{"tt1": validTimetable()}}, nil)
	ctx := context.Background()
	monday := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	before := time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC)
	within, err := svc.WithinCutoff(ctx, "tt1", monday, before)
	if err != nil {
		t.Fatalf("cutoff: %v", err)
	}
	if within {
		t.Error("07:00 should be outside a 2h cutoff before 09:30")
	}

	after := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	within, err = svc.WithinCutoff(ctx, "tt1", monday, after)
	if err != nil {
		t.Fatalf("cutoff: %v", err)
	}
	if !within {
		t.Error("08:00 should be inside a 2h cutoff before 09:30")
	}
}

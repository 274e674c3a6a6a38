// README: Entry point; loads config, wires services, starts HTTP server and background sweeps.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"solbus/internal/config"
	httptransport "solbus/internal/http"
	"solbus/internal/infra"
	"solbus/internal/maps"
	"solbus/internal/messaging"
	"solbus/internal/modules/booking"
	"solbus/internal/modules/costmodel"
	"solbus/internal/modules/occupancy"
	"solbus/internal/modules/roster"
	"solbus/internal/modules/surplus"
	"solbus/internal/modules/timetable"
	"solbus/internal/types"
)

func main() {
	_ = godotenv.Load()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.Error("db init", "err", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	redisClient := infra.NewRedis(cfg.Redis.Addr)

	timetableStore := timetable.NewStore(dbPool)
	instanceCache := timetable.NewRedisCache(redisClient, cfg.Engine.InstanceCacheTTL)
	timetableSvc := timetable.NewService(timetableStore, instanceCache)

	costStore := costmodel.NewStore(dbPool)
	costSvc := costmodel.NewService(costStore)

	bookingStore := booking.NewStore(dbPool)

	registrationStore := roster.NewRegistrationStore(dbPool)
	absenceRepo := roster.NewAbsenceRepo(dbPool)
	rosterSvc := roster.NewService(registrationStore, absenceRepo, bookingStore, timetableSvc, nil)

	// The allocator's baseline for an instance is the confirmed roster:
	// regulars after absences plus confirmed bookings.
	allocator := occupancy.NewAllocator(func(ctx context.Context, timetableID types.ID, date time.Time) ([]occupancy.Rider, error) {
		res, err := rosterSvc.Resolve(ctx, timetableID, date, roster.Options{ConfirmedOnly: true})
		if err != nil {
			return nil, err
		}
		riders := make([]occupancy.Rider, 0, len(res.Entries))
		for _, e := range res.Entries {
			riders = append(riders, occupancy.Rider{Ref: e.Ref, Wheelchair: e.Wheelchair})
		}
		return riders, nil
	}, nil)
	rosterSvc.SetInvalidator(func(timetableID types.ID, date time.Time) {
		allocator.Invalidate(timetable.InstanceKey(timetableID, date))
	})

	bookingSvc := booking.NewService(bookingStore, timetableSvc, rosterSvc, costSvc, allocator, log, nil)

	surplusStore := surplus.NewStore(dbPool)
	surplusSvc := surplus.NewService(surplusStore, timetableSvc, bookingStore, costSvc, cfg.Engine.DividendWindowDays, log, nil)

	var composer messaging.Composer
	if cfg.Messaging.GeminiKey != "" {
		gemini, err := messaging.NewGeminiComposer(ctx, cfg.Messaging.GeminiKey)
		if err != nil {
			log.Warn("gemini init failed, using templated messages", "err", err)
			composer = messaging.NewFallbackComposer(nil)
		} else {
			defer gemini.Close()
			composer = messaging.NewFallbackComposer(gemini)
		}
	} else {
		composer = messaging.NewFallbackComposer(nil)
	}

	deps := httptransport.RouterDeps{
		Instances:  timetableSvc,
		Seats:      allocator,
		Roster:     rosterSvc,
		Quoter:     bookingSvc,
		Composer:   composer,
		Bookings:   bookingSvc,
		Absences:   rosterSvc,
		Surplus:    surplusSvc,
		StaffToken: cfg.HTTP.StaffToken,
		Log:        log,
	}

	if cfg.Maps.APIKey != "" {
		routeSvc, err := maps.NewRouteService(cfg.Maps.APIKey)
		if err != nil {
			log.Warn("maps init failed, route tooling disabled", "err", err)
		} else {
			deps.Routes = routeSvc
		}
		stopSvc, err := maps.NewStopService(cfg.Maps.APIKey)
		if err == nil {
			deps.Stops = stopSvc
		}
	}

	server := httptransport.NewServer(cfg.HTTP.Addr, httptransport.NewRouter(deps), log)

	go bookingSvc.RunSweepTicker(ctx, cfg.Engine.SweepInterval, cfg.Engine.CompletionGrace)
	go surplusSvc.RunSettlementTicker(ctx, cfg.Engine.SweepInterval, cfg.Engine.CompletionGrace)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Run() }()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			log.Error("http server", "err", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", "err", err)
	}
}

// README: HTTP route registration.
package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"solbus/internal/http/handlers"
	"solbus/internal/http/middleware"
)

type RouterDeps struct {
	Instances handlers.InstanceResolver
	Seats     handlers.OccupancyViewer
	Roster    handlers.RosterResolver
	Quoter    handlers.Quoter
	Composer  handlers.MessageComposer
	Bookings  handlers.BookingService
	Absences  handlers.AbsenceService
	Surplus   handlers.SurplusService
	Routes    handlers.RouteEstimator
	Stops     handlers.StopSuggester

	StaffToken string
	Log        *slog.Logger
}

func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Logging(deps.Log), middleware.Recovery(deps.Log))

	serviceHandler := handlers.NewServiceHandler(deps.Instances, deps.Seats, deps.Roster, deps.Quoter, deps.Composer)
	r.GET("/api/services/:id/instances/:date", serviceHandler.GetInstance)
	r.GET("/api/services/:id/instances/:date/occupancy", serviceHandler.GetOccupancy)
	r.GET("/api/services/:id/instances/:date/quote", serviceHandler.GetQuote)

	bookingHandler := handlers.NewBookingHandler(deps.Bookings)
	r.POST("/api/bookings", bookingHandler.Create)
	r.GET("/api/bookings/:id", bookingHandler.Get)
	r.GET("/api/bookings/:id/fare", bookingHandler.GetFareSnapshot)
	r.POST("/api/bookings/:id/confirm", bookingHandler.Confirm)
	r.POST("/api/bookings/:id/cancel", bookingHandler.Cancel)
	r.POST("/api/bookings/:id/pay", bookingHandler.MarkPaid)
	r.POST("/api/bookings/:id/refund", bookingHandler.Refund)

	absenceHandler := handlers.NewAbsenceHandler(deps.Absences)
	r.POST("/api/absences", absenceHandler.Report)
	r.POST("/api/absences/:id/cancel", absenceHandler.Cancel)

	surplusHandler := handlers.NewSurplusHandler(deps.Surplus)
	r.GET("/api/services/:id/instances/:date/surplus", surplusHandler.GetAllocation)
	r.GET("/api/members/:id/dividends", surplusHandler.MemberLedger)

	// Operator-only surface: manifests, ridership marking, settlement, and
	// route setup tooling.
	staff := r.Group("/api/staff", middleware.StaffAuth(deps.StaffToken))
	staff.GET("/services/:id/instances/:date/manifest", serviceHandler.GetManifest)
	staff.POST("/bookings/:id/complete", bookingHandler.Complete)
	staff.POST("/bookings/:id/no-show", bookingHandler.MarkNoShow)
	staff.POST("/services/:id/instances/:date/surplus/allocate", surplusHandler.Allocate)

	adminHandler := handlers.NewAdminHandler(deps.Routes, deps.Stops)
	staff.POST("/routes/estimate", adminHandler.EstimateRoute)
	staff.POST("/routes/stops", adminHandler.SuggestStops)

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	return r
}

// README: Booking lifecycle handlers: create, confirm, cancel, ridership, payment.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"solbus/internal/modules/booking"
	"solbus/internal/modules/fare"
	"solbus/internal/types"
)

type BookingService interface {
	Create(ctx context.Context, cmd booking.CreateCommand) (*booking.Booking, error)
	Get(ctx context.Context, bookingID types.ID) (*booking.Booking, error)
	FareSnapshot(ctx context.Context, bookingID types.ID) (*booking.Snapshot, error)
	Confirm(ctx context.Context, bookingID types.ID) (*booking.Booking, error)
	Cancel(ctx context.Context, cmd booking.CancelCommand) error
	Complete(ctx context.Context, bookingID types.ID) error
	MarkNoShow(ctx context.Context, bookingID types.ID) error
	MarkPaid(ctx context.Context, bookingID types.ID) error
	Refund(ctx context.Context, bookingID types.ID) error
}

type BookingHandler struct {
	bookings BookingService
}

func NewBookingHandler(svc BookingService) *BookingHandler {
	return &BookingHandler{bookings: svc}
}

type createBookingReq struct {
	TimetableID        string `json:"timetable_id"`
	ServiceDate        string `json:"service_date"`
	CustomerID         string `json:"customer_id"`
	PassengerTier      string `json:"passenger_tier"`
	SeatNumber         string `json:"seat_number"`
	WheelchairRequired bool   `json:"wheelchair_required"`
	IsMember           bool   `json:"is_member"`
}

type bookingResponse struct {
	BookingID      types.ID              `json:"booking_id"`
	TimetableID    types.ID              `json:"timetable_id"`
	ServiceDate    string                `json:"service_date"`
	CustomerID     types.ID              `json:"customer_id"`
	PassengerTier  fare.Tier             `json:"passenger_tier"`
	Status         booking.Status        `json:"status"`
	PaymentStatus  booking.PaymentStatus `json:"payment_status"`
	FareSnapshotID *types.ID             `json:"fare_snapshot_id,omitempty"`
	ConfirmedAt    *time.Time            `json:"confirmed_at,omitempty"`
}

func toBookingResponse(b *booking.Booking) bookingResponse {
	return bookingResponse{
		BookingID:      b.ID,
		TimetableID:    b.TimetableID,
		ServiceDate:    types.DateKey(b.ServiceDate),
		CustomerID:     b.CustomerID,
		PassengerTier:  b.PassengerTier,
		Status:         b.Status,
		PaymentStatus:  b.PaymentStatus,
		FareSnapshotID: b.FareSnapshotID,
		ConfirmedAt:    b.ConfirmedAt,
	}
}

func (h *BookingHandler) Create(c *gin.Context) {
	var req createBookingReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.TimetableID == "" || req.CustomerID == "" || req.ServiceDate == "" {
		writeError(c, http.StatusBadRequest, "missing fields")
		return
	}
	date, ok := parseDate(c, req.ServiceDate)
	if !ok {
		return
	}
	b, err := h.bookings.Create(c.Request.Context(), booking.CreateCommand{
		TimetableID:        types.ID(req.TimetableID),
		ServiceDate:        date,
		CustomerID:         types.ID(req.CustomerID),
		PassengerTier:      fare.Tier(req.PassengerTier),
		SeatNumber:         req.SeatNumber,
		WheelchairRequired: req.WheelchairRequired,
		IsMember:           req.IsMember,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, toBookingResponse(b))
}

func (h *BookingHandler) Get(c *gin.Context) {
	b, err := h.bookings.Get(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toBookingResponse(b))
}

// GetFareSnapshot returns the immutable fare record for a confirmed booking.
func (h *BookingHandler) GetFareSnapshot(c *gin.Context) {
	snap, err := h.bookings.FareSnapshot(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, snap)
}

// Confirm claims the seat and finalizes the fare. Idempotent: a confirmed
// booking confirms again as a no-op with the original snapshot.
func (h *BookingHandler) Confirm(c *gin.Context) {
	b, err := h.bookings.Confirm(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toBookingResponse(b))
}

type cancelBookingReq struct {
	Reason string `json:"reason"`
}

func (h *BookingHandler) Cancel(c *gin.Context) {
	var req cancelBookingReq
	_ = c.ShouldBindJSON(&req)
	err := h.bookings.Cancel(c.Request.Context(), booking.CancelCommand{
		BookingID: types.ID(c.Param("id")),
		ActorType: "customer",
		Reason:    req.Reason,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": booking.StatusCancelled})
}

func (h *BookingHandler) Complete(c *gin.Context) {
	if err := h.bookings.Complete(c.Request.Context(), types.ID(c.Param("id"))); err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": booking.StatusCompleted})
}

func (h *BookingHandler) MarkNoShow(c *gin.Context) {
	if err := h.bookings.MarkNoShow(c.Request.Context(), types.ID(c.Param("id"))); err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": booking.StatusNoShow})
}

func (h *BookingHandler) MarkPaid(c *gin.Context) {
	if err := h.bookings.MarkPaid(c.Request.Context(), types.ID(c.Param("id"))); err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"payment_status": booking.PaymentPaid})
}

func (h *BookingHandler) Refund(c *gin.Context) {
	if err := h.bookings.Refund(c.Request.Context(), types.ID(c.Param("id"))); err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"payment_status": booking.PaymentRefunded})
}

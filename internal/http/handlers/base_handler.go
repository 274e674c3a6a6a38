// README: Shared handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"solbus/internal/modules/booking"
	"solbus/internal/modules/costmodel"
	"solbus/internal/modules/occupancy"
	"solbus/internal/modules/roster"
	"solbus/internal/modules/surplus"
	"solbus/internal/modules/timetable"
	"solbus/internal/types"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// writeServiceError maps module sentinel errors onto HTTP statuses. Booking
// window violations are 422: the request is well-formed but the window rules
// forbid it. Capacity and state races are 409.
func writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, booking.ErrBadRequest),
		errors.Is(err, timetable.ErrInvalidConfig),
		errors.Is(err, costmodel.ErrInvalidRateConfig):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, booking.ErrNotFound),
		errors.Is(err, timetable.ErrNotFound),
		errors.Is(err, roster.ErrNotFound),
		errors.Is(err, costmodel.ErrNotFound),
		errors.Is(err, surplus.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, timetable.ErrNotOperating):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, occupancy.ErrOutsideBookingWindow),
		errors.Is(err, roster.ErrCutoffPassed):
		writeError(c, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, occupancy.ErrCapacityExceeded),
		errors.Is(err, booking.ErrInvalidState),
		errors.Is(err, booking.ErrConflict),
		errors.Is(err, booking.ErrDuplicateRegistration):
		writeError(c, http.StatusConflict, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

// parseDate reads a YYYY-MM-DD path or query value.
func parseDate(c *gin.Context, raw string) (time.Time, bool) {
	date, err := types.ParseDate(raw)
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid date, want YYYY-MM-DD")
		return time.Time{}, false
	}
	return date, true
}

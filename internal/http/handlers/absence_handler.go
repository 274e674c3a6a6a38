// README: Absence reporting handlers for regular passengers.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"solbus/internal/modules/roster"
	"solbus/internal/types"
)

type AbsenceService interface {
	ReportAbsence(ctx context.Context, cmd roster.ReportAbsenceCommand) (roster.Absence, error)
	CancelAbsence(ctx context.Context, id types.ID) error
}

type AbsenceHandler struct {
	roster AbsenceService
}

func NewAbsenceHandler(svc AbsenceService) *AbsenceHandler {
	return &AbsenceHandler{roster: svc}
}

type reportAbsenceReq struct {
	CustomerID  string `json:"customer_id"`
	AbsenceDate string `json:"absence_date"`
	// TimetableID empty means the customer is away for the whole date.
	TimetableID string `json:"timetable_id"`
	Reason      string `json:"reason"`
}

func (h *AbsenceHandler) Report(c *gin.Context) {
	var req reportAbsenceReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.CustomerID == "" || req.AbsenceDate == "" {
		writeError(c, http.StatusBadRequest, "missing fields")
		return
	}
	date, ok := parseDate(c, req.AbsenceDate)
	if !ok {
		return
	}
	cmd := roster.ReportAbsenceCommand{
		CustomerID:  types.ID(req.CustomerID),
		AbsenceDate: date,
		Reason:      req.Reason,
	}
	if req.TimetableID != "" {
		id := types.ID(req.TimetableID)
		cmd.TimetableID = &id
	}
	a, err := h.roster.ReportAbsence(c.Request.Context(), cmd)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{
		"absence_id":   a.ID,
		"customer_id":  a.CustomerID,
		"absence_date": types.DateKey(a.AbsenceDate),
	})
}

func (h *AbsenceHandler) Cancel(c *gin.Context) {
	if err := h.roster.CancelAbsence(c.Request.Context(), types.ID(c.Param("id"))); err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"cancelled": true})
}

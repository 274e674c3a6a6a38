// README: Surplus allocation and dividend ledger handlers.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"solbus/internal/modules/surplus"
	"solbus/internal/types"
)

type SurplusService interface {
	Allocate(ctx context.Context, timetableID types.ID, date time.Time) (*surplus.Allocation, error)
	Get(ctx context.Context, timetableID types.ID, date time.Time) (*surplus.Allocation, error)
	LedgerForMember(ctx context.Context, customerID types.ID) ([]surplus.LedgerEntry, error)
}

type SurplusHandler struct {
	surplus SurplusService
}

func NewSurplusHandler(svc SurplusService) *SurplusHandler {
	return &SurplusHandler{surplus: svc}
}

func (h *SurplusHandler) GetAllocation(c *gin.Context) {
	date, ok := parseDate(c, c.Param("date"))
	if !ok {
		return
	}
	a, err := h.surplus.Get(c.Request.Context(), types.ID(c.Param("id")), date)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, a)
}

// Allocate settles a departed instance on demand; the background sweep
// handles the usual case.
func (h *SurplusHandler) Allocate(c *gin.Context) {
	date, ok := parseDate(c, c.Param("date"))
	if !ok {
		return
	}
	a, err := h.surplus.Allocate(c.Request.Context(), types.ID(c.Param("id")), date)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, a)
}

func (h *SurplusHandler) MemberLedger(c *gin.Context) {
	entries, err := h.surplus.LedgerForMember(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"entries": entries})
}

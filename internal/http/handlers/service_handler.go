// README: Service instance, quote, and manifest handlers.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"solbus/internal/modules/fare"
	"solbus/internal/modules/occupancy"
	"solbus/internal/modules/roster"
	"solbus/internal/modules/timetable"
	"solbus/internal/types"
)

type InstanceResolver interface {
	Resolve(ctx context.Context, timetableID types.ID, date time.Time) (timetable.Instance, error)
}

type OccupancyViewer interface {
	View(ctx context.Context, inst timetable.Instance) (occupancy.Snapshot, error)
}

type RosterResolver interface {
	Resolve(ctx context.Context, timetableID types.ID, date time.Time, opts roster.Options) (roster.Result, error)
}

type Quoter interface {
	Quote(ctx context.Context, timetableID types.ID, date time.Time, tier fare.Tier, isMember bool) (fare.Quote, error)
}

type MessageComposer interface {
	ComposeQuoteMessage(ctx context.Context, serviceName string, quote fare.Quote) (string, error)
}

type ServiceHandler struct {
	instances InstanceResolver
	seats     OccupancyViewer
	roster    RosterResolver
	quoter    Quoter
	composer  MessageComposer
}

func NewServiceHandler(instances InstanceResolver, seats OccupancyViewer, rosterSvc RosterResolver, quoter Quoter, composer MessageComposer) *ServiceHandler {
	return &ServiceHandler{
		instances: instances,
		seats:     seats,
		roster:    rosterSvc,
		quoter:    quoter,
		composer:  composer,
	}
}

// GetInstance returns the resolved configuration for one service date.
func (h *ServiceHandler) GetInstance(c *gin.Context) {
	date, ok := parseDate(c, c.Param("date"))
	if !ok {
		return
	}
	inst, err := h.instances.Resolve(c.Request.Context(), types.ID(c.Param("id")), date)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, inst)
}

// GetOccupancy returns live seat counters for a service date.
func (h *ServiceHandler) GetOccupancy(c *gin.Context) {
	date, ok := parseDate(c, c.Param("date"))
	if !ok {
		return
	}
	inst, err := h.instances.Resolve(c.Request.Context(), types.ID(c.Param("id")), date)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	view, err := h.seats.View(c.Request.Context(), inst)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, view)
}

type manifestResponse struct {
	TimetableID types.ID           `json:"timetable_id"`
	ServiceDate string             `json:"service_date"`
	Passengers  []roster.Entry     `json:"passengers"`
	Duplicates  []roster.Duplicate `json:"duplicates,omitempty"`
	Occupancy   occupancy.Snapshot `json:"occupancy"`
}

// GetManifest returns the operational passenger list for drivers and office
// staff: confirmed riders only, with duplicate-registration warnings.
func (h *ServiceHandler) GetManifest(c *gin.Context) {
	date, ok := parseDate(c, c.Param("date"))
	if !ok {
		return
	}
	id := types.ID(c.Param("id"))
	inst, err := h.instances.Resolve(c.Request.Context(), id, date)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	res, err := h.roster.Resolve(c.Request.Context(), id, date, roster.Options{ConfirmedOnly: true})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	view, err := h.seats.View(c.Request.Context(), inst)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	writeJSON(c, http.StatusOK, manifestResponse{
		TimetableID: id,
		ServiceDate: types.DateKey(date),
		Passengers:  res.Entries,
		Duplicates:  res.Duplicates,
		Occupancy:   view,
	})
}

type quoteResponse struct {
	fare.Quote
	Message string `json:"message,omitempty"`
}

// GetQuote returns a non-binding fare preview. tier defaults to adult;
// member=true applies member pricing.
func (h *ServiceHandler) GetQuote(c *gin.Context) {
	date, ok := parseDate(c, c.Param("date"))
	if !ok {
		return
	}
	tier := fare.Tier(c.DefaultQuery("tier", string(fare.TierAdult)))
	if !fare.ValidTier(tier) {
		writeError(c, http.StatusBadRequest, "unknown passenger tier")
		return
	}
	isMember := c.Query("member") == "true"

	quote, err := h.quoter.Quote(c.Request.Context(), types.ID(c.Param("id")), date, tier, isMember)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	resp := quoteResponse{Quote: quote}
	if h.composer != nil {
		if msg, err := h.composer.ComposeQuoteMessage(c.Request.Context(), c.Param("id"), quote); err == nil {
			resp.Message = msg
		}
	}
	writeJSON(c, http.StatusOK, resp)
}

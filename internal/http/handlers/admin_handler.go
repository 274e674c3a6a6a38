// README: Operator tooling handlers: route measurement and pickup suggestions.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"solbus/internal/maps"
	"solbus/internal/modules/costmodel"
)

type RouteEstimator interface {
	EstimateRoute(ctx context.Context, origin, destination string, waypoints []string) (costmodel.RouteMetrics, error)
}

type StopSuggester interface {
	SuggestAlongRoute(ctx context.Context, settlements []string, query string) ([]maps.PickupPoint, error)
}

// AdminHandler serves route setup tooling. Both services are optional: with
// no Maps API key configured the endpoints report 503 rather than failing
// startup.
type AdminHandler struct {
	routes RouteEstimator
	stops  StopSuggester
}

func NewAdminHandler(routes RouteEstimator, stops StopSuggester) *AdminHandler {
	return &AdminHandler{routes: routes, stops: stops}
}

type estimateRouteReq struct {
	Origin      string   `json:"origin"`
	Destination string   `json:"destination"`
	Waypoints   []string `json:"waypoints"`
}

func (h *AdminHandler) EstimateRoute(c *gin.Context) {
	if h.routes == nil {
		writeError(c, http.StatusServiceUnavailable, "route estimation not configured")
		return
	}
	var req estimateRouteReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Origin == "" || req.Destination == "" {
		writeError(c, http.StatusBadRequest, "missing fields")
		return
	}
	metrics, err := h.routes.EstimateRoute(c.Request.Context(), req.Origin, req.Destination, req.Waypoints)
	if err != nil {
		writeError(c, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(c, http.StatusOK, metrics)
}

type suggestStopsReq struct {
	Settlements []string `json:"settlements"`
	Query       string   `json:"query"`
}

func (h *AdminHandler) SuggestStops(c *gin.Context) {
	if h.stops == nil {
		writeError(c, http.StatusServiceUnavailable, "stop suggestion not configured")
		return
	}
	var req suggestStopsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if len(req.Settlements) == 0 || req.Query == "" {
		writeError(c, http.StatusBadRequest, "missing fields")
		return
	}
	points, err := h.stops.SuggestAlongRoute(c.Request.Context(), req.Settlements, req.Query)
	if err != nil {
		writeError(c, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"pickup_points": points})
}

// README: Google Maps directions client; measures routes for trip costing.
package maps

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"

	"solbus/internal/modules/costmodel"
)

const metersPerMile = 1609.344

// RouteService measures driving routes via the Google Maps Directions API.
// Operators use it to seed route distance and duration when setting up a
// timetable; the figures land in the routes table and drive trip costing.
type RouteService struct {
	client *maps.Client
}

func NewRouteService(apiKey string) (*RouteService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &RouteService{client: client}, nil
}

// EstimateRoute returns driving metrics for a route through the given stops,
// in the miles-and-hours units the cost model expects.
func (s *RouteService) EstimateRoute(ctx context.Context, origin, destination string, waypoints []string) (costmodel.RouteMetrics, error) {
	r := &maps.DirectionsRequest{
		Origin:      origin,
		Destination: destination,
		Waypoints:   waypoints,
		Mode:        maps.TravelModeDriving,
		Language:    "en-GB",
		Region:      "GB", // Bias results to the UK
	}

	routes, _, err := s.client.Directions(ctx, r)
	if err != nil {
		return costmodel.RouteMetrics{}, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return costmodel.RouteMetrics{}, fmt.Errorf("no route found from %q to %q", origin, destination)
	}

	var meters int
	var seconds float64
	for _, leg := range routes[0].Legs {
		meters += leg.Distance.Meters
		seconds += leg.Duration.Seconds()
	}
	return costmodel.RouteMetrics{
		DistanceMiles: float64(meters) / metersPerMile,
		DurationHours: seconds / 3600,
	}, nil
}

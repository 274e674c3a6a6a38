// README: Google Places client; finds named pickup landmarks for route planning.
package maps

import (
	"context"
	"fmt"
	"strings"

	"googlemaps.github.io/maps"
)

// PickupPoint is a candidate named landmark for a scheduled stop.
type PickupPoint struct {
	Name             string  `json:"name"`
	Address          string  `json:"address"`
	Rating           float32 `json:"rating"`
	PlaceID          string  `json:"place_id"`
	UserRatingsTotal int     `json:"user_ratings_total"`
}

// StopService suggests pickup landmarks near the villages a route serves.
// Community services rarely use formal bus stops; pickups happen at village
// halls, surgeries, and shops that passengers can name.
type StopService struct {
	client *maps.Client
}

func NewStopService(apiKey string) (*StopService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &StopService{client: client}, nil
}

// Landmarks that make poor pickup points regardless of rating.
var excludedStopKeywords = []string{"Car Park", "Layby", "Motorway", "Services"}

// SuggestPickupPoints searches for well-known landmarks matching the query
// near the given settlement.
func (s *StopService) SuggestPickupPoints(ctx context.Context, settlement, query string) ([]PickupPoint, error) {
	fullQuery := query
	if settlement != "" {
		fullQuery = fmt.Sprintf("%s near %s", query, settlement)
	}

	resp, err := s.client.TextSearch(ctx, &maps.TextSearchRequest{
		Query:    fullQuery,
		Language: "en-GB",
		Region:   "GB",
	})
	if err != nil {
		return nil, fmt.Errorf("places api error: %w", err)
	}

	var results []PickupPoint
	for _, result := range resp.Results {
		skip := false
		for _, kw := range excludedStopKeywords {
			if strings.Contains(result.Name, kw) {
				skip = true
				break
			}
		}
		if skip {
			continue
		}
		results = append(results, PickupPoint{
			Name:             result.Name,
			Address:          result.FormattedAddress,
			Rating:           result.Rating,
			PlaceID:          result.PlaceID,
			UserRatingsTotal: result.UserRatingsTotal,
		})
		if len(results) >= 5 {
			break
		}
	}
	return results, nil
}

// SuggestAlongRoute gathers pickup suggestions for each settlement a route
// passes through, de-duplicated by place.
func (s *StopService) SuggestAlongRoute(ctx context.Context, settlements []string, query string) ([]PickupPoint, error) {
	seen := make(map[string]bool)
	var all []PickupPoint
	for _, settlement := range settlements {
		results, err := s.SuggestPickupPoints(ctx, settlement, query)
		if err != nil {
			continue // Skip failed settlements, try the rest
		}
		for _, p := range results {
			if !seen[p.PlaceID] {
				seen[p.PlaceID] = true
				all = append(all, p)
			}
		}
	}
	return all, nil
}

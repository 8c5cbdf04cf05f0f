// README: Google Maps Directions backed traffic supplier for impact estimation.
package maps

import (
	"context"
	"errors"
	"fmt"
	"time"

	"googlemaps.github.io/maps"

	"greenpool/internal/modules/impact"
	"greenpool/internal/modules/routes"
)

var ErrNoRoute = errors.New("no route found")

// directionsClient is the subset of *maps.Client used here.
type directionsClient interface {
	Directions(ctx context.Context, r *maps.DirectionsRequest) ([]maps.Route, []maps.GeocodedWaypoint, error)
}

// TrafficService resolves distance, duration and congestion for a route.
type TrafficService struct {
	client directionsClient
	now    func() time.Time
}

// NewTrafficService creates a new TrafficService with the given API Key.
func NewTrafficService(apiKey string) (*TrafficService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return newTrafficService(client), nil
}

func newTrafficService(client directionsClient) *TrafficService {
	return &TrafficService{client: client, now: time.Now}
}

// TrafficData implements impact.Supplier.
func (s *TrafficService) TrafficData(ctx context.Context, r routes.Route) (impact.TrafficData, error) {
	mode := travelMode(r.Preferences.TransportMode)
	req := &maps.DirectionsRequest{
		Origin:      r.Origin.String(),
		Destination: r.Destination.String(),
		Mode:        mode,
	}
	if mode == maps.TravelModeDriving {
		// Traffic durations are only returned for a departure time.
		req.DepartureTime = departureTime(r, s.now())
		req.TrafficModel = maps.TrafficModelBestGuess
	}

	result, _, err := s.client.Directions(ctx, req)
	if err != nil {
		return impact.TrafficData{}, fmt.Errorf("maps api error: %w", err)
	}
	if len(result) == 0 || len(result[0].Legs) == 0 {
		return impact.TrafficData{}, ErrNoRoute
	}
	return trafficFromLeg(result[0].Legs[0], mode == maps.TravelModeDriving), nil
}

// trafficFromLeg converts a directions leg. Congestion is the share of the
// in-traffic duration spent above free flow.
func trafficFromLeg(leg *maps.Leg, driving bool) impact.TrafficData {
	distanceKm := float64(leg.Distance.Meters) / 1000
	freeFlow := leg.Duration.Seconds()
	duration := freeFlow
	level := 0.0
	if driving && leg.DurationInTraffic > 0 {
		duration = leg.DurationInTraffic.Seconds()
		level = (duration - freeFlow) / duration
	}
	return impact.Known(distanceKm, duration, max(0, min(1, level)))
}

// departureTime is the route's departure if it lies ahead, else "now".
func departureTime(r routes.Route, now time.Time) string {
	if dep := r.DepartureTime(); dep.After(now) {
		return fmt.Sprintf("%d", dep.Unix())
	}
	return "now"
}

func travelMode(m routes.TransportMode) maps.Mode {
	switch m {
	case routes.ModeTransit:
		return maps.TravelModeTransit
	case routes.ModeWalking:
		return maps.TravelModeWalking
	case routes.ModeBicycling:
		return maps.TravelModeBicycling
	default:
		return maps.TravelModeDriving
	}
}

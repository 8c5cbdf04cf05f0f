// README: Impact estimation inputs, coefficients and error kinds.
package impact

import (
	"errors"
	"time"
)

var (
	// ErrEstimationUnavailable marks missing routing inputs. Callers must not
	// treat it as a zero impact.
	ErrEstimationUnavailable = errors.New("estimation unavailable")
	ErrInvalidTrafficData    = errors.New("invalid traffic data")
)

const (
	// avgEmissionsKgPerKm is the average car emission factor (kg CO2 per km).
	avgEmissionsKgPerKm = 0.2
	// avgFuelLitersPerKm is the average car fuel consumption.
	avgFuelLitersPerKm = 0.08
	// matchEfficiencyGain is the assumed fuel efficiency improvement from matching.
	matchEfficiencyGain = 0.2
	// carpoolOffsetShare is the share of emissions offset by carpooling.
	carpoolOffsetShare = 0.3
	secondsPerHour     = 3600.0
	maxTrafficPercent  = 100.0
)

// TrafficData is what a routing backend knows about a route. A nil
// DistanceKm or DurationSeconds means the backend could not resolve it.
type TrafficData struct {
	DistanceKm      *float64 `json:"distanceKm"`
	DurationSeconds *float64 `json:"durationSeconds"`
	// TrafficLevel is the congestion level in [0,1].
	TrafficLevel float64 `json:"trafficLevel"`
}

// Known builds TrafficData with both distance and duration resolved.
func Known(distanceKm, durationSeconds, trafficLevel float64) TrafficData {
	return TrafficData{
		DistanceKm:      &distanceKm,
		DurationSeconds: &durationSeconds,
		TrafficLevel:    trafficLevel,
	}
}

// cachedTraffic is the Redis representation of TrafficData.
type cachedTraffic struct {
	DistanceKm      *float64  `json:"distance_km"`
	DurationSeconds *float64  `json:"duration_seconds"`
	TrafficLevel    float64   `json:"traffic_level"`
	FetchedAt       time.Time `json:"fetched_at"`
}

// README: Location, time and composite match scores on a 0-100 scale.
package matching

import (
	"math"
	"time"

	"greenpool/internal/modules/location"
	"greenpool/internal/modules/routes"
)

// LocationScore decays linearly from 100 at 0 km to 0 at 0.5 km.
func LocationScore(distanceKm float64) float64 {
	if math.IsNaN(distanceKm) {
		return 0
	}
	return clampScore(maxScore - math.Abs(distanceKm)/perfectMatchRadiusKm*maxScore)
}

// TimeScore decays linearly from 100 at 0 minutes to 0 at 30 minutes.
func TimeScore(deltaMinutes float64) float64 {
	if math.IsNaN(deltaMinutes) {
		return 0
	}
	return clampScore(maxScore - math.Abs(deltaMinutes)/MaxDepartureGap.Minutes()*maxScore)
}

// DepartureDeltaMinutes is the absolute gap between two epoch-millisecond times.
func DepartureDeltaMinutes(aMs, bMs int64) float64 {
	d := aMs - bMs
	if d < 0 {
		d = -d
	}
	return float64(d) / float64(time.Minute/time.Millisecond)
}

// MatchScore is the mean of the origin, destination and departure scores.
func MatchScore(subject, candidate routes.Route) float64 {
	origin := LocationScore(location.DistanceKm(subject.Origin.Coordinate, candidate.Origin.Coordinate))
	dest := LocationScore(location.DistanceKm(subject.Destination.Coordinate, candidate.Destination.Coordinate))
	dep := TimeScore(DepartureDeltaMinutes(subject.DepartureTimeMs, candidate.DepartureTimeMs))
	return (origin + dest + dep) / 3
}

func clampScore(v float64) float64 {
	return math.Max(0, math.Min(maxScore, v))
}

// README: Pure geographic helpers (great-circle distance, radius checks, display formatting).
package location

import (
	"fmt"
	"math"

	"greenpool/internal/types"
)

const earthRadiusKm = 6371.0

// DistanceKm returns the great-circle distance in kilometres between two
// coordinates using the haversine formula.
func DistanceKm(a, b types.Coordinate) float64 {
	return haversineKm(a.Lat, a.Lng, b.Lat, b.Lng)
}

func haversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	if lat1 == lat2 && lng1 == lng2 {
		return 0
	}

	dLat := degreesToRadians(lat2 - lat1)
	dLng := degreesToRadians(lng2 - lng1)

	rLat1 := degreesToRadians(lat1)
	rLat2 := degreesToRadians(lat2)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	// Rounding can push h slightly outside [0,1] for near-identical or antipodal points.
	h = math.Min(1, math.Max(0, h))

	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// WithinRadius reports whether point lies within radiusKm of center.
func WithinRadius(point, center types.Coordinate, radiusKm float64) bool {
	return DistanceKm(point, center) <= radiusKm
}

// FormatDistance renders a distance for display: metres below 1 km,
// otherwise kilometres with one decimal.
func FormatDistance(km float64) string {
	if km < 1 {
		return fmt.Sprintf("%dm", int(math.Round(km*1000)))
	}
	return fmt.Sprintf("%.1fkm", km)
}

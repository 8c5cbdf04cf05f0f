// README: Environmental impact estimator (fixed coefficients, no learned parameters).
package impact

import (
	"fmt"
	"math"

	"greenpool/internal/modules/routes"
)

// EstimateImpact derives the environmental impact of a trip of distanceKm
// taking durationSeconds at the given traffic level. trafficLevel is
// clamped to [0,1].
func EstimateImpact(distanceKm, durationSeconds, trafficLevel float64) (routes.EnvironmentalImpact, error) {
	if !finiteNonNegative(distanceKm) {
		return routes.EnvironmentalImpact{}, fmt.Errorf("%w: distance %v", ErrInvalidTrafficData, distanceKm)
	}
	if !finiteNonNegative(durationSeconds) {
		return routes.EnvironmentalImpact{}, fmt.Errorf("%w: duration %v", ErrInvalidTrafficData, durationSeconds)
	}
	if math.IsNaN(trafficLevel) {
		return routes.EnvironmentalImpact{}, fmt.Errorf("%w: traffic level is NaN", ErrInvalidTrafficData)
	}
	trafficLevel = math.Min(1, math.Max(0, trafficLevel))

	emissions := distanceKm * avgEmissionsKgPerKm
	return routes.EnvironmentalImpact{
		CarbonEmissionsKg:       emissions,
		FuelSavingsLiters:       distanceKm * avgFuelLitersPerKm * matchEfficiencyGain,
		CarbonOffsetKg:          emissions * carpoolOffsetShare,
		TrafficReductionPercent: math.Min(maxTrafficPercent, trafficLevel*durationSeconds/secondsPerHour*100),
	}, nil
}

// Estimate is EstimateImpact over TrafficData. It returns
// ErrEstimationUnavailable when distance or duration is unknown.
func Estimate(d TrafficData) (routes.EnvironmentalImpact, error) {
	if d.DistanceKm == nil {
		return routes.EnvironmentalImpact{}, fmt.Errorf("%w: distance unknown", ErrEstimationUnavailable)
	}
	if d.DurationSeconds == nil {
		return routes.EnvironmentalImpact{}, fmt.Errorf("%w: duration unknown", ErrEstimationUnavailable)
	}
	return EstimateImpact(*d.DistanceKm, *d.DurationSeconds, d.TrafficLevel)
}

func finiteNonNegative(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

// README: Match pipeline: filter, score, resolve owners, estimate benefits and rank candidates.
package matching

import (
	"cmp"
	"errors"
	"slices"
	"time"

	"go.uber.org/zap"

	"greenpool/internal/modules/impact"
	"greenpool/internal/modules/routes"
	"greenpool/internal/types"
)

// Service runs the match pipeline. It holds no mutable state and is safe
// for concurrent use.
type Service struct {
	logger *zap.Logger
}

func NewService(logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{logger: logger}
}

// FindMatches ranks candidates against subject. A nil traffic lookup
// yields matches without benefit estimates. The result may be empty.
func (s *Service) FindMatches(subject routes.Route, candidates []routes.Route, users map[types.ID]routes.UserProfile, traffic TrafficLookup) []RouteMatch {
	matches := make([]RouteMatch, 0)
	for _, c := range candidates {
		if c.OwnerUserID == subject.OwnerUserID || c.ID == subject.ID {
			continue
		}
		if !c.Preferences.CarpoolPreference || !c.IsActive() {
			continue
		}
		if DepartureDeltaMinutes(subject.DepartureTimeMs, c.DepartureTimeMs) >= MaxDepartureGap.Minutes() {
			continue
		}
		score := MatchScore(subject, c)
		if score < MinMatchScore {
			continue
		}
		owner, ok := users[c.OwnerUserID]
		if !ok {
			s.logger.Warn("skipping candidate",
				zap.String("route_id", string(c.ID)),
				zap.String("owner_user_id", string(c.OwnerUserID)),
				zap.Error(ErrDanglingOwner))
			continue
		}
		matches = append(matches, RouteMatch{
			MatchedRoute:          c,
			MatchedUser:           owner,
			MatchScore:            score,
			EnvironmentalBenefits: s.benefits(c, traffic),
		})
	}

	slices.SortStableFunc(matches, func(a, b RouteMatch) int {
		if c := cmp.Compare(b.MatchScore, a.MatchScore); c != 0 {
			return c
		}
		return cmp.Compare(a.MatchedRoute.ID, b.MatchedRoute.ID)
	})
	return matches
}

func (s *Service) benefits(r routes.Route, traffic TrafficLookup) *routes.EnvironmentalImpact {
	if traffic == nil {
		return nil
	}
	d, err := traffic(r)
	if err != nil {
		s.logger.Warn("traffic lookup failed", zap.String("route_id", string(r.ID)), zap.Error(err))
		return nil
	}
	est, err := impact.Estimate(d)
	if err != nil {
		if !errors.Is(err, impact.ErrEstimationUnavailable) {
			s.logger.Warn("impact estimate failed", zap.String("route_id", string(r.ID)), zap.Error(err))
		}
		return nil
	}
	return &est
}

// Summarize totals the benefits of matches that have an estimate. Traffic
// reduction is a percentage and is averaged instead of summed.
func Summarize(matches []RouteMatch) Summary {
	var sum Summary
	sum.Matches = len(matches)
	for _, m := range matches {
		if m.EnvironmentalBenefits == nil {
			sum.Unavailable++
			continue
		}
		sum.Estimated++
		sum.Total.CarbonEmissionsKg += m.EnvironmentalBenefits.CarbonEmissionsKg
		sum.Total.FuelSavingsLiters += m.EnvironmentalBenefits.FuelSavingsLiters
		sum.Total.CarbonOffsetKg += m.EnvironmentalBenefits.CarbonOffsetKg
		sum.Total.TrafficReductionPercent += m.EnvironmentalBenefits.TrafficReductionPercent
	}
	if sum.Estimated > 0 {
		sum.Total.TrafficReductionPercent /= float64(sum.Estimated)
	}
	return sum
}

// elapsedMs is used for pipeline timing logs.
func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}

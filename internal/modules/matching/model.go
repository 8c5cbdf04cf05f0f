// README: Match results, feed updates and matching thresholds.
package matching

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"greenpool/internal/modules/impact"
	"greenpool/internal/modules/routes"
	"greenpool/internal/types"
)

var (
	// ErrDanglingOwner is logged when a candidate's owner is missing from
	// the user directory. It is never returned by FindMatches.
	ErrDanglingOwner       = errors.New("dangling owner reference")
	ErrSubscriptionFailure = errors.New("subscription failure")
	ErrComputeFailed       = errors.New("match computation failed")
)

const (
	// MinMatchScore is the hard cutoff below which a candidate is dropped.
	MinMatchScore = 50.0
	// MaxDepartureGap is where the time score reaches zero. Candidates at or
	// beyond it share no departure window with the subject.
	MaxDepartureGap = 30 * time.Minute

	// perfectMatchRadiusKm is the distance at which the location score reaches zero.
	perfectMatchRadiusKm = 0.5
	maxScore             = 100.0
)

// RouteMatch is one compatible candidate for a subject route.
// EnvironmentalBenefits is nil when the estimate was unavailable.
type RouteMatch struct {
	MatchedRoute          routes.Route                `json:"matchedRoute"`
	MatchedUser           routes.UserProfile          `json:"matchedUser"`
	MatchScore            float64                     `json:"matchScore"`
	EnvironmentalBenefits *routes.EnvironmentalImpact `json:"environmentalBenefits"`
}

// BenefitsAvailable reports whether an impact estimate was produced.
func (m RouteMatch) BenefitsAvailable() bool {
	return m.EnvironmentalBenefits != nil
}

// TrafficLookup resolves routing inputs for a candidate route.
type TrafficLookup func(r routes.Route) (impact.TrafficData, error)

// LookupFrom binds a supplier to ctx for use inside FindMatches.
func LookupFrom(ctx context.Context, s impact.Supplier) TrafficLookup {
	if s == nil {
		return nil
	}
	return func(r routes.Route) (impact.TrafficData, error) {
		return s.TrafficData(ctx, r)
	}
}

// Summary aggregates the benefits of a match list.
type Summary struct {
	Matches     int                        `json:"matches"`
	Estimated   int                        `json:"estimated"`
	Unavailable int                        `json:"unavailable"`
	Total       routes.EnvironmentalImpact `json:"total"`
}

// State is the lifecycle state of a feed subscription.
type State string

const (
	StateIdle       State = "IDLE"
	StateSubscribed State = "SUBSCRIBED"
	StateComputing  State = "COMPUTING"
	StateError      State = "ERROR"
)

// Update is one delivery to a feed subscriber. Err is set on failure, in
// which case Matches is nil.
type Update struct {
	SubjectRouteID types.ID     `json:"subjectRouteId"`
	Matches        []RouteMatch `json:"matches"`
	Err            error        `json:"-"`
	At             time.Time    `json:"at"`
}

// MarshalJSON adds an explicit availability flag so clients never read a
// missing estimate as zero.
func (m RouteMatch) MarshalJSON() ([]byte, error) {
	type plain RouteMatch
	return json.Marshal(struct {
		plain
		EnvironmentalBenefitsAvailable bool `json:"environmentalBenefitsAvailable"`
	}{plain: plain(m), EnvironmentalBenefitsAvailable: m.BenefitsAvailable()})
}

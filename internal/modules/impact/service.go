// README: Supplier abstraction over routing backends, with a fixed stand-in and a Redis read-through cache.
package impact

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"greenpool/internal/modules/routes"
)

// Supplier resolves distance, duration and traffic for a route.
type Supplier interface {
	TrafficData(ctx context.Context, r routes.Route) (TrafficData, error)
}

// SupplierFunc adapts a function to Supplier.
type SupplierFunc func(ctx context.Context, r routes.Route) (TrafficData, error)

func (f SupplierFunc) TrafficData(ctx context.Context, r routes.Route) (TrafficData, error) {
	return f(ctx, r)
}

// FixedSupplier returns the same data for every route. It stands in for a
// routing backend in local runs and tests.
type FixedSupplier struct {
	Data TrafficData
}

// DefaultFixedSupplier uses a 10 km, 20 minute trip at 50% congestion.
func DefaultFixedSupplier() FixedSupplier {
	return FixedSupplier{Data: Known(10, 1200, 0.5)}
}

func (s FixedSupplier) TrafficData(_ context.Context, _ routes.Route) (TrafficData, error) {
	return s.Data, nil
}

// ForRoute estimates the impact of a single route using supplier.
func ForRoute(ctx context.Context, supplier Supplier, r routes.Route) (routes.EnvironmentalImpact, error) {
	d, err := supplier.TrafficData(ctx, r)
	if err != nil {
		return routes.EnvironmentalImpact{}, fmt.Errorf("%w: %v", ErrEstimationUnavailable, err)
	}
	return Estimate(d)
}

// CachedSupplier reads through a Store before asking next.
type CachedSupplier struct {
	store  *Store
	next   Supplier
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedSupplier(store *Store, next Supplier, ttl time.Duration, logger *zap.Logger) *CachedSupplier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedSupplier{store: store, next: next, ttl: ttl, logger: logger}
}

func (s *CachedSupplier) TrafficData(ctx context.Context, r routes.Route) (TrafficData, error) {
	if d, ok, err := s.store.Get(ctx, r); err != nil {
		s.logger.Warn("traffic cache read failed", zap.String("route_id", string(r.ID)), zap.Error(err))
	} else if ok {
		return d, nil
	}

	d, err := s.next.TrafficData(ctx, r)
	if err != nil {
		return TrafficData{}, err
	}
	// Partial results are not cached so a later lookup can fill them in.
	if d.DistanceKm != nil && d.DurationSeconds != nil {
		if err := s.store.Put(ctx, r, d, s.ttl); err != nil {
			s.logger.Warn("traffic cache write failed", zap.String("route_id", string(r.ID)), zap.Error(err))
		}
	}
	return d, nil
}

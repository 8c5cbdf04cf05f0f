// README: Traffic data cache backed by Redis, keyed by origin/destination geohash cells.
package impact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mmcloughlin/geohash"
	"github.com/redis/go-redis/v9"

	"greenpool/internal/modules/routes"
)

const (
	trafficKeyPrefix = "impact:traffic:%s:%s:%s"
	// cellPrecision 7 is a ~150m cell, well inside the 0.5km match radius.
	cellPrecision = 7
)

type Store struct {
	redis *redis.Client
}

func NewStore(redis *redis.Client) *Store {
	return &Store{redis: redis}
}

// Get returns cached data for the route's cell pair, and whether it was present.
func (s *Store) Get(ctx context.Context, r routes.Route) (TrafficData, bool, error) {
	val, err := s.redis.Get(ctx, trafficKey(r)).Bytes()
	if errors.Is(err, redis.Nil) {
		return TrafficData{}, false, nil
	}
	if err != nil {
		return TrafficData{}, false, err
	}
	var c cachedTraffic
	if err := json.Unmarshal(val, &c); err != nil {
		return TrafficData{}, false, fmt.Errorf("decoding cached traffic: %w", err)
	}
	return TrafficData{
		DistanceKm:      c.DistanceKm,
		DurationSeconds: c.DurationSeconds,
		TrafficLevel:    c.TrafficLevel,
	}, true, nil
}

func (s *Store) Put(ctx context.Context, r routes.Route, d TrafficData, ttl time.Duration) error {
	b, err := json.Marshal(cachedTraffic{
		DistanceKm:      d.DistanceKm,
		DurationSeconds: d.DurationSeconds,
		TrafficLevel:    d.TrafficLevel,
		FetchedAt:       time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, trafficKey(r), b, ttl).Err()
}

func trafficKey(r routes.Route) string {
	origin := geohash.EncodeWithPrecision(r.Origin.Lat, r.Origin.Lng, cellPrecision)
	dest := geohash.EncodeWithPrecision(r.Destination.Lat, r.Destination.Lng, cellPrecision)
	return fmt.Sprintf(trafficKeyPrefix, r.Preferences.TransportMode, origin, dest)
}

// README: Shared value types (IDs, coordinates) used across modules.
package types

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidCoordinate is returned when a latitude or longitude is out of range.
var ErrInvalidCoordinate = errors.New("invalid coordinate")

type ID string

// Coordinate is a point in decimal degrees. Build it with NewCoordinate so
// out-of-range values are rejected before they reach any computation.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func NewCoordinate(lat, lng float64) (Coordinate, error) {
	c := Coordinate{Lat: lat, Lng: lng}
	if err := c.Validate(); err != nil {
		return Coordinate{}, err
	}
	return c, nil
}

// Validate reports ErrInvalidCoordinate for NaN, infinite or out-of-range values.
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Lat) || math.IsInf(c.Lat, 0) || c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("%w: latitude %v", ErrInvalidCoordinate, c.Lat)
	}
	if math.IsNaN(c.Lng) || math.IsInf(c.Lng, 0) || c.Lng < -180 || c.Lng > 180 {
		return fmt.Errorf("%w: longitude %v", ErrInvalidCoordinate, c.Lng)
	}
	return nil
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lng)
}

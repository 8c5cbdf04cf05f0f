package types

import (
	"errors"
	"math"
	"testing"
)

func TestNewCoordinate(t *testing.T) {
	tests := []struct {
		name    string
		lat     float64
		lng     float64
		wantErr bool
	}{
		{name: "origin", lat: 0, lng: 0},
		{name: "poles and antimeridian", lat: -90, lng: 180},
		{name: "new york", lat: 40.7128, lng: -74.0060},
		{name: "latitude too high", lat: 90.0001, lng: 0, wantErr: true},
		{name: "latitude too low", lat: -91, lng: 0, wantErr: true},
		{name: "longitude too high", lat: 0, lng: 180.5, wantErr: true},
		{name: "nan latitude", lat: math.NaN(), lng: 0, wantErr: true},
		{name: "infinite longitude", lat: 0, lng: math.Inf(-1), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewCoordinate(tt.lat, tt.lng)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidCoordinate) {
					t.Fatalf("expected ErrInvalidCoordinate, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if c.Lat != tt.lat || c.Lng != tt.lng {
				t.Errorf("got %v, want %v,%v", c, tt.lat, tt.lng)
			}
		})
	}
}

func TestCoordinateString(t *testing.T) {
	c := Coordinate{Lat: 40.1, Lng: -74.1}
	if got := c.String(); got != "40.100000,-74.100000" {
		t.Errorf("String() = %q", got)
	}
}

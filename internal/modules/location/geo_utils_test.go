package location

import (
	"math"
	"testing"

	"greenpool/internal/types"
)

func TestDistanceKm_KnownDistances(t *testing.T) {
	tests := []struct {
		name      string
		a         types.Coordinate
		b         types.Coordinate
		wantKm    float64
		tolerance float64
	}{
		{
			name:      "same point",
			a:         types.Coordinate{Lat: 25.033, Lng: 121.565},
			b:         types.Coordinate{Lat: 25.033, Lng: 121.565},
			wantKm:    0,
			tolerance: 0,
		},
		{
			name:      "Taipei 101 to Taipei Main Station (~5km)",
			a:         types.Coordinate{Lat: 25.0340, Lng: 121.5645},
			b:         types.Coordinate{Lat: 25.0478, Lng: 121.5170},
			wantKm:    5.0,
			tolerance: 0.5,
		},
		{
			name:      "New York to Los Angeles (~3944km)",
			a:         types.Coordinate{Lat: 40.7128, Lng: -74.0060},
			b:         types.Coordinate{Lat: 34.0522, Lng: -118.2437},
			wantKm:    3944,
			tolerance: 50,
		},
		{
			name:      "one degree of latitude (~111km)",
			a:         types.Coordinate{Lat: 0, Lng: 0},
			b:         types.Coordinate{Lat: 1, Lng: 0},
			wantKm:    111.19,
			tolerance: 0.1,
		},
		{
			name:      "antipodal points",
			a:         types.Coordinate{Lat: 0, Lng: 0},
			b:         types.Coordinate{Lat: 0, Lng: 180},
			wantKm:    math.Pi * earthRadiusKm,
			tolerance: 0.001,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DistanceKm(tt.a, tt.b)
			if math.IsNaN(got) {
				t.Fatalf("DistanceKm() returned NaN")
			}
			if math.Abs(got-tt.wantKm) > tt.tolerance {
				t.Errorf("DistanceKm() = %f, want %f (±%f)", got, tt.wantKm, tt.tolerance)
			}
		})
	}
}

func TestDistanceKm_Symmetry(t *testing.T) {
	points := []types.Coordinate{
		{Lat: 25.0, Lng: 121.0},
		{Lat: 26.0, Lng: 122.0},
		{Lat: -33.8688, Lng: 151.2093},
		{Lat: 40.0, Lng: -74.0},
		{Lat: 89.9, Lng: -179.9},
	}
	for _, a := range points {
		for _, b := range points {
			if d1, d2 := DistanceKm(a, b), DistanceKm(b, a); d1 != d2 {
				t.Errorf("not symmetric for %v/%v: %f vs %f", a, b, d1, d2)
			}
		}
	}
}

func TestDistanceKm_TriangleInequality(t *testing.T) {
	a := types.Coordinate{Lat: 40.0, Lng: -74.0}
	b := types.Coordinate{Lat: 40.1, Lng: -74.1}
	c := types.Coordinate{Lat: 41.0, Lng: -73.5}

	if DistanceKm(a, c) > DistanceKm(a, b)+DistanceKm(b, c)+1e-9 {
		t.Errorf("triangle inequality violated")
	}
}

func TestDistanceKm_NearIdenticalPointsNoNaN(t *testing.T) {
	a := types.Coordinate{Lat: 40.0, Lng: -74.0}
	b := types.Coordinate{Lat: 40.0 + 1e-12, Lng: -74.0}
	got := DistanceKm(a, b)
	if math.IsNaN(got) || got < 0 {
		t.Fatalf("unexpected distance %f", got)
	}
}

func TestWithinRadius(t *testing.T) {
	center := types.Coordinate{Lat: 40.0, Lng: -74.0}
	near := types.Coordinate{Lat: 40.001, Lng: -74.0}
	far := types.Coordinate{Lat: 40.1, Lng: -74.0}

	if !WithinRadius(near, center, 0.5) {
		t.Errorf("expected near point within 0.5km")
	}
	if WithinRadius(far, center, 0.5) {
		t.Errorf("expected far point outside 0.5km")
	}
}

func TestFormatDistance(t *testing.T) {
	tests := []struct {
		km   float64
		want string
	}{
		{km: 0, want: "0m"},
		{km: 0.85, want: "850m"},
		{km: 1, want: "1.0km"},
		{km: 12.345, want: "12.3km"},
	}
	for _, tt := range tests {
		if got := FormatDistance(tt.km); got != tt.want {
			t.Errorf("FormatDistance(%v) = %q, want %q", tt.km, got, tt.want)
		}
	}
}

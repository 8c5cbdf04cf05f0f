// README: Firestore document decoding tests; emulator tests need FIRESTORE_EMULATOR_HOST.
package routes

import (
	"context"
	"os"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"greenpool/internal/types"
)

func TestRouteFromDocument(t *testing.T) {
	doc := firestoreRoute{
		UserID:        "u1",
		Origin:        firestoreLocation{Lat: 40.0, Lng: -74.0, Address: "A", PlaceID: "p1"},
		Destination:   firestoreLocation{Lat: 40.1, Lng: -74.1, Address: "B"},
		DepartureTime: 1.7e12,
		Status:        "active",
		Preferences:   firestorePreferences{MaxDetour: 15, TransportMode: "driving", CarpoolPreference: true},
		EnvironmentalImpact: firestoreImpact{
			CarbonEmissions: 2, FuelSavings: 0.16, CarbonOffset: 0.6, TrafficReduction: 16.67,
		},
	}

	r, err := routeFromDocument("route-1", doc)
	require.NoError(t, err)
	assert.Equal(t, types.ID("route-1"), r.ID)
	assert.Equal(t, types.ID("u1"), r.OwnerUserID)
	assert.Equal(t, "p1", r.Origin.PlaceID)
	assert.Equal(t, int64(1.7e12), r.DepartureTimeMs)
	assert.Equal(t, ModeDriving, r.Preferences.TransportMode)
	assert.InDelta(t, 16.67, r.Impact.TrafficReductionPercent, 1e-9)
}

func TestRouteFromDocument_RejectsInvalid(t *testing.T) {
	doc := firestoreRoute{
		UserID:      "u1",
		Origin:      firestoreLocation{Lat: 140.0, Lng: -74.0},
		Destination: firestoreLocation{Lat: 40.1, Lng: -74.1},
		Status:      "active",
		Preferences: firestorePreferences{TransportMode: "driving"},
	}
	_, err := routeFromDocument("bad", doc)
	assert.ErrorIs(t, err, types.ErrInvalidCoordinate)

	doc.Origin.Lat = 40
	doc.Status = "archived"
	_, err = routeFromDocument("bad", doc)
	assert.ErrorIs(t, err, ErrInvalidRoute)
}

func TestUserFromDocument(t *testing.T) {
	d := firestoreUser{Email: "a@example.com", DisplayName: "Ana", Preferences: firestoreSharing{ShareEmail: true}}

	u := userFromDocument("u1", d, false)
	assert.Nil(t, u.Sharing)

	u = userFromDocument("u1", d, true)
	require.NotNil(t, u.Sharing)
	assert.True(t, u.Sharing.ShareEmail)
	assert.Equal(t, "Ana", u.DisplayName)
}

// Runs against the Firestore emulator only.
func TestFirestoreStore_WatchEmulator(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set; skipping emulator test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	client, err := firestore.NewClient(ctx, "greenpool-test")
	require.NoError(t, err)
	defer client.Close()

	store := NewFirestoreStore(client, nil)
	id := "route_test_" + time.Now().Format("150405.000000")

	ch := store.Watch(ctx)
	first := <-ch
	require.NoError(t, first.Err)

	_, err = client.Collection(routesCollection).Doc(id).Set(ctx, map[string]any{
		"userId":        "emulator-user",
		"origin":        map[string]any{"lat": 40.0, "lng": -74.0, "address": "A"},
		"destination":   map[string]any{"lat": 40.1, "lng": -74.1, "address": "B"},
		"departureTime": time.Now().UnixMilli(),
		"status":        "active",
		"preferences":   map[string]any{"maxDetour": 10, "transportMode": "driving", "carpoolPreference": true},
	})
	require.NoError(t, err)
	defer client.Collection(routesCollection).Doc(id).Delete(context.Background())

	for ev := range ch {
		require.NoError(t, ev.Err)
		if _, ok := ev.Snapshot.FindRoute(types.ID(id)); ok {
			return
		}
	}
	t.Fatal("watch closed before the new route was observed")
}

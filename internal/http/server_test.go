// README: HTTP API tests over the memory store, including the SSE stream.
package http_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"greenpool/internal/events"
	httptransport "greenpool/internal/http"
	"greenpool/internal/modules/impact"
	"greenpool/internal/modules/matching"
	"greenpool/internal/modules/routes"
	"greenpool/internal/types"
)

var departure = time.Date(2026, 7, 1, 7, 45, 0, 0, time.UTC).UnixMilli()

func testRoute(id, owner string, lat, lng float64) routes.Route {
	return routes.Route{
		ID:              types.ID(id),
		OwnerUserID:     types.ID(owner),
		Origin:          routes.Location{Coordinate: types.Coordinate{Lat: lat, Lng: lng}, Address: "origin"},
		Destination:     routes.Location{Coordinate: types.Coordinate{Lat: lat + 0.1, Lng: lng - 0.1}, Address: "destination"},
		DepartureTimeMs: departure,
		Status:          routes.StatusActive,
		Preferences:     routes.Preferences{TransportMode: routes.ModeDriving, CarpoolPreference: true},
	}
}

type publishedUpdates chan matching.Update

func (p publishedUpdates) Publish(_ context.Context, u matching.Update) error {
	p <- u
	return nil
}

func newTestServer(t *testing.T, withWatcher bool) (*routes.MemoryStore, http.Handler, publishedUpdates) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := routes.NewMemoryStore()
	store.PutUser(routes.UserProfile{UserID: "bob", DisplayName: "Bob"})
	require.NoError(t, store.PutRoute(testRoute("subject", "alice", 40, -74)))
	require.NoError(t, store.PutRoute(testRoute("route-a", "bob", 40.0001, -74.0001)))

	supplier := impact.DefaultFixedSupplier()
	svc := matching.NewService(nil)
	feed := matching.NewFeed(store, store, supplier, svc, nil)

	deps := httptransport.ServerDeps{Feed: feed, Matching: svc, Supplier: supplier}
	pub := make(publishedUpdates, 8)
	if withWatcher {
		w := events.NewWatcher(feed, pub, nil)
		t.Cleanup(w.Close)
		deps.Watcher = w
	}
	return store, httptransport.NewServer(deps).Routes(), pub
}

func doRequest(h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

type matchesBody struct {
	SubjectRouteID string `json:"subjectRouteId"`
	Matches        []struct {
		MatchedRoute struct {
			ID string `json:"id"`
		} `json:"matchedRoute"`
		MatchScore                     float64          `json:"matchScore"`
		EnvironmentalBenefits          *json.RawMessage `json:"environmentalBenefits"`
		EnvironmentalBenefitsAvailable bool             `json:"environmentalBenefitsAvailable"`
	} `json:"matches"`
	Summary matching.Summary `json:"summary"`
}

func TestHealth(t *testing.T) {
	_, h, _ := newTestServer(t, false)
	w := doRequest(h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
}

func TestGetMatches(t *testing.T) {
	_, h, _ := newTestServer(t, false)

	w := doRequest(h, http.MethodGet, "/api/routes/subject/matches", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body matchesBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Matches, 1)
	assert.Equal(t, "route-a", body.Matches[0].MatchedRoute.ID)
	assert.True(t, body.Matches[0].EnvironmentalBenefitsAvailable)
	assert.Equal(t, 1, body.Summary.Estimated)
	assert.InDelta(t, 2.0, body.Summary.Total.CarbonEmissionsKg, 1e-9)
}

func TestGetMatches_Errors(t *testing.T) {
	_, h, _ := newTestServer(t, false)

	assert.Equal(t, http.StatusNotFound, doRequest(h, http.MethodGet, "/api/routes/nope/matches", nil).Code)
	assert.Equal(t, http.StatusBadRequest, doRequest(h, http.MethodGet, "/api/routes/bad%20id/matches", nil).Code)
}

func TestFindMatches(t *testing.T) {
	_, h, _ := newTestServer(t, false)
	late := testRoute("route-late", "carol", 40.0001, -74.0001)
	late.DepartureTimeMs = departure + (45 * time.Minute).Milliseconds()
	optOut := testRoute("route-optout", "carol", 40.0001, -74.0001)
	optOut.Preferences.CarpoolPreference = false
	ten := 10.0

	w := doRequest(h, http.MethodPost, "/api/matches", map[string]any{
		"subject":    testRoute("subject", "alice", 40, -74),
		"candidates": []routes.Route{testRoute("route-a", "bob", 40.0001, -74.0001), testRoute("route-b", "carol", 40, -74), late, optOut},
		"users":      []routes.UserProfile{{UserID: "bob"}, {UserID: "carol"}},
		"traffic": map[string]any{
			"route-a": map[string]any{"distanceKm": ten, "durationSeconds": 1200, "trafficLevel": 0.5},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body matchesBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Matches, 2)
	assert.Equal(t, "route-b", body.Matches[0].MatchedRoute.ID)
	assert.False(t, body.Matches[0].EnvironmentalBenefitsAvailable, "no traffic supplied for route-b")
	assert.Equal(t, "route-a", body.Matches[1].MatchedRoute.ID)
	assert.True(t, body.Matches[1].EnvironmentalBenefitsAvailable)
	assert.Equal(t, 1, body.Summary.Unavailable)
}

func TestFindMatches_RejectsInvalidRoute(t *testing.T) {
	_, h, _ := newTestServer(t, false)
	bad := testRoute("subject", "alice", 95, -74)
	w := doRequest(h, http.MethodPost, "/api/matches", map[string]any{"subject": bad})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(h, http.MethodPost, "/api/matches", "not an object")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEstimateImpact(t *testing.T) {
	_, h, _ := newTestServer(t, false)

	w := doRequest(h, http.MethodPost, "/api/impact", map[string]any{"distanceKm": 10, "durationSeconds": 1200, "trafficLevel": 0.5})
	require.Equal(t, http.StatusOK, w.Code)
	var est routes.EnvironmentalImpact
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &est))
	assert.InDelta(t, 0.16, est.FuelSavingsLiters, 1e-9)
	assert.InDelta(t, 16.6667, est.TrafficReductionPercent, 1e-4)

	w = doRequest(h, http.MethodPost, "/api/impact", map[string]any{"distanceKm": 10})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = doRequest(h, http.MethodPost, "/api/impact", map[string]any{"distanceKm": -1, "durationSeconds": 5})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWatch(t *testing.T) {
	_, h, pub := newTestServer(t, true)

	assert.Equal(t, http.StatusAccepted, doRequest(h, http.MethodPut, "/api/routes/subject/watch", nil).Code)
	assert.Equal(t, http.StatusConflict, doRequest(h, http.MethodPut, "/api/routes/subject/watch", nil).Code)

	select {
	case u := <-pub:
		assert.Equal(t, types.ID("subject"), u.SubjectRouteID)
		assert.Len(t, u.Matches, 1)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not publish")
	}

	assert.Equal(t, http.StatusOK, doRequest(h, http.MethodDelete, "/api/routes/subject/watch", nil).Code)
	assert.Equal(t, http.StatusNotFound, doRequest(h, http.MethodDelete, "/api/routes/subject/watch", nil).Code)
}

func TestWatch_Disabled(t *testing.T) {
	_, h, _ := newTestServer(t, false)
	assert.Equal(t, http.StatusServiceUnavailable, doRequest(h, http.MethodPut, "/api/routes/subject/watch", nil).Code)
}

func TestStreamMatches(t *testing.T) {
	store, h, _ := newTestServer(t, false)
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/routes/subject/matches/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	events := make(chan matchesBody, 4)
	go func() {
		defer close(events)
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			line := sc.Text()
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			var body matchesBody
			if json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(line, "data:"))), &body) == nil {
				events <- body
			}
		}
	}()

	recv := func() matchesBody {
		select {
		case b, ok := <-events:
			require.True(t, ok, "stream closed")
			return b
		case <-time.After(2 * time.Second):
			t.Fatal("no event")
			return matchesBody{}
		}
	}

	first := recv()
	assert.Equal(t, "subject", first.SubjectRouteID)
	assert.Len(t, first.Matches, 1)

	require.NoError(t, store.PutRoute(testRoute("route-b", "bob", 40, -74)))
	deadline := time.After(2 * time.Second)
	for {
		select {
		case b, ok := <-events:
			require.True(t, ok, "stream closed")
			if len(b.Matches) == 2 {
				cancel()
				assert.Eventually(t, func() bool { return store.Watchers() == 0 }, 2*time.Second, 10*time.Millisecond)
				return
			}
		case <-deadline:
			t.Fatal("stream did not deliver the new candidate")
		}
	}
}

// README: Bench cases: match scenarios, impact reference values, feed behaviour, Redis cache, HTTP API and throughput.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"greenpool/internal/modules/impact"
	"greenpool/internal/modules/matching"
	"greenpool/internal/modules/routes"
	"greenpool/internal/types"
)

const (
	StatusPass    = "PASS"
	StatusFail    = "FAIL"
	StatusPending = "PENDING"
	StatusSkip    = "SKIP"
)

type Runner struct {
	cfg     Config
	httpc   *http.Client
	redis   *redis.Client
	service *matching.Service
}

type Result struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name  string
	Focus string
	Run   func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:     cfg,
		httpc:   &http.Client{Timeout: 10 * time.Second},
		service: matching.NewService(nil),
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))

	for _, tc := range tests {
		res := tc.Run(ctx, r)
		res.Name = tc.Name
		results = append(results, res)
		fmt.Printf("%-7s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}

	if r.redis != nil {
		_ = r.redis.Close()
	}
	return results
}

var benchDeparture = time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)

func benchRoute(id, owner string, oLat, oLng, dLat, dLng float64, offset time.Duration) routes.Route {
	return routes.Route{
		ID:              types.ID(id),
		OwnerUserID:     types.ID(owner),
		Origin:          routes.Location{Coordinate: types.Coordinate{Lat: oLat, Lng: oLng}},
		Destination:     routes.Location{Coordinate: types.Coordinate{Lat: dLat, Lng: dLng}},
		DepartureTimeMs: benchDeparture.Add(offset).UnixMilli(),
		Status:          routes.StatusActive,
		Preferences:     routes.Preferences{TransportMode: routes.ModeDriving, CarpoolPreference: true},
	}
}

func subject() routes.Route {
	return benchRoute("subject", "alice", 40.0, -74.0, 40.1, -74.1, 0)
}

func candidate() routes.Route {
	return benchRoute("cand-a", "bob", 40.0001, -74.0001, 40.0999, -74.1001, 5*time.Minute)
}

func directory(ids ...string) map[types.ID]routes.UserProfile {
	out := make(map[types.ID]routes.UserProfile, len(ids))
	for _, id := range ids {
		out[types.ID(id)] = routes.UserProfile{UserID: types.ID(id)}
	}
	return out
}

func fixedLookup() matching.TrafficLookup {
	return matching.LookupFrom(context.Background(), impact.DefaultFixedSupplier())
}

func (r *Runner) cases() []TestCase {
	base := r.cfg.BaseURL
	return []TestCase{
		pipelineCase("Match: nearby candidate scores above 90", func(svc *matching.Service) error {
			got := svc.FindMatches(subject(), []routes.Route{candidate()}, directory("bob"), fixedLookup())
			if len(got) != 1 || got[0].MatchScore <= 90 {
				return fmt.Errorf("got %d matches", len(got))
			}
			return nil
		}),
		pipelineCase("Match: carpool opt-out excluded", func(svc *matching.Service) error {
			c := candidate()
			c.Preferences.CarpoolPreference = false
			if got := svc.FindMatches(subject(), []routes.Route{c}, directory("bob"), nil); len(got) != 0 {
				return fmt.Errorf("got %d matches", len(got))
			}
			return nil
		}),
		pipelineCase("Match: departure 45 minutes later excluded", func(svc *matching.Service) error {
			c := candidate()
			c.DepartureTimeMs = benchDeparture.Add(45 * time.Minute).UnixMilli()
			if got := svc.FindMatches(subject(), []routes.Route{c}, directory("bob"), nil); len(got) != 0 {
				return fmt.Errorf("got %d matches", len(got))
			}
			return nil
		}),
		pipelineCase("Match: dangling owner dropped", func(svc *matching.Service) error {
			if got := svc.FindMatches(subject(), []routes.Route{candidate()}, directory(), nil); len(got) != 0 {
				return fmt.Errorf("got %d matches", len(got))
			}
			return nil
		}),
		pipelineCase("Match: deterministic ordering", func(svc *matching.Service) error {
			pool, dir := randomPool(200, 42)
			first := svc.FindMatches(subject(), pool, dir, nil)
			rng := rand.New(rand.NewSource(3))
			for i := 0; i < 10; i++ {
				rng.Shuffle(len(pool), func(a, b int) { pool[a], pool[b] = pool[b], pool[a] })
				again := svc.FindMatches(subject(), pool, dir, nil)
				if len(again) != len(first) {
					return fmt.Errorf("run %d: %d vs %d matches", i, len(again), len(first))
				}
				for j := range again {
					if again[j].MatchedRoute.ID != first[j].MatchedRoute.ID {
						return fmt.Errorf("run %d: position %d differs", i, j)
					}
				}
			}
			return nil
		}),
		pipelineCase("Match: never self or below threshold", func(svc *matching.Service) error {
			pool, dir := randomPool(500, 7)
			for _, m := range svc.FindMatches(subject(), pool, dir, nil) {
				if m.MatchScore < matching.MinMatchScore || m.MatchedRoute.OwnerUserID == subject().OwnerUserID {
					return fmt.Errorf("bad match %s score=%.2f", m.MatchedRoute.ID, m.MatchScore)
				}
			}
			return nil
		}),
		{
			Name:  "Impact: reference trip 10km/1200s/0.5",
			Focus: "Fixed coefficients",
			Run: func(ctx context.Context, r *Runner) Result {
				est, err := impact.EstimateImpact(10, 1200, 0.5)
				if err != nil {
					return Result{Status: StatusFail, Note: err.Error()}
				}
				want := routes.EnvironmentalImpact{CarbonEmissionsKg: 2, FuelSavingsLiters: 0.16, CarbonOffsetKg: 0.6, TrafficReductionPercent: 100.0 / 6}
				if !near(est.CarbonEmissionsKg, want.CarbonEmissionsKg) || !near(est.FuelSavingsLiters, want.FuelSavingsLiters) ||
					!near(est.CarbonOffsetKg, want.CarbonOffsetKg) || !near(est.TrafficReductionPercent, want.TrafficReductionPercent) {
					return Result{Status: StatusFail, Note: fmt.Sprintf("%+v", est)}
				}
				return Result{Status: StatusPass}
			},
		},
		{
			Name:  "Impact: missing inputs unavailable",
			Focus: "ESTIMATION_UNAVAILABLE",
			Run: func(ctx context.Context, r *Runner) Result {
				d := 10.0
				_, err := impact.Estimate(impact.TrafficData{DistanceKm: &d})
				if !errors.Is(err, impact.ErrEstimationUnavailable) {
					return Result{Status: StatusFail, Note: fmt.Sprintf("err=%v", err)}
				}
				return Result{Status: StatusPass}
			},
		},
		{
			Name:  "Feed: update on change, release on unsubscribe",
			Focus: "Reactive wrapper",
			Run:   feedLifecycle,
		},
		{
			Name:  "Cache: Redis reachable",
			Focus: "Traffic cache backend",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.redis == nil {
					return Result{Status: StatusSkip, Note: "redis not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.redis.Ping(ctx).Err(); err != nil {
					return Result{Status: StatusFail, Note: err.Error()}
				}
				return Result{Status: StatusPass}
			},
		},
		{
			Name:  "Cache: read-through hits",
			Focus: "Traffic cache keys",
			Run:   cacheReadThrough,
		},
		httpCaseMethod("API: health", http.MethodGet, base, "/health", nil, []int{200}),
		httpCaseMethod("API: impact estimate", http.MethodPost, base, "/api/impact", map[string]any{
			"distanceKm": 10, "durationSeconds": 1200, "trafficLevel": 0.5,
		}, []int{200}),
		httpCaseMethod("API: impact missing inputs -> 422", http.MethodPost, base, "/api/impact", map[string]any{
			"distanceKm": 10,
		}, []int{422}),
		httpCaseMethod("API: stateless match", http.MethodPost, base, "/api/matches", map[string]any{
			"subject":    subject(),
			"candidates": []routes.Route{candidate()},
			"users":      []routes.UserProfile{{UserID: "bob"}},
		}, []int{200}),
		httpCaseMethod("API: invalid route id -> 400", http.MethodGet, base, "/api/routes/bad$id/matches", nil, []int{400}),
		{
			Name:  "Perf: pipeline throughput",
			Focus: "Concurrent FindMatches over a large pool",
			Run:   pipelineLoad,
		},
		{
			Name:  "Perf: stateless match API throughput",
			Focus: "POST /api/matches",
			Run: func(ctx context.Context, r *Runner) Result {
				if base == "" {
					return Result{Status: StatusSkip, Note: "base-url not set"}
				}
				pool, _ := randomPool(50, 11)
				return perfLoad(ctx, r, base+"/api/matches", map[string]any{
					"subject":    subject(),
					"candidates": pool,
					"users":      []routes.UserProfile{{UserID: "bob"}, {UserID: "carol"}},
				})
			},
		},
	}
}

func pipelineCase(name string, check func(svc *matching.Service) error) TestCase {
	return TestCase{
		Name:  name,
		Focus: "Pipeline",
		Run: func(ctx context.Context, r *Runner) Result {
			start := time.Now()
			if err := check(r.service); err != nil {
				return Result{Status: StatusFail, Latency: time.Since(start), Note: err.Error()}
			}
			return Result{Status: StatusPass, Latency: time.Since(start)}
		},
	}
}

// randomPool builds candidates scattered around the subject's endpoints.
func randomPool(n int, seed int64) ([]routes.Route, map[types.ID]routes.UserProfile) {
	rng := rand.New(rand.NewSource(seed))
	owners := []string{"alice", "bob", "carol"}
	pool := make([]routes.Route, 0, n)
	for i := 0; i < n; i++ {
		pool = append(pool, benchRoute(
			fmt.Sprintf("cand-%04d", i), owners[i%len(owners)],
			40+rng.Float64()*0.005, -74-rng.Float64()*0.005,
			40.1+rng.Float64()*0.005, -74.1-rng.Float64()*0.005,
			time.Duration(rng.Intn(35))*time.Minute))
	}
	return pool, directory(owners...)
}

func near(a, b float64) bool {
	d := a - b
	return d < 1e-9 && d > -1e-9
}

func feedLifecycle(ctx context.Context, r *Runner) Result {
	store := routes.NewMemoryStore()
	store.PutUser(routes.UserProfile{UserID: "bob"})
	if err := store.PutRoute(subject()); err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	feed := matching.NewFeed(store, store, impact.DefaultFixedSupplier(), r.service, nil)

	updates := make(chan matching.Update, 8)
	start := time.Now()
	sub, err := feed.Subscribe(ctx, "subject", func(u matching.Update) { updates <- u })
	if err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	defer sub.Unsubscribe()

	wait := func(want int) error {
		deadline := time.After(2 * time.Second)
		for {
			select {
			case u := <-updates:
				if u.Err != nil {
					return u.Err
				}
				if len(u.Matches) == want {
					return nil
				}
			case <-deadline:
				return fmt.Errorf("no update with %d matches", want)
			}
		}
	}
	if err := wait(0); err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	if err := store.PutRoute(candidate()); err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	if err := wait(1); err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	latency := time.Since(start)

	sub.Unsubscribe()
	if n := store.Watchers(); n != 0 {
		return Result{Status: StatusFail, Latency: latency, Note: fmt.Sprintf("%d listeners leaked", n)}
	}
	return Result{Status: StatusPass, Latency: latency}
}

func cacheReadThrough(ctx context.Context, r *Runner) Result {
	if r.redis == nil {
		return Result{Status: StatusSkip, Note: "redis not configured"}
	}
	var calls atomic.Int32
	next := impact.SupplierFunc(func(context.Context, routes.Route) (impact.TrafficData, error) {
		calls.Add(1)
		return impact.Known(10, 1200, 0.5), nil
	})
	cached := impact.NewCachedSupplier(impact.NewStore(r.redis), next, time.Minute, nil)

	// Unique coordinates so earlier runs do not pre-warm the key.
	off := float64(time.Now().UnixNano()%1000) / 100
	rt := benchRoute("bench-cache", "bob", 10+off, 10+off, 10.1+off, 10.1+off, 0)
	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := cached.TrafficData(ctx, rt); err != nil {
			return Result{Status: StatusFail, Note: err.Error()}
		}
	}
	if n := calls.Load(); n != 1 {
		return Result{Status: StatusFail, Latency: time.Since(start), Note: fmt.Sprintf("supplier called %d times", n)}
	}
	return Result{Status: StatusPass, Latency: time.Since(start)}
}

func pipelineLoad(ctx context.Context, r *Runner) Result {
	pool, dir := randomPool(r.cfg.Candidates, 99)
	lookup := fixedLookup()
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Duration)
	defer cancel()

	var runs atomic.Int64
	wg := sync.WaitGroup{}
	start := time.Now()
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				r.service.FindMatches(subject(), pool, dir, lookup)
				runs.Add(1)
			}
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)
	rate := float64(runs.Load()) / elapsed.Seconds()
	return Result{Status: StatusPass, Note: fmt.Sprintf("runs=%d %.1f runs/s over %d candidates", runs.Load(), rate, len(pool))}
}

func httpCaseMethod(name, method, base, path string, body any, okStatuses []int) TestCase {
	return TestCase{
		Name:  name,
		Focus: "HTTP API",
		Run: func(ctx context.Context, r *Runner) Result {
			if base == "" {
				return Result{Status: StatusSkip, Note: "base-url not set"}
			}
			var reader io.Reader
			if body != nil {
				b, _ := json.Marshal(body)
				reader = strings.NewReader(string(b))
			}
			req, _ := http.NewRequestWithContext(ctx, method, base+path, reader)
			req.Header.Set("Content-Type", "application/json")
			start := time.Now()
			resp, err := r.httpc.Do(req)
			if err != nil {
				return Result{Status: StatusFail, Note: err.Error()}
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			latency := time.Since(start)
			if slices.Contains(okStatuses, resp.StatusCode) {
				return Result{Status: StatusPass, Latency: latency, Note: fmt.Sprintf("status=%d", resp.StatusCode)}
			}
			if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNotImplemented {
				return Result{Status: StatusPending, Latency: latency, Note: fmt.Sprintf("status=%d", resp.StatusCode)}
			}
			return Result{Status: StatusFail, Latency: latency, Note: fmt.Sprintf("status=%d", resp.StatusCode)}
		},
	}
}

func perfLoad(ctx context.Context, r *Runner, url string, payload any) Result {
	b, _ := json.Marshal(payload)
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Duration)
	defer cancel()

	var ok, failed atomic.Int64
	wg := sync.WaitGroup{}
	start := time.Now()
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				req, _ := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(b)))
				req.Header.Set("Content-Type", "application/json")
				resp, err := r.httpc.Do(req)
				if err != nil {
					if ctx.Err() == nil {
						failed.Add(1)
					}
					continue
				}
				_, _ = io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				if resp.StatusCode == http.StatusOK {
					ok.Add(1)
				} else {
					failed.Add(1)
				}
			}
		}()
	}
	wg.Wait()
	rate := float64(ok.Load()) / time.Since(start).Seconds()
	status := StatusPass
	if failed.Load() > 0 {
		status = StatusFail
	}
	return Result{Status: status, Note: fmt.Sprintf("ok=%d failed=%d %.1f req/s", ok.Load(), failed.Load(), rate)}
}

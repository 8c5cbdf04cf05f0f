// README: Match handlers: one-shot snapshot matches, SSE feed and stateless matching over a request body.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"greenpool/internal/modules/impact"
	"greenpool/internal/modules/matching"
	"greenpool/internal/modules/routes"
	"greenpool/internal/types"
)

// streamKeepAlive is how often an idle SSE stream gets a comment line.
const streamKeepAlive = 25 * time.Second

type MatchHandler struct {
	feed     *matching.Feed
	service  *matching.Service
	supplier impact.Supplier
	logger   *zap.Logger
}

func NewMatchHandler(feed *matching.Feed, service *matching.Service, supplier impact.Supplier, logger *zap.Logger) *MatchHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MatchHandler{feed: feed, service: service, supplier: supplier, logger: logger}
}

type matchesResp struct {
	SubjectRouteID types.ID              `json:"subjectRouteId"`
	Matches        []matching.RouteMatch `json:"matches"`
	Summary        matching.Summary      `json:"summary"`
}

// Get returns matches for a stored route over the current snapshot.
func (h *MatchHandler) Get(c *gin.Context) {
	id, ok := routeID(c)
	if !ok {
		return
	}
	matches, err := h.feed.Snapshot(c.Request.Context(), id)
	if err != nil {
		writeMatchError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, matchesResp{SubjectRouteID: id, Matches: matches, Summary: matching.Summarize(matches)})
}

// Stream pushes match updates as server-sent events until the client leaves
// or the feed fails.
func (h *MatchHandler) Stream(c *gin.Context) {
	id, ok := routeID(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	updates := make(chan matching.Update, 4)
	sub, err := h.feed.Subscribe(ctx, id, func(u matching.Update) {
		select {
		case updates <- u:
		case <-ctx.Done():
		}
	})
	if err != nil {
		writeMatchError(c, err)
		return
	}
	defer sub.Unsubscribe()
	// The feed's callback may be blocked on updates; cancel before waiting on it.
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	keepAlive := time.NewTicker(streamKeepAlive)
	defer keepAlive.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-keepAlive.C:
			_, _ = c.Writer.WriteString(": keep-alive\n\n")
			c.Writer.Flush()
		case u := <-updates:
			if u.Err != nil {
				c.SSEvent("error", errorResponse{Error: u.Err.Error()})
				c.Writer.Flush()
				if errors.Is(u.Err, matching.ErrSubscriptionFailure) {
					return
				}
				continue
			}
			c.SSEvent("matches", matchesResp{
				SubjectRouteID: u.SubjectRouteID,
				Matches:        u.Matches,
				Summary:        matching.Summarize(u.Matches),
			})
			c.Writer.Flush()
		}
	}
}

type trafficReq struct {
	DistanceKm      *float64 `json:"distanceKm"`
	DurationSeconds *float64 `json:"durationSeconds"`
	TrafficLevel    float64  `json:"trafficLevel"`
}

type findMatchesReq struct {
	Subject    routes.Route          `json:"subject"`
	Candidates []routes.Route        `json:"candidates"`
	Users      []routes.UserProfile  `json:"users"`
	Traffic    map[string]trafficReq `json:"traffic"`
}

// Find runs the pipeline over routes and users supplied in the body. With
// no traffic map the configured supplier resolves routing inputs.
func (h *MatchHandler) Find(c *gin.Context) {
	var req findMatchesReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if err := req.Subject.Validate(); err != nil {
		writeMatchError(c, err)
		return
	}
	for _, r := range req.Candidates {
		if err := r.Validate(); err != nil {
			writeMatchError(c, err)
			return
		}
	}
	users := make(map[types.ID]routes.UserProfile, len(req.Users))
	for _, u := range req.Users {
		if u.UserID == "" {
			writeError(c, http.StatusBadRequest, "user without id")
			return
		}
		users[u.UserID] = u
	}

	lookup := matching.LookupFrom(c.Request.Context(), h.supplier)
	if req.Traffic != nil {
		lookup = func(r routes.Route) (impact.TrafficData, error) {
			t, ok := req.Traffic[string(r.ID)]
			if !ok {
				return impact.TrafficData{}, impact.ErrEstimationUnavailable
			}
			return impact.TrafficData{DistanceKm: t.DistanceKm, DurationSeconds: t.DurationSeconds, TrafficLevel: t.TrafficLevel}, nil
		}
	}

	matches := h.service.FindMatches(req.Subject, req.Candidates, users, lookup)
	writeJSON(c, http.StatusOK, matchesResp{SubjectRouteID: req.Subject.ID, Matches: matches, Summary: matching.Summarize(matches)})
}

// README: API gateway; registers HTTP routes and delegates to module services.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"greenpool/internal/events"
	"greenpool/internal/http/middleware"
	"greenpool/internal/modules/impact"
	"greenpool/internal/modules/matching"
)

type ServerDeps struct {
	Feed     *matching.Feed
	Matching *matching.Service
	Supplier impact.Supplier
	// Watcher is nil when match publishing is disabled.
	Watcher *events.Watcher
	Logger  *zap.Logger
}

type Server struct {
	feed     *matching.Feed
	matching *matching.Service
	supplier impact.Supplier
	watcher  *events.Watcher
	logger   *zap.Logger
}

func NewServer(deps ServerDeps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		feed:     deps.Feed,
		matching: deps.Matching,
		supplier: deps.Supplier,
		watcher:  deps.Watcher,
		logger:   logger,
	}
}

func (s *Server) Routes() http.Handler {
	r := gin.New()
	r.Use(middleware.Recovery(s.logger), middleware.Logging(s.logger))
	s.registerRoutes(r)
	return r
}

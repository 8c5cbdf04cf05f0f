// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"greenpool/internal/http/handlers"
)

func (s *Server) registerRoutes(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	api := r.Group("/api")

	matchHandler := handlers.NewMatchHandler(s.feed, s.matching, s.supplier, s.logger)
	api.GET("/routes/:id/matches", matchHandler.Get)
	api.GET("/routes/:id/matches/stream", matchHandler.Stream)
	api.POST("/matches", matchHandler.Find)

	impactHandler := handlers.NewImpactHandler()
	api.POST("/impact", impactHandler.Estimate)

	watchHandler := handlers.NewWatchHandler(s.watcher)
	api.PUT("/routes/:id/watch", watchHandler.Put)
	api.DELETE("/routes/:id/watch", watchHandler.Delete)
}

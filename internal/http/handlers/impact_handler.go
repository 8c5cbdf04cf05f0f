// README: Impact handler estimating environmental impact from explicit routing figures.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"greenpool/internal/modules/impact"
)

type ImpactHandler struct{}

func NewImpactHandler() *ImpactHandler {
	return &ImpactHandler{}
}

// Estimate returns 422 when distance or duration is missing; zero is a valid input.
func (h *ImpactHandler) Estimate(c *gin.Context) {
	var req trafficReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	est, err := impact.Estimate(impact.TrafficData{
		DistanceKm:      req.DistanceKm,
		DurationSeconds: req.DurationSeconds,
		TrafficLevel:    req.TrafficLevel,
	})
	if err != nil {
		writeMatchError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, est)
}

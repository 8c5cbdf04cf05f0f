// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"greenpool/internal/events"
	"greenpool/internal/modules/impact"
	"greenpool/internal/modules/matching"
	"greenpool/internal/modules/routes"
	"greenpool/internal/types"
)

type errorResponse struct {
	Error string `json:"error"`
}

// isValidID accepts document-store style IDs: letters, digits, '-' and '_'.
func isValidID(v string) bool {
	if v == "" || len(v) > 128 {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '-' || c == '_' {
			continue
		}
		return false
	}
	return true
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func writeMatchError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, routes.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, routes.ErrInvalidRoute),
		errors.Is(err, types.ErrInvalidCoordinate),
		errors.Is(err, impact.ErrInvalidTrafficData):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, impact.ErrEstimationUnavailable):
		writeError(c, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, events.ErrAlreadyWatching):
		writeError(c, http.StatusConflict, err.Error())
	case errors.Is(err, matching.ErrSubscriptionFailure):
		writeError(c, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

// routeID reads and validates the :id path parameter.
func routeID(c *gin.Context) (types.ID, bool) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid route id")
		return "", false
	}
	return types.ID(id), true
}

// README: Watch handlers starting and stopping Kafka match publishing per route.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"greenpool/internal/events"
)

type WatchHandler struct {
	watcher *events.Watcher
}

// NewWatchHandler accepts a nil watcher when publishing is disabled.
func NewWatchHandler(watcher *events.Watcher) *WatchHandler {
	return &WatchHandler{watcher: watcher}
}

func (h *WatchHandler) Put(c *gin.Context) {
	if h.watcher == nil {
		writeError(c, http.StatusServiceUnavailable, "match publishing disabled")
		return
	}
	id, ok := routeID(c)
	if !ok {
		return
	}
	if err := h.watcher.Watch(id); err != nil {
		writeMatchError(c, err)
		return
	}
	writeJSON(c, http.StatusAccepted, gin.H{"route_id": id, "watching": true})
}

func (h *WatchHandler) Delete(c *gin.Context) {
	if h.watcher == nil {
		writeError(c, http.StatusServiceUnavailable, "match publishing disabled")
		return
	}
	id, ok := routeID(c)
	if !ok {
		return
	}
	if !h.watcher.Unwatch(id) {
		writeError(c, http.StatusNotFound, "route not watched")
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"route_id": id, "watching": false})
}

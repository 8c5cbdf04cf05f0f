package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"greenpool/internal/http/middleware"
)

func newTestRouter(logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.Recovery(logger), middleware.Logging(logger))
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.GET("/panic", func(c *gin.Context) { panic("boom") })
	return r
}

func TestLogging_LevelsByStatus(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	r := newTestRouter(zap.New(core))

	for path, level := range map[string]zapcore.Level{"/ok": zapcore.InfoLevel, "/missing": zapcore.WarnLevel} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

		entries := logs.TakeAll()
		require.Len(t, entries, 1, path)
		assert.Equal(t, level, entries[0].Level, path)
		assert.Equal(t, path, entries[0].ContextMap()["path"])
	}
}

func TestRecovery_PanicBecomes500(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	r := newTestRouter(zap.New(core))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, w.Body.String())

	panics := logs.FilterMessage("panic recovered").All()
	require.Len(t, panics, 1)
	assert.Equal(t, "boom", panics[0].ContextMap()["panic_value"])
}

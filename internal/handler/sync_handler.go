package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/maclab-sync/internal/middleware"
	"github.com/noah-isme/maclab-sync/internal/service"
	"github.com/noah-isme/maclab-sync/pkg/response"
)

// SyncHandler exposes manual refresh, readiness and metrics.
type SyncHandler struct {
	engine  *service.SyncEngine
	metrics *service.MetricsService
}

// NewSyncHandler constructs SyncHandler.
func NewSyncHandler(engine *service.SyncEngine, metrics *service.MetricsService) *SyncHandler {
	return &SyncHandler{engine: engine, metrics: metrics}
}

// Refresh godoc
// @Summary Run a sync cycle now
// @Tags Sync
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /sync [post]
func (h *SyncHandler) Refresh(c *gin.Context) {
	// A client hanging up must not turn the cycle into a remote failure.
	summary, err := h.engine.Refresh(context.WithoutCancel(c.Request.Context()))
	if err != nil {
		if !summary.Committed {
			response.Error(c, err)
			return
		}
		// The snapshot committed; only the occupant cache write failed.
		middleware.SetMeta(c, "cache_error", err.Error())
	}
	response.OK(c, summary, middleware.ExtractMeta(c))
}

// Health responds with a generic OK payload for liveness checks.
func (h *SyncHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready reports ready once a sync cycle has committed.
func (h *SyncHandler) Ready(c *gin.Context) {
	snapshot, ok := h.engine.Snapshot()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "syncing"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "sequence": snapshot.Sequence})
}

// Prometheus serves the Prometheus metrics endpoint.
func (h *SyncHandler) Prometheus(c *gin.Context) {
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/maclab-sync/internal/middleware"
	"github.com/noah-isme/maclab-sync/internal/service"
	appErrors "github.com/noah-isme/maclab-sync/pkg/errors"
	"github.com/noah-isme/maclab-sync/pkg/response"
)

// OccupancyHandler exposes who is using the lab right now.
type OccupancyHandler struct {
	engine *service.SyncEngine
	cache  *service.OccupantCache
}

// NewOccupancyHandler constructs OccupancyHandler.
func NewOccupancyHandler(engine *service.SyncEngine, cache *service.OccupantCache) *OccupancyHandler {
	return &OccupancyHandler{engine: engine, cache: cache}
}

// List godoc
// @Summary List subjects occupying the lab
// @Tags Occupancy
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /occupancy [get]
func (h *OccupancyHandler) List(c *gin.Context) {
	snapshot, ok := h.engine.Snapshot()
	if !ok {
		response.Error(c, appErrors.ErrNotReady)
		return
	}
	middleware.SetSnapshot(c, snapshot.Sequence, snapshot.EvaluatedAt)
	response.OK(c, snapshot.Occupancy, middleware.ExtractMeta(c))
}

// Current godoc
// @Summary Current occupant from the persisted cache
// @Tags Occupancy
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /occupancy/current [get]
func (h *OccupancyHandler) Current(c *gin.Context) {
	occupant, ok, err := h.cache.Current(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "occupied", ok)
	if !ok {
		response.OK(c, nil, middleware.ExtractMeta(c))
		return
	}
	response.OK(c, occupant, middleware.ExtractMeta(c))
}

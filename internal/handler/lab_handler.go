package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/maclab-sync/internal/middleware"
	"github.com/noah-isme/maclab-sync/internal/models"
	"github.com/noah-isme/maclab-sync/internal/service"
	appErrors "github.com/noah-isme/maclab-sync/pkg/errors"
	"github.com/noah-isme/maclab-sync/pkg/response"
)

// LabHandler exposes the lab door status and the guideline feed.
type LabHandler struct {
	logs       *service.LabLogService
	guidelines *service.GuidelineService
	userID     models.ID
}

// NewLabHandler constructs LabHandler. userID is the signed-in instructor.
func NewLabHandler(logs *service.LabLogService, guidelines *service.GuidelineService, userID models.ID) *LabHandler {
	return &LabHandler{logs: logs, guidelines: guidelines, userID: userID}
}

// RecordStatus godoc
// @Summary Lock or unlock the lab
// @Tags Lab
// @Accept json
// @Produce json
// @Param payload body service.LabStatusRequest true "Lab status payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /lab/status [post]
func (h *LabHandler) RecordStatus(c *gin.Context) {
	var req service.LabStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if req.UserID == "" {
		req.UserID = h.userID
	}
	entry, err := h.logs.Record(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}

// Status godoc
// @Summary Last lab status recorded by an instructor
// @Tags Lab
// @Produce json
// @Param user_id query string false "Instructor id, defaults to the signed-in user"
// @Success 200 {object} response.Envelope
// @Router /lab/status [get]
func (h *LabHandler) Status(c *gin.Context) {
	userID := models.ID(c.DefaultQuery("user_id", h.userID.String()))
	entry, ok := h.logs.Last(userID)
	middleware.SetMeta(c, "recorded", ok)
	if !ok {
		response.OK(c, nil, middleware.ExtractMeta(c))
		return
	}
	response.OK(c, entry, middleware.ExtractMeta(c))
}

// Guidelines godoc
// @Summary Lab guidelines feed
// @Tags Lab
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /guidelines [get]
func (h *LabHandler) Guidelines(c *gin.Context) {
	posts, err := h.guidelines.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, posts)
}

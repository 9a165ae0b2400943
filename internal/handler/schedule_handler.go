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

// ScheduleHandler serves the lab schedule, the instructor directory and
// schedule claims.
type ScheduleHandler struct {
	engine  *service.SyncEngine
	links   *service.LinkService
	exports *service.ExportService
	userID  models.ID
}

// NewScheduleHandler constructs ScheduleHandler. userID is the signed-in
// instructor, left out of the directory and used as the default link owner.
func NewScheduleHandler(engine *service.SyncEngine, links *service.LinkService, exports *service.ExportService, userID models.ID) *ScheduleHandler {
	return &ScheduleHandler{engine: engine, links: links, exports: exports, userID: userID}
}

type scheduleView struct {
	Header   models.ScheduleHeader       `json:"header"`
	Schedule []models.InstructorSchedule `json:"schedule"`
}

// Schedule godoc
// @Summary Lab schedule grouped by instructor
// @Tags Schedule
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /schedule [get]
func (h *ScheduleHandler) Schedule(c *gin.Context) {
	snapshot, ok := h.engine.Snapshot()
	if !ok {
		response.Error(c, appErrors.ErrNotReady)
		return
	}
	middleware.SetSnapshot(c, snapshot.Sequence, snapshot.EvaluatedAt)
	response.OK(c, scheduleView{Header: snapshot.Header, Schedule: snapshot.Schedule}, middleware.ExtractMeta(c))
}

// Export godoc
// @Summary Download the lab schedule
// @Tags Schedule
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Router /schedule/export [get]
func (h *ScheduleHandler) Export(c *gin.Context) {
	snapshot, _ := h.engine.Snapshot()
	file, err := h.exports.Export(snapshot, c.DefaultQuery("format", service.ExportCSV))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Body)
}

// Instructors godoc
// @Summary Instructor directory
// @Tags Schedule
// @Produce json
// @Param exclude query string false "Instructor id to leave out, defaults to the signed-in user"
// @Success 200 {object} response.Envelope
// @Router /instructors [get]
func (h *ScheduleHandler) Instructors(c *gin.Context) {
	exclude := models.ID(c.DefaultQuery("exclude", h.userID.String()))
	response.OK(c, h.engine.Instructors(exclude))
}

// Instructor godoc
// @Summary One instructor with their linked subjects
// @Tags Schedule
// @Produce json
// @Param instructorId path string true "Instructor ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /instructors/{instructorId} [get]
func (h *ScheduleHandler) Instructor(c *gin.Context) {
	detail, err := h.engine.InstructorDetail(models.ID(c.Param("instructorId")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, detail)
}

// Roster godoc
// @Summary Students enrolled in a subject
// @Tags Schedule
// @Produce json
// @Param subjectId path string true "Subject ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /subjects/{subjectId}/students [get]
func (h *ScheduleHandler) Roster(c *gin.Context) {
	roster, err := h.engine.SubjectRoster(models.ID(c.Param("subjectId")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, roster)
}

// Linkable godoc
// @Summary Subjects no instructor has claimed
// @Tags Schedule
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /subjects/linkable [get]
func (h *ScheduleHandler) Linkable(c *gin.Context) {
	response.OK(c, h.engine.LinkableSubjects())
}

// Link godoc
// @Summary Claim a subject for an instructor's schedule
// @Tags Schedule
// @Accept json
// @Produce json
// @Param payload body service.LinkRequest true "Link payload"
// @Success 201 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /links [post]
func (h *ScheduleHandler) Link(c *gin.Context) {
	var req service.LinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if req.UserID == "" {
		req.UserID = h.userID
	}
	subject, err := h.links.Link(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, subject)
}

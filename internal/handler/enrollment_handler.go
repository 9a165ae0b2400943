package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/maclab-sync/internal/middleware"
	"github.com/noah-isme/maclab-sync/internal/models"
	"github.com/noah-isme/maclab-sync/internal/service"
	appErrors "github.com/noah-isme/maclab-sync/pkg/errors"
	"github.com/noah-isme/maclab-sync/pkg/response"
)

// EnrollmentHandler exposes a student's courses and the enrol action.
type EnrollmentHandler struct {
	engine      *service.SyncEngine
	enrollments *service.EnrollmentService
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(engine *service.SyncEngine, enrollments *service.EnrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{engine: engine, enrollments: enrollments}
}

// Enrolled godoc
// @Summary Subjects the student is enrolled in
// @Tags Enrollments
// @Produce json
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{studentId}/subjects [get]
func (h *EnrollmentHandler) Enrolled(c *gin.Context) {
	response.OK(c, h.engine.EnrolledSubjects(h.studentID(c)))
}

// Available godoc
// @Summary Subjects the student can still enrol into
// @Tags Enrollments
// @Produce json
// @Param studentId path string true "Student ID"
// @Param q query string false "Search over subject or instructor name"
// @Param grouped query bool false "Group by instructor"
// @Success 200 {object} response.Envelope
// @Router /students/{studentId}/subjects/available [get]
func (h *EnrollmentHandler) Available(c *gin.Context) {
	snapshot, ok := h.engine.Snapshot()
	if !ok {
		response.Error(c, appErrors.ErrNotReady)
		return
	}
	middleware.SetSnapshot(c, snapshot.Sequence, snapshot.EvaluatedAt)

	studentID := h.studentID(c)
	query := c.Query("q")
	if grouped, _ := strconv.ParseBool(c.DefaultQuery("grouped", "false")); grouped {
		response.OK(c, h.engine.VisibleGroups(studentID, query), middleware.ExtractMeta(c))
		return
	}
	response.OK(c, h.engine.VisibleSubjects(studentID, query), middleware.ExtractMeta(c))
}

// Enroll godoc
// @Summary Enrol a student using the subject key
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body service.EnrollRequest true "Enrolment payload"
// @Success 201 {object} response.Envelope
// @Success 200 {object} response.Envelope "Already enrolled"
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /enrollments [post]
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	var req service.EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if req.StudentID == "" {
		req.StudentID = h.engine.StudentID()
	}
	result, err := h.enrollments.Enroll(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if result.AlreadyEnrolled {
		response.OK(c, result)
		return
	}
	response.Created(c, result)
}

// studentID resolves the path id, where "me" stands for the signed-in student.
func (h *EnrollmentHandler) studentID(c *gin.Context) models.ID {
	id := c.Param("studentId")
	if id == "me" || id == "" {
		return h.engine.StudentID()
	}
	return models.ID(id)
}

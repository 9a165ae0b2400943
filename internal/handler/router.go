package handler

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/maclab-sync/internal/middleware"
	"github.com/noah-isme/maclab-sync/internal/service"
	"github.com/noah-isme/maclab-sync/pkg/logger"
	corsmiddleware "github.com/noah-isme/maclab-sync/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/maclab-sync/pkg/middleware/requestid"
)

// RouterConfig wires the handlers into a gin engine.
type RouterConfig struct {
	APIPrefix      string
	AllowedOrigins []string
	EnableDocs     bool
	Logger         *zap.Logger
	Metrics        *service.MetricsService

	Occupancy   *OccupancyHandler
	Schedule    *ScheduleHandler
	Enrollments *EnrollmentHandler
	Lab         *LabHandler
	Sync        *SyncHandler
}

// NewRouter builds the local read API.
func NewRouter(cfg RouterConfig) *gin.Engine {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(log))
	r.Use(corsmiddleware.New(cfg.AllowedOrigins))
	r.Use(middleware.Metrics(cfg.Metrics))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", cfg.Sync.Health)
	r.GET("/ready", cfg.Sync.Ready)
	r.GET("/metrics", cfg.Sync.Prometheus)
	if cfg.EnableDocs {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	{
		api.GET("/occupancy", cfg.Occupancy.List)
		api.GET("/occupancy/current", cfg.Occupancy.Current)

		api.GET("/schedule", cfg.Schedule.Schedule)
		api.GET("/schedule/export", cfg.Schedule.Export)
		api.GET("/instructors", cfg.Schedule.Instructors)
		api.GET("/instructors/:instructorId", cfg.Schedule.Instructor)
		api.GET("/subjects/linkable", cfg.Schedule.Linkable)
		api.GET("/subjects/:subjectId/students", cfg.Schedule.Roster)
		api.POST("/links", cfg.Schedule.Link)

		api.GET("/students/:studentId/subjects", cfg.Enrollments.Enrolled)
		api.GET("/students/:studentId/subjects/available", cfg.Enrollments.Available)
		api.POST("/enrollments", cfg.Enrollments.Enroll)

		api.GET("/lab/status", cfg.Lab.Status)
		api.POST("/lab/status", cfg.Lab.RecordStatus)
		api.GET("/guidelines", cfg.Lab.Guidelines)

		api.POST("/sync", cfg.Sync.Refresh)
	}

	return r
}

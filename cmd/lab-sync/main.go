package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	_ "github.com/noah-isme/maclab-sync/api/swagger"
	"github.com/noah-isme/maclab-sync/internal/handler"
	"github.com/noah-isme/maclab-sync/internal/models"
	"github.com/noah-isme/maclab-sync/internal/remote"
	"github.com/noah-isme/maclab-sync/internal/repository"
	"github.com/noah-isme/maclab-sync/internal/service"
	"github.com/noah-isme/maclab-sync/pkg/cache"
	"github.com/noah-isme/maclab-sync/pkg/config"
	"github.com/noah-isme/maclab-sync/pkg/database"
	"github.com/noah-isme/maclab-sync/pkg/logger"
)

// @title Maclab Sync API
// @version 0.1.0
// @description Local read API over the synchronized lab schedule, occupancy and enrolments
// @BasePath /
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cacheRepo, closeCache, err := openCache(ctx, cfg, logr)
	if err != nil {
		logr.Fatal("failed to open occupant cache", zap.String("driver", cfg.Cache.Driver), zap.Error(err))
	}
	defer closeCache()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	metrics := service.NewMetricsService()
	validate := validator.New()
	client := remote.NewClient(cfg.Remote, nil, logr.Named("remote"))
	occupants := service.NewOccupantCache(cacheRepo, metrics, logr.Named("cache"))
	enrollmentState := service.NewEnrollmentState()
	engine := service.NewSyncEngine(client, occupants, enrollmentState, metrics, logr.Named("sync"), service.SyncOptions{
		Location:  cfg.Sync.Location(),
		StudentID: models.ID(cfg.Sync.StudentID),
	})
	enrollments := service.NewEnrollmentService(client, client, enrollmentState, metrics, validate, logr.Named("enrollment"))
	links := service.NewLinkService(client, client, validate, logr.Named("link"))
	labLogs := service.NewLabLogService(client, metrics, validate, logr.Named("lab"), cfg.Sync.Location(), nil)
	guidelines := service.NewGuidelineService(client, logr.Named("guidelines"))

	router := handler.NewRouter(handler.RouterConfig{
		APIPrefix:      cfg.APIPrefix,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		EnableDocs:     cfg.Env != config.EnvProduction,
		Logger:         logr,
		Metrics:        metrics,
		Occupancy:      handler.NewOccupancyHandler(engine, occupants),
		Schedule:       handler.NewScheduleHandler(engine, links, service.NewExportService(metrics, logr.Named("export")), models.ID(cfg.Sync.UserID)),
		Enrollments:    handler.NewEnrollmentHandler(engine, enrollments),
		Lab:            handler.NewLabHandler(labLogs, guidelines, models.ID(cfg.Sync.UserID)),
		Sync:           handler.NewSyncHandler(engine, metrics),
	})

	engine.Start(ctx, cfg.Sync.Interval)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logr.Info("server starting",
			zap.String("addr", srv.Addr),
			zap.String("env", cfg.Env),
			zap.String("remote", cfg.Remote.BaseURL),
			zap.Duration("interval", cfg.Sync.Interval),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Error("server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	engine.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("server shutdown failed", zap.Error(err))
	}
}

// openCache builds the occupant cache backend selected by CACHE_DRIVER.
func openCache(ctx context.Context, cfg *config.Config, logr *zap.Logger) (service.CacheRepository, func(), error) {
	switch cfg.Cache.Driver {
	case config.CacheDriverRedis:
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewCacheRepository(client, "lab-sync", logr.Named("redis")), func() { _ = client.Close() }, nil
	default:
		db, err := database.NewSQLite(cfg.Cache.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewSQLiteCacheRepository(db), func() { _ = db.Close() }, nil
	}
}

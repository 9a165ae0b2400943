package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/maclab-sync/internal/models"
	appErrors "github.com/noah-isme/maclab-sync/pkg/errors"
)

type labLogWriter interface {
	CreateLabLog(ctx context.Context, entry models.LabLog) error
}

// LabStatusRequest is an instructor locking or unlocking the lab.
type LabStatusRequest struct {
	UserID models.ID `json:"user_id" validate:"required"`
	Status string    `json:"status" validate:"required,oneof=locked unlocked"`
}

// LabLogService records lock and unlock events and remembers the last state
// each instructor set through this process.
type LabLogService struct {
	writer    labLogWriter
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	clock     func() time.Time
	location  *time.Location

	mu   sync.RWMutex
	last map[models.ID]models.LabLog
}

// NewLabLogService constructs LabLogService. Events are stamped with clock
// in location, defaulting to time.Now and the host zone.
func NewLabLogService(writer labLogWriter, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, location *time.Location, clock func() time.Time) *LabLogService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if location == nil {
		location = time.Local
	}
	if clock == nil {
		clock = time.Now
	}
	return &LabLogService{
		writer:    writer,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		clock:     clock,
		location:  location,
		last:      make(map[models.ID]models.LabLog),
	}
}

// Record posts the event stamped with the current weekday and "HH:MM".
func (s *LabLogService) Record(ctx context.Context, req LabStatusRequest) (*models.LabLog, error) {
	req.Status = strings.ToLower(strings.TrimSpace(req.Status))
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lab status payload")
	}

	now := s.clock().In(s.location)
	entry := models.LabLog{
		UserID: req.UserID,
		Status: req.Status,
		Time:   now.Format("15:04"),
		Day:    now.Weekday().String(),
	}

	if err := s.writer.CreateLabLog(ctx, entry); err != nil {
		s.metrics.RecordLabLog(entry.Status, "error")
		s.logger.Warn("lab status write failed",
			zap.String("user_id", entry.UserID.String()),
			zap.String("status", entry.Status),
			zap.Error(err),
		)
		if appErrors.Code(err) == "" {
			return nil, appErrors.Wrap(err, appErrors.ErrRemoteRejected.Code, appErrors.ErrRemoteRejected.Status, "failed to update lab status")
		}
		return nil, err
	}

	s.mu.Lock()
	s.last[entry.UserID] = entry
	s.mu.Unlock()

	s.metrics.RecordLabLog(entry.Status, "ok")
	s.logger.Info("lab status updated",
		zap.String("user_id", entry.UserID.String()),
		zap.String("status", entry.Status),
		zap.String("day", entry.Day),
		zap.String("time", entry.Time),
	)
	return &entry, nil
}

// Last returns the most recent event recorded for the user.
func (s *LabLogService) Last(userID models.ID) (models.LabLog, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.last[userID]
	return entry, ok
}

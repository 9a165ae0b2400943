package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/maclab-sync/internal/models"
	appErrors "github.com/noah-isme/maclab-sync/pkg/errors"
)

// CurrentOccupantKey is the persisted slot read by other consumers.
const CurrentOccupantKey = "current_occupant"

// CacheRepository abstracts the durable key/value store.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}) error
	Delete(ctx context.Context, key string) error
}

// OccupantCache persists the current occupant for readers that do not derive it.
type OccupantCache struct {
	repo    CacheRepository
	metrics *MetricsService
	logger  *zap.Logger

	mu      sync.Mutex
	lastSeq uint64
}

// NewOccupantCache constructs an OccupantCache.
func NewOccupantCache(repo CacheRepository, metrics *MetricsService, logger *zap.Logger) *OccupantCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OccupantCache{repo: repo, metrics: metrics, logger: logger}
}

// WriteThrough overwrites the slot with the head of set, or deletes it when
// set is empty. Writes tagged with a sequence older than the last applied one
// are discarded and reported as not written.
func (c *OccupantCache) WriteThrough(ctx context.Context, seq uint64, set []models.OccupantSubject) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if seq < c.lastSeq {
		c.logger.Debug("discarding stale occupant write", zap.Uint64("seq", seq), zap.Uint64("last_seq", c.lastSeq))
		return false, nil
	}

	start := time.Now()
	var (
		op  string
		err error
	)
	if len(set) == 0 {
		op = "delete"
		err = c.repo.Delete(ctx, CurrentOccupantKey)
	} else {
		op = "set"
		head := set[0]
		head.Subject = head.Subject.Public()
		if head.InstructorName == "" {
			head.InstructorName = models.UnknownInstructor
		}
		err = c.repo.Set(ctx, CurrentOccupantKey, head)
	}
	c.metrics.ObserveCacheWrite(op, err, time.Since(start))
	if err != nil {
		c.logger.Warn("occupant cache write failed", zap.String("op", op), zap.Uint64("seq", seq), zap.Error(err))
		return false, err
	}

	c.lastSeq = seq
	return true, nil
}

// Current returns the last persisted occupant. The boolean is false when the
// slot is empty.
func (c *OccupantCache) Current(ctx context.Context) (*models.OccupantSubject, bool, error) {
	var occupant models.OccupantSubject
	if err := c.repo.Get(ctx, CurrentOccupantKey, &occupant); err != nil {
		if errors.Is(err, appErrors.ErrCacheMiss) {
			return nil, false, nil
		}
		c.logger.Warn("occupant cache read failed", zap.Error(err))
		return nil, false, err
	}
	return &occupant, true, nil
}

package service

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/noah-isme/maclab-sync/internal/models"
	appErrors "github.com/noah-isme/maclab-sync/pkg/errors"
)

type postSource interface {
	FetchPosts(ctx context.Context) models.CollectionResult[models.Post]
}

// GuidelineService serves the lab guideline feed straight from the remote.
type GuidelineService struct {
	source   postSource
	logger   *zap.Logger
	inflight singleflight.Group
}

// NewGuidelineService constructs GuidelineService.
func NewGuidelineService(source postSource, logger *zap.Logger) *GuidelineService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GuidelineService{source: source, logger: logger}
}

// List returns the current guidelines. A "no results" answer is an empty list.
// Concurrent readers share one remote fetch.
func (s *GuidelineService) List(ctx context.Context) ([]models.Post, error) {
	flightCtx := context.WithoutCancel(ctx)
	v, err, _ := s.inflight.Do(models.CollectionPosts, func() (interface{}, error) {
		res := s.source.FetchPosts(flightCtx)
		if res.Kind == models.CollectionErr {
			s.logger.Warn("guideline fetch failed", zap.Error(res.Err))
			if appErrors.Code(res.Err) == "" {
				return nil, appErrors.Wrap(res.Err, appErrors.ErrTransientFetch.Code, appErrors.ErrTransientFetch.Status, "failed to load guidelines")
			}
			return nil, res.Err
		}
		posts := res.Items()
		if posts == nil {
			posts = []models.Post{}
		}
		return posts, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.Post), nil
}

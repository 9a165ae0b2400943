package service

import (
	"context"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/maclab-sync/internal/models"
	appErrors "github.com/noah-isme/maclab-sync/pkg/errors"
)

type linkSource interface {
	FetchSubjects(ctx context.Context) models.CollectionResult[models.Subject]
	FetchLinks(ctx context.Context) models.CollectionResult[models.Link]
}

type linkWriter interface {
	CreateLink(ctx context.Context, link models.Link) error
}

// LinkRequest assigns an instructor to a subject.
type LinkRequest struct {
	UserID    models.ID `json:"user_id" validate:"required"`
	SubjectID models.ID `json:"subject_id" validate:"required"`
}

// UnlinkedSubjects returns subjects no link points at, in collection order.
func UnlinkedSubjects(subjects []models.Subject, links []models.Link) []models.Subject {
	linked := make(map[models.ID]struct{}, len(links))
	for _, link := range links {
		linked[link.SubjectID] = struct{}{}
	}
	unlinked := make([]models.Subject, 0, len(subjects))
	for _, subject := range subjects {
		if _, ok := linked[subject.ID]; ok {
			continue
		}
		unlinked = append(unlinked, subject.Public())
	}
	return unlinked
}

// LinkService lets an instructor claim a subject for their schedule.
type LinkService struct {
	source    linkSource
	writer    linkWriter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewLinkService constructs LinkService.
func NewLinkService(source linkSource, writer linkWriter, validate *validator.Validate, logger *zap.Logger) *LinkService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LinkService{source: source, writer: writer, validator: validate, logger: logger}
}

// Link checks the subject exists and is still unlinked against fresh
// collections, then submits the link.
func (s *LinkService) Link(ctx context.Context, req LinkRequest) (*models.Subject, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid link payload")
	}

	subjects := s.source.FetchSubjects(ctx)
	if subjects.Kind == models.CollectionErr {
		return nil, fetchError(subjects.Err, "failed to load subjects")
	}
	links := s.source.FetchLinks(ctx)
	if links.Kind == models.CollectionErr {
		return nil, fetchError(links.Err, "failed to load linked subjects")
	}

	var target *models.Subject
	for _, subject := range subjects.Items() {
		if subject.ID == req.SubjectID {
			subject := subject.Public()
			target = &subject
			break
		}
	}
	if target == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
	}
	for _, link := range links.Items() {
		if link.SubjectID == req.SubjectID {
			return nil, appErrors.Clone(appErrors.ErrConflict, "subject is already scheduled")
		}
	}

	if err := s.writer.CreateLink(ctx, models.Link{SubjectID: req.SubjectID, UserID: req.UserID}); err != nil {
		s.logger.Warn("link write failed", zap.String("user_id", req.UserID.String()), zap.String("subject_id", req.SubjectID.String()), zap.Error(err))
		return nil, fetchError(err, "failed to add schedule")
	}
	s.logger.Info("subject linked", zap.String("user_id", req.UserID.String()), zap.String("subject_id", req.SubjectID.String()))
	return target, nil
}

func fetchError(err error, message string) error {
	if appErrors.Code(err) != "" {
		return err
	}
	return appErrors.Wrap(err, appErrors.ErrTransientFetch.Code, appErrors.ErrTransientFetch.Status, message)
}

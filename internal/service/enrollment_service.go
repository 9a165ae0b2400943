package service

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/noah-isme/maclab-sync/internal/models"
	appErrors "github.com/noah-isme/maclab-sync/pkg/errors"
)

type subjectSource interface {
	FetchSubject(ctx context.Context, id models.ID) (models.Subject, error)
}

type enrollmentWriter interface {
	CreateEnrollment(ctx context.Context, enrollment models.Enrollment) error
}

// EnrollRequest is the enrol payload.
type EnrollRequest struct {
	StudentID models.ID `json:"student_id" validate:"required"`
	SubjectID models.ID `json:"subject_id" validate:"required"`
	Key       string    `json:"key" validate:"required"`
}

// EnrollResult describes the outcome of an enrol call.
type EnrollResult struct {
	Subject         models.Subject `json:"subject"`
	AlreadyEnrolled bool           `json:"already_enrolled"`
}

// EnrollmentState holds the enrolment sets known to this process: what the
// last committed sync fetched, plus subjects enrolled locally that the remote
// collection has not reflected yet.
type EnrollmentState struct {
	mu      sync.RWMutex
	fetched map[models.ID][]models.Subject
	local   map[models.ID][]models.Subject
}

// NewEnrollmentState constructs an empty state.
func NewEnrollmentState() *EnrollmentState {
	return &EnrollmentState{
		fetched: make(map[models.ID][]models.Subject),
		local:   make(map[models.ID][]models.Subject),
	}
}

// Replace installs a freshly fetched collection. Local entries now present
// remotely are dropped; the rest stay so a sync that started before an
// enrolment cannot make it disappear.
func (s *EnrollmentState) Replace(students []models.StudentWithSubjects) {
	fetched := make(map[models.ID][]models.Subject, len(students))
	for _, student := range students {
		fetched[student.ID] = append(fetched[student.ID], student.Subjects...)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetched = fetched
	for studentID, pending := range s.local {
		remote := idSet(fetched[studentID])
		kept := pending[:0]
		for _, subject := range pending {
			if _, ok := remote[subject.ID]; !ok {
				kept = append(kept, subject)
			}
		}
		if len(kept) == 0 {
			delete(s.local, studentID)
			continue
		}
		s.local[studentID] = kept
	}
}

// Append records a confirmed enrolment. It does not deduplicate.
func (s *EnrollmentState) Append(studentID models.ID, subject models.Subject) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.local[studentID] = append(s.local[studentID], subject)
}

// Subjects returns the student's enrolled subjects, fetched first.
func (s *EnrollmentState) Subjects(studentID models.ID) []models.Subject {
	s.mu.RLock()
	defer s.mu.RUnlock()
	subjects := make([]models.Subject, 0, len(s.fetched[studentID])+len(s.local[studentID]))
	subjects = append(subjects, s.fetched[studentID]...)
	subjects = append(subjects, s.local[studentID]...)
	return subjects
}

// IDs returns the student's enrolled subject ids as a set.
func (s *EnrollmentState) IDs(studentID models.ID) map[models.ID]struct{} {
	return idSet(s.Subjects(studentID))
}

// Contains reports whether the student is enrolled in the subject.
func (s *EnrollmentState) Contains(studentID, subjectID models.ID) bool {
	_, ok := s.IDs(studentID)[subjectID]
	return ok
}

// PendingStudents lists, sorted, the students with a local enrolment in the
// subject that the remote collection has not reflected yet.
func (s *EnrollmentState) PendingStudents(subjectID models.ID) []models.ID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var students []models.ID
	for studentID, pending := range s.local {
		if _, ok := idSet(pending)[subjectID]; ok {
			students = append(students, studentID)
		}
	}
	slices.Sort(students)
	return students
}

func idSet(subjects []models.Subject) map[models.ID]struct{} {
	set := make(map[models.ID]struct{}, len(subjects))
	for _, subject := range subjects {
		set[subject.ID] = struct{}{}
	}
	return set
}

// VisibleSubjects returns all subjects minus those whose id is enrolled.
func VisibleSubjects(all []models.Subject, enrolled map[models.ID]struct{}) []models.Subject {
	visible := make([]models.Subject, 0, len(all))
	for _, subject := range all {
		if _, ok := enrolled[subject.ID]; ok {
			continue
		}
		visible = append(visible, subject)
	}
	return visible
}

// FilterSubjects keeps subjects whose name or occupant instructor name
// contains query, case-insensitively. A blank query keeps everything.
func FilterSubjects(subjects []models.Subject, derived DerivedMaps, query string) []models.Subject {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return subjects
	}
	filtered := make([]models.Subject, 0, len(subjects))
	for _, subject := range subjects {
		if strings.Contains(strings.ToLower(subject.Name), needle) {
			filtered = append(filtered, subject)
			continue
		}
		if occupant, ok := derived.Occupants[subject.ID]; ok && strings.Contains(strings.ToLower(occupant.InstructorName), needle) {
			filtered = append(filtered, subject)
		}
	}
	return filtered
}

// GroupVisible narrows an instructor schedule to subjects the student can
// still enrol into. A group is kept when its instructor matches the query or
// when any of its remaining subjects do; groups left without subjects are
// dropped unless the instructor matched.
func GroupVisible(schedule []models.InstructorSchedule, enrolled map[models.ID]struct{}, query string) []models.InstructorSchedule {
	needle := strings.ToLower(strings.TrimSpace(query))
	groups := make([]models.InstructorSchedule, 0, len(schedule))
	for _, group := range schedule {
		instructorMatch := needle != "" && strings.Contains(strings.ToLower(group.InstructorName), needle)
		subjects := make([]models.Subject, 0, len(group.Subjects))
		for _, subject := range VisibleSubjects(group.Subjects, enrolled) {
			if needle == "" || instructorMatch || strings.Contains(strings.ToLower(subject.Name), needle) {
				subjects = append(subjects, subject)
			}
		}
		if len(subjects) == 0 && !instructorMatch {
			continue
		}
		group.Subjects = subjects
		groups = append(groups, group)
	}
	return groups
}

// EnrollmentService runs the enrol workflow against the remote store.
type EnrollmentService struct {
	subjects  subjectSource
	writer    enrollmentWriter
	state     *EnrollmentState
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	inflight  singleflight.Group
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(subjects subjectSource, writer enrollmentWriter, state *EnrollmentState, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if state == nil {
		state = NewEnrollmentState()
	}
	return &EnrollmentService{subjects: subjects, writer: writer, state: state, metrics: metrics, validator: validate, logger: logger}
}

// State exposes the enrolment state shared with the sync engine.
func (s *EnrollmentService) State() *EnrollmentState {
	return s.state
}

// Enroll checks the key against the authoritative subject and submits the
// enrolment. Local state changes only after the remote store confirms.
// Identical concurrent calls share one remote write; re-enrolling is a no-op.
func (s *EnrollmentService) Enroll(ctx context.Context, req EnrollRequest) (*EnrollResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrolment payload")
	}

	flightKey := string(req.StudentID) + "\x00" + string(req.SubjectID) + "\x00" + req.Key
	// The flight outlives whichever caller started it.
	flightCtx := context.WithoutCancel(ctx)
	v, err, shared := s.inflight.Do(flightKey, func() (interface{}, error) {
		return s.enroll(flightCtx, req)
	})
	if shared {
		s.logger.Debug("enrolment shared with in-flight call", zap.String("student_id", req.StudentID.String()), zap.String("subject_id", req.SubjectID.String()))
	}
	if err != nil {
		s.metrics.RecordEnrollment(appErrors.Code(err))
		return nil, err
	}
	result := v.(*EnrollResult)
	if result.AlreadyEnrolled {
		s.metrics.RecordEnrollment("ALREADY_ENROLLED")
	} else {
		s.metrics.RecordEnrollment("SUCCESS")
	}
	return result, nil
}

func (s *EnrollmentService) enroll(ctx context.Context, req EnrollRequest) (*EnrollResult, error) {
	subject, err := s.authoritativeSubject(ctx, req.SubjectID)
	if err != nil {
		return nil, err
	}

	if req.Key != subject.EnrollmentKey() {
		return nil, appErrors.Clone(appErrors.ErrInvalidKey, "invalid enrolment key")
	}

	if s.state.Contains(req.StudentID, subject.ID) {
		return &EnrollResult{Subject: subject.Public(), AlreadyEnrolled: true}, nil
	}

	if err := s.writer.CreateEnrollment(ctx, models.Enrollment{StudentID: req.StudentID, SubjectID: subject.ID}); err != nil {
		s.logger.Warn("enrolment write failed",
			zap.String("student_id", req.StudentID.String()),
			zap.String("subject_id", subject.ID.String()),
			zap.Error(err),
		)
		if appErrors.Code(err) == "" {
			return nil, appErrors.Wrap(err, appErrors.ErrRemoteRejected.Code, appErrors.ErrRemoteRejected.Status, "failed to enrol in the subject")
		}
		return nil, err
	}

	s.state.Append(req.StudentID, subject.Public())
	s.logger.Info("student enrolled",
		zap.String("student_id", req.StudentID.String()),
		zap.String("subject_id", subject.ID.String()),
	)
	return &EnrollResult{Subject: subject.Public()}, nil
}

// authoritativeSubject re-reads the subject so a stale cached key is never trusted.
func (s *EnrollmentService) authoritativeSubject(ctx context.Context, id models.ID) (models.Subject, error) {
	subject, err := s.subjects.FetchSubject(ctx, id)
	if err != nil {
		if appErrors.Code(err) != "" {
			return models.Subject{}, err
		}
		return models.Subject{}, appErrors.Wrap(err, appErrors.ErrTransientFetch.Code, appErrors.ErrTransientFetch.Status, "failed to load subject")
	}
	return subject, nil
}

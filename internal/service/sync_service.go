package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/maclab-sync/internal/models"
	appErrors "github.com/noah-isme/maclab-sync/pkg/errors"
	"github.com/noah-isme/maclab-sync/pkg/jobs"
)

// CollectionSource fetches the four raw collections.
type CollectionSource interface {
	FetchSubjects(ctx context.Context) models.CollectionResult[models.Subject]
	FetchInstructors(ctx context.Context) models.CollectionResult[models.Instructor]
	FetchLinks(ctx context.Context) models.CollectionResult[models.Link]
	FetchStudentEnrollments(ctx context.Context) models.CollectionResult[models.StudentWithSubjects]
}

// Tick outcomes reported to metrics.
const (
	tickCommitted = "committed"
	tickStale     = "stale"
	tickStopped   = "stopped"
	tickCancelled = "cancelled"
)

// SyncOptions tunes a SyncEngine.
type SyncOptions struct {
	// Location is the zone weekday and clock matching happen in.
	Location *time.Location
	// StudentID is the signed-in identity whose visible subjects are tracked.
	StudentID models.ID
	// Clock returns the evaluation instant. Defaults to time.Now.
	Clock func() time.Time
}

// SyncEngine owns the derived lab state. Each Refresh fetches the raw
// collections, derives maps and occupancy, and commits the result. Commits
// are ordered by the sequence number taken when a refresh starts: a refresh
// that finishes after a newer one has committed is discarded whole.
type SyncEngine struct {
	source      CollectionSource
	cache       *OccupantCache
	enrollments *EnrollmentState
	metrics     *MetricsService
	logger      *zap.Logger
	clock       func() time.Time
	location    *time.Location
	studentID   models.ID

	issued  atomic.Uint64
	stopped atomic.Bool

	commitMu  sync.Mutex
	committed uint64

	stateMu  sync.RWMutex
	snapshot *models.Snapshot
	derived  DerivedMaps

	pollMu sync.Mutex
	poller *jobs.Poller
}

// NewSyncEngine constructs a SyncEngine.
func NewSyncEngine(source CollectionSource, cache *OccupantCache, enrollments *EnrollmentState, metrics *MetricsService, logger *zap.Logger, opts SyncOptions) *SyncEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if enrollments == nil {
		enrollments = NewEnrollmentState()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &SyncEngine{
		source:      source,
		cache:       cache,
		enrollments: enrollments,
		metrics:     metrics,
		logger:      logger,
		clock:       opts.Clock,
		location:    opts.Location,
		studentID:   opts.StudentID,
	}
}

// Start begins polling every period. Calling Start on a running engine is a no-op.
func (e *SyncEngine) Start(ctx context.Context, period time.Duration) {
	e.pollMu.Lock()
	defer e.pollMu.Unlock()
	if e.poller != nil {
		return
	}
	e.stopped.Store(false)
	e.poller = jobs.StartPoller(ctx, "lab-sync", func(ctx context.Context) error {
		_, err := e.Refresh(ctx)
		return err
	}, jobs.PollerConfig{Period: period, Logger: e.logger, OnSkip: e.metrics.RecordTickSkipped})
}

// Stop ends polling. A refresh still in flight finishes but does not commit.
func (e *SyncEngine) Stop() {
	e.stopped.Store(true)
	e.pollMu.Lock()
	poller := e.poller
	e.poller = nil
	e.pollMu.Unlock()
	if poller != nil {
		poller.Stop()
		poller.Wait()
	}
}

type fetchedCollections struct {
	subjects    models.CollectionResult[models.Subject]
	instructors models.CollectionResult[models.Instructor]
	links       models.CollectionResult[models.Link]
	students    models.CollectionResult[models.StudentWithSubjects]
}

// Refresh runs one sync cycle.
func (e *SyncEngine) Refresh(ctx context.Context) (models.SyncSummary, error) {
	seq := e.issued.Add(1)
	started := time.Now()

	fetched := e.fetchAll(ctx)
	now := e.clock().In(e.location)

	subjects := fetched.subjects.Items()
	derived := BuildDerivedMaps(subjects, fetched.instructors.Items(), fetched.links.Items())

	occupying, err := Occupying(subjects, now)
	if err != nil {
		failures := countJoined(err)
		e.metrics.RecordParseFailures(failures)
		e.logger.Warn("subjects with malformed times skipped", zap.Uint64("seq", seq), zap.Int("count", failures), zap.Error(err))
	}

	publicSubjects := make([]models.Subject, 0, len(subjects))
	for _, subject := range subjects {
		publicSubjects = append(publicSubjects, subject.Public())
	}
	occupancy := derived.Merge(occupying)
	for i := range occupancy {
		occupancy[i].Subject = occupancy[i].Subject.Public()
	}

	snapshot := &models.Snapshot{
		Sequence:    seq,
		EvaluatedAt: now,
		Header:      HeaderFor(subjects),
		Subjects:    publicSubjects,
		Instructors: fetched.instructors.Items(),
		Links:       fetched.links.Items(),
		Students:    fetched.students.Items(),
		Occupants:   derived.Occupants,
		Schedule:    derived.Schedule(),
		Occupancy:   occupancy,
		Collections: e.collectionStatuses(fetched),
	}

	summary := models.SyncSummary{
		Sequence:    seq,
		EvaluatedAt: now,
		Occupied:    len(occupancy),
		Collections: snapshot.Collections,
	}

	outcome, cacheErr := e.commit(ctx, seq, snapshot, derived, fetched)
	e.metrics.ObserveTick(outcome, time.Since(started))
	summary.Committed = outcome == tickCommitted
	if summary.Committed {
		e.metrics.SetCommitted(len(occupancy), now)
		summary.Visible = len(e.VisibleSubjects(e.studentID, ""))
	} else {
		e.logger.Debug("sync cycle discarded", zap.Uint64("seq", seq), zap.String("outcome", outcome))
	}
	return summary, cacheErr
}

func (e *SyncEngine) fetchAll(ctx context.Context) fetchedCollections {
	var (
		f fetchedCollections
		g errgroup.Group
	)
	// Each fetch isolates its own failure in the tagged result.
	g.Go(func() error { f.subjects = e.source.FetchSubjects(ctx); return nil })
	g.Go(func() error { f.instructors = e.source.FetchInstructors(ctx); return nil })
	g.Go(func() error { f.links = e.source.FetchLinks(ctx); return nil })
	g.Go(func() error { f.students = e.source.FetchStudentEnrollments(ctx); return nil })
	_ = g.Wait()
	return f
}

func (e *SyncEngine) commit(ctx context.Context, seq uint64, snapshot *models.Snapshot, derived DerivedMaps, fetched fetchedCollections) (string, error) {
	e.commitMu.Lock()
	defer e.commitMu.Unlock()

	if e.stopped.Load() {
		return tickStopped, nil
	}
	// Fetches cut short by the caller say nothing about the remote, so the
	// cycle must not replace state or claim the newest sequence.
	if err := ctx.Err(); err != nil {
		return tickCancelled, err
	}
	if seq < e.committed {
		return tickStale, nil
	}
	e.committed = seq

	e.stateMu.Lock()
	if fetched.students.Kind == models.CollectionErr && e.snapshot != nil {
		snapshot.Students = e.snapshot.Students
	}
	e.snapshot = snapshot
	e.derived = derived
	e.stateMu.Unlock()

	if fetched.students.Kind != models.CollectionErr {
		e.enrollments.Replace(fetched.students.Items())
	}

	// Without a subject list the occupancy is unknown rather than empty, so
	// the last persisted occupant is kept.
	if isTransient(fetched.subjects) || e.cache == nil {
		return tickCommitted, nil
	}
	if _, err := e.cache.WriteThrough(ctx, seq, snapshot.Occupancy); err != nil {
		return tickCommitted, err
	}
	return tickCommitted, nil
}

func isTransient[T any](res models.CollectionResult[T]) bool {
	return res.Kind == models.CollectionErr && !errors.Is(res.Err, appErrors.ErrMalformedResponse)
}

func (e *SyncEngine) collectionStatuses(f fetchedCollections) []models.CollectionStatus {
	statuses := []models.CollectionStatus{
		collectionStatus(models.CollectionSubjects, f.subjects),
		collectionStatus(models.CollectionInstructors, f.instructors),
		collectionStatus(models.CollectionLinks, f.links),
		collectionStatus(models.CollectionEnrollments, f.students),
	}
	for _, status := range statuses {
		e.metrics.RecordFetch(status.Name, status.Status)
		switch status.Status {
		case "transient":
			e.logger.Debug("collection fetch failed, retrying next tick", zap.String("collection", status.Name), zap.String("error", status.Message))
		case "malformed":
			e.logger.Warn("collection payload malformed, treated as empty", zap.String("collection", status.Name), zap.String("error", status.Message))
		}
	}
	return statuses
}

func collectionStatus[T any](name string, res models.CollectionResult[T]) models.CollectionStatus {
	status := models.CollectionStatus{Name: name, Count: len(res.Items())}
	switch {
	case res.Kind == models.CollectionOk:
		status.Status = "ok"
	case res.Kind == models.CollectionEmpty:
		status.Status = "empty"
		status.Message = res.Reason
	case errors.Is(res.Err, appErrors.ErrMalformedResponse):
		status.Status = "malformed"
	default:
		status.Status = "transient"
	}
	if res.Err != nil {
		status.Message = res.Err.Error()
	}
	return status
}

func countJoined(err error) int {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return len(joined.Unwrap())
	}
	return 1
}

// Snapshot returns the last committed snapshot.
func (e *SyncEngine) Snapshot() (*models.Snapshot, bool) {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.snapshot, e.snapshot != nil
}

// Derived returns the derived maps of the last committed snapshot.
func (e *SyncEngine) Derived() DerivedMaps {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.derived
}

// Enrollments exposes the enrolment state.
func (e *SyncEngine) Enrollments() *EnrollmentState {
	return e.enrollments
}

// StudentID is the configured signed-in identity.
func (e *SyncEngine) StudentID() models.ID {
	return e.studentID
}

// VisibleSubjects lists subjects the student can still enrol into, filtered
// by query. It reads the enrolment state live, so a confirmed enrolment
// disappears immediately.
func (e *SyncEngine) VisibleSubjects(studentID models.ID, query string) []models.Subject {
	snapshot, ok := e.Snapshot()
	if !ok {
		return []models.Subject{}
	}
	visible := VisibleSubjects(snapshot.Subjects, e.enrollments.IDs(studentID))
	return FilterSubjects(visible, e.Derived(), query)
}

// VisibleGroups is VisibleSubjects grouped by instructor.
func (e *SyncEngine) VisibleGroups(studentID models.ID, query string) []models.InstructorSchedule {
	snapshot, ok := e.Snapshot()
	if !ok {
		return []models.InstructorSchedule{}
	}
	return GroupVisible(snapshot.Schedule, e.enrollments.IDs(studentID), query)
}

// EnrolledSubjects lists the student's enrolled subjects.
func (e *SyncEngine) EnrolledSubjects(studentID models.ID) []models.Subject {
	subjects := e.enrollments.Subjects(studentID)
	public := make([]models.Subject, 0, len(subjects))
	for _, subject := range subjects {
		public = append(public, subject.Public())
	}
	return public
}

// Instructors lists instructors other than exclude.
func (e *SyncEngine) Instructors(exclude models.ID) []models.Instructor {
	snapshot, ok := e.Snapshot()
	if !ok {
		return []models.Instructor{}
	}
	instructors := make([]models.Instructor, 0, len(snapshot.Instructors))
	for _, instructor := range snapshot.Instructors {
		if exclude != "" && instructor.ID == exclude {
			continue
		}
		instructors = append(instructors, instructor)
	}
	return instructors
}

// LinkableSubjects lists subjects no instructor is linked to yet.
func (e *SyncEngine) LinkableSubjects() []models.Subject {
	snapshot, ok := e.Snapshot()
	if !ok {
		return []models.Subject{}
	}
	return UnlinkedSubjects(snapshot.Subjects, snapshot.Links)
}

// InstructorDetail returns the instructor with their linked subjects in
// discovery order.
func (e *SyncEngine) InstructorDetail(id models.ID) (models.InstructorDetail, error) {
	snapshot, ok := e.Snapshot()
	if !ok {
		return models.InstructorDetail{}, appErrors.ErrNotReady
	}
	for _, instructor := range snapshot.Instructors {
		if instructor.ID != id {
			continue
		}
		linked := e.Derived().ByInstructor[id]
		subjects := make([]models.Subject, 0, len(linked))
		for _, subject := range linked {
			subjects = append(subjects, subject.Public())
		}
		return models.InstructorDetail{Instructor: instructor, Subjects: subjects}, nil
	}
	return models.InstructorDetail{}, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("instructor %s not found", id))
}

// SubjectRoster lists the students enrolled in a subject: those in the last
// fetched enrolment collection, in collection order, then local enrolments
// the remote has not reflected yet.
func (e *SyncEngine) SubjectRoster(subjectID models.ID) (models.SubjectRoster, error) {
	snapshot, ok := e.Snapshot()
	if !ok {
		return models.SubjectRoster{}, appErrors.ErrNotReady
	}
	roster := models.SubjectRoster{Students: []models.RosterEntry{}}
	found := false
	for _, subject := range snapshot.Subjects {
		if subject.ID == subjectID {
			roster.Subject = subject
			found = true
			break
		}
	}
	if !found {
		return models.SubjectRoster{}, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("subject %s not found", subjectID))
	}

	seen := make(map[models.ID]struct{})
	known := make(map[models.ID]models.StudentWithSubjects, len(snapshot.Students))
	for _, student := range snapshot.Students {
		if _, ok := known[student.ID]; !ok {
			known[student.ID] = student
		}
		if _, dup := seen[student.ID]; dup {
			continue
		}
		if _, enrolled := idSet(student.Subjects)[subjectID]; enrolled {
			seen[student.ID] = struct{}{}
			roster.Students = append(roster.Students, rosterEntry(student))
		}
	}
	for _, studentID := range e.enrollments.PendingStudents(subjectID) {
		if _, dup := seen[studentID]; dup {
			continue
		}
		seen[studentID] = struct{}{}
		student, ok := known[studentID]
		if !ok {
			student = models.StudentWithSubjects{ID: studentID}
		}
		roster.Students = append(roster.Students, rosterEntry(student))
	}
	return roster, nil
}

func rosterEntry(student models.StudentWithSubjects) models.RosterEntry {
	return models.RosterEntry{
		ID:            student.ID,
		Name:          student.Name,
		StudentNumber: student.StudentNumber,
		Email:         student.Email,
	}
}

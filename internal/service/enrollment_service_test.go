package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/maclab-sync/internal/models"
	appErrors "github.com/noah-isme/maclab-sync/pkg/errors"
)

func newEnrollmentFixture() (*EnrollmentService, *fakeSource, *fakeWriter) {
	source := newFakeSource()
	writer := &fakeWriter{}
	svc := NewEnrollmentService(source, writer, NewEnrollmentState(), NewMetricsService(), validator.New(), zap.NewNop())
	return svc, source, writer
}

func TestEnrollSuccessRemovesSubjectFromVisible(t *testing.T) {
	svc, _, writer := newEnrollmentFixture()

	result, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "7", SubjectID: "1", Key: "net-key"})
	require.NoError(t, err)
	assert.False(t, result.AlreadyEnrolled)
	assert.Equal(t, "Networks", result.Subject.Name)
	assert.Empty(t, result.Subject.SecretKey)

	require.Len(t, writer.enrollments, 1)
	assert.Equal(t, models.Enrollment{StudentID: "7", SubjectID: "1"}, writer.enrollments[0])

	visible := VisibleSubjects(labSubjects(), svc.State().IDs("7"))
	for _, subject := range visible {
		assert.NotEqual(t, models.ID("1"), subject.ID)
	}
	assert.Len(t, visible, 2)
}

func TestEnrollAcceptsLegacyQRKey(t *testing.T) {
	svc, _, _ := newEnrollmentFixture()

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "7", SubjectID: "2", Key: "db-key"})
	require.NoError(t, err)
	assert.True(t, svc.State().Contains("7", "2"))
}

func TestEnrollInvalidKeyLeavesStateUntouched(t *testing.T) {
	svc, _, writer := newEnrollmentFixture()

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "7", SubjectID: "1", Key: "NET-KEY"})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrInvalidKey)
	assert.Empty(t, writer.enrollments)
	assert.Empty(t, svc.State().Subjects("7"))
}

func TestEnrollUnknownSubject(t *testing.T) {
	svc, _, writer := newEnrollmentFixture()

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "7", SubjectID: "42", Key: "x"})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	assert.Empty(t, writer.enrollments)
}

func TestEnrollRemoteRejected(t *testing.T) {
	svc, _, writer := newEnrollmentFixture()
	writer.err = appErrors.Clone(appErrors.ErrRemoteRejected, "enrolment rejected")

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "7", SubjectID: "1", Key: "net-key"})
	assert.ErrorIs(t, err, appErrors.ErrRemoteRejected)
	assert.False(t, svc.State().Contains("7", "1"))
}

func TestEnrollUntypedWriteErrorIsRejection(t *testing.T) {
	svc, _, writer := newEnrollmentFixture()
	writer.err = errors.New("boom")

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "7", SubjectID: "1", Key: "net-key"})
	assert.ErrorIs(t, err, appErrors.ErrRemoteRejected)
}

func TestEnrollTransientSubjectFetch(t *testing.T) {
	svc, source, writer := newEnrollmentFixture()
	source.setSubjects(models.Failed[models.Subject](appErrors.Clone(appErrors.ErrTransientFetch, "down")))

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "7", SubjectID: "1", Key: "net-key"})
	assert.ErrorIs(t, err, appErrors.ErrTransientFetch)
	assert.Empty(t, writer.enrollments)
}

func TestEnrollAlreadyEnrolledIsNoop(t *testing.T) {
	svc, _, writer := newEnrollmentFixture()
	svc.State().Replace([]models.StudentWithSubjects{{ID: "7", Subjects: []models.Subject{{ID: "1", Name: "Networks"}}}})

	result, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "7", SubjectID: "1", Key: "net-key"})
	require.NoError(t, err)
	assert.True(t, result.AlreadyEnrolled)
	assert.Empty(t, writer.enrollments)
	assert.Len(t, svc.State().Subjects("7"), 1)
}

func TestEnrollValidation(t *testing.T) {
	svc, _, _ := newEnrollmentFixture()

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "7", SubjectID: "1"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestEnrollConcurrentCallsShareOneWrite(t *testing.T) {
	svc, _, writer := newEnrollmentFixture()
	writer.block = make(chan struct{})
	writer.entered = make(chan struct{}, 2)

	req := EnrollRequest{StudentID: "7", SubjectID: "1", Key: "net-key"}
	var wg sync.WaitGroup
	results := make([]*EnrollResult, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Enroll(context.Background(), req)
		}(i)
		if i == 0 {
			<-writer.entered
		}
	}
	time.Sleep(20 * time.Millisecond)
	close(writer.block)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, 1, writer.enrollmentCount())
	assert.Len(t, svc.State().Subjects("7"), 1)
}

func TestEnrollSharedCallSurvivesFirstCallerCancel(t *testing.T) {
	svc, _, writer := newEnrollmentFixture()
	writer.block = make(chan struct{})
	writer.entered = make(chan struct{}, 2)

	req := EnrollRequest{StudentID: "7", SubjectID: "1", Key: "net-key"}
	firstCtx, cancelFirst := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = svc.Enroll(firstCtx, req)
	}()
	<-writer.entered
	go func() {
		defer wg.Done()
		_, errs[1] = svc.Enroll(context.Background(), req)
	}()
	time.Sleep(20 * time.Millisecond)
	cancelFirst()
	close(writer.block)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, 1, writer.enrollmentCount())
	assert.True(t, svc.State().Contains("7", "1"))
}

func TestEnrollmentStateReplaceKeepsPendingLocal(t *testing.T) {
	state := NewEnrollmentState()
	state.Append("7", models.Subject{ID: "1"})
	state.Append("7", models.Subject{ID: "2"})

	// A sync that started before the enrolments sees neither.
	state.Replace([]models.StudentWithSubjects{{ID: "7", Subjects: []models.Subject{{ID: "3"}}}})
	assert.True(t, state.Contains("7", "1"))
	assert.True(t, state.Contains("7", "2"))
	assert.True(t, state.Contains("7", "3"))

	// Once the server reflects an enrolment the local copy is dropped.
	state.Replace([]models.StudentWithSubjects{{ID: "7", Subjects: []models.Subject{{ID: "1"}, {ID: "3"}}}})
	assert.Len(t, state.Subjects("7"), 3)

	state.Replace([]models.StudentWithSubjects{{ID: "7", Subjects: []models.Subject{{ID: "1"}, {ID: "2"}, {ID: "3"}}}})
	assert.Len(t, state.Subjects("7"), 3)
	assert.False(t, state.Contains("8", "1"))
}

func TestVisibleSubjectsExcludesEnrolled(t *testing.T) {
	visible := VisibleSubjects(labSubjects(), map[models.ID]struct{}{"2": {}})
	require.Len(t, visible, 2)
	assert.Equal(t, models.ID("1"), visible[0].ID)
	assert.Equal(t, models.ID("3"), visible[1].ID)

	assert.Len(t, VisibleSubjects(labSubjects(), nil), 3)
}

func TestFilterSubjectsMatchesNameOrInstructor(t *testing.T) {
	derived := BuildDerivedMaps(labSubjects(), labInstructors(), labLinks())

	byName := FilterSubjects(labSubjects(), derived, "  DATA ")
	require.Len(t, byName, 1)
	assert.Equal(t, models.ID("2"), byName[0].ID)

	byInstructor := FilterSubjects(labSubjects(), derived, "ana")
	require.Len(t, byInstructor, 1)
	assert.Equal(t, models.ID("1"), byInstructor[0].ID)

	assert.Len(t, FilterSubjects(labSubjects(), derived, ""), 3)
	assert.Empty(t, FilterSubjects(labSubjects(), derived, "chemistry"))
}

func TestGroupVisible(t *testing.T) {
	schedule := BuildDerivedMaps(labSubjects(), labInstructors(), labLinks()).Schedule()
	enrolled := map[models.ID]struct{}{"1": {}}

	groups := GroupVisible(schedule, enrolled, "")
	require.Len(t, groups, 1, "Ana's only subject is enrolled")
	assert.Equal(t, "Ben Reyes", groups[0].InstructorName)
	require.Len(t, groups[0].Subjects, 1)
	assert.Equal(t, models.ID("2"), groups[0].Subjects[0].ID)

	groups = GroupVisible(schedule, enrolled, "ana")
	require.Len(t, groups, 1, "instructor match keeps the group")
	assert.Empty(t, groups[0].Subjects)

	groups = GroupVisible(schedule, nil, "networks")
	require.Len(t, groups, 2)
	assert.Equal(t, models.ID("1"), groups[1].Subjects[0].ID)
}

package service

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/noah-isme/maclab-sync/internal/models"
	appErrors "github.com/noah-isme/maclab-sync/pkg/errors"
)

// monday0930 is a Monday inside the 09:00-10:00 lab window.
var monday0930 = time.Date(2024, time.January, 1, 9, 30, 0, 0, time.UTC)

func labSubjects() []models.Subject {
	return []models.Subject{
		{ID: "1", Name: "Networks", Code: "IT101", Day: "Monday", StartTime: "09:00", EndTime: "10:00", Section: "A", SchoolYear: "2024-2025", Semester: "1st", SecretKey: "net-key"},
		{ID: "2", Name: "Databases", Code: "IT202", Day: "Monday", StartTime: "10:00", EndTime: "11:30", Section: "B", SchoolYear: "2024-2025", Semester: "1st", QR: "db-key"},
		{ID: "3", Name: "Graphics", Code: "IT303", Day: "Tuesday", StartTime: "13:00", EndTime: "15:00", Section: "A", SchoolYear: "2024-2025", Semester: "1st", SecretKey: "gfx-key"},
	}
}

func labInstructors() []models.Instructor {
	return []models.Instructor{
		{ID: "10", Username: "Ana Cruz", Email: "ana@example.edu"},
		{ID: "11", Username: "Ben Reyes", Email: "ben@example.edu"},
	}
}

func labLinks() []models.Link {
	return []models.Link{
		{SubjectID: "1", UserID: "10"},
		{SubjectID: "2", UserID: "11"},
		{SubjectID: "1", UserID: "11"},
	}
}

// fakeSource serves fixed collections. subjectsHook, when set, replaces the
// subjects answer and receives the 1-based call number.
type fakeSource struct {
	mu           sync.Mutex
	subjects     models.CollectionResult[models.Subject]
	instructors  models.CollectionResult[models.Instructor]
	links        models.CollectionResult[models.Link]
	students     models.CollectionResult[models.StudentWithSubjects]
	subjectsHook func(call int32) models.CollectionResult[models.Subject]
	subjectCalls atomic.Int32
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		subjects:    models.Ok(labSubjects()),
		instructors: models.Ok(labInstructors()),
		links:       models.Ok(labLinks()),
		students:    models.Ok([]models.StudentWithSubjects{}),
	}
}

func (f *fakeSource) setSubjects(res models.CollectionResult[models.Subject]) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subjects = res
}

func (f *fakeSource) setStudents(res models.CollectionResult[models.StudentWithSubjects]) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.students = res
}

func (f *fakeSource) FetchSubjects(ctx context.Context) models.CollectionResult[models.Subject] {
	call := f.subjectCalls.Add(1)
	if f.subjectsHook != nil {
		return f.subjectsHook(call)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subjects
}

func (f *fakeSource) FetchInstructors(ctx context.Context) models.CollectionResult[models.Instructor] {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.instructors
}

func (f *fakeSource) FetchLinks(ctx context.Context) models.CollectionResult[models.Link] {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.links
}

func (f *fakeSource) FetchStudentEnrollments(ctx context.Context) models.CollectionResult[models.StudentWithSubjects] {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.students
}

func (f *fakeSource) FetchSubject(ctx context.Context, id models.ID) (models.Subject, error) {
	res := f.FetchSubjects(ctx)
	if res.Kind == models.CollectionErr {
		return models.Subject{}, res.Err
	}
	for _, subject := range res.Items() {
		if subject.ID == id {
			return subject, nil
		}
	}
	return models.Subject{}, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
}

type fakeWriter struct {
	mu          sync.Mutex
	enrollments []models.Enrollment
	links       []models.Link
	err         error
	block       chan struct{}
	entered     chan struct{}
}

func (w *fakeWriter) CreateEnrollment(ctx context.Context, enrollment models.Enrollment) error {
	if w.entered != nil {
		w.entered <- struct{}{}
	}
	if w.block != nil {
		<-w.block
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.enrollments = append(w.enrollments, enrollment)
	return nil
}

func (w *fakeWriter) CreateLink(ctx context.Context, link models.Link) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.links = append(w.links, link)
	return nil
}

func (w *fakeWriter) enrollmentCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.enrollments)
}

// memoryCache is an in-process CacheRepository storing JSON like the real backends.
type memoryCache struct {
	mu     sync.Mutex
	data   map[string][]byte
	setErr error
	writes int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: make(map[string][]byte)}
}

func (m *memoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.data[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCache) Set(ctx context.Context, key string, value interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	if m.setErr != nil {
		return m.setErr
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.data[key] = raw
	return nil
}

func (m *memoryCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	delete(m.data, key)
	return nil
}

func (m *memoryCache) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}

func (m *memoryCache) raw(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return string(m.data[key])
}

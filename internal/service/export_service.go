package service

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/maclab-sync/internal/models"
	appErrors "github.com/noah-isme/maclab-sync/pkg/errors"
	"github.com/noah-isme/maclab-sync/pkg/export"
)

// Export formats.
const (
	ExportCSV = "csv"
	ExportPDF = "pdf"
)

var scheduleHeaders = []string{"Instructor", "Subject", "Code", "Day", "Time", "Section"}

// ExportedFile is a rendered schedule document.
type ExportedFile struct {
	Filename    string
	ContentType string
	Body        []byte
}

// ExportService renders the lab schedule for printing.
type ExportService struct {
	csv     *export.CSVExporter
	pdf     *export.PDFExporter
	metrics *MetricsService
	logger  *zap.Logger
}

// NewExportService constructs ExportService.
func NewExportService(metrics *MetricsService, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{csv: export.NewCSVExporter(), pdf: export.NewPDFExporter(), metrics: metrics, logger: logger}
}

// ScheduleDataset flattens the instructor schedule into table rows. Subjects
// with malformed times are left out and reported through the returned error;
// the remaining rows are still returned.
func ScheduleDataset(schedule []models.InstructorSchedule) (export.Dataset, error) {
	data := export.Dataset{Headers: scheduleHeaders}
	var errs []error
	for _, group := range schedule {
		for _, subject := range group.Subjects {
			start, err := FormatClock(subject.StartTime)
			if err != nil {
				errs = append(errs, fmt.Errorf("subject %s: %w", subject.ID, err))
				continue
			}
			end, err := FormatClock(subject.EndTime)
			if err != nil {
				errs = append(errs, fmt.Errorf("subject %s: %w", subject.ID, err))
				continue
			}
			data.Rows = append(data.Rows, map[string]string{
				"Instructor": group.InstructorName,
				"Subject":    subject.Name,
				"Code":       subject.Code,
				"Day":        subject.Day,
				"Time":       start + " - " + end,
				"Section":    subject.Section,
			})
		}
	}
	return data, errors.Join(errs...)
}

// Export renders the snapshot's schedule in the requested format.
func (s *ExportService) Export(snapshot *models.Snapshot, format string) (*ExportedFile, error) {
	if snapshot == nil {
		return nil, appErrors.ErrNotReady
	}
	data, err := ScheduleDataset(snapshot.Schedule)
	if err != nil {
		failures := countJoined(err)
		s.metrics.RecordParseFailures(failures)
		s.logger.Warn("schedule rows with malformed times skipped", zap.Int("count", failures), zap.Error(err))
	}

	switch strings.ToLower(format) {
	case "", ExportCSV:
		body, err := s.csv.Render(data)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return &ExportedFile{Filename: "maclab-schedule.csv", ContentType: "text/csv", Body: body}, nil
	case ExportPDF:
		data.Title = "Maclab Schedule"
		data.Subtitle = scheduleSubtitle(snapshot.Header)
		body, err := s.pdf.Render(data)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return &ExportedFile{Filename: "maclab-schedule.pdf", ContentType: "application/pdf", Body: body}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
}

func scheduleSubtitle(header models.ScheduleHeader) string {
	year, semester := header.SchoolYear, header.Semester
	if year == "" {
		year = "N/A"
	}
	if semester == "" {
		semester = "N/A"
	}
	return fmt.Sprintf("School Year: %s | Semester: %s", year, semester)
}

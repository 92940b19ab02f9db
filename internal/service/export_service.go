package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/casebeam/caseload-api/internal/models"
	"github.com/casebeam/caseload-api/internal/scheduling"
	appErrors "github.com/casebeam/caseload-api/pkg/errors"
	"github.com/casebeam/caseload-api/pkg/export"
)

type exportStudentSource interface {
	ListActiveByProvider(ctx context.Context, providerID, schoolID, schoolSite string) ([]models.Student, error)
}

type exportSessionSource interface {
	WeekInstances(ctx context.Context, providerID, dateFrom, dateTo string) ([]models.ScheduleSession, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportFile is one rendered download.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportService renders caseload and schedule exports. Student rows carry
// initials only, so exports stay shareable with school staff.
type ExportService struct {
	students exportStudentSource
	sessions exportSessionSource
	csv      csvRenderer
	pdf      pdfRenderer
	logger   *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(students exportStudentSource, sessions exportSessionSource, csv csvRenderer, pdf pdfRenderer, logger *zap.Logger) *ExportService {
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{students: students, sessions: sessions, csv: csv, pdf: pdf, logger: logger}
}

// CaseloadCSV renders the provider's active caseload as CSV.
func (s *ExportService) CaseloadCSV(ctx context.Context, providerID, schoolID, schoolSite string) (*ExportFile, error) {
	students, err := s.students.ListActiveByProvider(ctx, providerID, schoolID, schoolSite)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load caseload")
	}

	rows := make([]map[string]string, 0, len(students))
	for _, student := range students {
		rows = append(rows, map[string]string{
			"Initials":     student.Initials,
			"Grade":        student.GradeLevel,
			"Teacher":      student.TeacherName,
			"Sessions/Wk":  fmt.Sprintf("%d", student.SessionsPerWeek),
			"Minutes":      fmt.Sprintf("%d", student.MinutesPerSession),
			"Service":      student.ServiceType,
			"Delivered By": string(student.DeliveredBy),
			"School":       student.SchoolSite,
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Initials", "Grade", "Teacher", "Sessions/Wk", "Minutes", "Service", "Delivered By", "School"},
		Rows:    rows,
	}
	payload, err := s.csv.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render caseload csv")
	}
	return &ExportFile{
		Filename:    exportFilename("caseload", schoolSite, "csv"),
		ContentType: "text/csv",
		Data:        payload,
	}, nil
}

// WeekPDF renders the dated sessions of one Monday-based week as a PDF.
func (s *ExportService) WeekPDF(ctx context.Context, providerID string, anchor time.Time) (*ExportFile, error) {
	weekStart := anchor.AddDate(0, 0, -mondayOffset(anchor.Weekday()))
	from := weekStart.Format(scheduling.DateLayout)
	to := weekStart.AddDate(0, 0, 6).Format(scheduling.DateLayout)

	sessions, err := s.sessions.WeekInstances(ctx, providerID, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load week schedule")
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		di, dj := "", ""
		if sessions[i].SessionDate != nil {
			di = *sessions[i].SessionDate
		}
		if sessions[j].SessionDate != nil {
			dj = *sessions[j].SessionDate
		}
		if di != dj {
			return di < dj
		}
		return sessions[i].StartTime < sessions[j].StartTime
	})

	rows := make([]map[string]string, 0, len(sessions))
	for _, session := range sessions {
		date := ""
		if session.SessionDate != nil {
			date = *session.SessionDate
		}
		rows = append(rows, map[string]string{
			"Date":    date,
			"Time":    fmt.Sprintf("%s-%s", session.StartTime, session.EndTime),
			"Student": session.StudentID,
			"Service": session.ServiceType,
			"Status":  string(session.Status),
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Date", "Time", "Student", "Service", "Status"},
		Rows:    rows,
	}
	title := fmt.Sprintf("Week of %s", from)
	payload, err := s.pdf.Render(dataset, title)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render week pdf")
	}
	return &ExportFile{
		Filename:    exportFilename("schedule", from, "pdf"),
		ContentType: "application/pdf",
		Data:        payload,
	}, nil
}

func exportFilename(kind, qualifier, ext string) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	qualifier = strings.ToLower(strings.ReplaceAll(strings.TrimSpace(qualifier), " ", "_"))
	if qualifier == "" {
		qualifier = "all"
	}
	if len(qualifier) > 60 {
		qualifier = qualifier[:60]
	}
	return fmt.Sprintf("%s_%s_%s.%s", kind, qualifier, timestamp, ext)
}

package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/casebeam/caseload-api/internal/models"
	"github.com/casebeam/caseload-api/pkg/export"
)

type stubStudentSource struct {
	students []models.Student
}

func (s *stubStudentSource) ListActiveByProvider(ctx context.Context, providerID, schoolID, schoolSite string) ([]models.Student, error) {
	return s.students, nil
}

type stubSessionSource struct {
	sessions []models.ScheduleSession
}

func (s *stubSessionSource) WeekInstances(ctx context.Context, providerID, dateFrom, dateTo string) ([]models.ScheduleSession, error) {
	return s.sessions, nil
}

type capturingPDF struct {
	dataset export.Dataset
	title   string
}

func (p *capturingPDF) Render(data export.Dataset, title string) ([]byte, error) {
	p.dataset = data
	p.title = title
	return []byte("%PDF-1.4 stub"), nil
}

func TestExportServiceCaseloadCSV(t *testing.T) {
	students := &stubStudentSource{students: []models.Student{
		caseloadEntry("s1", "prov-1"),
	}}
	svc := NewExportService(students, &stubSessionSource{}, nil, nil, zap.NewNop())

	file, err := svc.CaseloadCSV(context.Background(), "prov-1", "", "Lincoln Elementary")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", file.ContentType)
	assert.True(t, strings.HasPrefix(file.Filename, "caseload_lincoln_elementary_"))
	assert.True(t, strings.HasSuffix(file.Filename, ".csv"))

	body := string(file.Data)
	assert.Contains(t, body, "Initials")
	assert.Contains(t, body, "J.D.")
	assert.Contains(t, body, "Ms. Rivera")
	assert.Contains(t, body, "speech")
}

func TestExportServiceCaseloadCSVEmpty(t *testing.T) {
	svc := NewExportService(&stubStudentSource{}, &stubSessionSource{}, nil, nil, zap.NewNop())

	file, err := svc.CaseloadCSV(context.Background(), "prov-1", "", "")
	require.NoError(t, err)
	assert.Contains(t, file.Filename, "caseload_all_")
	assert.Contains(t, string(file.Data), "Initials")
}

func TestExportServiceWeekPDF(t *testing.T) {
	tuesday := "2026-09-08"
	monday := "2026-09-07"
	templateID := "t1"
	late := weeklyTemplate("i2", "s2", 2, "10:00", "10:30")
	late.SessionDate = &tuesday
	late.TemplateID = &templateID
	early := weeklyTemplate("i1", "s1", 1, "09:00", "09:30")
	early.SessionDate = &monday
	early.TemplateID = &templateID

	sessions := &stubSessionSource{sessions: []models.ScheduleSession{late, early}}
	pdf := &capturingPDF{}
	svc := NewExportService(&stubStudentSource{}, sessions, nil, pdf, zap.NewNop())

	anchor := time.Date(2026, 9, 9, 12, 0, 0, 0, time.UTC)
	file, err := svc.WeekPDF(context.Background(), "prov-1", anchor)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", file.ContentType)
	assert.Equal(t, "Week of 2026-09-07", pdf.title)
	require.Len(t, pdf.dataset.Rows, 2)
	// Rows come out date-ordered regardless of store order.
	assert.Equal(t, "2026-09-07", pdf.dataset.Rows[0]["Date"])
	assert.Equal(t, "2026-09-08", pdf.dataset.Rows[1]["Date"])
	assert.Equal(t, "09:00-09:30", pdf.dataset.Rows[0]["Time"])
}

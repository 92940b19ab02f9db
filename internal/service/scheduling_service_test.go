package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/casebeam/caseload-api/internal/dto"
	"github.com/casebeam/caseload-api/internal/models"
	"github.com/casebeam/caseload-api/internal/scheduling"
	appErrors "github.com/casebeam/caseload-api/pkg/errors"
	"github.com/casebeam/caseload-api/pkg/jobs"
)

// stubSchedulingStore serves canned scheduling data. Mutating fingerprint
// between calls simulates a concurrent writer.
type stubSchedulingStore struct {
	availability []models.ProviderAvailability
	bells        []models.BellSchedule
	activities   []models.SpecialActivity
	sessions     []models.ScheduleSession
	hours        []models.SchoolHours
	fingerprint  models.SessionFingerprint

	// fingerprintSeq, when set, is consumed one value per call before
	// falling back to fingerprint.
	fingerprintSeq []models.SessionFingerprint
}

func (s *stubSchedulingStore) ProviderAvailability(ctx context.Context, providerID string, school scheduling.SchoolIdentifier) ([]models.ProviderAvailability, error) {
	return s.availability, nil
}

func (s *stubSchedulingStore) BellSchedules(ctx context.Context, school scheduling.SchoolIdentifier) ([]models.BellSchedule, error) {
	return s.bells, nil
}

func (s *stubSchedulingStore) SpecialActivities(ctx context.Context, school scheduling.SchoolIdentifier) ([]models.SpecialActivity, error) {
	return s.activities, nil
}

func (s *stubSchedulingStore) TemplateSessions(ctx context.Context, providerID string, school scheduling.SchoolIdentifier) ([]models.ScheduleSession, error) {
	return s.sessions, nil
}

func (s *stubSchedulingStore) SchoolHours(ctx context.Context, school scheduling.SchoolIdentifier) ([]models.SchoolHours, error) {
	return s.hours, nil
}

func (s *stubSchedulingStore) SessionFingerprint(ctx context.Context, providerID string, school scheduling.SchoolIdentifier) (models.SessionFingerprint, error) {
	if len(s.fingerprintSeq) > 0 {
		next := s.fingerprintSeq[0]
		s.fingerprintSeq = s.fingerprintSeq[1:]
		return next, nil
	}
	return s.fingerprint, nil
}

func providerDays(providerID, site string, days ...int) []models.ProviderAvailability {
	out := make([]models.ProviderAvailability, 0, len(days))
	for _, day := range days {
		out = append(out, models.ProviderAvailability{ProviderID: providerID, SchoolSite: site, DayOfWeek: day})
	}
	return out
}

type mockCaseloadRepo struct {
	students map[string]models.Student
	grades   map[string]string
}

func (m *mockCaseloadRepo) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if s, ok := m.students[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCaseloadRepo) ListActiveByProvider(ctx context.Context, providerID, schoolID, schoolSite string) ([]models.Student, error) {
	out := make([]models.Student, 0, len(m.students))
	for _, s := range m.students {
		if s.ProviderID == providerID && s.Active {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockCaseloadRepo) GradeLevels(ctx context.Context, providerID string) (map[string]string, error) {
	return m.grades, nil
}

type mockScheduleWriter struct {
	db       *sqlx.DB
	created  []models.ScheduleSession
	cleared  []string
	txOpened int
}

func (m *mockScheduleWriter) BeginTxx(ctx context.Context) (*sqlx.Tx, error) {
	m.txOpened++
	return m.db.BeginTxx(ctx, nil)
}

func (m *mockScheduleWriter) BulkCreateTemplatesTx(ctx context.Context, tx *sqlx.Tx, sessions []models.ScheduleSession) error {
	for i := range sessions {
		if sessions[i].ID == "" {
			sessions[i].ID = "tpl-" + sessions[i].StudentID + "-" + sessions[i].StartTime
		}
		m.created = append(m.created, sessions[i])
	}
	return nil
}

func (m *mockScheduleWriter) DeleteTemplatesForStudentTx(ctx context.Context, tx *sqlx.Tx, studentID, providerID string) error {
	m.cleared = append(m.cleared, studentID)
	return nil
}

type mockQueue struct {
	jobs []jobs.Job
}

func (m *mockQueue) Enqueue(job jobs.Job) error {
	m.jobs = append(m.jobs, job)
	return nil
}

// memoryCacheRepo is an in-process CacheRepository for tests.
type memoryCacheRepo struct {
	entries  map[string][]byte
	patterns []string
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{entries: make(map[string][]byte)}
}

func (m *memoryCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.entries[key] = raw
	return nil
}

func (m *memoryCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	m.patterns = append(m.patterns, pattern)
	m.entries = make(map[string][]byte)
	return nil
}

func newSchedulingFixture(t *testing.T) (*SchedulingService, *mockCaseloadRepo, *mockScheduleWriter, *mockQueue, *stubSchedulingStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := &stubSchedulingStore{
		availability: providerDays("prov-1", "Lincoln Elementary", 1, 2, 3, 4, 5),
	}
	students := &mockCaseloadRepo{
		students: map[string]models.Student{"s1": caseloadEntry("s1", "prov-1")},
		grades:   map[string]string{"s1": "3"},
	}
	writer := &mockScheduleWriter{db: sqlx.NewDb(db, "sqlmock")}
	queue := &mockQueue{}
	svc := NewSchedulingService(
		students, writer, store, nil, nil, queue,
		scheduling.DistributionConfig{},
		scheduling.DataManagerConfig{RetryAttempts: 1, RetryDelay: time.Millisecond},
		validator.New(), zap.NewNop(),
	)
	return svc, students, writer, queue, store, mock
}

func TestSchedulingServiceDistributePersistsPlacements(t *testing.T) {
	svc, _, writer, queue, _, mock := newSchedulingFixture(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	resp, err := svc.Distribute(context.Background(), "prov-1", dto.DistributeRequest{StudentID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, "s1", resp.StudentID)
	assert.Len(t, resp.Placements, 2)
	assert.Empty(t, resp.Unscheduled)
	assert.Len(t, writer.created, 2)
	assert.Empty(t, writer.cleared)

	require.Len(t, queue.jobs, 1)
	assert.Equal(t, JobTypeGenerateInstances, queue.jobs[0].Type)
	payload, ok := queue.jobs[0].Payload.(InstanceGenerationPayload)
	require.True(t, ok)
	assert.Len(t, payload.TemplateIDs, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSchedulingServiceDistributeReplaceClearsTemplates(t *testing.T) {
	svc, _, writer, _, _, mock := newSchedulingFixture(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	_, err := svc.Distribute(context.Background(), "prov-1", dto.DistributeRequest{StudentID: "s1", Replace: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, writer.cleared)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSchedulingServiceDistributeReplaceFreesOccupiedSlots(t *testing.T) {
	svc, students, writer, queue, store, mock := newSchedulingFixture(t)
	// One work day and a school-hours window with room for exactly one
	// 30-minute session, already held by the student's current template.
	store.availability = providerDays("prov-1", "Lincoln Elementary", 1)
	store.hours = []models.SchoolHours{{SchoolSite: "Lincoln Elementary", StartTime: "09:00", EndTime: "09:30"}}
	store.sessions = []models.ScheduleSession{{
		ID:         "tpl-old",
		StudentID:  "s1",
		ProviderID: "prov-1",
		DayOfWeek:  1,
		StartTime:  "09:00",
		EndTime:    "09:30",
		SchoolSite: "Lincoln Elementary",
	}}
	entry := caseloadEntry("s1", "prov-1")
	entry.SessionsPerWeek = 1
	students.students["s1"] = entry
	mock.ExpectBegin()
	mock.ExpectCommit()

	resp, err := svc.Distribute(context.Background(), "prov-1", dto.DistributeRequest{StudentID: "s1", Replace: true})
	require.NoError(t, err)
	// The old template must not block its own replacement.
	assert.Len(t, resp.Placements, 1)
	assert.Empty(t, resp.Unscheduled)
	assert.Equal(t, []string{"s1"}, writer.cleared)
	assert.Len(t, writer.created, 1)
	require.Len(t, queue.jobs, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSchedulingServiceDistributeReplaceClearsEvenWhenNothingFits(t *testing.T) {
	svc, students, writer, queue, store, mock := newSchedulingFixture(t)
	// The window is too short for any placement, so the run produces zero
	// placements but must still clear the student's old templates.
	store.availability = providerDays("prov-1", "Lincoln Elementary", 1)
	store.hours = []models.SchoolHours{{SchoolSite: "Lincoln Elementary", StartTime: "09:00", EndTime: "09:20"}}
	store.sessions = []models.ScheduleSession{{
		ID:         "tpl-old",
		StudentID:  "s1",
		ProviderID: "prov-1",
		DayOfWeek:  1,
		StartTime:  "09:00",
		EndTime:    "09:20",
		SchoolSite: "Lincoln Elementary",
	}}
	entry := caseloadEntry("s1", "prov-1")
	entry.SessionsPerWeek = 1
	students.students["s1"] = entry
	mock.ExpectBegin()
	mock.ExpectCommit()

	resp, err := svc.Distribute(context.Background(), "prov-1", dto.DistributeRequest{StudentID: "s1", Replace: true})
	require.NoError(t, err)
	assert.Empty(t, resp.Placements)
	assert.NotEmpty(t, resp.Unscheduled)
	assert.Equal(t, []string{"s1"}, writer.cleared)
	assert.Empty(t, writer.created)
	assert.Empty(t, queue.jobs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSchedulingServiceDistributeForbidsOtherProvider(t *testing.T) {
	svc, _, writer, _, _, _ := newSchedulingFixture(t)

	_, err := svc.Distribute(context.Background(), "prov-2", dto.DistributeRequest{StudentID: "s1"})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
	assert.Zero(t, writer.txOpened)
}

func TestSchedulingServiceDistributeRejectsInactiveStudent(t *testing.T) {
	svc, students, _, _, _, _ := newSchedulingFixture(t)
	inactive := caseloadEntry("s1", "prov-1")
	inactive.Active = false
	students.students["s1"] = inactive

	_, err := svc.Distribute(context.Background(), "prov-1", dto.DistributeRequest{StudentID: "s1"})
	require.Error(t, err)
}

func TestSchedulingServiceDistributeStaleDataConflict(t *testing.T) {
	svc, _, writer, queue, store, _ := newSchedulingFixture(t)
	changed := time.Now().UTC()
	store.fingerprintSeq = []models.SessionFingerprint{
		{Count: 0},
		{Count: 3, UpdatedAt: &changed},
	}

	_, err := svc.Distribute(context.Background(), "prov-1", dto.DistributeRequest{StudentID: "s1"})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrStaleData.Code, appErr.Code)
	assert.Zero(t, writer.txOpened)
	assert.Empty(t, queue.jobs)
}

func TestSchedulingServiceDistributeBatchAggregates(t *testing.T) {
	svc, students, writer, queue, _, mock := newSchedulingFixture(t)
	second := caseloadEntry("s2", "prov-1")
	second.Initials = "K.L."
	students.students["s2"] = second
	students.grades["s2"] = "3"
	mock.ExpectBegin()
	mock.ExpectCommit()

	resp, err := svc.DistributeBatch(context.Background(), "prov-1", dto.BatchDistributeRequest{
		SchoolSite: "Lincoln Elementary",
	})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 2)
	assert.Equal(t, 2, resp.StudentsScheduled)
	assert.Zero(t, resp.StudentsPartial)
	assert.Equal(t, 4, resp.TotalPlaced)
	assert.Zero(t, resp.TotalUnscheduled)
	// Both students' templates land in a single transaction.
	assert.Equal(t, 1, writer.txOpened)
	assert.Len(t, writer.created, 4)
	require.Len(t, queue.jobs, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSchedulingServiceDistributeBatchEmptyCaseload(t *testing.T) {
	svc, students, writer, _, _, _ := newSchedulingFixture(t)
	students.students = map[string]models.Student{}

	resp, err := svc.DistributeBatch(context.Background(), "prov-1", dto.BatchDistributeRequest{
		SchoolSite: "Lincoln Elementary",
	})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	assert.Zero(t, writer.txOpened)
}

func TestSchedulingServiceValidatePlacement(t *testing.T) {
	svc, _, _, _, _, _ := newSchedulingFixture(t)

	result, err := svc.ValidatePlacement(context.Background(), "prov-1", dto.ValidatePlacementRequest{
		StudentID: "s1",
		DayOfWeek: 1,
		StartTime: "09:00",
		EndTime:   "09:30",
	})
	require.NoError(t, err)
	assert.True(t, result.Valid)

	// Saturday is outside the provider's work days.
	result, err = svc.ValidatePlacement(context.Background(), "prov-1", dto.ValidatePlacementRequest{
		StudentID: "s1",
		DayOfWeek: 6,
		StartTime: "09:00",
		EndTime:   "09:30",
	})
	require.NoError(t, err)
	assert.False(t, result.Valid)
	require.NotEmpty(t, result.Errors)
	assert.Equal(t, scheduling.ConstraintWorkLocation, result.Errors[0].Constraint)
}

func TestSchedulingServiceValidatePlacementRejectsBadWindow(t *testing.T) {
	svc, _, _, _, _, _ := newSchedulingFixture(t)

	_, err := svc.ValidatePlacement(context.Background(), "prov-1", dto.ValidatePlacementRequest{
		StudentID: "s1",
		DayOfWeek: 1,
		StartTime: "10:00",
		EndTime:   "09:30",
	})
	require.Error(t, err)
}

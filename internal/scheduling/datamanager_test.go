package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/casebeam/caseload-api/internal/models"
)

type stubStore struct {
	availability []models.ProviderAvailability
	bells        []models.BellSchedule
	activities   []models.SpecialActivity
	sessions     []models.ScheduleSession
	hours        []models.SchoolHours
	fingerprint  models.SessionFingerprint

	failuresLeft     int
	availabilityHits int
	fingerprintHits  int
}

func (s *stubStore) ProviderAvailability(ctx context.Context, providerID string, school SchoolIdentifier) ([]models.ProviderAvailability, error) {
	s.availabilityHits++
	if s.failuresLeft > 0 {
		s.failuresLeft--
		return nil, errors.New("store unavailable")
	}
	return s.availability, nil
}

func (s *stubStore) BellSchedules(ctx context.Context, school SchoolIdentifier) ([]models.BellSchedule, error) {
	return s.bells, nil
}

func (s *stubStore) SpecialActivities(ctx context.Context, school SchoolIdentifier) ([]models.SpecialActivity, error) {
	return s.activities, nil
}

func (s *stubStore) TemplateSessions(ctx context.Context, providerID string, school SchoolIdentifier) ([]models.ScheduleSession, error) {
	return s.sessions, nil
}

func (s *stubStore) SchoolHours(ctx context.Context, school SchoolIdentifier) ([]models.SchoolHours, error) {
	return s.hours, nil
}

func (s *stubStore) SessionFingerprint(ctx context.Context, providerID string, school SchoolIdentifier) (models.SessionFingerprint, error) {
	s.fingerprintHits++
	return s.fingerprint, nil
}

func weekdayAvailability(providerID, site string, days ...int) []models.ProviderAvailability {
	out := make([]models.ProviderAvailability, 0, len(days))
	for _, day := range days {
		out = append(out, models.ProviderAvailability{ProviderID: providerID, SchoolSite: site, DayOfWeek: day})
	}
	return out
}

func testSchool() SchoolIdentifier {
	return NewSchoolIdentifier("Lincoln Elementary", "Jefferson USD", "")
}

func template(id, studentID string, day int, start, end string) models.ScheduleSession {
	return models.ScheduleSession{
		ID:         id,
		StudentID:  studentID,
		ProviderID: "p1",
		DayOfWeek:  day,
		StartTime:  start,
		EndTime:    end,
		Status:     models.SessionStatusScheduled,
		SchoolSite: "Lincoln Elementary",
	}
}

func newTestManager(t *testing.T, store *stubStore) *DataManager {
	t.Helper()
	manager := NewDataManager(store, zap.NewNop(), DataManagerConfig{RetryDelay: time.Millisecond})
	require.NoError(t, manager.Initialize(context.Background(), "p1", testSchool()))
	return manager
}

func TestDataManagerInitializeRequiresScope(t *testing.T) {
	manager := NewDataManager(&stubStore{}, zap.NewNop(), DataManagerConfig{})
	err := manager.Initialize(context.Background(), "", testSchool())
	require.Error(t, err)
	err = manager.Initialize(context.Background(), "p1", SchoolIdentifier{})
	require.Error(t, err)
	assert.False(t, manager.Initialized())
}

func TestDataManagerRetriesThenSucceeds(t *testing.T) {
	store := &stubStore{
		availability: weekdayAvailability("p1", "Lincoln Elementary", 1, 3),
		failuresLeft: 1,
	}
	manager := newTestManager(t, store)
	assert.True(t, manager.Initialized())
	assert.Equal(t, 2, store.availabilityHits)
	assert.False(t, manager.Version().Stale)
}

func TestDataManagerExhaustedRetriesSurfacesDataFetch(t *testing.T) {
	store := &stubStore{failuresLeft: 10}
	manager := NewDataManager(store, zap.NewNop(), DataManagerConfig{RetryAttempts: 2, RetryDelay: time.Millisecond})
	err := manager.Initialize(context.Background(), "p1", testSchool())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load scheduling data")
	assert.Equal(t, 3, store.availabilityHits)
	assert.True(t, manager.Version().Stale)
}

func TestDataManagerNegativeRetryAttemptsDisablesRetries(t *testing.T) {
	store := &stubStore{failuresLeft: 1}
	manager := NewDataManager(store, zap.NewNop(), DataManagerConfig{RetryAttempts: -1, RetryDelay: time.Millisecond})
	err := manager.Initialize(context.Background(), "p1", testSchool())
	require.Error(t, err)
	// A single attempt, no retries.
	assert.Equal(t, 1, store.availabilityHits)
}

func TestDataManagerAvailabilityAndCapacityQueries(t *testing.T) {
	store := &stubStore{
		availability: weekdayAvailability("p1", "Lincoln Elementary", 1, 2, 4),
		sessions: []models.ScheduleSession{
			template("s1", "stu1", 1, "09:00", "09:30"),
			template("s2", "stu2", 1, "09:00:00", "09:30:00"),
			template("s3", "stu1", 2, "10:00", "10:30"),
		},
	}
	manager := newTestManager(t, store)

	assert.True(t, manager.IsProviderAvailable(1))
	assert.False(t, manager.IsProviderAvailable(3))
	assert.Equal(t, []int{1, 2, 4}, manager.ProviderWorkDays())

	assert.Equal(t, 2, manager.SlotCapacity(1, MustClock("09:00")))
	assert.Equal(t, 0, manager.SlotCapacity(1, MustClock("10:00")))
	assert.Equal(t, 2, manager.DaySessionCount(1))
	assert.Len(t, manager.SessionsOn(2), 1)

	overlapping := manager.StudentSessionsOverlapping("stu1", 1, MustClock("09:15"), MustClock("09:45"))
	require.Len(t, overlapping, 1)
	assert.Equal(t, "s1", overlapping[0].ID)

	// Half-open ranges: a session ending exactly at the proposed start does
	// not overlap.
	assert.Empty(t, manager.StudentSessionsOverlapping("stu1", 1, MustClock("09:30"), MustClock("10:00")))
}

func TestDataManagerBellAndActivityConflicts(t *testing.T) {
	deleted := time.Now()
	store := &stubStore{
		availability: weekdayAvailability("p1", "Lincoln Elementary", 2),
		bells: []models.BellSchedule{
			{ID: "b1", GradeLevel: "3", DayOfWeek: 2, StartTime: "10:00", EndTime: "10:15", PeriodName: "Recess"},
			{ID: "b2", GradeLevel: "4", DayOfWeek: 2, StartTime: "10:00", EndTime: "10:15", PeriodName: "Recess"},
		},
		activities: []models.SpecialActivity{
			{ID: "a1", TeacherName: "Ms. Chen", DayOfWeek: 2, StartTime: "13:00", EndTime: "13:45", ActivityName: "PE"},
			{ID: "a2", TeacherName: "Ms. Chen", DayOfWeek: 2, StartTime: "08:00", EndTime: "08:30", ActivityName: "Library", DeletedAt: &deleted},
		},
	}
	manager := newTestManager(t, store)

	require.Len(t, manager.BellScheduleConflicts("3", 2, MustClock("10:10"), MustClock("10:40")), 1)
	assert.Empty(t, manager.BellScheduleConflicts("3", 2, MustClock("10:15"), MustClock("10:45")))
	assert.Empty(t, manager.BellScheduleConflicts("5", 2, MustClock("10:00"), MustClock("10:15")))
	assert.True(t, manager.HasBellConflict("4", 2, MustClock("09:50"), MustClock("10:05")))

	require.Len(t, manager.SpecialActivityConflicts("ms. chen", 2, MustClock("13:30"), MustClock("14:00")), 1)
	// Soft-deleted rows never conflict.
	assert.Empty(t, manager.SpecialActivityConflicts("Ms. Chen", 2, MustClock("08:00"), MustClock("08:30")))
}

func TestDataManagerSnapshotIsolation(t *testing.T) {
	store := &stubStore{
		availability: weekdayAvailability("p1", "Lincoln Elementary", 1),
		sessions:     []models.ScheduleSession{template("s1", "stu1", 1, "09:00", "09:30")},
	}
	manager := newTestManager(t, store)

	snapshot := manager.PrepareSnapshot()
	require.Len(t, snapshot.Sessions, 1)
	versionBefore := manager.Version().Version

	require.NoError(t, manager.AddSession(template("s2", "stu2", 1, "10:00", "10:30")))
	assert.Len(t, manager.ExistingSessions(), 2)
	// The snapshot is an immutable copy.
	assert.Len(t, snapshot.Sessions, 1)

	require.NoError(t, manager.RestoreSnapshot(snapshot))
	assert.Len(t, manager.ExistingSessions(), 1)
	assert.Equal(t, 0, manager.SlotCapacity(1, MustClock("10:00")))
	// Versions are monotonic; a restore still moves forward.
	assert.Greater(t, manager.Version().Version, versionBefore)
}

func TestDataManagerAddRemoveSession(t *testing.T) {
	store := &stubStore{availability: weekdayAvailability("p1", "Lincoln Elementary", 1)}
	manager := newTestManager(t, store)

	date := "2026-09-07"
	instance := template("i1", "stu1", 1, "09:00", "09:30")
	instance.SessionDate = &date
	require.Error(t, manager.AddSession(instance), "instances never enter the scheduling cache")

	require.NoError(t, manager.AddSession(template("s1", "stu1", 1, "09:00", "09:30")))
	assert.Equal(t, 1, manager.SlotCapacity(1, MustClock("09:00")))
	assert.True(t, manager.RemoveSession("s1"))
	assert.Equal(t, 0, manager.SlotCapacity(1, MustClock("09:00")))
	assert.False(t, manager.RemoveSession("missing"))
}

func TestDataManagerCheckForConflicts(t *testing.T) {
	now := time.Now().UTC()
	store := &stubStore{
		availability: weekdayAvailability("p1", "Lincoln Elementary", 1),
		fingerprint:  models.SessionFingerprint{Count: 2, UpdatedAt: &now},
	}
	manager := newTestManager(t, store)

	conflicts, err := manager.CheckForConflicts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, conflicts)

	later := now.Add(time.Minute)
	store.fingerprint = models.SessionFingerprint{Count: 3, UpdatedAt: &later}
	conflicts, err = manager.CheckForConflicts(context.Background())
	require.NoError(t, err)
	assert.Len(t, conflicts, 2)
	assert.True(t, manager.Version().Stale)
}

func TestDataManagerHoursForPrefersMostSpecific(t *testing.T) {
	gradeK := "K"
	day := 1
	store := &stubStore{
		availability: weekdayAvailability("p1", "Lincoln Elementary", 1),
		hours: []models.SchoolHours{
			{StartTime: "08:00", EndTime: "15:00"},
			{GradeLevel: &gradeK, StartTime: "08:00", EndTime: "12:00"},
			{GradeLevel: &gradeK, DayOfWeek: &day, StartTime: "09:00", EndTime: "12:00"},
		},
	}
	manager := newTestManager(t, store)

	start, end := manager.HoursFor("3", 1)
	assert.Equal(t, MustClock("08:00"), start)
	assert.Equal(t, MustClock("15:00"), end)

	start, end = manager.HoursFor("K", 2)
	assert.Equal(t, MustClock("08:00"), start)
	assert.Equal(t, MustClock("12:00"), end)

	start, _ = manager.HoursFor("K", 1)
	assert.Equal(t, MustClock("09:00"), start)
}

func TestDataManagerClearCacheRequiresReinit(t *testing.T) {
	store := &stubStore{availability: weekdayAvailability("p1", "Lincoln Elementary", 1)}
	manager := newTestManager(t, store)
	manager.ClearCache()
	assert.False(t, manager.Initialized())
	require.NoError(t, manager.Refresh(context.Background()))
	assert.True(t, manager.Initialized())
}

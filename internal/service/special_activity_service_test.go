package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/casebeam/caseload-api/internal/models"
)

type mockActivityRepo struct {
	activities  map[string]models.SpecialActivity
	softDeleted []string
}

func (m *mockActivityRepo) List(ctx context.Context, filter models.SpecialActivityFilter) ([]models.SpecialActivity, error) {
	out := make([]models.SpecialActivity, 0, len(m.activities))
	for _, a := range m.activities {
		if a.DeletedAt == nil {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockActivityRepo) FindByID(ctx context.Context, id string) (*models.SpecialActivity, error) {
	if a, ok := m.activities[id]; ok {
		return &a, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockActivityRepo) Create(ctx context.Context, activity *models.SpecialActivity) error {
	if m.activities == nil {
		m.activities = make(map[string]models.SpecialActivity)
	}
	if activity.ID == "" {
		activity.ID = "generated"
	}
	m.activities[activity.ID] = *activity
	return nil
}

func (m *mockActivityRepo) Update(ctx context.Context, activity *models.SpecialActivity) error {
	m.activities[activity.ID] = *activity
	return nil
}

func (m *mockActivityRepo) SoftDelete(ctx context.Context, id string) error {
	m.softDeleted = append(m.softDeleted, id)
	if a, ok := m.activities[id]; ok {
		now := time.Now().UTC()
		a.DeletedAt = &now
		m.activities[id] = a
	}
	return nil
}

func activityRequest() SpecialActivityRequest {
	return SpecialActivityRequest{
		SchoolSite:   "Lincoln Elementary",
		TeacherName:  "Ms. Rivera",
		DayOfWeek:    4,
		StartTime:    "13:00",
		EndTime:      "13:45",
		ActivityName: "Library",
	}
}

func TestSpecialActivityServiceCreate(t *testing.T) {
	repo := &mockActivityRepo{}
	svc := NewSpecialActivityService(repo, validator.New(), zap.NewNop())

	activity, err := svc.Create(context.Background(), "user-1", activityRequest())
	require.NoError(t, err)
	assert.Equal(t, "user-1", activity.CreatedBy)
	assert.Equal(t, "Library", activity.ActivityName)
}

func TestSpecialActivityServiceUpdateRejectsDeleted(t *testing.T) {
	now := time.Now().UTC()
	repo := &mockActivityRepo{activities: map[string]models.SpecialActivity{
		"a1": {ID: "a1", TeacherName: "Ms. Rivera", DeletedAt: &now},
	}}
	svc := NewSpecialActivityService(repo, validator.New(), zap.NewNop())

	_, err := svc.Update(context.Background(), "a1", activityRequest())
	require.Error(t, err)
}

func TestSpecialActivityServiceDeleteIsIdempotent(t *testing.T) {
	repo := &mockActivityRepo{activities: map[string]models.SpecialActivity{
		"a1": {ID: "a1", TeacherName: "Ms. Rivera"},
	}}
	svc := NewSpecialActivityService(repo, validator.New(), zap.NewNop())

	require.NoError(t, svc.Delete(context.Background(), "a1"))
	require.NoError(t, svc.Delete(context.Background(), "a1"))
	assert.Equal(t, []string{"a1"}, repo.softDeleted)
}

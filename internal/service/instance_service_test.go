package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/casebeam/caseload-api/internal/models"
)

type mockInstanceRepo struct {
	mu        sync.Mutex
	templates map[string]models.ScheduleSession
	existing  map[string]bool
	bulkCalls int
}

func newMockInstanceRepo(templates ...models.ScheduleSession) *mockInstanceRepo {
	repo := &mockInstanceRepo{
		templates: make(map[string]models.ScheduleSession),
		existing:  make(map[string]bool),
	}
	for _, tpl := range templates {
		repo.templates[tpl.ID] = tpl
	}
	return repo
}

func (m *mockInstanceRepo) FindByID(ctx context.Context, id string) (*models.ScheduleSession, error) {
	if tpl, ok := m.templates[id]; ok {
		return &tpl, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockInstanceRepo) TemplatePage(ctx context.Context, limit, offset int) ([]models.ScheduleSession, error) {
	ids := make([]string, 0, len(m.templates))
	for id := range m.templates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if offset >= len(ids) {
		return nil, nil
	}
	end := offset + limit
	if end > len(ids) {
		end = len(ids)
	}
	page := make([]models.ScheduleSession, 0, end-offset)
	for _, id := range ids[offset:end] {
		page = append(page, m.templates[id])
	}
	return page, nil
}

// BulkCreateInstances mimics the ON CONFLICT DO NOTHING insert: duplicate
// (template, date) pairs are skipped, only new rows count.
func (m *mockInstanceRepo) BulkCreateInstances(ctx context.Context, instances []models.ScheduleSession) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bulkCalls++
	created := 0
	for _, instance := range instances {
		if instance.TemplateID == nil || instance.SessionDate == nil {
			continue
		}
		key := fmt.Sprintf("%s|%s", *instance.TemplateID, *instance.SessionDate)
		if m.existing[key] {
			continue
		}
		m.existing[key] = true
		created++
	}
	return created, nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestInstanceServiceGenerateForTemplate(t *testing.T) {
	template := weeklyTemplate("t1", "s1", 1, "09:00", "09:30")
	repo := newMockInstanceRepo(template)
	svc := NewInstanceService(repo, nil, zap.NewNop())
	// Monday morning, before the template's start time.
	svc.clock = fixedClock(time.Date(2026, 9, 7, 7, 0, 0, 0, time.UTC))

	result, err := svc.GenerateForTemplate(context.Background(), "t1", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Created)
	assert.True(t, repo.existing["t1|2026-09-07"])
	assert.True(t, repo.existing["t1|2026-09-14"])
	assert.True(t, repo.existing["t1|2026-09-21"])
}

func TestInstanceServiceGenerateIsIdempotent(t *testing.T) {
	template := weeklyTemplate("t1", "s1", 1, "09:00", "09:30")
	repo := newMockInstanceRepo(template)
	svc := NewInstanceService(repo, nil, zap.NewNop())
	svc.clock = fixedClock(time.Date(2026, 9, 7, 7, 0, 0, 0, time.UTC))

	first, err := svc.GenerateForTemplate(context.Background(), "t1", 4)
	require.NoError(t, err)
	assert.Equal(t, 4, first.Created)

	second, err := svc.GenerateForTemplate(context.Background(), "t1", 4)
	require.NoError(t, err)
	assert.Zero(t, second.Created)
}

func TestInstanceServiceGenerateRejectsInstances(t *testing.T) {
	instance := weeklyTemplate("i1", "s1", 1, "09:00", "09:30")
	date := "2026-09-07"
	instance.SessionDate = &date
	repo := newMockInstanceRepo(instance)
	svc := NewInstanceService(repo, nil, zap.NewNop())

	_, err := svc.GenerateForTemplate(context.Background(), "i1", 2)
	require.Error(t, err)
}

func TestInstanceServiceGenerateMissingTemplate(t *testing.T) {
	svc := NewInstanceService(newMockInstanceRepo(), nil, zap.NewNop())

	_, err := svc.GenerateForTemplate(context.Background(), "missing", 2)
	require.Error(t, err)
}

func TestInstanceServiceGenerateForTemplatesCollectsFailures(t *testing.T) {
	template := weeklyTemplate("t1", "s1", 1, "09:00", "09:30")
	repo := newMockInstanceRepo(template)
	svc := NewInstanceService(repo, nil, zap.NewNop())
	svc.clock = fixedClock(time.Date(2026, 9, 7, 7, 0, 0, 0, time.UTC))

	results := svc.GenerateForTemplates(context.Background(), []string{"t1", "missing"}, 2)
	require.Len(t, results, 2)
	assert.Equal(t, 2, results[0].Created)
	assert.Empty(t, results[0].Error)
	assert.NotEmpty(t, results[1].Error)
}

func TestInstanceServiceGenerateAll(t *testing.T) {
	good := weeklyTemplate("t1", "s1", 1, "09:00", "09:30")
	alsoGood := weeklyTemplate("t2", "s2", 3, "10:00", "10:30")
	broken := weeklyTemplate("t3", "s3", 1, "", "")
	repo := newMockInstanceRepo(good, alsoGood, broken)
	svc := NewInstanceService(repo, nil, zap.NewNop())
	svc.clock = fixedClock(time.Date(2026, 9, 7, 7, 0, 0, 0, time.UTC))

	result, err := svc.GenerateAll(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Templates)
	assert.Equal(t, 4, result.Created)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "t3", result.Failures[0].TemplateID)
}

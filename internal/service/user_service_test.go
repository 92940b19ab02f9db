package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/casebeam/caseload-api/internal/models"
	appErrors "github.com/casebeam/caseload-api/pkg/errors"
)

type mockUserRepo struct {
	users          map[string]*models.User
	listUsers      []models.User
	listCount      int
	listErr        error
	findByIDErr    error
	findByEmailErr error
	auditLogs      []*models.AuditLog
}

func (m *mockUserRepo) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	if m.listUsers != nil {
		return m.listUsers, m.listCount, nil
	}
	var users []models.User
	for _, u := range m.users {
		users = append(users, *u)
	}
	return users, len(users), nil
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if m.findByIDErr != nil {
		return nil, m.findByIDErr
	}
	if user, ok := m.users[id]; ok {
		copy := *user
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.findByEmailErr != nil {
		return nil, m.findByEmailErr
	}
	for _, u := range m.users {
		if u.Email == email {
			copy := *u
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) Create(ctx context.Context, user *models.User) error {
	if m.users == nil {
		m.users = make(map[string]*models.User)
	}
	copy := *user
	m.users[user.ID] = &copy
	return nil
}

func (m *mockUserRepo) Update(ctx context.Context, user *models.User) error {
	if m.users == nil {
		m.users = make(map[string]*models.User)
	}
	copy := *user
	m.users[user.ID] = &copy
	return nil
}

func (m *mockUserRepo) Delete(ctx context.Context, id string) error {
	if user, ok := m.users[id]; ok {
		user.Active = false
		m.users[id] = user
		return nil
	}
	return sql.ErrNoRows
}

func (m *mockUserRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, log)
	return nil
}

type mockCaseloadCounter struct {
	summary *models.CaseloadSummary
	err     error
	calls   int
}

func (m *mockCaseloadCounter) CaseloadSummary(ctx context.Context, providerID string) (*models.CaseloadSummary, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if m.summary != nil {
		return m.summary, nil
	}
	return &models.CaseloadSummary{}, nil
}

func TestUserServiceList(t *testing.T) {
	repo := &mockUserRepo{listUsers: []models.User{{ID: "1", Email: "a@example.com"}}, listCount: 1}
	svc := NewUserService(repo, nil, validator.New(), zap.NewNop())
	users, pagination, err := svc.List(context.Background(), models.UserFilter{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, 1, pagination.TotalCount)
}

func TestUserServiceGetIncludesProviderCaseload(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{
		"p1": {ID: "p1", Email: "ot@example.com", Role: models.RoleOT, Active: true},
		"a1": {ID: "a1", Email: "admin@example.com", Role: models.RoleAdmin, Active: true},
	}}
	counter := &mockCaseloadCounter{summary: &models.CaseloadSummary{ActiveStudents: 5, WeeklySessions: 10}}
	svc := NewUserService(repo, counter, validator.New(), zap.NewNop())

	detail, err := svc.Get(context.Background(), "p1")
	require.NoError(t, err)
	require.NotNil(t, detail.Caseload)
	assert.Equal(t, 5, detail.Caseload.ActiveStudents)

	detail, err = svc.Get(context.Background(), "a1")
	require.NoError(t, err)
	assert.Nil(t, detail.Caseload)
}

func TestUserServiceCreate(t *testing.T) {
	repo := &mockUserRepo{users: make(map[string]*models.User)}
	repo.findByEmailErr = sql.ErrNoRows
	svc := NewUserService(repo, nil, validator.New(), zap.NewNop())
	user, err := svc.Create(context.Background(), CreateUserRequest{Email: "USER@EXAMPLE.COM", FullName: "User", Password: "secret1", Role: models.RoleAdmin, Active: true}, "actor", models.LoginRequest{})
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", user.Email)
	assert.NotEmpty(t, repo.auditLogs)
}

func TestUserServiceUpdate(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{"1": {ID: "1", Email: "a@example.com", FullName: "Old", Role: models.RoleSpeech, Active: true}}}
	counter := &mockCaseloadCounter{}
	svc := NewUserService(repo, counter, validator.New(), zap.NewNop())
	active := false
	user, err := svc.Update(context.Background(), "1", UpdateUserRequest{FullName: "New", Role: models.RoleAdmin, Active: &active}, "actor", models.LoginRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, user.Role)
	assert.False(t, user.Active)
	// An empty caseload was checked before releasing the provider role.
	assert.Equal(t, 1, counter.calls)
	assert.NotEmpty(t, repo.auditLogs)
}

func TestUserServiceUpdateBlocksProviderWithActiveCaseload(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{"p1": {ID: "p1", Email: "slp@example.com", FullName: "SLP", Role: models.RoleSpeech, Active: true}}}
	counter := &mockCaseloadCounter{summary: &models.CaseloadSummary{ActiveStudents: 4}}
	svc := NewUserService(repo, counter, validator.New(), zap.NewNop())

	// Deactivation while students remain on the caseload.
	active := false
	_, err := svc.Update(context.Background(), "p1", UpdateUserRequest{FullName: "SLP", Role: models.RoleSpeech, Active: &active}, "actor", models.LoginRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	// Moving to a non-provider role is blocked the same way.
	_, err = svc.Update(context.Background(), "p1", UpdateUserRequest{FullName: "SLP", Role: models.RoleSEA}, "actor", models.LoginRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	// A rename that keeps the provider role and active flag is fine.
	_, err = svc.Update(context.Background(), "p1", UpdateUserRequest{FullName: "Renamed", Role: models.RoleSpeech}, "actor", models.LoginRequest{})
	require.NoError(t, err)
	assert.True(t, repo.users["p1"].Active)
}

func TestUserServiceDelete(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{"1": {ID: "1", Email: "a@example.com", FullName: "Old", Role: models.RoleSpeech, Active: true}}}
	svc := NewUserService(repo, &mockCaseloadCounter{}, validator.New(), zap.NewNop())
	err := svc.Delete(context.Background(), "1", "actor", models.LoginRequest{})
	require.NoError(t, err)
	assert.False(t, repo.users["1"].Active)
	assert.NotEmpty(t, repo.auditLogs)
}

func TestUserServiceDeleteBlocksProviderWithActiveCaseload(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{"p1": {ID: "p1", Email: "slp@example.com", Role: models.RoleSpeech, Active: true}}}
	counter := &mockCaseloadCounter{summary: &models.CaseloadSummary{ActiveStudents: 2}}
	svc := NewUserService(repo, counter, validator.New(), zap.NewNop())

	err := svc.Delete(context.Background(), "p1", "actor", models.LoginRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.True(t, repo.users["p1"].Active)
	assert.Empty(t, repo.auditLogs)
}

package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casebeam/caseload-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func studentRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "provider_id", "initials", "grade_level", "teacher_name", "sessions_per_week",
		"minutes_per_session", "service_type", "delivered_by", "school_id", "district_id", "state_id",
		"school_site", "school_district", "active", "created_at", "updated_at",
	}).AddRow("stu-1", "p1", "J.D.", "3", "Ms. Chen", 2, 30, "speech", "provider",
		nil, nil, nil, "Lincoln Elementary", "Jefferson USD", true, time.Now(), time.Now())
}

func TestStudentRepositoryList(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery(`(?s)SELECT .* FROM students WHERE 1=1 AND provider_id = \$1 AND grade_level = \$2 ORDER BY created_at DESC LIMIT 20 OFFSET 0`).
		WithArgs("p1", "3").
		WillReturnRows(studentRows())
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM students WHERE 1=1 AND provider_id = \$1 AND grade_level = \$2`).
		WithArgs("p1", "3").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	students, total, err := repo.List(context.Background(), models.StudentFilter{ProviderID: "p1", GradeLevel: "3"})
	require.NoError(t, err)
	assert.Len(t, students, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, "J.D.", students[0].Initials)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryListActiveByProvider(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery(`(?s)SELECT .* FROM students WHERE provider_id = \$1 AND active = true AND LOWER\(school_site\) = LOWER\(\$2\) ORDER BY grade_level, initials`).
		WithArgs("p1", "Lincoln Elementary").
		WillReturnRows(studentRows())

	students, err := repo.ListActiveByProvider(context.Background(), "p1", "", "Lincoln Elementary")
	require.NoError(t, err)
	assert.Len(t, students, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectExec("INSERT INTO students").
		WillReturnResult(sqlmock.NewResult(1, 1))

	student := &models.Student{
		ProviderID:        "p1",
		Initials:          "J.D.",
		GradeLevel:        "3",
		TeacherName:       "Ms. Chen",
		SessionsPerWeek:   2,
		MinutesPerSession: 30,
		ServiceType:       "speech",
		DeliveredBy:       models.DeliveredByProvider,
		SchoolSite:        "Lincoln Elementary",
		Active:            true,
	}
	err := repo.Create(context.Background(), student)
	require.NoError(t, err)
	assert.NotEmpty(t, student.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryDeactivate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectExec("UPDATE students SET active = false").
		WithArgs("stu-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Deactivate(context.Background(), "stu-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

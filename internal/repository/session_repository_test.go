package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casebeam/caseload-api/internal/models"
)

func sessionRows(ids ...string) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{
		"id", "student_id", "provider_id", "delivered_by", "service_type", "day_of_week",
		"start_time", "end_time", "group_id", "group_name", "session_date", "template_id", "status",
		"student_absent", "is_completed", "school_id", "school_site", "school_district",
		"created_at", "updated_at",
	})
	for _, id := range ids {
		rows.AddRow(id, "stu-1", "p1", "provider", "speech", 1, "09:00", "09:30",
			nil, nil, nil, nil, "scheduled", false, false, nil,
			"Lincoln Elementary", "Jefferson USD", time.Now(), time.Now())
	}
	return rows
}

func TestSessionRepositoryTemplatesUsesSchoolScope(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	// Structured ID present: match on ID with a legacy site fallback.
	mock.ExpectQuery(`(?s)SELECT .* FROM schedule_sessions WHERE provider_id = \$1 AND session_date IS NULL AND \(school_id = \$2 OR \(school_id IS NULL AND LOWER\(school_site\) = LOWER\(\$3\)\)\)`).
		WithArgs("p1", "sch-42", "Lincoln Elementary").
		WillReturnRows(sessionRows("t1", "t2"))

	sessions, err := repo.Templates(context.Background(), "p1", "sch-42", "Lincoln Elementary")
	require.NoError(t, err)
	assert.Len(t, sessions, 2)
	assert.True(t, sessions[0].IsTemplate())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryFingerprint(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT COUNT\(\*\) AS count, MAX\(updated_at\) AS updated_at`).
		WithArgs("p1", "Lincoln Elementary").
		WillReturnRows(sqlmock.NewRows([]string{"count", "updated_at"}).AddRow(4, now))

	fp, err := repo.Fingerprint(context.Background(), "p1", "", "Lincoln Elementary")
	require.NoError(t, err)
	assert.Equal(t, 4, fp.Count)
	require.NotNil(t, fp.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryBulkCreateInstancesSkipsConflicts(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	templateID := "tpl-1"
	d1, d2 := "2026-09-07", "2026-09-14"
	instances := []models.ScheduleSession{
		{StudentID: "stu-1", ProviderID: "p1", DayOfWeek: 1, StartTime: "09:00", EndTime: "09:30", TemplateID: &templateID, SessionDate: &d1},
		{StudentID: "stu-1", ProviderID: "p1", DayOfWeek: 1, StartTime: "09:00", EndTime: "09:30", TemplateID: &templateID, SessionDate: &d2},
	}

	mock.ExpectExec(`(?s)INSERT INTO schedule_sessions .* ON CONFLICT \(template_id, session_date\) DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	// The second date already exists: zero rows affected.
	mock.ExpectExec(`(?s)INSERT INTO schedule_sessions .* ON CONFLICT \(template_id, session_date\) DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	created, err := repo.BulkCreateInstances(context.Background(), instances)
	require.NoError(t, err)
	assert.Equal(t, 1, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryDeleteClearsFutureInstances(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectExec(`DELETE FROM schedule_sessions\s+WHERE template_id = \$1 AND session_date >= \$2 AND is_completed = false`).
		WithArgs("tpl-1", "2026-09-07").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(`DELETE FROM schedule_sessions WHERE id = \$1`).
		WithArgs("tpl-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Delete(context.Background(), "tpl-1", "2026-09-07"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryBulkCreateTemplatesTxRollsIntoOneTx(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO schedule_sessions").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO schedule_sessions").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	tx, err := repo.BeginTxx(context.Background())
	require.NoError(t, err)
	sessions := []models.ScheduleSession{
		{StudentID: "stu-1", ProviderID: "p1", DayOfWeek: 1, StartTime: "09:00", EndTime: "09:30"},
		{StudentID: "stu-1", ProviderID: "p1", DayOfWeek: 3, StartTime: "10:00", EndTime: "10:30"},
	}
	require.NoError(t, repo.BulkCreateTemplatesTx(context.Background(), tx, sessions))
	require.NoError(t, tx.Commit())
	assert.NotEmpty(t, sessions[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

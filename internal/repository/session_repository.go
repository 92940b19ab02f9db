package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/casebeam/caseload-api/internal/models"
)

const sessionColumns = `id, student_id, provider_id, delivered_by, service_type, day_of_week,
        start_time, end_time, group_id, group_name, session_date, template_id, status,
        student_absent, is_completed, school_id, school_site, school_district, created_at, updated_at`

// SessionRepository manages persistence for schedule sessions, both weekly
// templates and dated instances.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs a SessionRepository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// BeginTxx opens a transaction for multi-row schedule writes.
func (r *SessionRepository) BeginTxx(ctx context.Context) (*sqlx.Tx, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin schedule tx: %w", err)
	}
	return tx, nil
}

// schoolScope appends the dual-identifier school condition: the structured ID
// wins when the row has one, legacy rows fall back to the site text.
func schoolScope(conditions []string, args []interface{}, schoolID, schoolSite string) ([]string, []interface{}) {
	if schoolID != "" {
		conditions = append(conditions, fmt.Sprintf(
			"(school_id = $%d OR (school_id IS NULL AND LOWER(school_site) = LOWER($%d)))",
			len(args)+1, len(args)+2))
		args = append(args, schoolID, schoolSite)
	} else if schoolSite != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(school_site) = LOWER($%d)", len(args)+1))
		args = append(args, schoolSite)
	}
	return conditions, args
}

// List returns sessions matching the provided filters.
func (r *SessionRepository) List(ctx context.Context, filter models.SessionFilter) ([]models.ScheduleSession, int, error) {
	conditions := []string{"1=1"}
	var args []interface{}

	if filter.ProviderID != "" {
		conditions = append(conditions, fmt.Sprintf("provider_id = $%d", len(args)+1))
		args = append(args, filter.ProviderID)
	}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	conditions, args = schoolScope(conditions, args, filter.SchoolID, filter.SchoolSite)
	if filter.DayOfWeek != nil {
		conditions = append(conditions, fmt.Sprintf("day_of_week = $%d", len(args)+1))
		args = append(args, *filter.DayOfWeek)
	}
	if filter.TemplatesOnly {
		conditions = append(conditions, "session_date IS NULL")
	}
	if filter.InstancesOnly {
		conditions = append(conditions, "session_date IS NOT NULL")
	}
	if filter.DateFrom != "" {
		conditions = append(conditions, fmt.Sprintf("session_date >= $%d", len(args)+1))
		args = append(args, filter.DateFrom)
	}
	if filter.DateTo != "" {
		conditions = append(conditions, fmt.Sprintf("session_date <= $%d", len(args)+1))
		args = append(args, filter.DateTo)
	}

	where := strings.Join(conditions, " AND ")
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s FROM schedule_sessions WHERE %s
        ORDER BY day_of_week, start_time, id LIMIT %d OFFSET %d`, sessionColumns, where, size, offset)

	var sessions []models.ScheduleSession
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM schedule_sessions WHERE %s", where)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}
	return sessions, total, nil
}

// FindByID fetches a session by ID.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.ScheduleSession, error) {
	query := fmt.Sprintf("SELECT %s FROM schedule_sessions WHERE id = $1", sessionColumns)
	var session models.ScheduleSession
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		return nil, err
	}
	return &session, nil
}

// Templates returns a provider's weekly templates within a school scope.
func (r *SessionRepository) Templates(ctx context.Context, providerID, schoolID, schoolSite string) ([]models.ScheduleSession, error) {
	conditions := []string{"provider_id = $1", "session_date IS NULL"}
	args := []interface{}{providerID}
	conditions, args = schoolScope(conditions, args, schoolID, schoolSite)
	query := fmt.Sprintf(`SELECT %s FROM schedule_sessions WHERE %s ORDER BY day_of_week, start_time, id`,
		sessionColumns, strings.Join(conditions, " AND "))

	var sessions []models.ScheduleSession
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return sessions, nil
}

// TemplatePage returns one page of weekly templates across all providers,
// ordered by ID for stable pagination. Used by full instance regeneration.
func (r *SessionRepository) TemplatePage(ctx context.Context, limit, offset int) ([]models.ScheduleSession, error) {
	query := fmt.Sprintf(`SELECT %s FROM schedule_sessions WHERE session_date IS NULL
        ORDER BY id LIMIT $1 OFFSET $2`, sessionColumns)
	var sessions []models.ScheduleSession
	if err := r.db.SelectContext(ctx, &sessions, query, limit, offset); err != nil {
		return nil, fmt.Errorf("page templates: %w", err)
	}
	return sessions, nil
}

// Fingerprint returns the staleness signal for a provider's sessions within a
// school scope: row count plus latest updated_at.
func (r *SessionRepository) Fingerprint(ctx context.Context, providerID, schoolID, schoolSite string) (models.SessionFingerprint, error) {
	conditions := []string{"provider_id = $1"}
	args := []interface{}{providerID}
	conditions, args = schoolScope(conditions, args, schoolID, schoolSite)
	query := fmt.Sprintf(`SELECT COUNT(*) AS count, MAX(updated_at) AS updated_at
        FROM schedule_sessions WHERE %s`, strings.Join(conditions, " AND "))

	var fp models.SessionFingerprint
	if err := r.db.GetContext(ctx, &fp, query, args...); err != nil {
		return models.SessionFingerprint{}, fmt.Errorf("session fingerprint: %w", err)
	}
	return fp, nil
}

// Create inserts a single session row.
func (r *SessionRepository) Create(ctx context.Context, session *models.ScheduleSession) error {
	return r.create(ctx, r.db, session)
}

// CreateTx inserts a single session row inside an existing transaction.
func (r *SessionRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, session *models.ScheduleSession) error {
	return r.create(ctx, tx, session)
}

const insertSessionQuery = `INSERT INTO schedule_sessions (id, student_id, provider_id, delivered_by,
        service_type, day_of_week, start_time, end_time, group_id, group_name, session_date,
        template_id, status, student_absent, is_completed, school_id, school_site, school_district,
        created_at, updated_at)
        VALUES (:id, :student_id, :provider_id, :delivered_by, :service_type, :day_of_week,
        :start_time, :end_time, :group_id, :group_name, :session_date, :template_id, :status,
        :student_absent, :is_completed, :school_id, :school_site, :school_district,
        :created_at, :updated_at)`

func (r *SessionRepository) create(ctx context.Context, execer sqlx.ExtContext, session *models.ScheduleSession) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now
	if session.Status == "" {
		session.Status = models.SessionStatusScheduled
	}
	if _, err := sqlx.NamedExecContext(ctx, execer, insertSessionQuery, session); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// BulkCreateTemplatesTx inserts accepted distribution placements inside one
// transaction so a failed run leaves no partial schedule behind.
func (r *SessionRepository) BulkCreateTemplatesTx(ctx context.Context, tx *sqlx.Tx, sessions []models.ScheduleSession) error {
	for i := range sessions {
		if err := r.create(ctx, tx, &sessions[i]); err != nil {
			return err
		}
	}
	return nil
}

// BulkCreateInstances inserts dated instances, skipping dates that already
// exist for the template. Regeneration is gap-filling, never duplicating.
func (r *SessionRepository) BulkCreateInstances(ctx context.Context, instances []models.ScheduleSession) (int, error) {
	if len(instances) == 0 {
		return 0, nil
	}
	query := insertSessionQuery + ` ON CONFLICT (template_id, session_date) DO NOTHING`
	created := 0
	now := time.Now().UTC()
	for i := range instances {
		if instances[i].ID == "" {
			instances[i].ID = uuid.NewString()
		}
		if instances[i].CreatedAt.IsZero() {
			instances[i].CreatedAt = now
		}
		instances[i].UpdatedAt = now
		if instances[i].Status == "" {
			instances[i].Status = models.SessionStatusScheduled
		}
		res, err := r.db.NamedExecContext(ctx, query, instances[i])
		if err != nil {
			return created, fmt.Errorf("create instance: %w", err)
		}
		if rows, err := res.RowsAffected(); err == nil && rows > 0 {
			created++
		}
	}
	return created, nil
}

// InstanceDates returns the dates already materialized for a template.
func (r *SessionRepository) InstanceDates(ctx context.Context, templateID string) ([]string, error) {
	var dates []string
	const query = `SELECT session_date FROM schedule_sessions
        WHERE template_id = $1 AND session_date IS NOT NULL ORDER BY session_date`
	if err := r.db.SelectContext(ctx, &dates, query, templateID); err != nil {
		return nil, fmt.Errorf("list instance dates: %w", err)
	}
	return dates, nil
}

// Update modifies an existing session row.
func (r *SessionRepository) Update(ctx context.Context, session *models.ScheduleSession) error {
	session.UpdatedAt = time.Now().UTC()
	const query = `UPDATE schedule_sessions SET day_of_week = :day_of_week, start_time = :start_time,
        end_time = :end_time, group_id = :group_id, group_name = :group_name, status = :status,
        student_absent = :student_absent, is_completed = :is_completed, updated_at = :updated_at
        WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

// Delete removes a session row. Deleting a template also clears its future
// instances; completed past instances stay for history.
func (r *SessionRepository) Delete(ctx context.Context, id string, today string) error {
	const clearInstances = `DELETE FROM schedule_sessions
        WHERE template_id = $1 AND session_date >= $2 AND is_completed = false`
	if _, err := r.db.ExecContext(ctx, clearInstances, id, today); err != nil {
		return fmt.Errorf("delete future instances: %w", err)
	}
	const query = `DELETE FROM schedule_sessions WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteTemplatesForStudentTx clears a student's existing templates before a
// redistribution writes the new ones.
func (r *SessionRepository) DeleteTemplatesForStudentTx(ctx context.Context, tx *sqlx.Tx, studentID, providerID string) error {
	const query = `DELETE FROM schedule_sessions
        WHERE student_id = $1 AND provider_id = $2 AND session_date IS NULL`
	if _, err := tx.ExecContext(ctx, query, studentID, providerID); err != nil {
		return fmt.Errorf("clear student templates: %w", err)
	}
	return nil
}

// WeekInstances returns the dated instances in [dateFrom, dateTo] for the
// week view, joined with student initials for display.
func (r *SessionRepository) WeekInstances(ctx context.Context, providerID, dateFrom, dateTo string) ([]models.ScheduleSession, error) {
	query := fmt.Sprintf(`SELECT %s FROM schedule_sessions
        WHERE provider_id = $1 AND session_date BETWEEN $2 AND $3
        ORDER BY session_date, start_time, id`, sessionColumns)
	var sessions []models.ScheduleSession
	if err := r.db.SelectContext(ctx, &sessions, query, providerID, dateFrom, dateTo); err != nil {
		return nil, fmt.Errorf("list week instances: %w", err)
	}
	return sessions, nil
}

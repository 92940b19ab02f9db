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

const studentColumns = `id, provider_id, initials, grade_level, teacher_name, sessions_per_week,
        minutes_per_session, service_type, delivered_by, school_id, district_id, state_id,
        school_site, school_district, active, created_at, updated_at`

// StudentRepository manages persistence for caseload students.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// List returns students matching the provided filters.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	conditions := []string{"1=1"}
	var args []interface{}

	if filter.ProviderID != "" {
		conditions = append(conditions, fmt.Sprintf("provider_id = $%d", len(args)+1))
		args = append(args, filter.ProviderID)
	}
	if filter.SchoolID != "" {
		conditions = append(conditions, fmt.Sprintf("school_id = $%d", len(args)+1))
		args = append(args, filter.SchoolID)
	} else if filter.SchoolSite != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(school_site) = LOWER($%d)", len(args)+1))
		args = append(args, filter.SchoolSite)
	}
	if filter.GradeLevel != "" {
		conditions = append(conditions, fmt.Sprintf("grade_level = $%d", len(args)+1))
		args = append(args, filter.GradeLevel)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(initials) LIKE $%d OR LOWER(teacher_name) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	where := strings.Join(conditions, " AND ")

	allowedSorts := map[string]string{
		"initials":    "initials",
		"grade_level": "grade_level",
		"created_at":  "created_at",
	}
	column, ok := allowedSorts[filter.SortBy]
	if !ok {
		column = "created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s FROM students WHERE %s ORDER BY %s %s LIMIT %d OFFSET %d`,
		studentColumns, where, column, order, size, offset)

	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM students WHERE %s", where)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// ListActiveByProvider returns every active student on a provider's caseload,
// optionally narrowed to one school scope. Used by batch distribution.
func (r *StudentRepository) ListActiveByProvider(ctx context.Context, providerID, schoolID, schoolSite string) ([]models.Student, error) {
	conditions := []string{"provider_id = $1", "active = true"}
	args := []interface{}{providerID}
	if schoolID != "" {
		conditions = append(conditions, fmt.Sprintf("school_id = $%d", len(args)+1))
		args = append(args, schoolID)
	} else if schoolSite != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(school_site) = LOWER($%d)", len(args)+1))
		args = append(args, schoolSite)
	}
	query := fmt.Sprintf(`SELECT %s FROM students WHERE %s ORDER BY grade_level, initials`,
		studentColumns, strings.Join(conditions, " AND "))

	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, fmt.Errorf("list caseload: %w", err)
	}
	return students, nil
}

// CaseloadSummary aggregates the provider's active caseload into a student
// count and the weekly session load those students mandate.
func (r *StudentRepository) CaseloadSummary(ctx context.Context, providerID string) (*models.CaseloadSummary, error) {
	const query = `SELECT COUNT(*) AS active_students,
        COALESCE(SUM(sessions_per_week), 0) AS weekly_sessions,
        COALESCE(SUM(sessions_per_week * minutes_per_session), 0) AS weekly_minutes
        FROM students WHERE provider_id = $1 AND active = true`
	var summary models.CaseloadSummary
	if err := r.db.GetContext(ctx, &summary, query, providerID); err != nil {
		return nil, fmt.Errorf("caseload summary: %w", err)
	}
	return &summary, nil
}

// FindByID fetches a student by ID.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	query := fmt.Sprintf("SELECT %s FROM students WHERE id = $1", studentColumns)
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// GradeLevels returns the grade of every student with at least one session on
// the provider's calendar, keyed by student ID.
func (r *StudentRepository) GradeLevels(ctx context.Context, providerID string) (map[string]string, error) {
	type row struct {
		ID         string `db:"id"`
		GradeLevel string `db:"grade_level"`
	}
	var rows []row
	const query = `SELECT DISTINCT s.id, s.grade_level FROM students s
        JOIN schedule_sessions ss ON ss.student_id = s.id
        WHERE ss.provider_id = $1 AND ss.session_date IS NULL`
	if err := r.db.SelectContext(ctx, &rows, query, providerID); err != nil {
		return nil, fmt.Errorf("load grade levels: %w", err)
	}
	grades := make(map[string]string, len(rows))
	for _, r := range rows {
		grades[r.ID] = r.GradeLevel
	}
	return grades, nil
}

// Create inserts a new student record.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now
	const query = `INSERT INTO students (id, provider_id, initials, grade_level, teacher_name, sessions_per_week,
        minutes_per_session, service_type, delivered_by, school_id, district_id, state_id,
        school_site, school_district, active, created_at, updated_at)
        VALUES (:id, :provider_id, :initials, :grade_level, :teacher_name, :sessions_per_week,
        :minutes_per_session, :service_type, :delivered_by, :school_id, :district_id, :state_id,
        :school_site, :school_district, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// Update modifies an existing student.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE students SET initials = :initials, grade_level = :grade_level,
        teacher_name = :teacher_name, sessions_per_week = :sessions_per_week,
        minutes_per_session = :minutes_per_session, service_type = :service_type,
        delivered_by = :delivered_by, school_id = :school_id, district_id = :district_id,
        state_id = :state_id, school_site = :school_site, school_district = :school_district,
        active = :active, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	return nil
}

// Deactivate marks a student as inactive, keeping history intact.
func (r *StudentRepository) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE students SET active = false, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("deactivate student: %w", err)
	}
	return nil
}

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

const schoolColumns = `id, name, district_id, state_id, legacy_site, legacy_district,
        day_start, day_end, created_at, updated_at`

// SchoolRepository manages school records and their operating hours.
type SchoolRepository struct {
	db *sqlx.DB
}

// NewSchoolRepository constructs a SchoolRepository.
func NewSchoolRepository(db *sqlx.DB) *SchoolRepository {
	return &SchoolRepository{db: db}
}

// List returns all schools ordered by name.
func (r *SchoolRepository) List(ctx context.Context) ([]models.School, error) {
	query := fmt.Sprintf("SELECT %s FROM schools ORDER BY name", schoolColumns)
	var schools []models.School
	if err := r.db.SelectContext(ctx, &schools, query); err != nil {
		return nil, fmt.Errorf("list schools: %w", err)
	}
	return schools, nil
}

// FindByID fetches a school by its structured ID.
func (r *SchoolRepository) FindByID(ctx context.Context, id string) (*models.School, error) {
	query := fmt.Sprintf("SELECT %s FROM schools WHERE id = $1", schoolColumns)
	var school models.School
	if err := r.db.GetContext(ctx, &school, query, id); err != nil {
		return nil, err
	}
	return &school, nil
}

// Create inserts a new school.
func (r *SchoolRepository) Create(ctx context.Context, school *models.School) error {
	if school.ID == "" {
		school.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if school.CreatedAt.IsZero() {
		school.CreatedAt = now
	}
	school.UpdatedAt = now
	const query = `INSERT INTO schools (id, name, district_id, state_id, legacy_site, legacy_district,
        day_start, day_end, created_at, updated_at)
        VALUES (:id, :name, :district_id, :state_id, :legacy_site, :legacy_district,
        :day_start, :day_end, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, school); err != nil {
		return fmt.Errorf("create school: %w", err)
	}
	return nil
}

// Hours returns school-hours overrides within a school scope, most general
// rows first so callers can apply most-specific-wins resolution.
func (r *SchoolRepository) Hours(ctx context.Context, schoolID, schoolSite string) ([]models.SchoolHours, error) {
	conditions := []string{"1=1"}
	var args []interface{}
	conditions, args = schoolScope(conditions, args, schoolID, schoolSite)
	query := fmt.Sprintf(`SELECT id, school_id, school_site, grade_level, day_of_week, start_time, end_time
        FROM school_hours WHERE %s
        ORDER BY grade_level NULLS FIRST, day_of_week NULLS FIRST`, strings.Join(conditions, " AND "))

	var hours []models.SchoolHours
	if err := r.db.SelectContext(ctx, &hours, query, args...); err != nil {
		return nil, fmt.Errorf("list school hours: %w", err)
	}
	return hours, nil
}

// UpsertHours creates or replaces one school-hours row keyed by its scope.
func (r *SchoolRepository) UpsertHours(ctx context.Context, hours *models.SchoolHours) error {
	if hours.ID == "" {
		hours.ID = uuid.NewString()
	}
	const query = `INSERT INTO school_hours (id, school_id, school_site, grade_level, day_of_week, start_time, end_time)
        VALUES (:id, :school_id, :school_site, :grade_level, :day_of_week, :start_time, :end_time)
        ON CONFLICT (school_site, grade_level, day_of_week)
        DO UPDATE SET start_time = EXCLUDED.start_time, end_time = EXCLUDED.end_time`
	if _, err := r.db.NamedExecContext(ctx, query, hours); err != nil {
		return fmt.Errorf("upsert school hours: %w", err)
	}
	return nil
}

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

const activityColumns = `id, created_by, school_id, school_site, teacher_name, day_of_week,
        start_time, end_time, activity_name, deleted_at, created_at, updated_at`

// SpecialActivityRepository manages persistence for teacher special
// activities. Rows are soft-deleted so past conflicts stay explainable.
type SpecialActivityRepository struct {
	db *sqlx.DB
}

// NewSpecialActivityRepository constructs a SpecialActivityRepository.
func NewSpecialActivityRepository(db *sqlx.DB) *SpecialActivityRepository {
	return &SpecialActivityRepository{db: db}
}

// List returns live (non-deleted) activities matching the provided filters.
func (r *SpecialActivityRepository) List(ctx context.Context, filter models.SpecialActivityFilter) ([]models.SpecialActivity, error) {
	conditions := []string{"deleted_at IS NULL"}
	var args []interface{}
	conditions, args = schoolScope(conditions, args, filter.SchoolID, filter.SchoolSite)
	if filter.TeacherName != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(teacher_name) = LOWER($%d)", len(args)+1))
		args = append(args, filter.TeacherName)
	}
	if filter.DayOfWeek != nil {
		conditions = append(conditions, fmt.Sprintf("day_of_week = $%d", len(args)+1))
		args = append(args, *filter.DayOfWeek)
	}

	query := fmt.Sprintf(`SELECT %s FROM special_activities WHERE %s
        ORDER BY teacher_name, day_of_week, start_time`, activityColumns, strings.Join(conditions, " AND "))

	var activities []models.SpecialActivity
	if err := r.db.SelectContext(ctx, &activities, query, args...); err != nil {
		return nil, fmt.Errorf("list special activities: %w", err)
	}
	return activities, nil
}

// FindByID fetches an activity by ID, including soft-deleted rows.
func (r *SpecialActivityRepository) FindByID(ctx context.Context, id string) (*models.SpecialActivity, error) {
	query := fmt.Sprintf("SELECT %s FROM special_activities WHERE id = $1", activityColumns)
	var activity models.SpecialActivity
	if err := r.db.GetContext(ctx, &activity, query, id); err != nil {
		return nil, err
	}
	return &activity, nil
}

// Create inserts a new special activity.
func (r *SpecialActivityRepository) Create(ctx context.Context, activity *models.SpecialActivity) error {
	if activity.ID == "" {
		activity.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = now
	}
	activity.UpdatedAt = now
	const query = `INSERT INTO special_activities (id, created_by, school_id, school_site, teacher_name,
        day_of_week, start_time, end_time, activity_name, deleted_at, created_at, updated_at)
        VALUES (:id, :created_by, :school_id, :school_site, :teacher_name, :day_of_week,
        :start_time, :end_time, :activity_name, :deleted_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, activity); err != nil {
		return fmt.Errorf("create special activity: %w", err)
	}
	return nil
}

// Update modifies an existing special activity.
func (r *SpecialActivityRepository) Update(ctx context.Context, activity *models.SpecialActivity) error {
	activity.UpdatedAt = time.Now().UTC()
	const query = `UPDATE special_activities SET teacher_name = :teacher_name, day_of_week = :day_of_week,
        start_time = :start_time, end_time = :end_time, activity_name = :activity_name,
        updated_at = :updated_at WHERE id = :id AND deleted_at IS NULL`
	if _, err := r.db.NamedExecContext(ctx, query, activity); err != nil {
		return fmt.Errorf("update special activity: %w", err)
	}
	return nil
}

// SoftDelete marks an activity as deleted without removing the row.
func (r *SpecialActivityRepository) SoftDelete(ctx context.Context, id string) error {
	now := time.Now().UTC()
	const query = `UPDATE special_activities SET deleted_at = $2, updated_at = $2
        WHERE id = $1 AND deleted_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, id, now); err != nil {
		return fmt.Errorf("delete special activity: %w", err)
	}
	return nil
}

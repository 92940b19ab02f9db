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

const bellColumns = `id, provider_id, school_id, school_site, grade_level, day_of_week,
        start_time, end_time, period_name, created_at, updated_at`

// BellScheduleRepository manages persistence for grade-level bell schedules.
type BellScheduleRepository struct {
	db *sqlx.DB
}

// NewBellScheduleRepository constructs a BellScheduleRepository.
func NewBellScheduleRepository(db *sqlx.DB) *BellScheduleRepository {
	return &BellScheduleRepository{db: db}
}

// List returns bell schedules matching the provided filters. Bell schedules
// are shared site-wide, not scoped to the creating provider.
func (r *BellScheduleRepository) List(ctx context.Context, filter models.BellScheduleFilter) ([]models.BellSchedule, error) {
	conditions := []string{"1=1"}
	var args []interface{}
	conditions, args = schoolScope(conditions, args, filter.SchoolID, filter.SchoolSite)
	if filter.GradeLevel != "" {
		conditions = append(conditions, fmt.Sprintf("grade_level = $%d", len(args)+1))
		args = append(args, filter.GradeLevel)
	}
	if filter.DayOfWeek != nil {
		conditions = append(conditions, fmt.Sprintf("day_of_week = $%d", len(args)+1))
		args = append(args, *filter.DayOfWeek)
	}

	query := fmt.Sprintf(`SELECT %s FROM bell_schedules WHERE %s
        ORDER BY grade_level, day_of_week, start_time`, bellColumns, strings.Join(conditions, " AND "))

	var bells []models.BellSchedule
	if err := r.db.SelectContext(ctx, &bells, query, args...); err != nil {
		return nil, fmt.Errorf("list bell schedules: %w", err)
	}
	return bells, nil
}

// FindByID fetches a bell schedule by ID.
func (r *BellScheduleRepository) FindByID(ctx context.Context, id string) (*models.BellSchedule, error) {
	query := fmt.Sprintf("SELECT %s FROM bell_schedules WHERE id = $1", bellColumns)
	var bell models.BellSchedule
	if err := r.db.GetContext(ctx, &bell, query, id); err != nil {
		return nil, err
	}
	return &bell, nil
}

// Create inserts a new bell schedule.
func (r *BellScheduleRepository) Create(ctx context.Context, bell *models.BellSchedule) error {
	if bell.ID == "" {
		bell.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if bell.CreatedAt.IsZero() {
		bell.CreatedAt = now
	}
	bell.UpdatedAt = now
	const query = `INSERT INTO bell_schedules (id, provider_id, school_id, school_site, grade_level,
        day_of_week, start_time, end_time, period_name, created_at, updated_at)
        VALUES (:id, :provider_id, :school_id, :school_site, :grade_level, :day_of_week,
        :start_time, :end_time, :period_name, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, bell); err != nil {
		return fmt.Errorf("create bell schedule: %w", err)
	}
	return nil
}

// Update modifies an existing bell schedule.
func (r *BellScheduleRepository) Update(ctx context.Context, bell *models.BellSchedule) error {
	bell.UpdatedAt = time.Now().UTC()
	const query = `UPDATE bell_schedules SET grade_level = :grade_level, day_of_week = :day_of_week,
        start_time = :start_time, end_time = :end_time, period_name = :period_name,
        updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, bell); err != nil {
		return fmt.Errorf("update bell schedule: %w", err)
	}
	return nil
}

// Delete removes a bell schedule.
func (r *BellScheduleRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM bell_schedules WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete bell schedule: %w", err)
	}
	return nil
}

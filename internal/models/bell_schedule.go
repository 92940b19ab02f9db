package models

import "time"

// BellSchedule marks a recurring window (recess, lunch, specials) during
// which a grade level is unavailable for pull-out services.
type BellSchedule struct {
	ID         string    `db:"id" json:"id"`
	ProviderID string    `db:"provider_id" json:"provider_id"`
	SchoolID   *string   `db:"school_id" json:"school_id,omitempty"`
	SchoolSite string    `db:"school_site" json:"school_site"`
	GradeLevel string    `db:"grade_level" json:"grade_level"`
	DayOfWeek  int       `db:"day_of_week" json:"day_of_week"`
	StartTime  string    `db:"start_time" json:"start_time"`
	EndTime    string    `db:"end_time" json:"end_time"`
	PeriodName string    `db:"period_name" json:"period_name"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// BellScheduleFilter describes query params for listing bell schedules.
type BellScheduleFilter struct {
	SchoolSite string
	SchoolID   string
	GradeLevel string
	DayOfWeek  *int
}

package models

import "time"

// SpecialActivity marks a teacher's recurring class-wide commitment (PE,
// library) during which that teacher's students are unavailable. Rows are
// soft-deleted via DeletedAt rather than removed.
type SpecialActivity struct {
	ID           string     `db:"id" json:"id"`
	CreatedBy    string     `db:"created_by" json:"created_by"`
	SchoolID     *string    `db:"school_id" json:"school_id,omitempty"`
	SchoolSite   string     `db:"school_site" json:"school_site"`
	TeacherName  string     `db:"teacher_name" json:"teacher_name"`
	DayOfWeek    int        `db:"day_of_week" json:"day_of_week"`
	StartTime    string     `db:"start_time" json:"start_time"`
	EndTime      string     `db:"end_time" json:"end_time"`
	ActivityName string     `db:"activity_name" json:"activity_name"`
	DeletedAt    *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// SpecialActivityFilter describes query params for listing special activities.
type SpecialActivityFilter struct {
	SchoolSite  string
	SchoolID    string
	TeacherName string
	DayOfWeek   *int
}

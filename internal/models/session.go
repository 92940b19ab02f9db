package models

import "time"

// SessionStatus tracks the lifecycle of a dated session instance.
type SessionStatus string

const (
	SessionStatusScheduled SessionStatus = "scheduled"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusCancelled SessionStatus = "cancelled"
)

// ScheduleSession is the atomic scheduling unit. A row with a nil SessionDate
// is a recurring weekly template; a row with a concrete date is a dated
// instance materialized from its template.
type ScheduleSession struct {
	ID             string        `db:"id" json:"id"`
	StudentID      string        `db:"student_id" json:"student_id"`
	ProviderID     string        `db:"provider_id" json:"provider_id"`
	DeliveredBy    DeliveredBy   `db:"delivered_by" json:"delivered_by"`
	ServiceType    string        `db:"service_type" json:"service_type"`
	DayOfWeek      int           `db:"day_of_week" json:"day_of_week"`
	StartTime      string        `db:"start_time" json:"start_time"`
	EndTime        string        `db:"end_time" json:"end_time"`
	GroupID        *string       `db:"group_id" json:"group_id,omitempty"`
	GroupName      *string       `db:"group_name" json:"group_name,omitempty"`
	SessionDate    *string       `db:"session_date" json:"session_date,omitempty"`
	TemplateID     *string       `db:"template_id" json:"template_id,omitempty"`
	Status         SessionStatus `db:"status" json:"status"`
	StudentAbsent  bool          `db:"student_absent" json:"student_absent"`
	IsCompleted    bool          `db:"is_completed" json:"is_completed"`
	SchoolID       *string       `db:"school_id" json:"school_id,omitempty"`
	SchoolSite     string        `db:"school_site" json:"school_site"`
	SchoolDistrict string        `db:"school_district" json:"school_district"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`
}

// IsTemplate reports whether the session is a recurring weekly template.
func (s *ScheduleSession) IsTemplate() bool {
	return s != nil && s.SessionDate == nil
}

// SessionFilter describes query params for listing sessions.
type SessionFilter struct {
	ProviderID    string
	StudentID     string
	SchoolSite    string
	SchoolID      string
	DayOfWeek     *int
	TemplatesOnly bool
	InstancesOnly bool
	DateFrom      string
	DateTo        string
	Page          int
	PageSize      int
}

// SessionFingerprint captures a cheap staleness signal over a provider's
// sessions: the row count plus the latest updated_at.
type SessionFingerprint struct {
	Count     int        `db:"count" json:"count"`
	UpdatedAt *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

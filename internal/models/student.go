package models

import "time"

// DeliveredBy identifies who delivers a service session.
type DeliveredBy string

const (
	DeliveredByProvider   DeliveredBy = "provider"
	DeliveredBySEA        DeliveredBy = "sea"
	DeliveredBySpecialist DeliveredBy = "specialist"
)

// Student represents a caseload student. Only privacy-preserving initials are
// stored, never full names.
type Student struct {
	ID                string      `db:"id" json:"id"`
	ProviderID        string      `db:"provider_id" json:"provider_id"`
	Initials          string      `db:"initials" json:"initials"`
	GradeLevel        string      `db:"grade_level" json:"grade_level"`
	TeacherName       string      `db:"teacher_name" json:"teacher_name"`
	SessionsPerWeek   int         `db:"sessions_per_week" json:"sessions_per_week"`
	MinutesPerSession int         `db:"minutes_per_session" json:"minutes_per_session"`
	ServiceType       string      `db:"service_type" json:"service_type"`
	DeliveredBy       DeliveredBy `db:"delivered_by" json:"delivered_by"`
	SchoolID          *string     `db:"school_id" json:"school_id,omitempty"`
	DistrictID        *string     `db:"district_id" json:"district_id,omitempty"`
	StateID           *string     `db:"state_id" json:"state_id,omitempty"`
	SchoolSite        string      `db:"school_site" json:"school_site"`
	SchoolDistrict    string      `db:"school_district" json:"school_district"`
	Active            bool        `db:"active" json:"active"`
	CreatedAt         time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time   `db:"updated_at" json:"updated_at"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	ProviderID string
	SchoolSite string
	SchoolID   string
	GradeLevel string
	Search     string
	Active     *bool
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}

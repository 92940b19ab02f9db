package models

import "time"

// School represents a school site. Rows carry both the new structured
// identifiers and the legacy free-text site/district columns so older records
// keep resolving.
type School struct {
	ID             string    `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	DistrictID     *string   `db:"district_id" json:"district_id,omitempty"`
	StateID        *string   `db:"state_id" json:"state_id,omitempty"`
	LegacySite     string    `db:"legacy_site" json:"legacy_site"`
	LegacyDistrict string    `db:"legacy_district" json:"legacy_district"`
	DayStart       string    `db:"day_start" json:"day_start"`
	DayEnd         string    `db:"day_end" json:"day_end"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// SchoolHours defines operating hours, optionally narrowed to a grade and/or
// weekday. The most specific matching row wins.
type SchoolHours struct {
	ID         string  `db:"id" json:"id"`
	SchoolID   *string `db:"school_id" json:"school_id,omitempty"`
	SchoolSite string  `db:"school_site" json:"school_site"`
	GradeLevel *string `db:"grade_level" json:"grade_level,omitempty"`
	DayOfWeek  *int    `db:"day_of_week" json:"day_of_week,omitempty"`
	StartTime  string  `db:"start_time" json:"start_time"`
	EndTime    string  `db:"end_time" json:"end_time"`
}

// ProviderAvailability marks a provider as working a school site on a weekday.
type ProviderAvailability struct {
	ID         string    `db:"id" json:"id"`
	ProviderID string    `db:"provider_id" json:"provider_id"`
	SchoolID   *string   `db:"school_id" json:"school_id,omitempty"`
	SchoolSite string    `db:"school_site" json:"school_site"`
	DayOfWeek  int       `db:"day_of_week" json:"day_of_week"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

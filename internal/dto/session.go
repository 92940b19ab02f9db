package dto

import "github.com/casebeam/caseload-api/internal/models"

// CreateSessionRequest places one session manually. Force waives
// error-severity validation failures; critical failures always reject.
type CreateSessionRequest struct {
	StudentID      string  `json:"student_id" validate:"required"`
	DayOfWeek      int     `json:"day_of_week" validate:"min=0,max=6"`
	StartTime      string  `json:"start_time" validate:"required"`
	EndTime        string  `json:"end_time" validate:"required"`
	GroupID        *string `json:"group_id"`
	GroupName      *string `json:"group_name"`
	Force          bool    `json:"force"`
	SchoolID       *string `json:"school_id"`
	SchoolSite     string  `json:"school_site"`
	SchoolDistrict string  `json:"school_district"`
}

// MoveSessionRequest moves an existing session to a new day/time.
type MoveSessionRequest struct {
	DayOfWeek int    `json:"day_of_week" validate:"min=0,max=6"`
	StartTime string `json:"start_time" validate:"required"`
	EndTime   string `json:"end_time" validate:"required"`
	Force     bool   `json:"force"`
}

// UpdateSessionStatusRequest marks a dated instance's outcome.
type UpdateSessionStatusRequest struct {
	Status        string `json:"status" validate:"required,oneof=scheduled completed cancelled"`
	StudentAbsent bool   `json:"student_absent"`
}

// SessionResponse pairs a persisted session with any validation warnings the
// caller chose to override.
type SessionResponse struct {
	Session  models.ScheduleSession `json:"session"`
	Warnings []string               `json:"warnings,omitempty"`
}

// WeekDay groups one calendar day's dated sessions.
type WeekDay struct {
	Date     string                   `json:"date"`
	Sessions []models.ScheduleSession `json:"sessions"`
}

// WeekScheduleResponse is the cached week view.
type WeekScheduleResponse struct {
	WeekStart string    `json:"week_start"`
	WeekEnd   string    `json:"week_end"`
	Days      []WeekDay `json:"days"`
	Cached    bool      `json:"cached"`
}

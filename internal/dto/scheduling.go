package dto

import "github.com/casebeam/caseload-api/internal/scheduling"

// DistributeRequest asks the engine to place one student's weekly sessions.
type DistributeRequest struct {
	StudentID          string  `json:"student_id" validate:"required"`
	Strategy           string  `json:"strategy" validate:"omitempty,oneof=two-pass even grade-grouped compact spread"`
	Replace            bool    `json:"replace"`
	MaxSessionsPerSlot int     `json:"max_sessions_per_slot" validate:"omitempty,min=1,max=12"`
	MaxSessionsPerDay  int     `json:"max_sessions_per_day" validate:"omitempty,min=1,max=20"`
	PreferMorning      bool    `json:"prefer_morning"`
	PreferAfternoon    bool    `json:"prefer_afternoon"`
	MinBreakMinutes    int     `json:"min_break_minutes" validate:"omitempty,min=0,max=60"`
	SchoolID           *string `json:"school_id"`
	SchoolSite         string  `json:"school_site"`
	SchoolDistrict     string  `json:"school_district"`
}

// BatchDistributeRequest runs distribution across a provider's caseload.
type BatchDistributeRequest struct {
	Strategy       string  `json:"strategy" validate:"omitempty,oneof=two-pass even grade-grouped compact spread"`
	Replace        bool    `json:"replace"`
	SchoolID       *string `json:"school_id"`
	SchoolSite     string  `json:"school_site" validate:"required_without=SchoolID"`
	SchoolDistrict string  `json:"school_district"`
}

// DistributeResponse returns the outcome of one student's distribution run.
type DistributeResponse struct {
	StudentID   string                          `json:"student_id"`
	Placements  []scheduling.PlacedSession      `json:"placements"`
	Unscheduled []scheduling.UnscheduledSession `json:"unscheduled"`
	Metrics     scheduling.DistributionMetrics  `json:"metrics"`
}

// BatchDistributeResponse aggregates per-student outcomes for a caseload run.
type BatchDistributeResponse struct {
	Results           []DistributeResponse `json:"results"`
	StudentsScheduled int                  `json:"students_scheduled"`
	StudentsPartial   int                  `json:"students_partial"`
	TotalPlaced       int                  `json:"total_placed"`
	TotalUnscheduled  int                  `json:"total_unscheduled"`
}

// ValidatePlacementRequest checks one proposed slot without persisting it.
type ValidatePlacementRequest struct {
	StudentID      string  `json:"student_id" validate:"required"`
	DayOfWeek      int     `json:"day_of_week" validate:"min=0,max=6"`
	StartTime      string  `json:"start_time" validate:"required"`
	EndTime        string  `json:"end_time" validate:"required"`
	SchoolID       *string `json:"school_id"`
	SchoolSite     string  `json:"school_site"`
	SchoolDistrict string  `json:"school_district"`
}

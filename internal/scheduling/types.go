package scheduling

import "time"

// Strategy selects how the distribution engine scores candidate slots.
type Strategy string

const (
	StrategyTwoPass      Strategy = "two-pass"
	StrategyEven         Strategy = "even"
	StrategyGradeGrouped Strategy = "grade-grouped"
	StrategyCompact      Strategy = "compact"
	StrategySpread       Strategy = "spread"
)

// DistributionConfig is immutable per scheduling run. Zero values are filled
// in by Normalize.
type DistributionConfig struct {
	Strategy             Strategy `json:"strategy"`
	MaxSessionsPerSlot   int      `json:"max_sessions_per_slot"`
	MaxSessionsPerDay    int      `json:"max_sessions_per_day"`
	SlotIncrementMinutes int      `json:"slot_increment_minutes"`
	GradeGroupingEnabled bool     `json:"grade_grouping_enabled"`
	TwoPassEnabled       bool     `json:"two_pass_enabled"`
	FirstPassLimit       int      `json:"first_pass_limit"`
	SecondPassLimit      int      `json:"second_pass_limit"`
	PreferMorning        bool     `json:"prefer_morning"`
	PreferAfternoon      bool     `json:"prefer_afternoon"`
	MinBreakMinutes      int      `json:"min_break_minutes"`
	MaxConsecutiveMin    int      `json:"max_consecutive_minutes"`
}

// DefaultDistributionConfig returns the default two-pass configuration with a
// first-pass cap of 3 sessions per slot and a second-pass cap of 6.
func DefaultDistributionConfig() DistributionConfig {
	return DistributionConfig{
		Strategy:             StrategyTwoPass,
		MaxSessionsPerSlot:   6,
		SlotIncrementMinutes: 30,
		TwoPassEnabled:       true,
		FirstPassLimit:       3,
		SecondPassLimit:      6,
	}
}

// Normalize fills zero values with defaults and keeps the pass limits sane.
func (c DistributionConfig) Normalize() DistributionConfig {
	def := DefaultDistributionConfig()
	if c.Strategy == "" {
		c.Strategy = def.Strategy
	}
	if c.SlotIncrementMinutes <= 0 {
		c.SlotIncrementMinutes = def.SlotIncrementMinutes
	}
	if c.MaxSessionsPerSlot <= 0 {
		c.MaxSessionsPerSlot = def.MaxSessionsPerSlot
	}
	if c.Strategy == StrategyTwoPass {
		c.TwoPassEnabled = true
	}
	if c.FirstPassLimit <= 0 {
		c.FirstPassLimit = def.FirstPassLimit
	}
	if c.SecondPassLimit < c.FirstPassLimit {
		c.SecondPassLimit = def.SecondPassLimit
	}
	if c.SecondPassLimit > c.MaxSessionsPerSlot {
		c.SecondPassLimit = c.MaxSessionsPerSlot
	}
	if c.Strategy == StrategyGradeGrouped {
		c.GradeGroupingEnabled = true
	}
	return c
}

// ConstraintType tags a validation error with the rule that produced it.
type ConstraintType string

const (
	ConstraintWorkLocation    ConstraintType = "work_location"
	ConstraintBellSchedule    ConstraintType = "bell_schedule"
	ConstraintSpecialActivity ConstraintType = "special_activity"
	ConstraintSchoolHours     ConstraintType = "school_hours"
	ConstraintSessionOverlap  ConstraintType = "session_overlap"
	ConstraintCapacity        ConstraintType = "capacity"
	ConstraintConcurrent      ConstraintType = "concurrent_sessions"
	ConstraintConsecutive     ConstraintType = "consecutive_sessions"
	ConstraintBreak           ConstraintType = "break_requirement"
)

// Severity grades a validation error. Critical failures mark the slot
// unusable; error failures may be waived by an explicit override; warnings
// never affect validity.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityError    Severity = "error"
	SeverityWarning  Severity = "warning"
)

// ValidationError describes one failed constraint check.
type ValidationError struct {
	Constraint ConstraintType `json:"constraint"`
	Severity   Severity       `json:"severity"`
	Message    string         `json:"message"`
}

// ValidationResult reports the outcome of validating one proposed placement.
// Validation failures are data, never Go errors, so callers can render why a
// slot is invalid.
type ValidationResult struct {
	Valid              bool              `json:"valid"`
	Errors             []ValidationError `json:"errors,omitempty"`
	Warnings           []ValidationError `json:"warnings,omitempty"`
	ConstraintsChecked []ConstraintType  `json:"constraints_checked,omitempty"`
	Duration           time.Duration     `json:"-"`
	DurationMs         int64             `json:"duration_ms"`
}

// HasCritical reports whether any critical-severity error is present.
func (r ValidationResult) HasCritical() bool {
	for _, e := range r.Errors {
		if e.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// BatchValidationResult aggregates per-candidate results plus a summary of
// the most common failure types across the batch.
type BatchValidationResult struct {
	Results      []ValidationResult     `json:"results"`
	ValidCount   int                    `json:"valid_count"`
	InvalidCount int                    `json:"invalid_count"`
	ErrorCounts  map[ConstraintType]int `json:"error_counts,omitempty"`
}

// ScoreWeights are the tunable per-strategy weighting factors. Exact values
// are heuristics validated against usage data, not hard requirements.
type ScoreWeights struct {
	Capacity  float64
	Grade     float64
	TimeOfDay float64
	Balance   float64
}

// Per-strategy weight tables. Package vars so deployments can tune them.
var (
	TwoPassWeights      = ScoreWeights{Capacity: 0.30, Grade: 0.20, TimeOfDay: 0.20, Balance: 0.30}
	EvenWeights         = ScoreWeights{Capacity: 0.35, Grade: 0, TimeOfDay: 0.15, Balance: 0.50}
	GradeGroupedWeights = ScoreWeights{Capacity: 0.20, Grade: 0.45, TimeOfDay: 0.15, Balance: 0.20}
	CompactWeights      = ScoreWeights{Capacity: 0.25, Grade: 0.10, TimeOfDay: 0.15, Balance: 0.50}
	SpreadWeights       = ScoreWeights{Capacity: 0.25, Grade: 0.10, TimeOfDay: 0.15, Balance: 0.50}
)

func weightsFor(strategy Strategy) ScoreWeights {
	switch strategy {
	case StrategyEven:
		return EvenWeights
	case StrategyGradeGrouped:
		return GradeGroupedWeights
	case StrategyCompact:
		return CompactWeights
	case StrategySpread:
		return SpreadWeights
	default:
		return TwoPassWeights
	}
}

// SlotScore carries the weighted factors behind a candidate's total score so
// callers and tests can see why a slot won.
type SlotScore struct {
	Total   float64      `json:"total"`
	Factors ScoreFactors `json:"factors"`
}

// ScoreFactors are the individual 0..1 scoring components.
type ScoreFactors struct {
	Capacity       float64 `json:"capacity"`
	GradeAlignment float64 `json:"grade_alignment"`
	TimeOfDay      float64 `json:"time_of_day"`
	Balance        float64 `json:"balance"`
}

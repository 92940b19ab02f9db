package scheduling

import (
	"fmt"
	"time"
)

// Placement is one proposed (student, day, time range) assignment to check.
type Placement struct {
	StudentID   string `json:"student_id"`
	GradeLevel  string `json:"grade_level"`
	TeacherName string `json:"teacher_name"`
	Day         int    `json:"day"`
	Start       int    `json:"start"`
	End         int    `json:"end"`
}

// Validator runs the ordered battery of constraint checks against the data
// manager's cached view. Each check is independent; order only affects the
// order errors are reported in. Critical failures (work_location,
// session_overlap) short-circuit the remaining checks because the slot is
// unusable regardless.
type Validator struct {
	manager *DataManager
	cfg     DistributionConfig
}

// NewValidator builds a validator bound to one manager and config.
func NewValidator(manager *DataManager, cfg DistributionConfig) *Validator {
	return &Validator{manager: manager, cfg: cfg.Normalize()}
}

// Validate checks one proposed placement against all constraint types and
// returns the result as data. The result is valid iff no critical or
// error-severity entries are present; warnings never affect validity.
func (v *Validator) Validate(p Placement) ValidationResult {
	started := time.Now()
	result := ValidationResult{}

	checks := []struct {
		constraint ConstraintType
		run        func(Placement) []ValidationError
	}{
		{ConstraintWorkLocation, v.checkWorkLocation},
		{ConstraintSessionOverlap, v.checkSessionOverlap},
		{ConstraintSchoolHours, v.checkSchoolHours},
		{ConstraintBellSchedule, v.checkBellSchedule},
		{ConstraintSpecialActivity, v.checkSpecialActivity},
		{ConstraintCapacity, v.checkCapacity},
		{ConstraintBreak, v.checkBreaks},
	}

	for _, check := range checks {
		result.ConstraintsChecked = append(result.ConstraintsChecked, check.constraint)
		issues := check.run(p)
		for _, issue := range issues {
			if issue.Severity == SeverityWarning {
				result.Warnings = append(result.Warnings, issue)
			} else {
				result.Errors = append(result.Errors, issue)
			}
		}
		if result.HasCritical() {
			break
		}
	}

	result.Valid = len(result.Errors) == 0
	result.Duration = time.Since(started)
	result.DurationMs = result.Duration.Milliseconds()
	return result
}

// BatchValidate runs Validate per candidate and aggregates a summary of the
// most common error types across the batch.
func (v *Validator) BatchValidate(placements []Placement) BatchValidationResult {
	batch := BatchValidationResult{
		Results:     make([]ValidationResult, 0, len(placements)),
		ErrorCounts: make(map[ConstraintType]int),
	}
	for _, p := range placements {
		result := v.Validate(p)
		if result.Valid {
			batch.ValidCount++
		} else {
			batch.InvalidCount++
		}
		for _, e := range result.Errors {
			batch.ErrorCounts[e.Constraint]++
		}
		batch.Results = append(batch.Results, result)
	}
	return batch
}

func (v *Validator) checkWorkLocation(p Placement) []ValidationError {
	if v.manager.IsProviderAvailable(p.Day) {
		return nil
	}
	return []ValidationError{{
		Constraint: ConstraintWorkLocation,
		Severity:   SeverityCritical,
		Message:    fmt.Sprintf("provider does not work this site on %s", dayName(p.Day)),
	}}
}

func (v *Validator) checkSessionOverlap(p Placement) []ValidationError {
	if p.StudentID == "" {
		return nil
	}
	overlapping := v.manager.StudentSessionsOverlapping(p.StudentID, p.Day, p.Start, p.End)
	if len(overlapping) == 0 {
		return nil
	}
	first := overlapping[0]
	return []ValidationError{{
		Constraint: ConstraintSessionOverlap,
		Severity:   SeverityCritical,
		Message: fmt.Sprintf("student already has a session %s-%s on %s",
			first.StartTime, first.EndTime, dayName(p.Day)),
	}}
}

func (v *Validator) checkSchoolHours(p Placement) []ValidationError {
	start, end := v.manager.HoursFor(p.GradeLevel, p.Day)
	if p.Start >= start && p.End <= end {
		return nil
	}
	return []ValidationError{{
		Constraint: ConstraintSchoolHours,
		Severity:   SeverityError,
		Message: fmt.Sprintf("slot %s-%s is outside school hours %s-%s",
			FormatClock(p.Start), FormatClock(p.End), FormatClock(start), FormatClock(end)),
	}}
}

func (v *Validator) checkBellSchedule(p Placement) []ValidationError {
	conflicts := v.manager.BellScheduleConflicts(p.GradeLevel, p.Day, p.Start, p.End)
	errors := make([]ValidationError, 0, len(conflicts))
	for _, b := range conflicts {
		errors = append(errors, ValidationError{
			Constraint: ConstraintBellSchedule,
			Severity:   SeverityError,
			Message: fmt.Sprintf("overlaps %s for grade %s (%s-%s)",
				b.PeriodName, b.GradeLevel, b.StartTime, b.EndTime),
		})
	}
	return errors
}

func (v *Validator) checkSpecialActivity(p Placement) []ValidationError {
	if p.TeacherName == "" {
		return nil
	}
	conflicts := v.manager.SpecialActivityConflicts(p.TeacherName, p.Day, p.Start, p.End)
	errors := make([]ValidationError, 0, len(conflicts))
	for _, a := range conflicts {
		errors = append(errors, ValidationError{
			Constraint: ConstraintSpecialActivity,
			Severity:   SeverityError,
			Message: fmt.Sprintf("overlaps %s with %s (%s-%s)",
				a.ActivityName, a.TeacherName, a.StartTime, a.EndTime),
		})
	}
	return errors
}

func (v *Validator) checkCapacity(p Placement) []ValidationError {
	var errors []ValidationError
	if v.cfg.MaxSessionsPerSlot > 0 {
		occupied := v.manager.SlotCapacity(p.Day, p.Start)
		if occupied >= v.cfg.MaxSessionsPerSlot {
			errors = append(errors, ValidationError{
				Constraint: ConstraintCapacity,
				Severity:   SeverityError,
				Message: fmt.Sprintf("slot %s already holds %d of %d concurrent sessions",
					FormatClock(p.Start), occupied, v.cfg.MaxSessionsPerSlot),
			})
		}
	}
	if v.cfg.MaxSessionsPerDay > 0 {
		count := v.manager.DaySessionCount(p.Day)
		if count >= v.cfg.MaxSessionsPerDay {
			errors = append(errors, ValidationError{
				Constraint: ConstraintConcurrent,
				Severity:   SeverityError,
				Message: fmt.Sprintf("provider already has %d of %d sessions on %s",
					count, v.cfg.MaxSessionsPerDay, dayName(p.Day)),
			})
		}
	}
	return errors
}

// checkBreaks enforces the minimum break between the provider's adjacent
// sessions and the cap on uninterrupted back-to-back time.
func (v *Validator) checkBreaks(p Placement) []ValidationError {
	if v.cfg.MinBreakMinutes <= 0 && v.cfg.MaxConsecutiveMin <= 0 {
		return nil
	}
	var errors []ValidationError
	type window struct{ start, end int }
	var windows []window
	for _, s := range v.manager.SessionsOn(p.Day) {
		start, err := ParseClock(s.StartTime)
		if err != nil {
			continue
		}
		end, err := ParseClock(s.EndTime)
		if err != nil || end <= start {
			continue
		}
		windows = append(windows, window{start: start, end: end})
		if v.cfg.MinBreakMinutes > 0 {
			gap := -1
			if start >= p.End {
				gap = start - p.End
			} else if end <= p.Start {
				gap = p.Start - end
			}
			if gap > 0 && gap < v.cfg.MinBreakMinutes {
				errors = append(errors, ValidationError{
					Constraint: ConstraintBreak,
					Severity:   SeverityError,
					Message: fmt.Sprintf("only %d minutes between sessions, %d required",
						gap, v.cfg.MinBreakMinutes),
				})
			}
		}
	}
	if v.cfg.MaxConsecutiveMin > 0 {
		// Walk the back-to-back chain outward from the placement in both
		// directions so an existing run of adjacent sessions counts in full,
		// not just the session touching the placement.
		chainStart, chainEnd := p.Start, p.End
		for extended := true; extended; {
			extended = false
			for _, w := range windows {
				if w.end == chainStart {
					chainStart = w.start
					extended = true
				}
				if w.start == chainEnd {
					chainEnd = w.end
					extended = true
				}
			}
		}
		if consecutive := chainEnd - chainStart; consecutive > v.cfg.MaxConsecutiveMin {
			errors = append(errors, ValidationError{
				Constraint: ConstraintConsecutive,
				Severity:   SeverityError,
				Message: fmt.Sprintf("placement creates %d consecutive minutes, max is %d",
					consecutive, v.cfg.MaxConsecutiveMin),
			})
		}
	}
	return errors
}

var dayNames = [...]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

func dayName(day int) string {
	if day >= 0 && day < len(dayNames) {
		return dayNames[day]
	}
	return fmt.Sprintf("day %d", day)
}

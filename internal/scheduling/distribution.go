package scheduling

import (
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/casebeam/caseload-api/internal/models"
)

// DistributionContext supplies the caseload view the engine needs beyond the
// manager's cache: the grade of every student with sessions on this calendar,
// for grade-alignment scoring.
type DistributionContext struct {
	GradeByStudent map[string]string
}

// PlacedSession is one accepted placement with its winning score.
type PlacedSession struct {
	Session models.ScheduleSession `json:"session"`
	Score   SlotScore              `json:"score"`
}

// UnscheduledSession reports a required weekly session that neither pass
// could place. It is a valid outcome requiring manual follow-up, not an
// error.
type UnscheduledSession struct {
	Index   int    `json:"index"`
	Minutes int    `json:"minutes"`
	Reason  string `json:"reason"`
}

// DistributionMetrics summarise placement quality so callers and tests can
// assert properties without hand-checking every slot.
type DistributionMetrics struct {
	AvgSessionsPerDay   float64 `json:"avg_sessions_per_day"`
	MaxSessionsPerDay   int     `json:"max_sessions_per_day"`
	GradeGroupingScore  float64 `json:"grade_grouping_score"`
	DistributionBalance float64 `json:"distribution_balance"`
}

// DistributionResult is the complete outcome of one distribution run. Every
// required weekly session is either in Placements or in Unscheduled; none
// silently vanish.
type DistributionResult struct {
	Placements  []PlacedSession      `json:"placements"`
	Unscheduled []UnscheduledSession `json:"unscheduled"`
	Metrics     DistributionMetrics  `json:"metrics"`
}

// Engine places a student's required weekly sessions into candidate slots
// using a configurable strategy. The default is two-pass: fill slots holding
// fewer than FirstPassLimit sessions first, then retry leftovers against
// slots with headroom up to SecondPassLimit.
type Engine struct {
	manager   *DataManager
	validator *Validator
	cfg       DistributionConfig
	logger    *zap.Logger
}

// NewEngine builds an engine bound to an initialized data manager.
func NewEngine(manager *DataManager, cfg DistributionConfig, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.Normalize()
	return &Engine{
		manager:   manager,
		validator: NewValidator(manager, cfg),
		cfg:       cfg,
		logger:    logger,
	}
}

type candidate struct {
	day   int
	start int
	end   int
	score SlotScore
}

// Distribute places the student's weekly requirement. Accepted placements are
// added to the manager's cache as the run progresses so later sessions see
// earlier ones; callers snapshot the manager beforehand if they may need to
// roll back.
func (e *Engine) Distribute(student models.Student, ctx DistributionContext) DistributionResult {
	result := DistributionResult{}
	required := student.SessionsPerWeek
	duration := student.MinutesPerSession
	if required <= 0 || duration <= 0 {
		return result
	}

	firstLimit := e.cfg.MaxSessionsPerSlot
	secondLimit := 0
	if e.cfg.TwoPassEnabled {
		firstLimit = e.cfg.FirstPassLimit
		secondLimit = e.cfg.SecondPassLimit
	}

	placedByDay := make(map[int]int)
	var pending []int
	for i := 0; i < required; i++ {
		if e.placeOne(student, ctx, duration, firstLimit, false, placedByDay, &result) {
			continue
		}
		pending = append(pending, i)
	}

	for _, idx := range pending {
		if secondLimit > firstLimit && e.placeOne(student, ctx, duration, secondLimit, true, placedByDay, &result) {
			continue
		}
		result.Unscheduled = append(result.Unscheduled, UnscheduledSession{
			Index:   idx,
			Minutes: duration,
			Reason:  e.unscheduledReason(student, duration, e.cfg.MaxSessionsPerSlot),
		})
	}

	result.Metrics = e.metrics(student, ctx, result.Placements)
	e.logger.Debug("distribution run complete",
		zap.String("student_id", student.ID),
		zap.Int("placed", len(result.Placements)),
		zap.Int("unscheduled", len(result.Unscheduled)))
	return result
}

// placeOne attempts a single session placement within the given slot limit.
func (e *Engine) placeOne(student models.Student, ctx DistributionContext, duration, slotLimit int, relaxed bool, placedByDay map[int]int, result *DistributionResult) bool {
	candidates := e.candidates(student, duration, slotLimit, relaxed, placedByDay, ctx)
	for _, c := range candidates {
		check := e.validator.Validate(Placement{
			StudentID:   student.ID,
			GradeLevel:  student.GradeLevel,
			TeacherName: student.TeacherName,
			Day:         c.day,
			Start:       c.start,
			End:         c.end,
		})
		if !check.Valid {
			continue
		}
		session := e.buildTemplate(student, c)
		if err := e.manager.AddSession(session); err != nil {
			e.logger.Warn("failed to cache accepted placement", zap.Error(err))
			continue
		}
		placedByDay[c.day]++
		result.Placements = append(result.Placements, PlacedSession{Session: session, Score: c.score})
		return true
	}
	return false
}

// candidates builds and scores the universe of open slots for one session,
// sorted best-first with deterministic tie-breaks (earliest day, then
// earliest start).
func (e *Engine) candidates(student models.Student, duration, slotLimit int, relaxed bool, placedByDay map[int]int, ctx DistributionContext) []candidate {
	var out []candidate
	for _, day := range e.manager.ProviderWorkDays() {
		hoursStart, hoursEnd := e.manager.HoursFor(student.GradeLevel, day)
		for start := hoursStart; start+duration <= hoursEnd; start += e.cfg.SlotIncrementMinutes {
			end := start + duration
			if e.manager.SlotCapacity(day, start) >= slotLimit {
				continue
			}
			if !e.manager.IsSlotAvailable(student.GradeLevel, day, start, end, slotLimit) {
				continue
			}
			out = append(out, candidate{
				day:   day,
				start: start,
				end:   end,
				score: e.score(student, ctx, day, start, hoursStart, hoursEnd, slotLimit, relaxed, placedByDay),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score.Total != out[j].score.Total {
			return out[i].score.Total > out[j].score.Total
		}
		if out[i].day != out[j].day {
			return out[i].day < out[j].day
		}
		return out[i].start < out[j].start
	})
	return out
}

// score combines the four weighted factors: remaining capacity, grade
// alignment, time-of-day preference, and distribution balance.
func (e *Engine) score(student models.Student, ctx DistributionContext, day, start, hoursStart, hoursEnd, slotLimit int, relaxed bool, placedByDay map[int]int) SlotScore {
	weights := weightsFor(e.cfg.Strategy)
	if relaxed {
		// Second pass: relax the even-distribution preference and chase
		// remaining capacity instead.
		weights.Capacity += weights.Balance * 0.75
		weights.Balance *= 0.25
	}

	factors := ScoreFactors{
		Capacity:       e.capacityFactor(day, start, slotLimit),
		GradeAlignment: e.gradeFactor(student, ctx, day, start),
		TimeOfDay:      e.timeOfDayFactor(start, hoursStart, hoursEnd),
		Balance:        e.balanceFactor(student, day, placedByDay),
	}

	total := weights.Capacity*factors.Capacity +
		weights.Grade*factors.GradeAlignment +
		weights.TimeOfDay*factors.TimeOfDay +
		weights.Balance*factors.Balance
	return SlotScore{Total: total, Factors: factors}
}

func (e *Engine) capacityFactor(day, start, slotLimit int) float64 {
	if slotLimit <= 0 {
		return 1
	}
	occupied := e.manager.SlotCapacity(day, start)
	factor := 1 - float64(occupied)/float64(slotLimit)
	if factor < 0 {
		return 0
	}
	return factor
}

// gradeFactor rewards temporal proximity to same-grade peers: full credit for
// sharing the exact slot, partial credit within an hour on the same day.
func (e *Engine) gradeFactor(student models.Student, ctx DistributionContext, day, start int) float64 {
	if !e.cfg.GradeGroupingEnabled && e.cfg.Strategy != StrategyGradeGrouped {
		return 0
	}
	best := 0.0
	for _, s := range e.manager.SessionsOn(day) {
		if s.StudentID == student.ID {
			continue
		}
		if ctx.GradeByStudent[s.StudentID] != student.GradeLevel {
			continue
		}
		peerStart, err := ParseClock(s.StartTime)
		if err != nil {
			continue
		}
		if peerStart == start {
			return 1
		}
		if abs(peerStart-start) <= 60 && best < 0.6 {
			best = 0.6
		}
	}
	return best
}

func (e *Engine) timeOfDayFactor(start, hoursStart, hoursEnd int) float64 {
	span := hoursEnd - hoursStart
	if span <= 0 {
		return 0.5
	}
	position := float64(start-hoursStart) / float64(span)
	switch {
	case e.cfg.PreferMorning:
		return 1 - position
	case e.cfg.PreferAfternoon:
		return position
	default:
		return 0.5
	}
}

// balanceFactor penalizes over-concentration. Spread maximizes the minimum
// day gap between the student's own sessions; compact minimizes the weekly
// span; the default favors days the student and provider have open.
func (e *Engine) balanceFactor(student models.Student, day int, placedByDay map[int]int) float64 {
	switch e.cfg.Strategy {
	case StrategySpread:
		if len(placedByDay) == 0 {
			return 1
		}
		minGap := 7
		for placedDay := range placedByDay {
			if gap := abs(day - placedDay); gap < minGap {
				minGap = gap
			}
		}
		return math.Min(float64(minGap)/3.0, 1)
	case StrategyCompact:
		if len(placedByDay) == 0 {
			return 1
		}
		minGap := 7
		for placedDay := range placedByDay {
			if gap := abs(day - placedDay); gap < minGap {
				minGap = gap
			}
		}
		return 1 / float64(1+minGap)
	default:
		studentLoad := placedByDay[day] + len(e.studentSessionsOn(student.ID, day))
		providerLoad := e.manager.DaySessionCount(day)
		return 0.7/float64(1+studentLoad) + 0.3/float64(1+providerLoad)
	}
}

func (e *Engine) studentSessionsOn(studentID string, day int) []models.ScheduleSession {
	var out []models.ScheduleSession
	for _, s := range e.manager.SessionsOn(day) {
		if s.StudentID == studentID {
			out = append(out, s)
		}
	}
	return out
}

func (e *Engine) buildTemplate(student models.Student, c candidate) models.ScheduleSession {
	return models.ScheduleSession{
		ID:             uuid.NewString(),
		StudentID:      student.ID,
		ProviderID:     student.ProviderID,
		DeliveredBy:    student.DeliveredBy,
		ServiceType:    student.ServiceType,
		DayOfWeek:      c.day,
		StartTime:      FormatClock(c.start),
		EndTime:        FormatClock(c.end),
		Status:         models.SessionStatusScheduled,
		SchoolID:       student.SchoolID,
		SchoolSite:     student.SchoolSite,
		SchoolDistrict: student.SchoolDistrict,
	}
}

// unscheduledReason samples the candidate universe at the full capacity limit
// and reports the most common validation failure, so the caller can tell the
// user why manual placement is needed.
func (e *Engine) unscheduledReason(student models.Student, duration, slotLimit int) string {
	var placements []Placement
	for _, day := range e.manager.ProviderWorkDays() {
		hoursStart, hoursEnd := e.manager.HoursFor(student.GradeLevel, day)
		for start := hoursStart; start+duration <= hoursEnd; start += e.cfg.SlotIncrementMinutes {
			placements = append(placements, Placement{
				StudentID:   student.ID,
				GradeLevel:  student.GradeLevel,
				TeacherName: student.TeacherName,
				Day:         day,
				Start:       start,
				End:         start + duration,
			})
		}
	}
	if len(placements) == 0 {
		return "no candidate slots within the provider's work days and school hours"
	}
	batch := e.validator.BatchValidate(placements)
	var top ConstraintType
	topCount := 0
	for constraint, count := range batch.ErrorCounts {
		if count > topCount || (count == topCount && constraint < top) {
			top, topCount = constraint, count
		}
	}
	if topCount == 0 {
		return "no open slot passed validation"
	}
	return fmt.Sprintf("no open slot passed validation; most common conflict: %s", top)
}

func (e *Engine) metrics(student models.Student, ctx DistributionContext, placements []PlacedSession) DistributionMetrics {
	metrics := DistributionMetrics{}
	if len(placements) == 0 {
		return metrics
	}

	perDay := make(map[int]int)
	for _, p := range placements {
		perDay[p.Session.DayOfWeek]++
	}
	maxPerDay := 0
	for _, count := range perDay {
		if count > maxPerDay {
			maxPerDay = count
		}
	}
	metrics.AvgSessionsPerDay = float64(len(placements)) / float64(len(perDay))
	metrics.MaxSessionsPerDay = maxPerDay

	aligned := 0
	for _, p := range placements {
		start, err := ParseClock(p.Session.StartTime)
		if err != nil {
			continue
		}
		for _, s := range e.manager.SessionsOn(p.Session.DayOfWeek) {
			if s.StudentID == student.ID {
				continue
			}
			if ctx.GradeByStudent[s.StudentID] != student.GradeLevel {
				continue
			}
			peerStart, err := ParseClock(s.StartTime)
			if err != nil {
				continue
			}
			if abs(peerStart-start) <= 60 {
				aligned++
				break
			}
		}
	}
	metrics.GradeGroupingScore = float64(aligned) / float64(len(placements))

	// Balance: 1 minus the normalized deviation of per-day counts across the
	// provider's work days. A single placement is trivially balanced.
	if len(placements) <= 1 {
		metrics.DistributionBalance = 1
		return metrics
	}
	workDays := e.manager.ProviderWorkDays()
	if len(workDays) == 0 {
		return metrics
	}
	mean := float64(len(placements)) / float64(len(workDays))
	var variance float64
	for _, day := range workDays {
		diff := float64(perDay[day]) - mean
		variance += diff * diff
	}
	variance /= float64(len(workDays))
	// Worst case: everything on one day.
	worst := mean * mean * float64(len(workDays)-1)
	worst += (float64(len(placements)) - mean) * (float64(len(placements)) - mean)
	worst /= float64(len(workDays))
	if worst > 0 {
		metrics.DistributionBalance = 1 - math.Sqrt(variance)/math.Sqrt(worst)
	} else {
		metrics.DistributionBalance = 1
	}
	return metrics
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

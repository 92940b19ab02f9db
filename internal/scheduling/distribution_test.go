package scheduling

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/casebeam/caseload-api/internal/models"
)

func caseloadStudent(id, grade string, perWeek, minutes int) models.Student {
	return models.Student{
		ID:                id,
		ProviderID:        "p1",
		GradeLevel:        grade,
		SessionsPerWeek:   perWeek,
		MinutesPerSession: minutes,
		ServiceType:       "speech",
		DeliveredBy:       models.DeliveredByProvider,
		SchoolSite:        "Lincoln Elementary",
	}
}

func TestDistributeAvoidsBellPeriods(t *testing.T) {
	store := &stubStore{
		availability: weekdayAvailability("p1", "Lincoln Elementary", 2, 4),
		bells: []models.BellSchedule{
			{ID: "b1", GradeLevel: "3", DayOfWeek: 2, StartTime: "10:00", EndTime: "10:15", PeriodName: "Recess"},
			{ID: "b2", GradeLevel: "3", DayOfWeek: 4, StartTime: "10:00", EndTime: "10:15", PeriodName: "Recess"},
		},
	}
	engine := NewEngine(newTestManager(t, store), DefaultDistributionConfig(), zap.NewNop())

	result := engine.Distribute(caseloadStudent("stu1", "3", 2, 30), DistributionContext{})
	require.Len(t, result.Placements, 2)
	assert.Empty(t, result.Unscheduled)

	recessStart, recessEnd := MustClock("10:00"), MustClock("10:15")
	for _, p := range result.Placements {
		start := MustClock(p.Session.StartTime)
		end := MustClock(p.Session.EndTime)
		assert.False(t, rangesOverlap(start, end, recessStart, recessEnd),
			"placement %s-%s overlaps recess", p.Session.StartTime, p.Session.EndTime)
	}
}

func TestDistributeEverySessionPlacedOrReported(t *testing.T) {
	store := &stubStore{availability: weekdayAvailability("p1", "Lincoln Elementary", 1, 3)}
	engine := NewEngine(newTestManager(t, store), DefaultDistributionConfig(), zap.NewNop())

	student := caseloadStudent("stu1", "2", 3, 30)
	result := engine.Distribute(student, DistributionContext{})
	assert.Equal(t, student.SessionsPerWeek, len(result.Placements)+len(result.Unscheduled))
	require.Len(t, result.Placements, 3)

	for _, p := range result.Placements {
		assert.Contains(t, []int{1, 3}, p.Session.DayOfWeek)
		assert.GreaterOrEqual(t, MustClock(p.Session.StartTime), MustClock("08:00"))
		assert.LessOrEqual(t, MustClock(p.Session.EndTime), MustClock("15:00"))
		assert.Nil(t, p.Session.SessionDate, "distribution emits templates, not instances")
	}
}

func TestDistributeSecondPassFillsBeyondFirstLimit(t *testing.T) {
	// One work day with a single 30-minute window: every placement competes
	// for the same slot.
	store := &stubStore{
		availability: weekdayAvailability("p1", "Lincoln Elementary", 1),
		hours:        []models.SchoolHours{{StartTime: "09:00", EndTime: "09:30"}},
	}
	manager := newTestManager(t, store)
	engine := NewEngine(manager, DefaultDistributionConfig(), zap.NewNop())

	for i := 0; i < 4; i++ {
		result := engine.Distribute(caseloadStudent(fmt.Sprintf("stu%d", i), "3", 1, 30), DistributionContext{})
		require.Len(t, result.Placements, 1, "student %d", i)
		assert.Equal(t, "09:00", result.Placements[0].Session.StartTime)
	}
	// Four concurrent sessions in one slot: past the first-pass cap of 3,
	// under the hard cap of 6.
	assert.Equal(t, 4, manager.SlotCapacity(1, MustClock("09:00")))
}

func TestDistributeOverflowReportsUnscheduled(t *testing.T) {
	store := &stubStore{
		availability: weekdayAvailability("p1", "Lincoln Elementary", 1),
		hours:        []models.SchoolHours{{StartTime: "09:00", EndTime: "09:30"}},
	}
	manager := newTestManager(t, store)
	engine := NewEngine(manager, DefaultDistributionConfig(), zap.NewNop())

	for i := 0; i < 6; i++ {
		result := engine.Distribute(caseloadStudent(fmt.Sprintf("stu%d", i), "3", 1, 30), DistributionContext{})
		require.Len(t, result.Placements, 1)
	}

	// The seventh student finds the only slot at capacity.
	result := engine.Distribute(caseloadStudent("stu7", "3", 1, 30), DistributionContext{})
	assert.Empty(t, result.Placements)
	require.Len(t, result.Unscheduled, 1)
	assert.Equal(t, 30, result.Unscheduled[0].Minutes)
	assert.Contains(t, result.Unscheduled[0].Reason, string(ConstraintCapacity))
}

func TestDistributeIsDeterministic(t *testing.T) {
	build := func() []string {
		store := &stubStore{
			availability: weekdayAvailability("p1", "Lincoln Elementary", 1, 2, 3, 4, 5),
			bells: []models.BellSchedule{
				{ID: "b1", GradeLevel: "1", DayOfWeek: 1, StartTime: "09:00", EndTime: "09:45", PeriodName: "Reading Block"},
			},
		}
		engine := NewEngine(newTestManager(t, store), DefaultDistributionConfig(), zap.NewNop())
		result := engine.Distribute(caseloadStudent("stu1", "1", 3, 30), DistributionContext{})
		slots := make([]string, 0, len(result.Placements))
		for _, p := range result.Placements {
			slots = append(slots, fmt.Sprintf("%d/%s", p.Session.DayOfWeek, p.Session.StartTime))
		}
		return slots
	}
	assert.Equal(t, build(), build())
}

func TestDistributeSpreadStrategySeparatesDays(t *testing.T) {
	store := &stubStore{availability: weekdayAvailability("p1", "Lincoln Elementary", 1, 3, 5)}
	engine := NewEngine(newTestManager(t, store), DistributionConfig{Strategy: StrategySpread}, zap.NewNop())

	result := engine.Distribute(caseloadStudent("stu1", "3", 2, 30), DistributionContext{})
	require.Len(t, result.Placements, 2)
	gap := abs(result.Placements[0].Session.DayOfWeek - result.Placements[1].Session.DayOfWeek)
	assert.GreaterOrEqual(t, gap, 2, "spread placements should not land on adjacent work days")
}

func TestDistributeCompactStrategyClustersDays(t *testing.T) {
	store := &stubStore{availability: weekdayAvailability("p1", "Lincoln Elementary", 1, 3, 5)}
	engine := NewEngine(newTestManager(t, store), DistributionConfig{Strategy: StrategyCompact}, zap.NewNop())

	result := engine.Distribute(caseloadStudent("stu1", "3", 2, 30), DistributionContext{})
	require.Len(t, result.Placements, 2)
	assert.Equal(t, result.Placements[0].Session.DayOfWeek, result.Placements[1].Session.DayOfWeek)
}

func TestDistributeGradeGroupedPrefersPeerSlots(t *testing.T) {
	peer := template("peer-1", "peer", 1, "10:00", "10:30")
	store := &stubStore{
		availability: weekdayAvailability("p1", "Lincoln Elementary", 1, 3),
		sessions:     []models.ScheduleSession{peer},
	}
	engine := NewEngine(newTestManager(t, store), DistributionConfig{Strategy: StrategyGradeGrouped}, zap.NewNop())

	ctx := DistributionContext{GradeByStudent: map[string]string{"peer": "3"}}
	result := engine.Distribute(caseloadStudent("stu1", "3", 1, 30), ctx)
	require.Len(t, result.Placements, 1)
	assert.Equal(t, 1, result.Placements[0].Session.DayOfWeek)
	assert.Equal(t, "10:00", result.Placements[0].Session.StartTime)
	assert.InDelta(t, 1.0, result.Metrics.GradeGroupingScore, 0.001)
}

func TestDistributeMetrics(t *testing.T) {
	store := &stubStore{availability: weekdayAvailability("p1", "Lincoln Elementary", 1, 2, 3, 4)}
	engine := NewEngine(newTestManager(t, store), DefaultDistributionConfig(), zap.NewNop())

	result := engine.Distribute(caseloadStudent("stu1", "3", 4, 30), DistributionContext{})
	require.Len(t, result.Placements, 4)
	assert.Greater(t, result.Metrics.AvgSessionsPerDay, 0.0)
	assert.GreaterOrEqual(t, result.Metrics.MaxSessionsPerDay, 1)
	assert.GreaterOrEqual(t, result.Metrics.DistributionBalance, 0.0)
	assert.LessOrEqual(t, result.Metrics.DistributionBalance, 1.0)

	// Nothing to place means empty metrics, not division by zero.
	empty := engine.Distribute(caseloadStudent("stu2", "3", 0, 30), DistributionContext{})
	assert.Empty(t, empty.Placements)
	assert.Zero(t, empty.Metrics.MaxSessionsPerDay)
}

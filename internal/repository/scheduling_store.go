package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/casebeam/caseload-api/internal/models"
	"github.com/casebeam/caseload-api/internal/scheduling"
)

// SchedulingStore adapts the individual repositories into the single data
// source the scheduling data manager loads from.
type SchedulingStore struct {
	sessions     *SessionRepository
	bells        *BellScheduleRepository
	activities   *SpecialActivityRepository
	availability *AvailabilityRepository
	schools      *SchoolRepository
}

// NewSchedulingStore constructs a SchedulingStore over one database handle.
func NewSchedulingStore(db *sqlx.DB) *SchedulingStore {
	return &SchedulingStore{
		sessions:     NewSessionRepository(db),
		bells:        NewBellScheduleRepository(db),
		activities:   NewSpecialActivityRepository(db),
		availability: NewAvailabilityRepository(db),
		schools:      NewSchoolRepository(db),
	}
}

func (s *SchedulingStore) ProviderAvailability(ctx context.Context, providerID string, school scheduling.SchoolIdentifier) ([]models.ProviderAvailability, error) {
	return s.availability.ListByProvider(ctx, providerID, school.SchoolID, school.Site)
}

func (s *SchedulingStore) BellSchedules(ctx context.Context, school scheduling.SchoolIdentifier) ([]models.BellSchedule, error) {
	return s.bells.List(ctx, models.BellScheduleFilter{SchoolID: school.SchoolID, SchoolSite: school.Site})
}

func (s *SchedulingStore) SpecialActivities(ctx context.Context, school scheduling.SchoolIdentifier) ([]models.SpecialActivity, error) {
	return s.activities.List(ctx, models.SpecialActivityFilter{SchoolID: school.SchoolID, SchoolSite: school.Site})
}

func (s *SchedulingStore) TemplateSessions(ctx context.Context, providerID string, school scheduling.SchoolIdentifier) ([]models.ScheduleSession, error) {
	return s.sessions.Templates(ctx, providerID, school.SchoolID, school.Site)
}

func (s *SchedulingStore) SchoolHours(ctx context.Context, school scheduling.SchoolIdentifier) ([]models.SchoolHours, error) {
	return s.schools.Hours(ctx, school.SchoolID, school.Site)
}

func (s *SchedulingStore) SessionFingerprint(ctx context.Context, providerID string, school scheduling.SchoolIdentifier) (models.SessionFingerprint, error) {
	return s.sessions.Fingerprint(ctx, providerID, school.SchoolID, school.Site)
}

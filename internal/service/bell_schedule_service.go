package service

import (
	"context"
	"database/sql"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/casebeam/caseload-api/internal/models"
	"github.com/casebeam/caseload-api/internal/scheduling"
	appErrors "github.com/casebeam/caseload-api/pkg/errors"
)

type bellScheduleRepository interface {
	List(ctx context.Context, filter models.BellScheduleFilter) ([]models.BellSchedule, error)
	FindByID(ctx context.Context, id string) (*models.BellSchedule, error)
	Create(ctx context.Context, bell *models.BellSchedule) error
	Update(ctx context.Context, bell *models.BellSchedule) error
	Delete(ctx context.Context, id string) error
}

// BellScheduleRequest holds payload for creating or updating a bell period.
type BellScheduleRequest struct {
	SchoolID   *string `json:"school_id"`
	SchoolSite string  `json:"school_site" validate:"required_without=SchoolID"`
	GradeLevel string  `json:"grade_level" validate:"required"`
	DayOfWeek  int     `json:"day_of_week" validate:"min=0,max=6"`
	StartTime  string  `json:"start_time" validate:"required"`
	EndTime    string  `json:"end_time" validate:"required"`
	PeriodName string  `json:"period_name" validate:"required"`
}

// BellScheduleService manages grade-level bell periods.
type BellScheduleService struct {
	repo      bellScheduleRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewBellScheduleService constructs the bell schedule service.
func NewBellScheduleService(repo bellScheduleRepository, validate *validator.Validate, logger *zap.Logger) *BellScheduleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BellScheduleService{repo: repo, validator: validate, logger: logger}
}

// List returns bell schedules for one school scope.
func (s *BellScheduleService) List(ctx context.Context, filter models.BellScheduleFilter) ([]models.BellSchedule, error) {
	bells, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list bell schedules")
	}
	return bells, nil
}

// Create registers a new bell period after validating the time window.
func (s *BellScheduleService) Create(ctx context.Context, providerID string, req BellScheduleRequest) (*models.BellSchedule, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	bell := &models.BellSchedule{
		ProviderID: providerID,
		SchoolID:   req.SchoolID,
		SchoolSite: req.SchoolSite,
		GradeLevel: req.GradeLevel,
		DayOfWeek:  req.DayOfWeek,
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
		PeriodName: req.PeriodName,
	}
	if err := s.repo.Create(ctx, bell); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create bell schedule")
	}
	return bell, nil
}

// Update modifies an existing bell period.
func (s *BellScheduleService) Update(ctx context.Context, id string, req BellScheduleRequest) (*models.BellSchedule, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	bell, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "bell schedule not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load bell schedule")
	}
	bell.GradeLevel = req.GradeLevel
	bell.DayOfWeek = req.DayOfWeek
	bell.StartTime = req.StartTime
	bell.EndTime = req.EndTime
	bell.PeriodName = req.PeriodName
	if err := s.repo.Update(ctx, bell); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update bell schedule")
	}
	return bell, nil
}

// Delete removes a bell period.
func (s *BellScheduleService) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "bell schedule not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load bell schedule")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete bell schedule")
	}
	return nil
}

func (s *BellScheduleService) validate(req BellScheduleRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bell schedule payload")
	}
	start, err := scheduling.ParseClock(req.StartTime)
	if err != nil {
		return appErrors.Clone(appErrors.ErrValidation, "invalid start_time")
	}
	end, err := scheduling.ParseClock(req.EndTime)
	if err != nil {
		return appErrors.Clone(appErrors.ErrValidation, "invalid end_time")
	}
	if end <= start {
		return appErrors.Clone(appErrors.ErrValidation, "end_time must be after start_time")
	}
	return nil
}

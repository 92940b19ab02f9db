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

type specialActivityRepository interface {
	List(ctx context.Context, filter models.SpecialActivityFilter) ([]models.SpecialActivity, error)
	FindByID(ctx context.Context, id string) (*models.SpecialActivity, error)
	Create(ctx context.Context, activity *models.SpecialActivity) error
	Update(ctx context.Context, activity *models.SpecialActivity) error
	SoftDelete(ctx context.Context, id string) error
}

// SpecialActivityRequest holds payload for creating or updating an activity.
type SpecialActivityRequest struct {
	SchoolID     *string `json:"school_id"`
	SchoolSite   string  `json:"school_site" validate:"required_without=SchoolID"`
	TeacherName  string  `json:"teacher_name" validate:"required"`
	DayOfWeek    int     `json:"day_of_week" validate:"min=0,max=6"`
	StartTime    string  `json:"start_time" validate:"required"`
	EndTime      string  `json:"end_time" validate:"required"`
	ActivityName string  `json:"activity_name" validate:"required"`
}

// SpecialActivityService manages teacher special activities.
type SpecialActivityService struct {
	repo      specialActivityRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSpecialActivityService constructs the special activity service.
func NewSpecialActivityService(repo specialActivityRepository, validate *validator.Validate, logger *zap.Logger) *SpecialActivityService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SpecialActivityService{repo: repo, validator: validate, logger: logger}
}

// List returns live activities for one school scope.
func (s *SpecialActivityService) List(ctx context.Context, filter models.SpecialActivityFilter) ([]models.SpecialActivity, error) {
	activities, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list special activities")
	}
	return activities, nil
}

// Create registers a new special activity.
func (s *SpecialActivityService) Create(ctx context.Context, userID string, req SpecialActivityRequest) (*models.SpecialActivity, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	activity := &models.SpecialActivity{
		CreatedBy:    userID,
		SchoolID:     req.SchoolID,
		SchoolSite:   req.SchoolSite,
		TeacherName:  req.TeacherName,
		DayOfWeek:    req.DayOfWeek,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		ActivityName: req.ActivityName,
	}
	if err := s.repo.Create(ctx, activity); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create special activity")
	}
	return activity, nil
}

// Update modifies a live special activity.
func (s *SpecialActivityService) Update(ctx context.Context, id string, req SpecialActivityRequest) (*models.SpecialActivity, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	activity, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "special activity not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load special activity")
	}
	if activity.DeletedAt != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "special activity was deleted")
	}
	activity.TeacherName = req.TeacherName
	activity.DayOfWeek = req.DayOfWeek
	activity.StartTime = req.StartTime
	activity.EndTime = req.EndTime
	activity.ActivityName = req.ActivityName
	if err := s.repo.Update(ctx, activity); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update special activity")
	}
	return activity, nil
}

// Delete soft-deletes an activity so historical conflicts stay explainable.
func (s *SpecialActivityService) Delete(ctx context.Context, id string) error {
	activity, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "special activity not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load special activity")
	}
	if activity.DeletedAt != nil {
		return nil
	}
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete special activity")
	}
	return nil
}

func (s *SpecialActivityService) validate(req SpecialActivityRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid special activity payload")
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

package service

import (
	"context"
	"database/sql"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/casebeam/caseload-api/internal/models"
	appErrors "github.com/casebeam/caseload-api/pkg/errors"
)

type schoolRepository interface {
	List(ctx context.Context) ([]models.School, error)
	FindByID(ctx context.Context, id string) (*models.School, error)
	Create(ctx context.Context, school *models.School) error
	Hours(ctx context.Context, schoolID, schoolSite string) ([]models.SchoolHours, error)
	UpsertHours(ctx context.Context, hours *models.SchoolHours) error
}

// CreateSchoolRequest registers a structured school record.
type CreateSchoolRequest struct {
	Name           string  `json:"name" validate:"required"`
	DistrictID     *string `json:"district_id"`
	StateID        *string `json:"state_id"`
	LegacySite     string  `json:"legacy_site"`
	LegacyDistrict string  `json:"legacy_district"`
	DayStart       string  `json:"day_start"`
	DayEnd         string  `json:"day_end"`
}

// SchoolHoursRequest creates or replaces one operating-hours override.
type SchoolHoursRequest struct {
	SchoolID   *string `json:"school_id"`
	SchoolSite string  `json:"school_site" validate:"required_without=SchoolID"`
	GradeLevel *string `json:"grade_level"`
	DayOfWeek  *int    `json:"day_of_week" validate:"omitempty,min=0,max=6"`
	StartTime  string  `json:"start_time" validate:"required"`
	EndTime    string  `json:"end_time" validate:"required"`
}

// SchoolService manages school records and their operating hours.
type SchoolService struct {
	repo      schoolRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSchoolService constructs the school service.
func NewSchoolService(repo schoolRepository, validate *validator.Validate, logger *zap.Logger) *SchoolService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SchoolService{repo: repo, validator: validate, logger: logger}
}

// List returns all schools.
func (s *SchoolService) List(ctx context.Context) ([]models.School, error) {
	schools, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list schools")
	}
	return schools, nil
}

// Get returns one school.
func (s *SchoolService) Get(ctx context.Context, id string) (*models.School, error) {
	school, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "school not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load school")
	}
	return school, nil
}

// Create registers a new school.
func (s *SchoolService) Create(ctx context.Context, req CreateSchoolRequest) (*models.School, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid school payload")
	}
	if req.DayStart != "" || req.DayEnd != "" {
		if _, _, err := parseWindowTimes(req.DayStart, req.DayEnd); err != nil {
			return nil, err
		}
	}
	school := &models.School{
		Name:           req.Name,
		DistrictID:     req.DistrictID,
		StateID:        req.StateID,
		LegacySite:     req.LegacySite,
		LegacyDistrict: req.LegacyDistrict,
		DayStart:       req.DayStart,
		DayEnd:         req.DayEnd,
	}
	if err := s.repo.Create(ctx, school); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create school")
	}
	return school, nil
}

// Hours returns operating-hours overrides for a school scope.
func (s *SchoolService) Hours(ctx context.Context, schoolID, schoolSite string) ([]models.SchoolHours, error) {
	hours, err := s.repo.Hours(ctx, schoolID, schoolSite)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list school hours")
	}
	return hours, nil
}

// SetHours creates or replaces one operating-hours override.
func (s *SchoolService) SetHours(ctx context.Context, req SchoolHoursRequest) (*models.SchoolHours, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid school hours payload")
	}
	if _, _, err := parseWindowTimes(req.StartTime, req.EndTime); err != nil {
		return nil, err
	}
	hours := &models.SchoolHours{
		SchoolID:   req.SchoolID,
		SchoolSite: req.SchoolSite,
		GradeLevel: req.GradeLevel,
		DayOfWeek:  req.DayOfWeek,
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
	}
	if err := s.repo.UpsertHours(ctx, hours); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save school hours")
	}
	return hours, nil
}

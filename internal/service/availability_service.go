package service

import (
	"context"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/casebeam/caseload-api/internal/models"
	appErrors "github.com/casebeam/caseload-api/pkg/errors"
)

type availabilityRepository interface {
	ListByProvider(ctx context.Context, providerID, schoolID, schoolSite string) ([]models.ProviderAvailability, error)
	Replace(ctx context.Context, providerID string, schoolID *string, schoolSite string, days []int) error
}

// SetAvailabilityRequest replaces a provider's work days at one school site.
// The payload is the complete set; omitted days are cleared.
type SetAvailabilityRequest struct {
	SchoolID   *string `json:"school_id"`
	SchoolSite string  `json:"school_site" validate:"required"`
	Days       []int   `json:"days" validate:"required,min=1,max=7,dive,min=0,max=6"`
}

// AvailabilityService manages provider work days per school site.
type AvailabilityService struct {
	repo      availabilityRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAvailabilityService constructs the availability service.
func NewAvailabilityService(repo availabilityRepository, validate *validator.Validate, logger *zap.Logger) *AvailabilityService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AvailabilityService{repo: repo, validator: validate, logger: logger}
}

// List returns the provider's availability within a school scope.
func (s *AvailabilityService) List(ctx context.Context, providerID, schoolID, schoolSite string) ([]models.ProviderAvailability, error) {
	rows, err := s.repo.ListByProvider(ctx, providerID, schoolID, schoolSite)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list availability")
	}
	return rows, nil
}

// Set replaces the provider's work days for one site.
func (s *AvailabilityService) Set(ctx context.Context, providerID string, req SetAvailabilityRequest) ([]models.ProviderAvailability, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid availability payload")
	}
	seen := make(map[int]bool, len(req.Days))
	days := make([]int, 0, len(req.Days))
	for _, day := range req.Days {
		if !seen[day] {
			seen[day] = true
			days = append(days, day)
		}
	}
	if err := s.repo.Replace(ctx, providerID, req.SchoolID, req.SchoolSite, days); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save availability")
	}
	schoolID := ""
	if req.SchoolID != nil {
		schoolID = *req.SchoolID
	}
	return s.List(ctx, providerID, schoolID, req.SchoolSite)
}

package service

import (
	"context"
	"database/sql"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/casebeam/caseload-api/internal/models"
	appErrors "github.com/casebeam/caseload-api/pkg/errors"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	Deactivate(ctx context.Context, id string) error
}

// CreateStudentRequest holds payload for adding a student to a caseload.
type CreateStudentRequest struct {
	Initials          string  `json:"initials" validate:"required,max=12"`
	GradeLevel        string  `json:"grade_level" validate:"required"`
	TeacherName       string  `json:"teacher_name"`
	SessionsPerWeek   int     `json:"sessions_per_week" validate:"required,min=1,max=10"`
	MinutesPerSession int     `json:"minutes_per_session" validate:"required,min=5,max=120"`
	ServiceType       string  `json:"service_type" validate:"required"`
	DeliveredBy       string  `json:"delivered_by" validate:"omitempty,oneof=provider sea specialist"`
	SchoolID          *string `json:"school_id"`
	SchoolSite        string  `json:"school_site" validate:"required_without=SchoolID"`
	SchoolDistrict    string  `json:"school_district"`
}

// UpdateStudentRequest holds payload for updating a caseload student.
type UpdateStudentRequest struct {
	Initials          string  `json:"initials" validate:"required,max=12"`
	GradeLevel        string  `json:"grade_level" validate:"required"`
	TeacherName       string  `json:"teacher_name"`
	SessionsPerWeek   int     `json:"sessions_per_week" validate:"required,min=1,max=10"`
	MinutesPerSession int     `json:"minutes_per_session" validate:"required,min=5,max=120"`
	ServiceType       string  `json:"service_type" validate:"required"`
	DeliveredBy       string  `json:"delivered_by" validate:"omitempty,oneof=provider sea specialist"`
	SchoolID          *string `json:"school_id"`
	SchoolSite        string  `json:"school_site"`
	SchoolDistrict    string  `json:"school_district"`
	Active            bool    `json:"active"`
}

// StudentService handles caseload student use-cases.
type StudentService struct {
	repo      studentRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs the student service.
func NewStudentService(repo studentRepository, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, validator: validate, logger: logger}
}

// List returns students and pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return students, pagination, nil
}

// Get returns a single student.
func (s *StudentService) Get(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// Create adds a student to the provider's caseload.
func (s *StudentService) Create(ctx context.Context, providerID string, req CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	deliveredBy := models.DeliveredBy(req.DeliveredBy)
	if deliveredBy == "" {
		deliveredBy = models.DeliveredByProvider
	}
	student := &models.Student{
		ProviderID:        providerID,
		Initials:          req.Initials,
		GradeLevel:        req.GradeLevel,
		TeacherName:       req.TeacherName,
		SessionsPerWeek:   req.SessionsPerWeek,
		MinutesPerSession: req.MinutesPerSession,
		ServiceType:       req.ServiceType,
		DeliveredBy:       deliveredBy,
		SchoolID:          req.SchoolID,
		SchoolSite:        req.SchoolSite,
		SchoolDistrict:    req.SchoolDistrict,
		Active:            true,
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}
	return student, nil
}

// Update modifies an existing caseload student. Only the owning provider may
// change the record.
func (s *StudentService) Update(ctx context.Context, providerID, id string, req UpdateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if providerID != "" && student.ProviderID != providerID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "student belongs to another caseload")
	}
	student.Initials = req.Initials
	student.GradeLevel = req.GradeLevel
	student.TeacherName = req.TeacherName
	student.SessionsPerWeek = req.SessionsPerWeek
	student.MinutesPerSession = req.MinutesPerSession
	student.ServiceType = req.ServiceType
	if req.DeliveredBy != "" {
		student.DeliveredBy = models.DeliveredBy(req.DeliveredBy)
	}
	if req.SchoolID != nil {
		student.SchoolID = req.SchoolID
	}
	if req.SchoolSite != "" {
		student.SchoolSite = req.SchoolSite
	}
	if req.SchoolDistrict != "" {
		student.SchoolDistrict = req.SchoolDistrict
	}
	student.Active = req.Active
	if err := s.repo.Update(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}
	return student, nil
}

// Deactivate removes a student from active scheduling without losing history.
func (s *StudentService) Deactivate(ctx context.Context, providerID, id string) error {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if providerID != "" && student.ProviderID != providerID {
		return appErrors.Clone(appErrors.ErrForbidden, "student belongs to another caseload")
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate student")
	}
	return nil
}

package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/casebeam/caseload-api/internal/dto"
	"github.com/casebeam/caseload-api/internal/models"
	"github.com/casebeam/caseload-api/internal/scheduling"
	appErrors "github.com/casebeam/caseload-api/pkg/errors"
	"github.com/casebeam/caseload-api/pkg/jobs"
)

type caseloadRepository interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	ListActiveByProvider(ctx context.Context, providerID, schoolID, schoolSite string) ([]models.Student, error)
	GradeLevels(ctx context.Context, providerID string) (map[string]string, error)
}

type scheduleWriter interface {
	BeginTxx(ctx context.Context) (*sqlx.Tx, error)
	BulkCreateTemplatesTx(ctx context.Context, tx *sqlx.Tx, sessions []models.ScheduleSession) error
	DeleteTemplatesForStudentTx(ctx context.Context, tx *sqlx.Tx, studentID, providerID string) error
}

type instanceEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// InstanceGenerationPayload is the job payload asking the background queue to
// materialize dated instances for freshly written templates.
type InstanceGenerationPayload struct {
	TemplateIDs []string `json:"template_ids"`
	WeeksAhead  int      `json:"weeks_ahead"`
}

// JobTypeGenerateInstances names the instance-generation job type.
const JobTypeGenerateInstances = "generate_instances"

// SchedulingService orchestrates distribution runs: it builds a per-request
// scheduling data manager over the store, runs the engine, re-checks for
// concurrent writes, and persists accepted placements transactionally.
type SchedulingService struct {
	students  caseloadRepository
	sessions  scheduleWriter
	store     scheduling.Store
	cache     *CacheService
	metrics   *MetricsService
	queue     instanceEnqueuer
	cfg       scheduling.DistributionConfig
	manager   scheduling.DataManagerConfig
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSchedulingService constructs the scheduling service.
func NewSchedulingService(
	students caseloadRepository,
	sessions scheduleWriter,
	store scheduling.Store,
	cache *CacheService,
	metrics *MetricsService,
	queue instanceEnqueuer,
	cfg scheduling.DistributionConfig,
	managerCfg scheduling.DataManagerConfig,
	validate *validator.Validate,
	logger *zap.Logger,
) *SchedulingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SchedulingService{
		students:  students,
		sessions:  sessions,
		store:     store,
		cache:     cache,
		metrics:   metrics,
		queue:     queue,
		cfg:       cfg.Normalize(),
		manager:   managerCfg,
		validator: validate,
		logger:    logger,
	}
}

// Distribute places one student's weekly sessions and persists the accepted
// placements. When req.Replace is set the student's existing templates are
// cleared in the same transaction.
func (s *SchedulingService) Distribute(ctx context.Context, providerID string, req dto.DistributeRequest) (*dto.DistributeResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid distribution payload")
	}
	student, err := s.loadStudent(ctx, providerID, req.StudentID)
	if err != nil {
		return nil, err
	}

	school := s.schoolScope(student, req.SchoolID, req.SchoolSite, req.SchoolDistrict)
	manager, err := s.buildManager(ctx, providerID, school)
	if err != nil {
		return nil, err
	}
	if req.Replace {
		s.releaseTemplates(manager, map[string]struct{}{student.ID: {}})
	}

	grades, err := s.students.GradeLevels(ctx, providerID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load caseload grades")
	}

	engine := scheduling.NewEngine(manager, s.runConfig(req), s.logger)
	result := engine.Distribute(*student, scheduling.DistributionContext{GradeByStudent: grades})

	// A replace run always persists: even with zero new placements the
	// student's old templates must still be cleared.
	if len(result.Placements) > 0 || req.Replace {
		if err := s.persist(ctx, manager, providerID, req.Replace, []distributionOutcome{{student: *student, result: result}}); err != nil {
			return nil, err
		}
	}
	s.metrics.RecordDistribution(string(s.runConfig(req).Strategy), len(result.Placements), len(result.Unscheduled))

	return &dto.DistributeResponse{
		StudentID:   student.ID,
		Placements:  result.Placements,
		Unscheduled: result.Unscheduled,
		Metrics:     result.Metrics,
	}, nil
}

// DistributeBatch runs distribution across the provider's entire active
// caseload within one school scope, sharing a single data manager so later
// students see earlier placements, and persists everything in one transaction.
func (s *SchedulingService) DistributeBatch(ctx context.Context, providerID string, req dto.BatchDistributeRequest) (*dto.BatchDistributeResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid batch distribution payload")
	}
	schoolID := ""
	if req.SchoolID != nil {
		schoolID = *req.SchoolID
	}
	students, err := s.students.ListActiveByProvider(ctx, providerID, schoolID, req.SchoolSite)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load caseload")
	}
	if len(students) == 0 {
		return &dto.BatchDistributeResponse{}, nil
	}

	school := scheduling.NewSchoolIdentifier(req.SchoolSite, req.SchoolDistrict, schoolID)
	manager, err := s.buildManager(ctx, providerID, school)
	if err != nil {
		return nil, err
	}
	if req.Replace {
		caseload := make(map[string]struct{}, len(students))
		for _, student := range students {
			caseload[student.ID] = struct{}{}
		}
		s.releaseTemplates(manager, caseload)
	}

	grades, err := s.students.GradeLevels(ctx, providerID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load caseload grades")
	}

	cfg := s.cfg
	if req.Strategy != "" {
		cfg.Strategy = scheduling.Strategy(req.Strategy)
	}
	engine := scheduling.NewEngine(manager, cfg, s.logger)

	response := &dto.BatchDistributeResponse{}
	var outcomes []distributionOutcome
	for _, student := range students {
		result := engine.Distribute(student, scheduling.DistributionContext{GradeByStudent: grades})
		response.Results = append(response.Results, dto.DistributeResponse{
			StudentID:   student.ID,
			Placements:  result.Placements,
			Unscheduled: result.Unscheduled,
			Metrics:     result.Metrics,
		})
		response.TotalPlaced += len(result.Placements)
		response.TotalUnscheduled += len(result.Unscheduled)
		if len(result.Unscheduled) == 0 {
			response.StudentsScheduled++
		} else {
			response.StudentsPartial++
		}
		if len(result.Placements) > 0 || req.Replace {
			outcomes = append(outcomes, distributionOutcome{student: student, result: result})
		}
	}

	if len(outcomes) > 0 {
		if err := s.persist(ctx, manager, providerID, req.Replace, outcomes); err != nil {
			return nil, err
		}
	}
	s.metrics.RecordDistribution(string(cfg.Strategy), response.TotalPlaced, response.TotalUnscheduled)
	return response, nil
}

// ValidatePlacement checks one proposed slot without persisting anything.
func (s *SchedulingService) ValidatePlacement(ctx context.Context, providerID string, req dto.ValidatePlacementRequest) (*scheduling.ValidationResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid placement payload")
	}
	student, err := s.loadStudent(ctx, providerID, req.StudentID)
	if err != nil {
		return nil, err
	}
	start, err := scheduling.ParseClock(req.StartTime)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid start_time")
	}
	end, err := scheduling.ParseClock(req.EndTime)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid end_time")
	}
	if end <= start {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_time must be after start_time")
	}

	school := s.schoolScope(student, req.SchoolID, req.SchoolSite, req.SchoolDistrict)
	manager, err := s.buildManager(ctx, providerID, school)
	if err != nil {
		return nil, err
	}
	checker := scheduling.NewValidator(manager, s.cfg)
	result := checker.Validate(scheduling.Placement{
		StudentID:   student.ID,
		GradeLevel:  student.GradeLevel,
		TeacherName: student.TeacherName,
		Day:         req.DayOfWeek,
		Start:       start,
		End:         end,
	})
	s.metrics.ObserveValidation(result.Duration)
	return &result, nil
}

type distributionOutcome struct {
	student models.Student
	result  scheduling.DistributionResult
}

// releaseTemplates drops the listed students' cached templates from the
// manager before a replace run. Without this the engine would treat sessions
// about to be deleted as overlaps and occupied capacity.
func (s *SchedulingService) releaseTemplates(manager *scheduling.DataManager, studentIDs map[string]struct{}) {
	for _, session := range manager.ExistingSessions() {
		if _, ok := studentIDs[session.StudentID]; ok {
			manager.RemoveSession(session.ID)
		}
	}
}

// persist re-checks for concurrent session writes, then commits the accepted
// placements in one transaction and queues instance generation.
func (s *SchedulingService) persist(ctx context.Context, manager *scheduling.DataManager, providerID string, replace bool, outcomes []distributionOutcome) error {
	conflicts, err := manager.CheckForConflicts(ctx)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrDataFetch.Code, appErrors.ErrDataFetch.Status, "failed to re-check scheduling data")
	}
	if len(conflicts) > 0 {
		s.logger.Warn("scheduling data changed during distribution",
			zap.String("provider_id", providerID),
			zap.Int("conflicts", len(conflicts)))
		return appErrors.Clone(appErrors.ErrStaleData, "")
	}

	tx, err := s.sessions.BeginTxx(ctx)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open schedule transaction")
	}
	defer tx.Rollback()

	var templateIDs []string
	for _, outcome := range outcomes {
		if replace {
			if err := s.sessions.DeleteTemplatesForStudentTx(ctx, tx, outcome.student.ID, providerID); err != nil {
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear existing templates")
			}
		}
		templates := make([]models.ScheduleSession, 0, len(outcome.result.Placements))
		for _, placed := range outcome.result.Placements {
			templates = append(templates, placed.Session)
		}
		if err := s.sessions.BulkCreateTemplatesTx(ctx, tx, templates); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist placements")
		}
		for _, template := range templates {
			templateIDs = append(templateIDs, template.ID)
		}
	}
	if err := tx.Commit(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit schedule")
	}

	if s.cache != nil {
		_ = s.cache.Invalidate(ctx, fmt.Sprintf("schedule:%s:*", providerID))
	}
	if s.queue != nil && len(templateIDs) > 0 {
		job := jobs.Job{
			ID:   uuid.NewString(),
			Type: JobTypeGenerateInstances,
			Payload: InstanceGenerationPayload{
				TemplateIDs: templateIDs,
			},
		}
		if err := s.queue.Enqueue(job); err != nil {
			s.logger.Warn("failed to queue instance generation", zap.Error(err))
		}
	}
	return nil
}

func (s *SchedulingService) loadStudent(ctx context.Context, providerID, studentID string) (*models.Student, error) {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if providerID != "" && student.ProviderID != providerID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "student belongs to another caseload")
	}
	if !student.Active {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student is inactive")
	}
	return student, nil
}

func (s *SchedulingService) schoolScope(student *models.Student, schoolID *string, site, district string) scheduling.SchoolIdentifier {
	id := ""
	if schoolID != nil {
		id = *schoolID
	} else if student.SchoolID != nil {
		id = *student.SchoolID
	}
	if site == "" {
		site = student.SchoolSite
	}
	if district == "" {
		district = student.SchoolDistrict
	}
	return scheduling.NewSchoolIdentifier(site, district, id)
}

func (s *SchedulingService) buildManager(ctx context.Context, providerID string, school scheduling.SchoolIdentifier) (*scheduling.DataManager, error) {
	started := time.Now()
	manager := scheduling.NewDataManager(s.store, s.logger, s.manager)
	if err := manager.Initialize(ctx, providerID, school); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrDataFetch.Code, appErrors.ErrDataFetch.Status, "failed to load scheduling data")
	}
	s.metrics.ObserveDBQuery("scheduling_data_load", time.Since(started))
	return manager, nil
}

func (s *SchedulingService) runConfig(req dto.DistributeRequest) scheduling.DistributionConfig {
	cfg := s.cfg
	if req.Strategy != "" {
		cfg.Strategy = scheduling.Strategy(req.Strategy)
	}
	if req.MaxSessionsPerSlot > 0 {
		cfg.MaxSessionsPerSlot = req.MaxSessionsPerSlot
	}
	if req.MaxSessionsPerDay > 0 {
		cfg.MaxSessionsPerDay = req.MaxSessionsPerDay
	}
	if req.MinBreakMinutes > 0 {
		cfg.MinBreakMinutes = req.MinBreakMinutes
	}
	cfg.PreferMorning = req.PreferMorning
	cfg.PreferAfternoon = req.PreferAfternoon
	return cfg.Normalize()
}

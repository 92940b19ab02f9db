package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/casebeam/caseload-api/internal/dto"
	"github.com/casebeam/caseload-api/internal/models"
	"github.com/casebeam/caseload-api/internal/scheduling"
	appErrors "github.com/casebeam/caseload-api/pkg/errors"
)

type sessionRepository interface {
	List(ctx context.Context, filter models.SessionFilter) ([]models.ScheduleSession, int, error)
	FindByID(ctx context.Context, id string) (*models.ScheduleSession, error)
	Create(ctx context.Context, session *models.ScheduleSession) error
	Update(ctx context.Context, session *models.ScheduleSession) error
	Delete(ctx context.Context, id string, today string) error
	WeekInstances(ctx context.Context, providerID, dateFrom, dateTo string) ([]models.ScheduleSession, error)
}

type studentFinder interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

// SessionService handles manual session placement, moves, status updates, and
// the cached week view. Manual writes run the same constraint battery as the
// distribution engine; the force flag can waive error-severity failures but
// never critical ones.
type SessionService struct {
	sessions  sessionRepository
	students  studentFinder
	store     scheduling.Store
	cache     *CacheService
	metrics   *MetricsService
	cfg       scheduling.DistributionConfig
	manager   scheduling.DataManagerConfig
	weekTTL   time.Duration
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSessionService constructs the session service.
func NewSessionService(
	sessions sessionRepository,
	students studentFinder,
	store scheduling.Store,
	cache *CacheService,
	metrics *MetricsService,
	cfg scheduling.DistributionConfig,
	managerCfg scheduling.DataManagerConfig,
	weekTTL time.Duration,
	validate *validator.Validate,
	logger *zap.Logger,
) *SessionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if weekTTL <= 0 {
		weekTTL = 5 * time.Minute
	}
	return &SessionService{
		sessions:  sessions,
		students:  students,
		store:     store,
		cache:     cache,
		metrics:   metrics,
		cfg:       cfg.Normalize(),
		manager:   managerCfg,
		weekTTL:   weekTTL,
		validator: validate,
		logger:    logger,
	}
}

// List returns sessions with pagination metadata.
func (s *SessionService) List(ctx context.Context, filter models.SessionFilter) ([]models.ScheduleSession, *models.Pagination, error) {
	sessions, total, err := s.sessions.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 50
	}
	return sessions, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one session.
func (s *SessionService) Get(ctx context.Context, id string) (*models.ScheduleSession, error) {
	session, err := s.sessions.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	return session, nil
}

// Create places one weekly template manually after running the constraint
// battery against the provider's live scheduling data.
func (s *SessionService) Create(ctx context.Context, providerID string, req dto.CreateSessionRequest) (*dto.SessionResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if providerID != "" && student.ProviderID != providerID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "student belongs to another caseload")
	}

	start, end, err := parseWindowTimes(req.StartTime, req.EndTime)
	if err != nil {
		return nil, err
	}

	school := sessionSchoolScope(student, req.SchoolID, req.SchoolSite, req.SchoolDistrict)
	result, err := s.check(ctx, providerID, school, scheduling.Placement{
		StudentID:   student.ID,
		GradeLevel:  student.GradeLevel,
		TeacherName: student.TeacherName,
		Day:         req.DayOfWeek,
		Start:       start,
		End:         end,
	})
	if err != nil {
		return nil, err
	}
	warnings, err := applyForce(result, req.Force)
	if err != nil {
		return nil, err
	}

	session := &models.ScheduleSession{
		StudentID:      student.ID,
		ProviderID:     student.ProviderID,
		DeliveredBy:    student.DeliveredBy,
		ServiceType:    student.ServiceType,
		DayOfWeek:      req.DayOfWeek,
		StartTime:      scheduling.FormatClock(start),
		EndTime:        scheduling.FormatClock(end),
		GroupID:        req.GroupID,
		GroupName:      req.GroupName,
		Status:         models.SessionStatusScheduled,
		SchoolID:       student.SchoolID,
		SchoolSite:     school.Site,
		SchoolDistrict: school.District,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create session")
	}
	s.invalidateWeekCache(ctx, student.ProviderID)
	return &dto.SessionResponse{Session: *session, Warnings: warnings}, nil
}

// Move relocates an existing session to a new day/time. The session's own
// slot is released before validation so moving within an occupied window
// works.
func (s *SessionService) Move(ctx context.Context, providerID, id string, req dto.MoveSessionRequest) (*dto.SessionResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid move payload")
	}
	session, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if providerID != "" && session.ProviderID != providerID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "session belongs to another provider")
	}
	student, err := s.students.FindByID(ctx, session.StudentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	start, end, err := parseWindowTimes(req.StartTime, req.EndTime)
	if err != nil {
		return nil, err
	}

	school := sessionSchoolScope(student, session.SchoolID, session.SchoolSite, session.SchoolDistrict)
	manager, err := s.buildManager(ctx, session.ProviderID, school)
	if err != nil {
		return nil, err
	}
	snapshot := manager.PrepareSnapshot()
	manager.RemoveSession(session.ID)
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
	if restoreErr := manager.RestoreSnapshot(snapshot); restoreErr != nil {
		s.logger.Warn("failed to restore scheduling snapshot", zap.Error(restoreErr))
	}
	warnings, err := applyForce(result, req.Force)
	if err != nil {
		return nil, err
	}

	session.DayOfWeek = req.DayOfWeek
	session.StartTime = scheduling.FormatClock(start)
	session.EndTime = scheduling.FormatClock(end)
	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to move session")
	}
	s.invalidateWeekCache(ctx, session.ProviderID)
	return &dto.SessionResponse{Session: *session, Warnings: warnings}, nil
}

// UpdateStatus marks a dated instance completed, cancelled, or rescheduled.
func (s *SessionService) UpdateStatus(ctx context.Context, providerID, id string, req dto.UpdateSessionStatusRequest) (*models.ScheduleSession, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}
	session, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if providerID != "" && session.ProviderID != providerID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "session belongs to another provider")
	}
	if session.IsTemplate() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "status applies to dated instances, not templates")
	}
	session.Status = models.SessionStatus(req.Status)
	session.StudentAbsent = req.StudentAbsent
	session.IsCompleted = session.Status == models.SessionStatusCompleted
	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update session status")
	}
	s.invalidateWeekCache(ctx, session.ProviderID)
	return session, nil
}

// Delete removes a session. Deleting a template clears its future incomplete
// instances as well.
func (s *SessionService) Delete(ctx context.Context, providerID, id string) error {
	session, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if providerID != "" && session.ProviderID != providerID {
		return appErrors.Clone(appErrors.ErrForbidden, "session belongs to another provider")
	}
	today := time.Now().UTC().Format(scheduling.DateLayout)
	if err := s.sessions.Delete(ctx, id, today); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete session")
	}
	s.invalidateWeekCache(ctx, session.ProviderID)
	return nil
}

// Week returns the dated sessions for the Monday-based week containing
// anchor, served from Redis when warm.
func (s *SessionService) Week(ctx context.Context, providerID string, anchor time.Time) (*dto.WeekScheduleResponse, error) {
	weekStart := anchor.AddDate(0, 0, -mondayOffset(anchor.Weekday()))
	weekEnd := weekStart.AddDate(0, 0, 6)
	from := weekStart.Format(scheduling.DateLayout)
	to := weekEnd.Format(scheduling.DateLayout)

	key := fmt.Sprintf("schedule:%s:week:%s", providerID, from)
	var cached dto.WeekScheduleResponse
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		cached.Cached = true
		return &cached, nil
	}

	sessions, err := s.sessions.WeekInstances(ctx, providerID, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load week schedule")
	}

	response := &dto.WeekScheduleResponse{WeekStart: from, WeekEnd: to}
	byDate := make(map[string][]models.ScheduleSession)
	for _, session := range sessions {
		if session.SessionDate == nil {
			continue
		}
		byDate[*session.SessionDate] = append(byDate[*session.SessionDate], session)
	}
	for i := 0; i < 7; i++ {
		date := weekStart.AddDate(0, 0, i).Format(scheduling.DateLayout)
		response.Days = append(response.Days, dto.WeekDay{Date: date, Sessions: byDate[date]})
	}

	if err := s.cache.Set(ctx, key, response, s.weekTTL); err != nil {
		s.logger.Debug("week cache write failed", zap.Error(err))
	}
	return response, nil
}

func (s *SessionService) check(ctx context.Context, providerID string, school scheduling.SchoolIdentifier, placement scheduling.Placement) (scheduling.ValidationResult, error) {
	manager, err := s.buildManager(ctx, providerID, school)
	if err != nil {
		return scheduling.ValidationResult{}, err
	}
	checker := scheduling.NewValidator(manager, s.cfg)
	result := checker.Validate(placement)
	s.metrics.ObserveValidation(result.Duration)
	return result, nil
}

func (s *SessionService) buildManager(ctx context.Context, providerID string, school scheduling.SchoolIdentifier) (*scheduling.DataManager, error) {
	manager := scheduling.NewDataManager(s.store, s.logger, s.manager)
	if err := manager.Initialize(ctx, providerID, school); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrDataFetch.Code, appErrors.ErrDataFetch.Status, "failed to load scheduling data")
	}
	return manager, nil
}

func (s *SessionService) invalidateWeekCache(ctx context.Context, providerID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, fmt.Sprintf("schedule:%s:*", providerID)); err != nil {
		s.logger.Debug("week cache invalidation failed", zap.Error(err))
	}
}

// applyForce turns a failed validation into either a hard rejection or a set
// of acknowledged warnings. Critical failures can never be forced.
func applyForce(result scheduling.ValidationResult, force bool) ([]string, error) {
	if result.Valid {
		return nil, nil
	}
	if result.HasCritical() {
		return nil, appErrors.Wrap(fmt.Errorf("%s", result.Errors[0].Message),
			appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "placement conflicts with an unwaivable constraint")
	}
	if !force {
		return nil, appErrors.Wrap(fmt.Errorf("%s", result.Errors[0].Message),
			appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "placement failed validation")
	}
	warnings := make([]string, 0, len(result.Errors))
	for _, e := range result.Errors {
		warnings = append(warnings, fmt.Sprintf("%s: %s", e.Constraint, e.Message))
	}
	return warnings, nil
}

func parseWindowTimes(startRaw, endRaw string) (int, int, error) {
	start, err := scheduling.ParseClock(startRaw)
	if err != nil {
		return 0, 0, appErrors.Clone(appErrors.ErrValidation, "invalid start_time")
	}
	end, err := scheduling.ParseClock(endRaw)
	if err != nil {
		return 0, 0, appErrors.Clone(appErrors.ErrValidation, "invalid end_time")
	}
	if end <= start {
		return 0, 0, appErrors.Clone(appErrors.ErrValidation, "end_time must be after start_time")
	}
	return start, end, nil
}

// mondayOffset returns how many days back the week's Monday is.
func mondayOffset(day time.Weekday) int {
	if day == time.Sunday {
		return 6
	}
	return int(day) - 1
}

func sessionSchoolScope(student *models.Student, schoolID *string, site, district string) scheduling.SchoolIdentifier {
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

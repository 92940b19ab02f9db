package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/casebeam/caseload-api/internal/models"
	"github.com/casebeam/caseload-api/internal/scheduling"
	appErrors "github.com/casebeam/caseload-api/pkg/errors"
)

type instanceRepository interface {
	FindByID(ctx context.Context, id string) (*models.ScheduleSession, error)
	TemplatePage(ctx context.Context, limit, offset int) ([]models.ScheduleSession, error)
	BulkCreateInstances(ctx context.Context, instances []models.ScheduleSession) (int, error)
}

const (
	defaultWeeksAhead  = 8
	templatePageSize   = 1000
	generateAllWorkers = 10
)

// InstanceGenerationResult reports one template's materialization outcome.
type InstanceGenerationResult struct {
	TemplateID string `json:"template_id"`
	Created    int    `json:"created"`
	Error      string `json:"error,omitempty"`
}

// GenerateAllResult aggregates a full regeneration sweep.
type GenerateAllResult struct {
	Templates int                        `json:"templates"`
	Created   int                        `json:"created"`
	Failed    int                        `json:"failed"`
	Failures  []InstanceGenerationResult `json:"failures,omitempty"`
}

// InstanceService materializes dated session instances from weekly templates.
// Generation is idempotent: dates that already exist are skipped, so repeated
// sweeps only fill gaps.
type InstanceService struct {
	sessions instanceRepository
	metrics  *MetricsService
	clock    func() time.Time
	logger   *zap.Logger
}

// NewInstanceService constructs the instance service.
func NewInstanceService(sessions instanceRepository, metrics *MetricsService, logger *zap.Logger) *InstanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InstanceService{sessions: sessions, metrics: metrics, clock: time.Now, logger: logger}
}

// GenerateForTemplate materializes the next weeksAhead dated instances for
// one weekly template.
func (s *InstanceService) GenerateForTemplate(ctx context.Context, templateID string, weeksAhead int) (*InstanceGenerationResult, error) {
	template, err := s.sessions.FindByID(ctx, templateID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "template not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load template")
	}
	created, err := s.generate(ctx, template, weeksAhead)
	if err != nil {
		return nil, err
	}
	return &InstanceGenerationResult{TemplateID: templateID, Created: created}, nil
}

// GenerateForTemplates materializes instances for a known set of templates,
// collecting per-template failures instead of aborting the batch.
func (s *InstanceService) GenerateForTemplates(ctx context.Context, templateIDs []string, weeksAhead int) []InstanceGenerationResult {
	results := make([]InstanceGenerationResult, 0, len(templateIDs))
	for _, id := range templateIDs {
		result, err := s.GenerateForTemplate(ctx, id, weeksAhead)
		if err != nil {
			results = append(results, InstanceGenerationResult{TemplateID: id, Error: err.Error()})
			continue
		}
		results = append(results, *result)
	}
	return results
}

// GenerateAll sweeps every weekly template in pages, fanning each page out to
// a bounded worker pool. Per-template failures are collected; one bad
// template never aborts the sweep.
func (s *InstanceService) GenerateAll(ctx context.Context, weeksAhead int) (*GenerateAllResult, error) {
	result := &GenerateAllResult{}
	var mu sync.Mutex

	for offset := 0; ; offset += templatePageSize {
		page, err := s.sessions.TemplatePage(ctx, templatePageSize, offset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to page templates")
		}
		if len(page) == 0 {
			break
		}

		work := make(chan models.ScheduleSession)
		var wg sync.WaitGroup
		for i := 0; i < generateAllWorkers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for template := range work {
					created, err := s.generate(ctx, &template, weeksAhead)
					mu.Lock()
					result.Templates++
					if err != nil {
						result.Failed++
						result.Failures = append(result.Failures, InstanceGenerationResult{
							TemplateID: template.ID,
							Error:      err.Error(),
						})
					} else {
						result.Created += created
					}
					mu.Unlock()
				}
			}()
		}
		for _, template := range page {
			work <- template
		}
		close(work)
		wg.Wait()

		if len(page) < templatePageSize {
			break
		}
	}

	s.logger.Info("instance regeneration sweep complete",
		zap.Int("templates", result.Templates),
		zap.Int("created", result.Created),
		zap.Int("failed", result.Failed))
	return result, nil
}

// generate builds and inserts the dated occurrences for one template.
func (s *InstanceService) generate(ctx context.Context, template *models.ScheduleSession, weeksAhead int) (int, error) {
	if !template.IsTemplate() {
		return 0, appErrors.Clone(appErrors.ErrValidation, "session is a dated instance, not a template")
	}
	if template.StartTime == "" || template.EndTime == "" {
		return 0, appErrors.Clone(appErrors.ErrValidation, "template is missing its time window")
	}
	start, err := scheduling.ParseClock(template.StartTime)
	if err != nil {
		return 0, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("template has invalid start_time %q", template.StartTime))
	}
	if _, err := scheduling.ParseClock(template.EndTime); err != nil {
		return 0, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("template has invalid end_time %q", template.EndTime))
	}
	if weeksAhead <= 0 {
		weeksAhead = defaultWeeksAhead
	}

	dates := scheduling.Occurrences(template.DayOfWeek, start, weeksAhead, s.clock())
	if len(dates) == 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "template has an invalid day_of_week")
	}

	instances := make([]models.ScheduleSession, 0, len(dates))
	for _, date := range dates {
		sessionDate := date
		templateID := template.ID
		instances = append(instances, models.ScheduleSession{
			StudentID:      template.StudentID,
			ProviderID:     template.ProviderID,
			DeliveredBy:    template.DeliveredBy,
			ServiceType:    template.ServiceType,
			DayOfWeek:      template.DayOfWeek,
			StartTime:      template.StartTime,
			EndTime:        template.EndTime,
			GroupID:        template.GroupID,
			GroupName:      template.GroupName,
			SessionDate:    &sessionDate,
			TemplateID:     &templateID,
			Status:         models.SessionStatusScheduled,
			SchoolID:       template.SchoolID,
			SchoolSite:     template.SchoolSite,
			SchoolDistrict: template.SchoolDistrict,
		})
	}

	created, err := s.sessions.BulkCreateInstances(ctx, instances)
	if err != nil {
		return created, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist instances")
	}
	s.metrics.RecordInstancesGenerated(created)
	return created, nil
}

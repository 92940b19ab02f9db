package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/casebeam/caseload-api/internal/dto"
	"github.com/casebeam/caseload-api/internal/service"
	appErrors "github.com/casebeam/caseload-api/pkg/errors"
	"github.com/casebeam/caseload-api/pkg/response"
)

// ScheduleHandler exposes the distribution engine endpoints.
type ScheduleHandler struct {
	scheduler *service.SchedulingService
}

// NewScheduleHandler constructs ScheduleHandler.
func NewScheduleHandler(scheduler *service.SchedulingService) *ScheduleHandler {
	return &ScheduleHandler{scheduler: scheduler}
}

// Distribute godoc
// @Summary Distribute one student's weekly sessions
// @Tags Scheduling
// @Accept json
// @Produce json
// @Param payload body dto.DistributeRequest true "Distribution payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope "Scheduling data changed during the run"
// @Router /schedule/distribute [post]
func (h *ScheduleHandler) Distribute(c *gin.Context) {
	var req dto.DistributeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.scheduler.Distribute(c.Request.Context(), providerScope(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// DistributeBatch godoc
// @Summary Distribute the whole caseload at one school
// @Tags Scheduling
// @Accept json
// @Produce json
// @Param payload body dto.BatchDistributeRequest true "Batch payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope "Scheduling data changed during the run"
// @Router /schedule/distribute-batch [post]
func (h *ScheduleHandler) DistributeBatch(c *gin.Context) {
	var req dto.BatchDistributeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.scheduler.DistributeBatch(c.Request.Context(), providerScope(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// ValidatePlacement godoc
// @Summary Dry-run the constraint battery for one slot
// @Tags Scheduling
// @Accept json
// @Produce json
// @Param payload body dto.ValidatePlacementRequest true "Placement payload"
// @Success 200 {object} response.Envelope
// @Router /schedule/validate [post]
func (h *ScheduleHandler) ValidatePlacement(c *gin.Context) {
	var req dto.ValidatePlacementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.scheduler.ValidatePlacement(c.Request.Context(), providerScope(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

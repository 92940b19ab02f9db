package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/casebeam/caseload-api/internal/models"
	"github.com/casebeam/caseload-api/internal/service"
	appErrors "github.com/casebeam/caseload-api/pkg/errors"
	"github.com/casebeam/caseload-api/pkg/response"
)

// BellScheduleHandler exposes bell period endpoints.
type BellScheduleHandler struct {
	bells *service.BellScheduleService
}

// NewBellScheduleHandler constructs BellScheduleHandler.
func NewBellScheduleHandler(bells *service.BellScheduleService) *BellScheduleHandler {
	return &BellScheduleHandler{bells: bells}
}

// List godoc
// @Summary List bell schedules
// @Tags BellSchedules
// @Produce json
// @Param school_site query string false "Filter by school site"
// @Param school_id query string false "Filter by school ID"
// @Param grade query string false "Filter by grade level"
// @Param day query int false "Filter by day of week (0=Sunday)"
// @Success 200 {object} response.Envelope
// @Router /bell-schedules [get]
func (h *BellScheduleHandler) List(c *gin.Context) {
	var filter models.BellScheduleFilter
	filter.SchoolSite = c.Query("school_site")
	filter.SchoolID = c.Query("school_id")
	filter.GradeLevel = c.Query("grade")
	if raw := c.Query("day"); raw != "" {
		if day, err := strconv.Atoi(raw); err == nil {
			filter.DayOfWeek = &day
		}
	}
	bells, err := h.bells.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, bells, nil)
}

// Create godoc
// @Summary Create a bell schedule period
// @Tags BellSchedules
// @Accept json
// @Produce json
// @Param payload body service.BellScheduleRequest true "Bell period payload"
// @Success 201 {object} response.Envelope
// @Router /bell-schedules [post]
func (h *BellScheduleHandler) Create(c *gin.Context) {
	var req service.BellScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	bell, err := h.bells.Create(c.Request.Context(), providerScope(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, bell)
}

// Update godoc
// @Summary Update a bell schedule period
// @Tags BellSchedules
// @Accept json
// @Produce json
// @Param id path string true "Bell schedule ID"
// @Param payload body service.BellScheduleRequest true "Bell period payload"
// @Success 200 {object} response.Envelope
// @Router /bell-schedules/{id} [put]
func (h *BellScheduleHandler) Update(c *gin.Context) {
	var req service.BellScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	bell, err := h.bells.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, bell, nil)
}

// Delete godoc
// @Summary Delete a bell schedule period
// @Tags BellSchedules
// @Produce json
// @Param id path string true "Bell schedule ID"
// @Success 204
// @Router /bell-schedules/{id} [delete]
func (h *BellScheduleHandler) Delete(c *gin.Context) {
	if err := h.bells.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

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

// SpecialActivityHandler exposes special activity endpoints.
type SpecialActivityHandler struct {
	activities *service.SpecialActivityService
}

// NewSpecialActivityHandler constructs SpecialActivityHandler.
func NewSpecialActivityHandler(activities *service.SpecialActivityService) *SpecialActivityHandler {
	return &SpecialActivityHandler{activities: activities}
}

// List godoc
// @Summary List special activities
// @Tags SpecialActivities
// @Produce json
// @Param school_site query string false "Filter by school site"
// @Param school_id query string false "Filter by school ID"
// @Param teacher query string false "Filter by teacher name"
// @Param day query int false "Filter by day of week (0=Sunday)"
// @Success 200 {object} response.Envelope
// @Router /special-activities [get]
func (h *SpecialActivityHandler) List(c *gin.Context) {
	var filter models.SpecialActivityFilter
	filter.SchoolSite = c.Query("school_site")
	filter.SchoolID = c.Query("school_id")
	filter.TeacherName = c.Query("teacher")
	if raw := c.Query("day"); raw != "" {
		if day, err := strconv.Atoi(raw); err == nil {
			filter.DayOfWeek = &day
		}
	}
	activities, err := h.activities.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, activities, nil)
}

// Create godoc
// @Summary Create a special activity
// @Tags SpecialActivities
// @Accept json
// @Produce json
// @Param payload body service.SpecialActivityRequest true "Activity payload"
// @Success 201 {object} response.Envelope
// @Router /special-activities [post]
func (h *SpecialActivityHandler) Create(c *gin.Context) {
	var req service.SpecialActivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	userID := ""
	if claims := claimsFromContext(c); claims != nil {
		userID = claims.UserID
	}
	activity, err := h.activities.Create(c.Request.Context(), userID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, activity)
}

// Update godoc
// @Summary Update a special activity
// @Tags SpecialActivities
// @Accept json
// @Produce json
// @Param id path string true "Activity ID"
// @Param payload body service.SpecialActivityRequest true "Activity payload"
// @Success 200 {object} response.Envelope
// @Router /special-activities/{id} [put]
func (h *SpecialActivityHandler) Update(c *gin.Context) {
	var req service.SpecialActivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	activity, err := h.activities.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, activity, nil)
}

// Delete godoc
// @Summary Soft-delete a special activity
// @Tags SpecialActivities
// @Produce json
// @Param id path string true "Activity ID"
// @Success 204
// @Router /special-activities/{id} [delete]
func (h *SpecialActivityHandler) Delete(c *gin.Context) {
	if err := h.activities.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

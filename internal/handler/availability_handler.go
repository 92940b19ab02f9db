package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/casebeam/caseload-api/internal/service"
	appErrors "github.com/casebeam/caseload-api/pkg/errors"
	"github.com/casebeam/caseload-api/pkg/response"
)

// AvailabilityHandler exposes provider work-day endpoints.
type AvailabilityHandler struct {
	availability *service.AvailabilityService
}

// NewAvailabilityHandler constructs AvailabilityHandler.
func NewAvailabilityHandler(availability *service.AvailabilityService) *AvailabilityHandler {
	return &AvailabilityHandler{availability: availability}
}

// List godoc
// @Summary List the provider's work days
// @Tags Availability
// @Produce json
// @Param school_site query string false "Filter by school site"
// @Param school_id query string false "Filter by school ID"
// @Success 200 {object} response.Envelope
// @Router /availability [get]
func (h *AvailabilityHandler) List(c *gin.Context) {
	rows, err := h.availability.List(c.Request.Context(), providerScope(c), c.Query("school_id"), c.Query("school_site"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}

// Set godoc
// @Summary Replace the provider's work days for one site
// @Tags Availability
// @Accept json
// @Produce json
// @Param payload body service.SetAvailabilityRequest true "Availability payload"
// @Success 200 {object} response.Envelope
// @Router /availability [put]
func (h *AvailabilityHandler) Set(c *gin.Context) {
	var req service.SetAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	rows, err := h.availability.Set(c.Request.Context(), providerScope(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}

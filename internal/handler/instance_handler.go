package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/casebeam/caseload-api/internal/service"
	appErrors "github.com/casebeam/caseload-api/pkg/errors"
	"github.com/casebeam/caseload-api/pkg/response"
)

// InstanceHandler exposes session instance generation endpoints.
type InstanceHandler struct {
	instances *service.InstanceService
}

// NewInstanceHandler constructs InstanceHandler.
func NewInstanceHandler(instances *service.InstanceService) *InstanceHandler {
	return &InstanceHandler{instances: instances}
}

// GenerateRequest asks for instance materialization of specific templates.
type GenerateRequest struct {
	TemplateIDs []string `json:"template_ids" binding:"required,min=1"`
	WeeksAhead  int      `json:"weeks_ahead"`
}

// GenerateAllRequest tunes a full regeneration sweep.
type GenerateAllRequest struct {
	WeeksAhead int `json:"weeks_ahead"`
}

// Generate godoc
// @Summary Materialize dated instances for templates
// @Tags Instances
// @Accept json
// @Produce json
// @Param payload body handler.GenerateRequest true "Template IDs"
// @Success 200 {object} response.Envelope
// @Router /instances/generate [post]
func (h *InstanceHandler) Generate(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	results := h.instances.GenerateForTemplates(c.Request.Context(), req.TemplateIDs, req.WeeksAhead)
	response.JSON(c, http.StatusOK, results, nil)
}

// GenerateAll godoc
// @Summary Sweep every template and fill missing instances
// @Tags Instances
// @Accept json
// @Produce json
// @Param payload body handler.GenerateAllRequest false "Sweep options"
// @Success 200 {object} response.Envelope
// @Router /admin/instances/generate-all [post]
func (h *InstanceHandler) GenerateAll(c *gin.Context) {
	var req GenerateAllRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
			return
		}
	}
	result, err := h.instances.GenerateAll(c.Request.Context(), req.WeeksAhead)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

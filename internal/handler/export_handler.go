package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/casebeam/caseload-api/internal/scheduling"
	"github.com/casebeam/caseload-api/internal/service"
	appErrors "github.com/casebeam/caseload-api/pkg/errors"
	"github.com/casebeam/caseload-api/pkg/response"
)

// ExportHandler streams rendered exports back to the caller.
type ExportHandler struct {
	exports *service.ExportService
}

// NewExportHandler constructs ExportHandler.
func NewExportHandler(exports *service.ExportService) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// CaseloadCSV godoc
// @Summary Download the active caseload as CSV
// @Tags Exports
// @Produce text/csv
// @Param school_site query string false "Limit to one school site"
// @Param school_id query string false "Limit to one school ID"
// @Success 200 {file} file
// @Router /exports/caseload [get]
func (h *ExportHandler) CaseloadCSV(c *gin.Context) {
	file, err := h.exports.CaseloadCSV(c.Request.Context(), providerScope(c), c.Query("school_id"), c.Query("school_site"))
	if err != nil {
		response.Error(c, err)
		return
	}
	serveExport(c, file)
}

// WeekPDF godoc
// @Summary Download one week's schedule as PDF
// @Tags Exports
// @Produce application/pdf
// @Param date query string false "Any date inside the target week (YYYY-MM-DD, default today)"
// @Success 200 {file} file
// @Router /exports/week [get]
func (h *ExportHandler) WeekPDF(c *gin.Context) {
	anchor := time.Now().UTC()
	if raw := c.Query("date"); raw != "" {
		parsed, err := time.Parse(scheduling.DateLayout, raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid date, expected YYYY-MM-DD"))
			return
		}
		anchor = parsed
	}
	file, err := h.exports.WeekPDF(c.Request.Context(), providerScope(c), anchor)
	if err != nil {
		response.Error(c, err)
		return
	}
	serveExport(c, file)
}

func serveExport(c *gin.Context, file *service.ExportFile) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.Data(http.StatusOK, file.ContentType, file.Data)
}

package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/casebeam/caseload-api/internal/dto"
	"github.com/casebeam/caseload-api/internal/middleware"
	"github.com/casebeam/caseload-api/internal/models"
	"github.com/casebeam/caseload-api/internal/scheduling"
	"github.com/casebeam/caseload-api/internal/service"
	appErrors "github.com/casebeam/caseload-api/pkg/errors"
	"github.com/casebeam/caseload-api/pkg/response"
)

// SessionHandler exposes session template and instance endpoints.
type SessionHandler struct {
	sessions *service.SessionService
}

// NewSessionHandler constructs SessionHandler.
func NewSessionHandler(sessions *service.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// List godoc
// @Summary List sessions
// @Tags Sessions
// @Produce json
// @Param student_id query string false "Filter by student"
// @Param school_site query string false "Filter by school site"
// @Param day query int false "Filter by day of week (0=Sunday)"
// @Param templates query bool false "Templates only"
// @Param instances query bool false "Dated instances only"
// @Param from query string false "Instance date lower bound (YYYY-MM-DD)"
// @Param to query string false "Instance date upper bound (YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /sessions [get]
func (h *SessionHandler) List(c *gin.Context) {
	var filter models.SessionFilter
	filter.ProviderID = providerScope(c)
	filter.StudentID = c.Query("student_id")
	filter.SchoolSite = c.Query("school_site")
	filter.SchoolID = c.Query("school_id")
	if raw := c.Query("day"); raw != "" {
		if day, err := strconv.Atoi(raw); err == nil {
			filter.DayOfWeek = &day
		}
	}
	filter.TemplatesOnly = c.Query("templates") == "true"
	filter.InstancesOnly = c.Query("instances") == "true"
	filter.DateFrom = c.Query("from")
	filter.DateTo = c.Query("to")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil {
		filter.PageSize = size
	}

	sessions, pagination, err := h.sessions.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, pagination)
}

// Get godoc
// @Summary Get one session
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id} [get]
func (h *SessionHandler) Get(c *gin.Context) {
	session, err := h.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// Create godoc
// @Summary Place a session manually
// @Tags Sessions
// @Accept json
// @Produce json
// @Param payload body dto.CreateSessionRequest true "Session payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions [post]
func (h *SessionHandler) Create(c *gin.Context) {
	var req dto.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	resp, err := h.sessions.Create(c.Request.Context(), providerScope(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, resp)
}

// Move godoc
// @Summary Move a session to a new day or time
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.MoveSessionRequest true "Move payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions/{id}/move [put]
func (h *SessionHandler) Move(c *gin.Context) {
	var req dto.MoveSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	resp, err := h.sessions.Move(c.Request.Context(), providerScope(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp, nil)
}

// UpdateStatus godoc
// @Summary Update a dated instance's status
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.UpdateSessionStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/status [put]
func (h *SessionHandler) UpdateStatus(c *gin.Context) {
	var req dto.UpdateSessionStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	session, err := h.sessions.UpdateStatus(c.Request.Context(), providerScope(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// Delete godoc
// @Summary Delete a session
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 204
// @Router /sessions/{id} [delete]
func (h *SessionHandler) Delete(c *gin.Context) {
	if err := h.sessions.Delete(c.Request.Context(), providerScope(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Week godoc
// @Summary Get the week view
// @Tags Sessions
// @Produce json
// @Param date query string false "Any date inside the target week (YYYY-MM-DD, default today)"
// @Success 200 {object} response.Envelope
// @Router /sessions/week [get]
func (h *SessionHandler) Week(c *gin.Context) {
	anchor := time.Now().UTC()
	if raw := c.Query("date"); raw != "" {
		parsed, err := time.Parse(scheduling.DateLayout, raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid date, expected YYYY-MM-DD"))
			return
		}
		anchor = parsed
	}
	week, err := h.sessions.Week(c.Request.Context(), providerScope(c), anchor)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, week.Cached)
	response.JSON(c, http.StatusOK, week, nil, middleware.ExtractMeta(c))
}

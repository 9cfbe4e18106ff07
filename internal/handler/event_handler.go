package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/familyhub/calendar-sync-api/internal/middleware"
	"github.com/familyhub/calendar-sync-api/internal/service"
	appErrors "github.com/familyhub/calendar-sync-api/pkg/errors"
	"github.com/familyhub/calendar-sync-api/pkg/response"
)

// EventHandler exposes the read-only calendar view endpoints.
type EventHandler struct {
	service       *service.EventService
	exportEnabled bool
}

// NewEventHandler constructs the handler.
func NewEventHandler(svc *service.EventService, exportEnabled bool) *EventHandler {
	return &EventHandler{service: svc, exportEnabled: exportEnabled}
}

// List returns events in the requested window.
func (h *EventHandler) List(c *gin.Context) {
	req, err := parseEventWindow(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	events, err := h.service.List(c.Request.Context(), middleware.CurrentUserID(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events, nil)
}

// Export renders the window as a downloadable CSV or PDF agenda.
func (h *EventHandler) Export(c *gin.Context) {
	if !h.exportEnabled {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "event export is disabled"))
		return
	}
	req, err := parseEventWindow(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	format := c.DefaultQuery("format", "csv")
	payload, contentType, err := h.service.Export(c.Request.Context(), middleware.CurrentUserID(c), req, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	filename := fmt.Sprintf("agenda-%s.%s", time.Now().UTC().Format("20060102"), format)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, payload)
}

func parseEventWindow(c *gin.Context) (service.EventListRequest, error) {
	var req service.EventListRequest

	start := c.Query("start")
	end := c.Query("end")
	if start == "" || end == "" {
		return req, appErrors.Clone(appErrors.ErrValidation, "start and end query parameters are required")
	}

	startTime, err := parseTimeParam(start)
	if err != nil {
		return req, appErrors.Clone(appErrors.ErrValidation, "start must be an RFC 3339 timestamp or YYYY-MM-DD date")
	}
	endTime, err := parseTimeParam(end)
	if err != nil {
		return req, appErrors.Clone(appErrors.ErrValidation, "end must be an RFC 3339 timestamp or YYYY-MM-DD date")
	}

	req.Start = startTime
	req.End = endTime
	req.SourceType = c.Query("source_type")
	req.Category = c.Query("category")
	return req, nil
}

func parseTimeParam(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}

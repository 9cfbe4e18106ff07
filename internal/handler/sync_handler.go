package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/familyhub/calendar-sync-api/internal/middleware"
	"github.com/familyhub/calendar-sync-api/internal/service"
	"github.com/familyhub/calendar-sync-api/pkg/response"
)

// SyncHandler exposes the batch sync entry points.
type SyncHandler struct {
	sync *service.SyncService
}

// NewSyncHandler constructs the handler.
func NewSyncHandler(sync *service.SyncService) *SyncHandler {
	return &SyncHandler{sync: sync}
}

// SyncUser syncs every active subscription for the authenticated user. Each
// subscription reports its own result; one bad feed never blocks the rest.
func (h *SyncHandler) SyncUser(c *gin.Context) {
	results := h.sync.SyncUser(c.Request.Context(), middleware.CurrentUserID(c))
	response.JSON(c, http.StatusOK, results, nil, map[string]interface{}{
		"summary": service.Summarize(results),
	})
}

// CronSyncAll syncs every active subscription system-wide. Guarded by the
// cron shared secret, not user auth.
func (h *SyncHandler) CronSyncAll(c *gin.Context) {
	results := h.sync.SyncAll(c.Request.Context())
	response.JSON(c, http.StatusOK, results, nil, map[string]interface{}{
		"summary": service.Summarize(results),
	})
}

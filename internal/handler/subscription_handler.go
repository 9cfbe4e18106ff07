package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/familyhub/calendar-sync-api/internal/middleware"
	"github.com/familyhub/calendar-sync-api/internal/service"
	appErrors "github.com/familyhub/calendar-sync-api/pkg/errors"
	"github.com/familyhub/calendar-sync-api/pkg/response"
)

// SubscriptionHandler exposes calendar subscription endpoints.
type SubscriptionHandler struct {
	service *service.SubscriptionService
	sync    *service.SyncService
}

// NewSubscriptionHandler constructs the handler.
func NewSubscriptionHandler(svc *service.SubscriptionService, sync *service.SyncService) *SubscriptionHandler {
	return &SubscriptionHandler{service: svc, sync: sync}
}

// List returns the caller's subscriptions.
func (h *SubscriptionHandler) List(c *gin.Context) {
	subs, err := h.service.List(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, subs, nil)
}

// Get returns one subscription.
func (h *SubscriptionHandler) Get(c *gin.Context) {
	sub, err := h.service.Get(c.Request.Context(), c.Param("id"), middleware.CurrentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sub, nil)
}

// Create registers a feed and schedules its initial sync.
func (h *SubscriptionHandler) Create(c *gin.Context) {
	var req service.CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload"))
		return
	}
	sub, err := h.service.Create(c.Request.Context(), middleware.CurrentUserID(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, sub)
}

// Update applies a partial update.
func (h *SubscriptionHandler) Update(c *gin.Context) {
	var req service.UpdateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload"))
		return
	}
	sub, err := h.service.Update(c.Request.Context(), c.Param("id"), middleware.CurrentUserID(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sub, nil)
}

// Delete removes a subscription and its synced events.
func (h *SubscriptionHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), middleware.CurrentUserID(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Sync runs an on-demand sync for one subscription and returns its result.
func (h *SubscriptionHandler) Sync(c *gin.Context) {
	result := h.sync.SyncOne(c.Request.Context(), c.Param("id"), middleware.CurrentUserID(c))
	status := http.StatusOK
	if !result.Success {
		status = appErrors.ErrUpstream.Status
	}
	response.JSON(c, status, result, nil)
}

package service

import (
	"context"
	"database/sql"
	"net/url"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/familyhub/calendar-sync-api/internal/models"
	appErrors "github.com/familyhub/calendar-sync-api/pkg/errors"
	"github.com/familyhub/calendar-sync-api/pkg/jobs"
)

// defaultSubscriptionColor matches the web app's default calendar swatch.
const defaultSubscriptionColor = "#3b82f6"

type subscriptionRepository interface {
	List(ctx context.Context, filter models.SubscriptionFilter) ([]models.CalendarSubscription, error)
	GetByID(ctx context.Context, id, userID string) (*models.CalendarSubscription, error)
	Create(ctx context.Context, sub *models.CalendarSubscription) error
	Update(ctx context.Context, sub *models.CalendarSubscription) error
	Delete(ctx context.Context, id, userID string) error
}

type syncEnqueuer interface {
	Enqueue(job jobs.SyncJob) error
}

// SubscriptionService manages calendar feed subscriptions.
type SubscriptionService struct {
	repo      subscriptionRepository
	queue     syncEnqueuer
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSubscriptionService constructs the service.
func NewSubscriptionService(repo subscriptionRepository, queue syncEnqueuer, validate *validator.Validate, logger *zap.Logger) *SubscriptionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubscriptionService{repo: repo, queue: queue, validator: validate, logger: logger}
}

// CreateSubscriptionRequest describes the create payload.
type CreateSubscriptionRequest struct {
	Name        string  `json:"name" validate:"required"`
	Description *string `json:"description"`
	ICalURL     string  `json:"ical_url" validate:"required"`
	Color       string  `json:"color"`
}

// UpdateSubscriptionRequest describes the partial update payload.
type UpdateSubscriptionRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	ICalURL     *string `json:"ical_url"`
	Color       *string `json:"color"`
	IsActive    *bool   `json:"is_active"`
}

// List returns a user's subscriptions.
func (s *SubscriptionService) List(ctx context.Context, userID string) ([]models.CalendarSubscription, error) {
	subs, err := s.repo.List(ctx, models.SubscriptionFilter{UserID: userID})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list subscriptions")
	}
	return subs, nil
}

// Get returns one subscription scoped to its owner.
func (s *SubscriptionService) Get(ctx context.Context, id, userID string) (*models.CalendarSubscription, error) {
	sub, err := s.repo.GetByID(ctx, id, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subscription not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to get subscription")
	}
	return sub, nil
}

// Create registers a new feed and enqueues its initial sync in the background
// so the caller does not block on the first fetch.
func (s *SubscriptionService) Create(ctx context.Context, userID string, req CreateSubscriptionRequest) (*models.CalendarSubscription, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	if err := validateFeedURL(req.ICalURL); err != nil {
		return nil, err
	}

	color := req.Color
	if color == "" {
		color = defaultSubscriptionColor
	}

	sub := &models.CalendarSubscription{
		UserID:      userID,
		Name:        req.Name,
		Description: req.Description,
		ICalURL:     req.ICalURL,
		Color:       color,
		IsActive:    true,
		SyncStatus:  models.SyncStatusPending,
	}
	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create subscription")
	}

	if s.queue != nil {
		job := jobs.SyncJob{ID: uuid.NewString(), SubscriptionID: sub.ID, UserID: userID}
		if err := s.queue.Enqueue(job); err != nil {
			s.logger.Warn("failed to enqueue initial sync",
				zap.String("subscription_id", sub.ID), zap.Error(err))
		}
	}

	return sub, nil
}

// Update applies a partial update to a subscription.
func (s *SubscriptionService) Update(ctx context.Context, id, userID string, req UpdateSubscriptionRequest) (*models.CalendarSubscription, error) {
	sub, err := s.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		sub.Name = *req.Name
	}
	if req.Description != nil {
		sub.Description = req.Description
	}
	if req.ICalURL != nil {
		if err := validateFeedURL(*req.ICalURL); err != nil {
			return nil, err
		}
		sub.ICalURL = *req.ICalURL
	}
	if req.Color != nil {
		sub.Color = *req.Color
	}
	if req.IsActive != nil {
		sub.IsActive = *req.IsActive
	}

	if err := s.repo.Update(ctx, sub); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update subscription")
	}
	return sub, nil
}

// Delete removes a subscription. Stored events cascade at the database level.
func (s *SubscriptionService) Delete(ctx context.Context, id, userID string) error {
	if _, err := s.Get(ctx, id, userID); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id, userID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete subscription")
	}
	return nil
}

func validateFeedURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return appErrors.Clone(appErrors.ErrValidation, "ical_url must be a valid http(s) URL")
	}
	return nil
}

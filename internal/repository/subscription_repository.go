package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/familyhub/calendar-sync-api/internal/models"
)

// SubscriptionRepository persists calendar feed subscriptions.
type SubscriptionRepository struct {
	db *sqlx.DB
}

// NewSubscriptionRepository constructs a subscription repository.
func NewSubscriptionRepository(db *sqlx.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

const subscriptionColumns = `id, user_id, name, description, ical_url, color, is_active, last_synced_at, sync_status, sync_error, created_at, updated_at`

// List returns a user's subscriptions ordered by name.
func (r *SubscriptionRepository) List(ctx context.Context, filter models.SubscriptionFilter) ([]models.CalendarSubscription, error) {
	query := fmt.Sprintf("SELECT %s FROM calendar_subscriptions WHERE user_id = $1", subscriptionColumns)
	args := []interface{}{filter.UserID}
	if filter.ActiveOnly {
		query += " AND is_active = TRUE"
	}
	query += " ORDER BY name ASC"

	var subs []models.CalendarSubscription
	if err := r.db.SelectContext(ctx, &subs, query, args...); err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return subs, nil
}

// ListAllActive returns every active subscription across all users, for the
// system-wide cron sweep.
func (r *SubscriptionRepository) ListAllActive(ctx context.Context) ([]models.CalendarSubscription, error) {
	query := fmt.Sprintf("SELECT %s FROM calendar_subscriptions WHERE is_active = TRUE ORDER BY user_id, name", subscriptionColumns)
	var subs []models.CalendarSubscription
	if err := r.db.SelectContext(ctx, &subs, query); err != nil {
		return nil, fmt.Errorf("list active subscriptions: %w", err)
	}
	return subs, nil
}

// GetByID fetches one subscription scoped to its owning user.
func (r *SubscriptionRepository) GetByID(ctx context.Context, id, userID string) (*models.CalendarSubscription, error) {
	query := fmt.Sprintf("SELECT %s FROM calendar_subscriptions WHERE id = $1 AND user_id = $2", subscriptionColumns)
	var sub models.CalendarSubscription
	if err := r.db.GetContext(ctx, &sub, query, id, userID); err != nil {
		return nil, err
	}
	return &sub, nil
}

// Create inserts a subscription.
func (r *SubscriptionRepository) Create(ctx context.Context, sub *models.CalendarSubscription) error {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now
	query := `INSERT INTO calendar_subscriptions (id, user_id, name, description, ical_url, color, is_active, last_synced_at, sync_status, sync_error, created_at, updated_at)
VALUES (:id, :user_id, :name, :description, :ical_url, :color, :is_active, :last_synced_at, :sync_status, :sync_error, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, sub); err != nil {
		return fmt.Errorf("create subscription: %w", err)
	}
	return nil
}

// Update modifies a subscription's user-editable fields.
func (r *SubscriptionRepository) Update(ctx context.Context, sub *models.CalendarSubscription) error {
	sub.UpdatedAt = time.Now().UTC()
	query := `UPDATE calendar_subscriptions SET name = :name, description = :description, ical_url = :ical_url,
color = :color, is_active = :is_active, updated_at = :updated_at
WHERE id = :id AND user_id = :user_id`
	if _, err := r.db.NamedExecContext(ctx, query, sub); err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	return nil
}

// Delete removes a subscription.
func (r *SubscriptionRepository) Delete(ctx context.Context, id, userID string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM calendar_subscriptions WHERE id = $1 AND user_id = $2", id, userID); err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	return nil
}

// UpdateSyncStatus records the outcome of a sync attempt. lastSyncedAt is only
// written on success; errMsg nil clears any previous error.
func (r *SubscriptionRepository) UpdateSyncStatus(ctx context.Context, id string, status models.SyncStatus, errMsg *string, lastSyncedAt *time.Time) error {
	query := `UPDATE calendar_subscriptions SET sync_status = $2, sync_error = $3, last_synced_at = COALESCE($4, last_synced_at), updated_at = $5
WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, errMsg, lastSyncedAt, time.Now().UTC()); err != nil {
		return fmt.Errorf("update subscription sync status: %w", err)
	}
	return nil
}

package models

import "time"

// SyncStatus tracks the outcome of the most recent sync attempt for a subscription.
type SyncStatus string

const (
	SyncStatusPending SyncStatus = "pending"
	SyncStatusSuccess SyncStatus = "success"
	SyncStatusError   SyncStatus = "error"
)

// CalendarSubscription is a user's registration of one remote iCal feed URL.
type CalendarSubscription struct {
	ID           string     `db:"id" json:"id"`
	UserID       string     `db:"user_id" json:"user_id"`
	Name         string     `db:"name" json:"name"`
	Description  *string    `db:"description" json:"description,omitempty"`
	ICalURL      string     `db:"ical_url" json:"ical_url"`
	Color        string     `db:"color" json:"color"`
	IsActive     bool       `db:"is_active" json:"is_active"`
	LastSyncedAt *time.Time `db:"last_synced_at" json:"last_synced_at,omitempty"`
	SyncStatus   SyncStatus `db:"sync_status" json:"sync_status"`
	SyncError    *string    `db:"sync_error" json:"sync_error,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// SubscriptionFilter narrows down subscription listings.
type SubscriptionFilter struct {
	UserID     string
	ActiveOnly bool
}

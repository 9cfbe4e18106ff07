package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/familyhub/calendar-sync-api/internal/models"
)

// EventRepository persists locally projected calendar events.
type EventRepository struct {
	db *sqlx.DB
}

// NewEventRepository constructs an event repository.
func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

const eventColumns = `id, user_id, source_type, source_id, external_id, title, description, location, start_time, end_time, all_day, recurrence_rule, category, color, is_cancelled, organizer, attendees, metadata, created_at, updated_at`

// ListBySubscription returns the reconciliation snapshot: every stored event
// owned by one subscription of one user. The reconciler never reads outside
// this scope.
func (r *EventRepository) ListBySubscription(ctx context.Context, userID, subscriptionID string) ([]models.CalendarEvent, error) {
	query := fmt.Sprintf(`SELECT %s FROM calendar_events
WHERE user_id = $1 AND source_type = $2 AND source_id = $3`, eventColumns)
	var events []models.CalendarEvent
	if err := r.db.SelectContext(ctx, &events, query, userID, models.SourceTypeICal, subscriptionID); err != nil {
		return nil, fmt.Errorf("list events for subscription: %w", err)
	}
	return events, nil
}

// ListRange returns non-cancelled events overlapping a start-time window,
// for the calendar view.
func (r *EventRepository) ListRange(ctx context.Context, userID string, filter models.EventFilter) ([]models.CalendarEvent, error) {
	query := fmt.Sprintf(`SELECT %s FROM calendar_events
WHERE user_id = $1 AND is_cancelled = FALSE AND start_time >= $2 AND start_time <= $3`, eventColumns)
	args := []interface{}{userID, filter.Start, filter.End}
	if filter.SourceType != "" {
		query += fmt.Sprintf(" AND source_type = $%d", len(args)+1)
		args = append(args, filter.SourceType)
	}
	if filter.Category != "" {
		query += fmt.Sprintf(" AND category = $%d", len(args)+1)
		args = append(args, filter.Category)
	}
	query += " ORDER BY start_time ASC"

	var events []models.CalendarEvent
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, fmt.Errorf("list events in range: %w", err)
	}
	return events, nil
}

// Insert stores a newly seen event.
func (r *EventRepository) Insert(ctx context.Context, event *models.CalendarEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = now
	query := `INSERT INTO calendar_events (id, user_id, source_type, source_id, external_id, title, description, location, start_time, end_time, all_day, recurrence_rule, category, color, is_cancelled, organizer, attendees, metadata, created_at, updated_at)
VALUES (:id, :user_id, :source_type, :source_id, :external_id, :title, :description, :location, :start_time, :end_time, :all_day, :recurrence_rule, :category, :color, :is_cancelled, :organizer, :attendees, :metadata, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// Update replaces all mutable fields of a stored event. The reconciliation
// key (user_id, source_id, external_id) never changes.
func (r *EventRepository) Update(ctx context.Context, event *models.CalendarEvent) error {
	event.UpdatedAt = time.Now().UTC()
	query := `UPDATE calendar_events SET title = :title, description = :description, location = :location,
start_time = :start_time, end_time = :end_time, all_day = :all_day, recurrence_rule = :recurrence_rule,
category = :category, color = :color, is_cancelled = :is_cancelled, organizer = :organizer,
attendees = :attendees, metadata = :metadata, updated_at = :updated_at
WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	return nil
}

// Delete removes an event row.
func (r *EventRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM calendar_events WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return nil
}

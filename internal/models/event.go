package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// SourceType identifies which pipeline produced a stored event.
type SourceType string

// SourceTypeICal marks events owned by the iCal sync engine. Events from other
// sources (manual entry, email extraction) are never touched by reconciliation.
const SourceTypeICal SourceType = "ical"

// EventCategory is the closed label set produced by category inference.
type EventCategory string

const (
	CategorySchool   EventCategory = "school"
	CategorySports   EventCategory = "sports"
	CategoryBirthday EventCategory = "birthday"
	CategoryWork     EventCategory = "work"
	CategoryFamily   EventCategory = "family"
)

// EventMetadata carries loose per-event fields from the feed. It is modelled
// as a fixed struct rather than an untyped map and persisted as JSONB.
type EventMetadata struct {
	Created      *time.Time `json:"created,omitempty"`
	LastModified *time.Time `json:"last_modified,omitempty"`
	Sequence     *int       `json:"sequence,omitempty"`
	URL          string     `json:"url,omitempty"`
	Categories   []string   `json:"categories,omitempty"`
}

// Value implements driver.Valuer for JSONB storage.
func (m EventMetadata) Value() (driver.Value, error) {
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *EventMetadata) Scan(src interface{}) error {
	if src == nil {
		*m = EventMetadata{}
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("unsupported metadata source type %T", src)
	}
}

// CalendarEvent is the locally persisted projection of one remote calendar entry.
// (UserID, SourceID, ExternalID) is the reconciliation key: unique after every
// sync, and the only scope the reconciler reads or writes.
type CalendarEvent struct {
	ID             string         `db:"id" json:"id"`
	UserID         string         `db:"user_id" json:"user_id"`
	SourceType     SourceType     `db:"source_type" json:"source_type"`
	SourceID       string         `db:"source_id" json:"source_id"`
	ExternalID     string         `db:"external_id" json:"external_id"`
	Title          string         `db:"title" json:"title"`
	Description    *string        `db:"description" json:"description,omitempty"`
	Location       *string        `db:"location" json:"location,omitempty"`
	StartTime      time.Time      `db:"start_time" json:"start_time"`
	EndTime        *time.Time     `db:"end_time" json:"end_time,omitempty"`
	AllDay         bool           `db:"all_day" json:"all_day"`
	RecurrenceRule *string        `db:"recurrence_rule" json:"recurrence_rule,omitempty"`
	Category       EventCategory  `db:"category" json:"category"`
	Color          string         `db:"color" json:"color"`
	IsCancelled    bool           `db:"is_cancelled" json:"is_cancelled"`
	Organizer      *string        `db:"organizer" json:"organizer,omitempty"`
	Attendees      pq.StringArray `db:"attendees" json:"attendees,omitempty"`
	Metadata       EventMetadata  `db:"metadata" json:"metadata"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// EventFilter narrows down event range queries for the calendar view.
type EventFilter struct {
	Start      time.Time
	End        time.Time
	SourceType SourceType
	Category   EventCategory
}

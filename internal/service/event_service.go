package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/familyhub/calendar-sync-api/internal/models"
	appErrors "github.com/familyhub/calendar-sync-api/pkg/errors"
	"github.com/familyhub/calendar-sync-api/pkg/export"
)

type eventReader interface {
	ListRange(ctx context.Context, userID string, filter models.EventFilter) ([]models.CalendarEvent, error)
}

// EventService serves read-only calendar views over the synced events.
type EventService struct {
	repo     eventReader
	cache    *CacheService
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewEventService constructs the service.
func NewEventService(repo eventReader, cache *CacheService, cacheTTL time.Duration, logger *zap.Logger) *EventService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventService{repo: repo, cache: cache, cacheTTL: cacheTTL, logger: logger}
}

// EventListRequest describes filters for a calendar view window.
type EventListRequest struct {
	Start      time.Time
	End        time.Time
	SourceType string
	Category   string
}

// List returns the user's non-cancelled events in the window, deduplicated by
// (title, start time) so the same event subscribed through two feeds is shown
// once.
func (s *EventService) List(ctx context.Context, userID string, req EventListRequest) ([]models.CalendarEvent, error) {
	if req.Start.IsZero() || req.End.IsZero() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start and end are required")
	}
	if req.End.Before(req.Start) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end must be on or after start")
	}

	cacheKey := fmt.Sprintf("events:%s:%d:%d:%s:%s",
		userID, req.Start.Unix(), req.End.Unix(), req.SourceType, req.Category)

	var cached []models.CalendarEvent
	if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
		return cached, nil
	}

	filter := models.EventFilter{
		Start:      req.Start,
		End:        req.End,
		SourceType: models.SourceType(req.SourceType),
		Category:   models.EventCategory(req.Category),
	}
	events, err := s.repo.ListRange(ctx, userID, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list events")
	}

	deduped := dedupeEvents(events)
	_ = s.cache.Set(ctx, cacheKey, deduped, s.cacheTTL)
	return deduped, nil
}

// Export renders the user's events in the window as a CSV or PDF agenda.
func (s *EventService) Export(ctx context.Context, userID string, req EventListRequest, format string) ([]byte, string, error) {
	events, err := s.List(ctx, userID, req)
	if err != nil {
		return nil, "", err
	}

	dataset := export.Dataset{
		Headers: []string{"Date", "Title", "Category", "Location", "All Day"},
		Rows:    make([]map[string]string, 0, len(events)),
	}
	for _, ev := range events {
		location := ""
		if ev.Location != nil {
			location = *ev.Location
		}
		allDay := "no"
		if ev.AllDay {
			allDay = "yes"
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Date":     ev.StartTime.Format("2006-01-02 15:04"),
			"Title":    ev.Title,
			"Category": string(ev.Category),
			"Location": location,
			"All Day":  allDay,
		})
	}

	switch format {
	case "csv":
		payload, err := export.NewCSVExporter().Render(dataset)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return payload, "text/csv", nil
	case "pdf":
		payload, err := export.NewPDFExporter().Render(dataset, "Family Calendar Agenda")
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return payload, "application/pdf", nil
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
}

// dedupeEvents keeps the first occurrence of each (title, start time) pair.
func dedupeEvents(events []models.CalendarEvent) []models.CalendarEvent {
	seen := make(map[string]struct{}, len(events))
	out := make([]models.CalendarEvent, 0, len(events))
	for _, ev := range events {
		key := fmt.Sprintf("%s|%d", ev.Title, ev.StartTime.Unix())
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, ev)
	}
	return out
}

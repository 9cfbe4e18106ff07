package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/familyhub/calendar-sync-api/internal/ical"
	"github.com/familyhub/calendar-sync-api/internal/models"
)

type subscriptionStore interface {
	GetByID(ctx context.Context, id, userID string) (*models.CalendarSubscription, error)
	List(ctx context.Context, filter models.SubscriptionFilter) ([]models.CalendarSubscription, error)
	ListAllActive(ctx context.Context) ([]models.CalendarSubscription, error)
	UpdateSyncStatus(ctx context.Context, id string, status models.SyncStatus, errMsg *string, lastSyncedAt *time.Time) error
}

type eventStore interface {
	ListBySubscription(ctx context.Context, userID, subscriptionID string) ([]models.CalendarEvent, error)
	Insert(ctx context.Context, event *models.CalendarEvent) error
	Update(ctx context.Context, event *models.CalendarEvent) error
	Delete(ctx context.Context, id string) error
}

type feedFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

type feedParser interface {
	Parse(body []byte) (*ical.ParsedCalendar, error)
}

// SyncResult reports the outcome of one subscription sync attempt.
type SyncResult struct {
	SubscriptionID   string `json:"subscription_id"`
	SubscriptionName string `json:"subscription_name"`
	Success          bool   `json:"success"`
	EventsAdded      int    `json:"events_added"`
	EventsUpdated    int    `json:"events_updated"`
	EventsRemoved    int    `json:"events_removed"`
	Error            string `json:"error,omitempty"`
}

// SyncSummary aggregates a batch of results for observability.
type SyncSummary struct {
	Calendars     int `json:"calendars"`
	EventsAdded   int `json:"events_added"`
	EventsUpdated int `json:"events_updated"`
	EventsRemoved int `json:"events_removed"`
	Failed        int `json:"failed"`
}

// Summarize folds a result list into totals.
func Summarize(results []SyncResult) SyncSummary {
	summary := SyncSummary{Calendars: len(results)}
	for _, r := range results {
		summary.EventsAdded += r.EventsAdded
		summary.EventsUpdated += r.EventsUpdated
		summary.EventsRemoved += r.EventsRemoved
		if !r.Success {
			summary.Failed++
		}
	}
	return summary
}

// SyncService drives the fetch → parse → reconcile → status-update cycle for
// calendar subscriptions. A subscription-level failure never propagates out
// of a batch call; every attempted subscription produces one SyncResult.
type SyncService struct {
	subs    subscriptionStore
	events  eventStore
	fetcher feedFetcher
	parser  feedParser
	cache   *CacheService
	metrics *MetricsService
	logger  *zap.Logger
}

// NewSyncService constructs the sync service.
func NewSyncService(subs subscriptionStore, events eventStore, fetcher feedFetcher, parser feedParser, cache *CacheService, metrics *MetricsService, logger *zap.Logger) *SyncService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncService{subs: subs, events: events, fetcher: fetcher, parser: parser, cache: cache, metrics: metrics, logger: logger}
}

// SyncOne syncs a single subscription owned by userID.
func (s *SyncService) SyncOne(ctx context.Context, subscriptionID, userID string) SyncResult {
	sub, err := s.subs.GetByID(ctx, subscriptionID, userID)
	if err != nil {
		msg := "failed to load subscription"
		if err == sql.ErrNoRows {
			msg = "subscription not found"
		}
		s.logger.Warn("sync aborted",
			zap.String("subscription_id", subscriptionID),
			zap.String("user_id", userID),
			zap.Error(err))
		s.metrics.ObserveSync(false, 0, 0, 0, 0)
		return SyncResult{SubscriptionID: subscriptionID, SubscriptionName: "Unknown", Error: msg}
	}
	return s.syncSubscription(ctx, sub)
}

// SyncUser syncs every active subscription belonging to one user. One
// subscription's failure does not prevent the others from being attempted.
func (s *SyncService) SyncUser(ctx context.Context, userID string) []SyncResult {
	subs, err := s.subs.List(ctx, models.SubscriptionFilter{UserID: userID, ActiveOnly: true})
	if err != nil {
		s.logger.Error("failed to list subscriptions for user sync", zap.String("user_id", userID), zap.Error(err))
		return []SyncResult{}
	}

	results := make([]SyncResult, 0, len(subs))
	for i := range subs {
		results = append(results, s.syncSubscription(ctx, &subs[i]))
	}
	s.logSummary("user calendar sync complete", results)
	return results
}

// SyncAll syncs every active subscription system-wide. Intended for the
// scheduled cron sweep.
func (s *SyncService) SyncAll(ctx context.Context) []SyncResult {
	subs, err := s.subs.ListAllActive(ctx)
	if err != nil {
		s.logger.Error("failed to list subscriptions for full sync", zap.Error(err))
		return []SyncResult{}
	}

	s.logger.Info("starting full calendar sync", zap.Int("subscriptions", len(subs)))
	results := make([]SyncResult, 0, len(subs))
	for i := range subs {
		results = append(results, s.syncSubscription(ctx, &subs[i]))
	}
	s.logSummary("full calendar sync complete", results)
	return results
}

// syncSubscription runs one fetch → parse → reconcile → status-update pass.
func (s *SyncService) syncSubscription(ctx context.Context, sub *models.CalendarSubscription) SyncResult {
	result := SyncResult{SubscriptionID: sub.ID, SubscriptionName: sub.Name}

	if !sub.IsActive {
		// No-op: inactive subscriptions are skipped without touching the store.
		result.Success = true
		result.Error = "subscription is inactive"
		return result
	}

	started := time.Now()

	s.logger.Info("syncing calendar",
		zap.String("subscription_id", sub.ID),
		zap.String("name", sub.Name))

	body, err := s.fetcher.Fetch(ctx, sub.ICalURL)
	if err != nil {
		return s.failSync(ctx, sub, result, started, err)
	}

	parsed, err := s.parser.Parse(body)
	if err != nil {
		return s.failSync(ctx, sub, result, started, err)
	}

	// Snapshot the stored events before any write so the whole pass is
	// computed against one consistent view.
	existing, err := s.events.ListBySubscription(ctx, sub.UserID, sub.ID)
	if err != nil {
		return s.failSync(ctx, sub, result, started, err)
	}

	added, updated, removed := s.reconcile(ctx, sub, parsed.Events, existing)

	now := time.Now().UTC()
	if err := s.subs.UpdateSyncStatus(ctx, sub.ID, models.SyncStatusSuccess, nil, &now); err != nil {
		s.logger.Error("failed to record sync success", zap.String("subscription_id", sub.ID), zap.Error(err))
	}

	if added > 0 || updated > 0 || removed > 0 {
		s.cache.InvalidateUserEvents(ctx, sub.UserID)
	}

	result.Success = true
	result.EventsAdded = added
	result.EventsUpdated = updated
	result.EventsRemoved = removed

	s.metrics.ObserveSync(true, added, updated, removed, time.Since(started))
	s.logger.Info("calendar synced",
		zap.String("subscription_id", sub.ID),
		zap.String("name", sub.Name),
		zap.Int("added", added),
		zap.Int("updated", updated),
		zap.Int("removed", removed))

	return result
}

// failSync records an error status on the subscription and converts the
// failure into a per-subscription result instead of propagating it.
func (s *SyncService) failSync(ctx context.Context, sub *models.CalendarSubscription, result SyncResult, started time.Time, cause error) SyncResult {
	msg := cause.Error()
	s.logger.Error("calendar sync failed",
		zap.String("subscription_id", sub.ID),
		zap.String("name", sub.Name),
		zap.Error(cause))

	if err := s.subs.UpdateSyncStatus(ctx, sub.ID, models.SyncStatusError, &msg, nil); err != nil {
		s.logger.Error("failed to record sync error", zap.String("subscription_id", sub.ID), zap.Error(err))
	}

	s.metrics.ObserveSync(false, 0, 0, 0, time.Since(started))
	result.Error = msg
	return result
}

// reconcile applies insert/update/delete operations for one subscription.
// Rows are keyed by (user_id, source_id, external_id); nothing outside the
// subscription's scope is read or written. Per-row write failures are logged
// and skipped, never aborting the pass.
func (s *SyncService) reconcile(ctx context.Context, sub *models.CalendarSubscription, parsed []ical.ParsedEvent, existing []models.CalendarEvent) (added, updated, removed int) {
	existingByExternalID := make(map[string]models.CalendarEvent, len(existing))
	for _, ev := range existing {
		existingByExternalID[ev.ExternalID] = ev
	}

	// The presence set is built from everything the feed contained, not from
	// what was successfully written: a failed insert/update must not make the
	// delete phase treat the event as gone from the feed.
	present := make(map[string]struct{}, len(parsed))
	for _, pe := range parsed {
		present[pe.ExternalID] = struct{}{}
	}

	for _, pe := range parsed {
		row := s.buildEvent(sub, pe)

		if current, ok := existingByExternalID[pe.ExternalID]; ok {
			row.ID = current.ID
			row.CreatedAt = current.CreatedAt
			if err := s.events.Update(ctx, &row); err != nil {
				s.logger.Error("failed to update event",
					zap.String("subscription_id", sub.ID),
					zap.String("external_id", pe.ExternalID),
					zap.Error(err))
				continue
			}
			updated++
		} else {
			if err := s.events.Insert(ctx, &row); err != nil {
				s.logger.Error("failed to insert event",
					zap.String("subscription_id", sub.ID),
					zap.String("external_id", pe.ExternalID),
					zap.Error(err))
				continue
			}
			added++
		}
	}

	// Deletions run last and are driven purely by UID absence from the fetch.
	for externalID, ev := range existingByExternalID {
		if _, ok := present[externalID]; ok {
			continue
		}
		if err := s.events.Delete(ctx, ev.ID); err != nil {
			s.logger.Error("failed to delete event",
				zap.String("subscription_id", sub.ID),
				zap.String("external_id", externalID),
				zap.Error(err))
			continue
		}
		removed++
	}

	return added, updated, removed
}

// buildEvent maps a parsed feed entry onto a storable row tagged with the
// subscription's identity and display color.
func (s *SyncService) buildEvent(sub *models.CalendarSubscription, pe ical.ParsedEvent) models.CalendarEvent {
	return models.CalendarEvent{
		UserID:         sub.UserID,
		SourceType:     models.SourceTypeICal,
		SourceID:       sub.ID,
		ExternalID:     pe.ExternalID,
		Title:          pe.Title,
		Description:    optionalString(pe.Description),
		Location:       optionalString(pe.Location),
		StartTime:      pe.StartTime,
		EndTime:        pe.EndTime,
		AllDay:         pe.AllDay,
		RecurrenceRule: optionalString(pe.RecurrenceRule),
		Category:       InferCategory(pe.Title, pe.Description),
		Color:          sub.Color,
		IsCancelled:    pe.Cancelled(),
		Organizer:      optionalString(pe.Organizer),
		Attendees:      pq.StringArray(pe.Attendees),
		Metadata:       pe.Metadata,
	}
}

func (s *SyncService) logSummary(msg string, results []SyncResult) {
	summary := Summarize(results)
	s.logger.Info(msg,
		zap.Int("calendars", summary.Calendars),
		zap.Int("added", summary.EventsAdded),
		zap.Int("updated", summary.EventsUpdated),
		zap.Int("removed", summary.EventsRemoved),
		zap.Int("failed", summary.Failed))
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

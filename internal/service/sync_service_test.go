package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/familyhub/calendar-sync-api/internal/ical"
	"github.com/familyhub/calendar-sync-api/internal/models"
)

type statusCall struct {
	id     string
	status models.SyncStatus
	errMsg *string
	synced *time.Time
}

type stubSubStore struct {
	subs        []models.CalendarSubscription
	listErr     error
	statusCalls []statusCall
}

func (m *stubSubStore) GetByID(ctx context.Context, id, userID string) (*models.CalendarSubscription, error) {
	for i := range m.subs {
		if m.subs[i].ID == id && m.subs[i].UserID == userID {
			sub := m.subs[i]
			return &sub, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *stubSubStore) List(ctx context.Context, filter models.SubscriptionFilter) ([]models.CalendarSubscription, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]models.CalendarSubscription, 0)
	for _, s := range m.subs {
		if s.UserID != filter.UserID {
			continue
		}
		if filter.ActiveOnly && !s.IsActive {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (m *stubSubStore) ListAllActive(ctx context.Context) ([]models.CalendarSubscription, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]models.CalendarSubscription, 0)
	for _, s := range m.subs {
		if s.IsActive {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *stubSubStore) UpdateSyncStatus(ctx context.Context, id string, status models.SyncStatus, errMsg *string, lastSyncedAt *time.Time) error {
	m.statusCalls = append(m.statusCalls, statusCall{id: id, status: status, errMsg: errMsg, synced: lastSyncedAt})
	return nil
}

type stubEventStore struct {
	events    map[string]models.CalendarEvent // keyed by row ID
	nextID    int
	insertErr map[string]error // keyed by external ID
	updateErr map[string]error // keyed by external ID
	inserted  []models.CalendarEvent
	updated   []models.CalendarEvent
	deleted   []string
}

func newStubEventStore() *stubEventStore {
	return &stubEventStore{events: make(map[string]models.CalendarEvent)}
}

func (m *stubEventStore) ListBySubscription(ctx context.Context, userID, subscriptionID string) ([]models.CalendarEvent, error) {
	out := make([]models.CalendarEvent, 0)
	for _, ev := range m.events {
		if ev.UserID == userID && ev.SourceID == subscriptionID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *stubEventStore) Insert(ctx context.Context, event *models.CalendarEvent) error {
	if err := m.insertErr[event.ExternalID]; err != nil {
		return err
	}
	m.nextID++
	event.ID = fmt.Sprintf("row-%d", m.nextID)
	event.CreatedAt = time.Now()
	m.events[event.ID] = *event
	m.inserted = append(m.inserted, *event)
	return nil
}

func (m *stubEventStore) Update(ctx context.Context, event *models.CalendarEvent) error {
	if err := m.updateErr[event.ExternalID]; err != nil {
		return err
	}
	if _, ok := m.events[event.ID]; !ok {
		return sql.ErrNoRows
	}
	m.events[event.ID] = *event
	m.updated = append(m.updated, *event)
	return nil
}

func (m *stubEventStore) Delete(ctx context.Context, id string) error {
	if _, ok := m.events[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.events, id)
	m.deleted = append(m.deleted, id)
	return nil
}

type stubFetcher struct {
	bodies map[string][]byte
	err    error
	calls  int
}

func (m *stubFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	body, ok := m.bodies[url]
	if !ok {
		return nil, errors.New("fetch calendar: unexpected status 404 Not Found")
	}
	return body, nil
}

type stubParser struct {
	calendars map[string]*ical.ParsedCalendar // keyed by body
	err       error
}

func (m *stubParser) Parse(body []byte) (*ical.ParsedCalendar, error) {
	if m.err != nil {
		return nil, m.err
	}
	cal, ok := m.calendars[string(body)]
	if !ok {
		return &ical.ParsedCalendar{Events: []ical.ParsedEvent{}}, nil
	}
	return cal, nil
}

func activeSub(id, userID, url string) models.CalendarSubscription {
	return models.CalendarSubscription{
		ID:       id,
		UserID:   userID,
		Name:     "Family Calendar",
		ICalURL:  url,
		Color:    "#3b82f6",
		IsActive: true,
	}
}

func parsedEvent(uid, title string, start time.Time) ical.ParsedEvent {
	end := start.Add(time.Hour)
	return ical.ParsedEvent{
		ExternalID: uid,
		Title:      title,
		StartTime:  start,
		EndTime:    &end,
	}
}

func newTestSyncService(subs *stubSubStore, events *stubEventStore, fetcher *stubFetcher, parser *stubParser) *SyncService {
	return NewSyncService(subs, events, fetcher, parser, nil, nil, zap.NewNop())
}

func TestSyncOneAddsThenUpdates(t *testing.T) {
	start := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	feed := &ical.ParsedCalendar{Events: []ical.ParsedEvent{
		parsedEvent("uid-1", "Soccer practice", start),
		parsedEvent("uid-2", "School play", start.Add(24*time.Hour)),
	}}

	subs := &stubSubStore{subs: []models.CalendarSubscription{activeSub("sub-1", "user-1", "https://cal.example.com/feed.ics")}}
	events := newStubEventStore()
	fetcher := &stubFetcher{bodies: map[string][]byte{"https://cal.example.com/feed.ics": []byte("feed")}}
	parser := &stubParser{calendars: map[string]*ical.ParsedCalendar{"feed": feed}}
	svc := newTestSyncService(subs, events, fetcher, parser)

	first := svc.SyncOne(context.Background(), "sub-1", "user-1")
	require.True(t, first.Success)
	assert.Equal(t, 2, first.EventsAdded)
	assert.Equal(t, 0, first.EventsUpdated)
	assert.Equal(t, 0, first.EventsRemoved)

	// The same feed again rewrites both rows in place: no new rows, no deletes.
	second := svc.SyncOne(context.Background(), "sub-1", "user-1")
	require.True(t, second.Success)
	assert.Equal(t, 0, second.EventsAdded)
	assert.Equal(t, 2, second.EventsUpdated)
	assert.Equal(t, 0, second.EventsRemoved)
	assert.Len(t, events.events, 2)

	// Existing row IDs survive the rewrite.
	for _, upd := range events.updated {
		assert.NotEmpty(t, upd.ID)
	}

	require.Len(t, subs.statusCalls, 2)
	for _, call := range subs.statusCalls {
		assert.Equal(t, models.SyncStatusSuccess, call.status)
		assert.Nil(t, call.errMsg)
		require.NotNil(t, call.synced)
	}
}

func TestSyncOneRemovesMissingEvents(t *testing.T) {
	start := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	fullFeed := &ical.ParsedCalendar{Events: []ical.ParsedEvent{
		parsedEvent("uid-1", "Dentist", start),
		parsedEvent("uid-2", "Birthday party", start.Add(time.Hour)),
	}}
	shrunkFeed := &ical.ParsedCalendar{Events: []ical.ParsedEvent{
		parsedEvent("uid-1", "Dentist", start),
	}}

	subs := &stubSubStore{subs: []models.CalendarSubscription{activeSub("sub-1", "user-1", "https://cal.example.com/feed.ics")}}
	events := newStubEventStore()
	fetcher := &stubFetcher{bodies: map[string][]byte{"https://cal.example.com/feed.ics": []byte("full")}}
	parser := &stubParser{calendars: map[string]*ical.ParsedCalendar{
		"full":   fullFeed,
		"shrunk": shrunkFeed,
	}}
	svc := newTestSyncService(subs, events, fetcher, parser)

	first := svc.SyncOne(context.Background(), "sub-1", "user-1")
	require.True(t, first.Success)
	require.Equal(t, 2, first.EventsAdded)

	fetcher.bodies["https://cal.example.com/feed.ics"] = []byte("shrunk")
	second := svc.SyncOne(context.Background(), "sub-1", "user-1")
	require.True(t, second.Success)
	assert.Equal(t, 0, second.EventsAdded)
	assert.Equal(t, 1, second.EventsUpdated)
	assert.Equal(t, 1, second.EventsRemoved)
	assert.Len(t, events.events, 1)
}

func TestSyncOneFailedWriteDoesNotDelete(t *testing.T) {
	start := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	feed := &ical.ParsedCalendar{Events: []ical.ParsedEvent{
		parsedEvent("uid-ok", "Piano lesson", start),
		parsedEvent("uid-bad", "Camping trip", start.Add(time.Hour)),
	}}

	subs := &stubSubStore{subs: []models.CalendarSubscription{activeSub("sub-1", "user-1", "https://cal.example.com/feed.ics")}}
	events := newStubEventStore()
	fetcher := &stubFetcher{bodies: map[string][]byte{"https://cal.example.com/feed.ics": []byte("feed")}}
	parser := &stubParser{calendars: map[string]*ical.ParsedCalendar{"feed": feed}}
	svc := newTestSyncService(subs, events, fetcher, parser)

	first := svc.SyncOne(context.Background(), "sub-1", "user-1")
	require.True(t, first.Success)
	require.Equal(t, 2, first.EventsAdded)

	// uid-bad stays in the feed but its rewrite fails; the row must survive.
	events.updateErr = map[string]error{"uid-bad": errors.New("deadlock detected")}
	second := svc.SyncOne(context.Background(), "sub-1", "user-1")
	require.True(t, second.Success)
	assert.Equal(t, 1, second.EventsUpdated)
	assert.Equal(t, 0, second.EventsRemoved)
	assert.Empty(t, events.deleted)
	assert.Len(t, events.events, 2)
}

func TestSyncOneInactiveSubscriptionIsNoOp(t *testing.T) {
	sub := activeSub("sub-1", "user-1", "https://cal.example.com/feed.ics")
	sub.IsActive = false

	subs := &stubSubStore{subs: []models.CalendarSubscription{sub}}
	events := newStubEventStore()
	fetcher := &stubFetcher{}
	parser := &stubParser{}
	svc := newTestSyncService(subs, events, fetcher, parser)

	result := svc.SyncOne(context.Background(), "sub-1", "user-1")
	assert.True(t, result.Success)
	assert.Equal(t, "subscription is inactive", result.Error)
	assert.Zero(t, fetcher.calls)
	assert.Empty(t, subs.statusCalls)
}

func TestSyncOneNotFound(t *testing.T) {
	subs := &stubSubStore{}
	svc := newTestSyncService(subs, newStubEventStore(), &stubFetcher{}, &stubParser{})

	result := svc.SyncOne(context.Background(), "missing", "user-1")
	assert.False(t, result.Success)
	assert.Equal(t, "subscription not found", result.Error)
	assert.Equal(t, "Unknown", result.SubscriptionName)
}

func TestSyncOneFetchFailureRecordsErrorStatus(t *testing.T) {
	subs := &stubSubStore{subs: []models.CalendarSubscription{activeSub("sub-1", "user-1", "https://cal.example.com/feed.ics")}}
	events := newStubEventStore()
	fetcher := &stubFetcher{err: errors.New("fetch calendar: dial tcp: connection refused")}
	svc := newTestSyncService(subs, events, fetcher, &stubParser{})

	result := svc.SyncOne(context.Background(), "sub-1", "user-1")
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "connection refused")

	require.Len(t, subs.statusCalls, 1)
	call := subs.statusCalls[0]
	assert.Equal(t, models.SyncStatusError, call.status)
	require.NotNil(t, call.errMsg)
	assert.Contains(t, *call.errMsg, "connection refused")
	assert.Nil(t, call.synced)
}

func TestSyncAllIsolatesFailures(t *testing.T) {
	start := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	goodFeed := &ical.ParsedCalendar{Events: []ical.ParsedEvent{parsedEvent("uid-1", "Swim meet", start)}}

	subs := &stubSubStore{subs: []models.CalendarSubscription{
		activeSub("sub-good", "user-1", "https://cal.example.com/good.ics"),
		activeSub("sub-bad", "user-2", "https://cal.example.com/bad.ics"),
	}}
	events := newStubEventStore()
	fetcher := &stubFetcher{bodies: map[string][]byte{"https://cal.example.com/good.ics": []byte("good")}}
	parser := &stubParser{calendars: map[string]*ical.ParsedCalendar{"good": goodFeed}}
	svc := newTestSyncService(subs, events, fetcher, parser)

	results := svc.SyncAll(context.Background())
	require.Len(t, results, 2)

	byID := make(map[string]SyncResult, len(results))
	for _, r := range results {
		byID[r.SubscriptionID] = r
	}
	assert.True(t, byID["sub-good"].Success)
	assert.Equal(t, 1, byID["sub-good"].EventsAdded)
	assert.False(t, byID["sub-bad"].Success)
	assert.NotEmpty(t, byID["sub-bad"].Error)

	summary := Summarize(results)
	assert.Equal(t, 2, summary.Calendars)
	assert.Equal(t, 1, summary.EventsAdded)
	assert.Equal(t, 1, summary.Failed)
}

func TestSyncUserScopesToOwner(t *testing.T) {
	start := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	feed := &ical.ParsedCalendar{Events: []ical.ParsedEvent{parsedEvent("uid-1", "Recital", start)}}

	subs := &stubSubStore{subs: []models.CalendarSubscription{
		activeSub("sub-1", "user-1", "https://cal.example.com/a.ics"),
		activeSub("sub-2", "user-2", "https://cal.example.com/b.ics"),
	}}
	events := newStubEventStore()
	fetcher := &stubFetcher{bodies: map[string][]byte{
		"https://cal.example.com/a.ics": []byte("feed"),
		"https://cal.example.com/b.ics": []byte("feed"),
	}}
	parser := &stubParser{calendars: map[string]*ical.ParsedCalendar{"feed": feed}}
	svc := newTestSyncService(subs, events, fetcher, parser)

	results := svc.SyncUser(context.Background(), "user-1")
	require.Len(t, results, 1)
	assert.Equal(t, "sub-1", results[0].SubscriptionID)
}

func TestBuildEventAppliesCategoryAndColor(t *testing.T) {
	start := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	feed := &ical.ParsedCalendar{Events: []ical.ParsedEvent{
		parsedEvent("uid-1", "Parent-teacher conference", start),
		parsedEvent("uid-2", "Grandma's birthday", start.Add(time.Hour)),
	}}

	sub := activeSub("sub-1", "user-1", "https://cal.example.com/feed.ics")
	sub.Color = "#ff0000"
	subs := &stubSubStore{subs: []models.CalendarSubscription{sub}}
	events := newStubEventStore()
	fetcher := &stubFetcher{bodies: map[string][]byte{"https://cal.example.com/feed.ics": []byte("feed")}}
	parser := &stubParser{calendars: map[string]*ical.ParsedCalendar{"feed": feed}}
	svc := newTestSyncService(subs, events, fetcher, parser)

	result := svc.SyncOne(context.Background(), "sub-1", "user-1")
	require.True(t, result.Success)
	require.Len(t, events.inserted, 2)

	byUID := make(map[string]models.CalendarEvent)
	for _, ev := range events.inserted {
		byUID[ev.ExternalID] = ev
	}
	assert.Equal(t, models.CategorySchool, byUID["uid-1"].Category)
	assert.Equal(t, models.CategoryBirthday, byUID["uid-2"].Category)
	for _, ev := range byUID {
		assert.Equal(t, "#ff0000", ev.Color)
		assert.Equal(t, models.SourceTypeICal, ev.SourceType)
		assert.Equal(t, "sub-1", ev.SourceID)
		assert.Equal(t, "user-1", ev.UserID)
	}
}

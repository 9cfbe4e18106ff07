package ical

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func wrapCalendar(body string) []byte {
	var b strings.Builder
	b.WriteString("BEGIN:VCALENDAR\r\n")
	b.WriteString("VERSION:2.0\r\n")
	b.WriteString("PRODID:-//Test//EN\r\n")
	b.WriteString(strings.ReplaceAll(strings.TrimSpace(body), "\n", "\r\n"))
	b.WriteString("\r\nEND:VCALENDAR\r\n")
	return []byte(b.String())
}

func TestParseBasicEvent(t *testing.T) {
	feed := wrapCalendar(`
X-WR-CALNAME:Family Calendar
X-WR-TIMEZONE:America/New_York
BEGIN:VEVENT
UID:event-1@example.com
DTSTART:20260314T090000Z
DTEND:20260314T100000Z
SUMMARY:Dentist appointment
DESCRIPTION:Bring insurance card
LOCATION:123 Main St
STATUS:CONFIRMED
SEQUENCE:2
END:VEVENT`)

	parsed, err := NewParser(zap.NewNop()).Parse(feed)
	require.NoError(t, err)
	assert.Equal(t, "Family Calendar", parsed.CalendarName)
	assert.Equal(t, "America/New_York", parsed.Timezone)
	require.Len(t, parsed.Events, 1)

	ev := parsed.Events[0]
	assert.Equal(t, "event-1@example.com", ev.ExternalID)
	assert.Equal(t, "Dentist appointment", ev.Title)
	assert.Equal(t, "Bring insurance card", ev.Description)
	assert.Equal(t, "123 Main St", ev.Location)
	assert.Equal(t, time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC), ev.StartTime.UTC())
	require.NotNil(t, ev.EndTime)
	assert.Equal(t, time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC), ev.EndTime.UTC())
	assert.False(t, ev.AllDay)
	assert.False(t, ev.Cancelled())
	require.NotNil(t, ev.Metadata.Sequence)
	assert.Equal(t, 2, *ev.Metadata.Sequence)
}

func TestParseSkipsMalformedEvents(t *testing.T) {
	feed := wrapCalendar(`
BEGIN:VEVENT
UID:good-1
DTSTART:20260314T090000Z
SUMMARY:Good one
END:VEVENT
BEGIN:VEVENT
DTSTART:20260315T090000Z
SUMMARY:No UID here
END:VEVENT
BEGIN:VEVENT
UID:no-start
SUMMARY:Missing DTSTART
END:VEVENT
BEGIN:VEVENT
UID:good-2
DTSTART:20260316T090000Z
SUMMARY:Another good one
END:VEVENT`)

	parsed, err := NewParser(zap.NewNop()).Parse(feed)
	require.NoError(t, err)
	require.Len(t, parsed.Events, 2)
	assert.Equal(t, "good-1", parsed.Events[0].ExternalID)
	assert.Equal(t, "good-2", parsed.Events[1].ExternalID)
}

func TestParseAllDayEvent(t *testing.T) {
	feed := wrapCalendar(`
BEGIN:VEVENT
UID:allday-1
DTSTART;VALUE=DATE:20260314
DTEND;VALUE=DATE:20260315
SUMMARY:Spring fair
END:VEVENT`)

	parsed, err := NewParser(zap.NewNop()).Parse(feed)
	require.NoError(t, err)
	require.Len(t, parsed.Events, 1)
	assert.True(t, parsed.Events[0].AllDay)
}

func TestParseDurationFallback(t *testing.T) {
	feed := wrapCalendar(`
BEGIN:VEVENT
UID:dur-1
DTSTART:20260314T090000Z
DURATION:PT45M
SUMMARY:Haircut
END:VEVENT`)

	parsed, err := NewParser(zap.NewNop()).Parse(feed)
	require.NoError(t, err)
	require.Len(t, parsed.Events, 1)

	ev := parsed.Events[0]
	require.NotNil(t, ev.EndTime)
	assert.Equal(t, 45*time.Minute, ev.EndTime.Sub(ev.StartTime))
}

func TestParseUnparsableDurationDefaultsToOneHour(t *testing.T) {
	feed := wrapCalendar(`
BEGIN:VEVENT
UID:dur-bad
DTSTART:20260314T090000Z
DURATION:garbage
SUMMARY:Mystery block
END:VEVENT`)

	parsed, err := NewParser(zap.NewNop()).Parse(feed)
	require.NoError(t, err)
	require.Len(t, parsed.Events, 1)

	ev := parsed.Events[0]
	require.NotNil(t, ev.EndTime)
	assert.Equal(t, DefaultEventDuration, ev.EndTime.Sub(ev.StartTime))
}

func TestParseNoEndLeavesEndNil(t *testing.T) {
	feed := wrapCalendar(`
BEGIN:VEVENT
UID:open-1
DTSTART:20260314T090000Z
SUMMARY:Open ended
END:VEVENT`)

	parsed, err := NewParser(zap.NewNop()).Parse(feed)
	require.NoError(t, err)
	require.Len(t, parsed.Events, 1)
	assert.Nil(t, parsed.Events[0].EndTime)
}

func TestParseUntitledEventGetsDefaultTitle(t *testing.T) {
	feed := wrapCalendar(`
BEGIN:VEVENT
UID:untitled-1
DTSTART:20260314T090000Z
END:VEVENT`)

	parsed, err := NewParser(zap.NewNop()).Parse(feed)
	require.NoError(t, err)
	require.Len(t, parsed.Events, 1)
	assert.Equal(t, "Untitled Event", parsed.Events[0].Title)
}

func TestParseCancelledStatus(t *testing.T) {
	feed := wrapCalendar(`
BEGIN:VEVENT
UID:cancelled-1
DTSTART:20260314T090000Z
SUMMARY:Rained out
STATUS:CANCELLED
END:VEVENT`)

	parsed, err := NewParser(zap.NewNop()).Parse(feed)
	require.NoError(t, err)
	require.Len(t, parsed.Events, 1)
	assert.True(t, parsed.Events[0].Cancelled())
}

func TestParseRecurrenceRuleKeptOpaque(t *testing.T) {
	feed := wrapCalendar(`
BEGIN:VEVENT
UID:recur-1
DTSTART:20260314T090000Z
RRULE:FREQ=WEEKLY;BYDAY=SA
SUMMARY:Swim lesson
END:VEVENT`)

	parsed, err := NewParser(zap.NewNop()).Parse(feed)
	require.NoError(t, err)
	require.Len(t, parsed.Events, 1)
	// One stored row per UID; occurrences are not expanded.
	assert.Equal(t, "FREQ=WEEKLY;BYDAY=SA", parsed.Events[0].RecurrenceRule)
}

func TestParseCalendarNameFallsBackToTimezone(t *testing.T) {
	feed := wrapCalendar(`
X-WR-TIMEZONE:Europe/Paris
BEGIN:VEVENT
UID:tz-1
DTSTART:20260314T090000Z
SUMMARY:Anything
END:VEVENT`)

	parsed, err := NewParser(zap.NewNop()).Parse(feed)
	require.NoError(t, err)
	assert.Equal(t, "Europe/Paris", parsed.CalendarName)
}

func TestParseEmptyBody(t *testing.T) {
	_, err := NewParser(zap.NewNop()).Parse(nil)
	require.Error(t, err)
}

func TestParseEmptyCalendar(t *testing.T) {
	parsed, err := NewParser(zap.NewNop()).Parse(wrapCalendar("X-WR-CALNAME:Empty"))
	require.NoError(t, err)
	assert.Empty(t, parsed.Events)
}

package ical

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"go.uber.org/zap"

	"github.com/familyhub/calendar-sync-api/internal/models"
)

// ParsedEvent is the normalized representation of one VEVENT. ExternalID is
// the feed's UID and is stable across fetches, which the reconciler depends on.
type ParsedEvent struct {
	ExternalID     string
	Title          string
	Description    string
	Location       string
	StartTime      time.Time
	EndTime        *time.Time
	AllDay         bool
	RecurrenceRule string
	Status         string
	Organizer      string
	Attendees      []string
	Metadata       models.EventMetadata
}

// Cancelled reports whether the feed explicitly marked this event cancelled.
// Cancelled events are still stored; deletion is driven only by the UID
// disappearing from a later fetch.
func (e ParsedEvent) Cancelled() bool {
	return strings.EqualFold(e.Status, "CANCELLED")
}

// ParsedCalendar is the full result of parsing one feed document.
type ParsedCalendar struct {
	Events       []ParsedEvent
	CalendarName string
	Timezone     string
}

// Parser converts raw iCalendar text into normalized events. A single
// malformed VEVENT is skipped and logged; only a fundamentally malformed
// document fails the whole parse.
type Parser struct {
	logger *zap.Logger
}

// NewParser constructs a parser.
func NewParser(logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{logger: logger}
}

// Parse decodes a feed body. A feed with zero valid events is not an error.
func (p *Parser) Parse(body []byte) (*ParsedCalendar, error) {
	if len(body) == 0 {
		return nil, errors.New("empty calendar body")
	}

	cal, err := ics.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse calendar: %w", err)
	}

	out := &ParsedCalendar{Events: make([]ParsedEvent, 0)}
	for _, prop := range cal.CalendarProperties {
		switch prop.IANAToken {
		case "X-WR-CALNAME":
			out.CalendarName = prop.Value
		case "X-WR-TIMEZONE":
			out.Timezone = prop.Value
		}
	}
	if out.CalendarName == "" {
		out.CalendarName = out.Timezone
	}

	for _, ve := range cal.Events() {
		ev, perr := p.parseVEvent(ve)
		if perr != nil {
			p.logger.Warn("skipping malformed calendar event", zap.Error(perr))
			continue
		}
		out.Events = append(out.Events, ev)
	}

	p.logger.Debug("calendar parsed",
		zap.String("calendar", out.CalendarName),
		zap.Int("events", len(out.Events)))
	return out, nil
}

func (p *Parser) parseVEvent(ve *ics.VEvent) (ParsedEvent, error) {
	var out ParsedEvent

	uidProp := ve.GetProperty(ics.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("missing UID")
	}
	out.ExternalID = uidProp.Value

	dtStart := ve.GetProperty(ics.ComponentPropertyDtStart)
	if dtStart == nil || dtStart.Value == "" {
		return out, errors.New("missing DTSTART")
	}
	out.AllDay = isDateOnly(dtStart)

	start, err := ve.GetStartAt()
	if err != nil && out.AllDay {
		start, err = ve.GetAllDayStartAt()
	}
	if err != nil {
		return out, fmt.Errorf("parse DTSTART: %w", err)
	}
	out.StartTime = start

	// Prefer an explicit DTEND; fall back to DTSTART + DURATION; otherwise
	// leave the end unset.
	if dtEnd := ve.GetProperty(ics.ComponentPropertyDtEnd); dtEnd != nil && dtEnd.Value != "" {
		end, endErr := ve.GetEndAt()
		if endErr != nil && isDateOnly(dtEnd) {
			end, endErr = ve.GetAllDayEndAt()
		}
		if endErr == nil {
			out.EndTime = &end
		}
	} else if durProp := ve.GetProperty(ics.ComponentProperty("DURATION")); durProp != nil && durProp.Value != "" {
		end := start.Add(ParseDuration(durProp.Value))
		out.EndTime = &end
	}

	out.Title = "Untitled Event"
	if prop := ve.GetProperty(ics.ComponentPropertySummary); prop != nil && prop.Value != "" {
		out.Title = prop.Value
	}
	if prop := ve.GetProperty(ics.ComponentPropertyDescription); prop != nil {
		out.Description = prop.Value
	}
	if prop := ve.GetProperty(ics.ComponentPropertyLocation); prop != nil {
		out.Location = prop.Value
	}

	// RRULE stays an opaque string; no occurrence expansion happens here.
	if prop := ve.GetProperty(ics.ComponentPropertyRrule); prop != nil {
		out.RecurrenceRule = prop.Value
	}

	if prop := ve.GetProperty(ics.ComponentProperty("STATUS")); prop != nil {
		out.Status = prop.Value
	}
	if prop := ve.GetProperty(ics.ComponentProperty("ORGANIZER")); prop != nil {
		out.Organizer = prop.Value
	}

	for _, prop := range ve.GetProperties(ics.ComponentPropertyAttendee) {
		if prop.Value != "" {
			out.Attendees = append(out.Attendees, prop.Value)
		}
	}

	out.Metadata = parseMetadata(ve)

	return out, nil
}

func parseMetadata(ve *ics.VEvent) models.EventMetadata {
	var meta models.EventMetadata

	if prop := ve.GetProperty(ics.ComponentProperty("CREATED")); prop != nil {
		if t, err := parseICSTime(prop.Value); err == nil {
			meta.Created = &t
		}
	}
	if prop := ve.GetProperty(ics.ComponentProperty("LAST-MODIFIED")); prop != nil {
		if t, err := parseICSTime(prop.Value); err == nil {
			meta.LastModified = &t
		}
	}
	if prop := ve.GetProperty(ics.ComponentPropertySequence); prop != nil {
		if n, err := strconv.Atoi(strings.TrimSpace(prop.Value)); err == nil {
			meta.Sequence = &n
		}
	}
	if prop := ve.GetProperty(ics.ComponentProperty("URL")); prop != nil {
		meta.URL = prop.Value
	}
	for _, prop := range ve.GetProperties(ics.ComponentProperty("CATEGORIES")) {
		for _, part := range strings.Split(prop.Value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				meta.Categories = append(meta.Categories, part)
			}
		}
	}

	return meta
}

// isDateOnly detects all-day starts: VALUE=DATE or a bare 8-digit date form.
func isDateOnly(prop *ics.IANAProperty) bool {
	if params := prop.ICalParameters; params != nil {
		if vs, ok := params["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
			return true
		}
	}
	return !strings.Contains(prop.Value, "T")
}

// parseICSTime parses basic ICS date/date-time strings (UTC, local and
// date-only forms) for metadata fields.
func parseICSTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}

	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, time.Local)
	}
	return time.ParseInLocation("20060102", v, time.Local)
}

package ical

import (
	"regexp"
	"strconv"
	"time"
)

// DefaultEventDuration is the documented fallback applied when an event
// carries an unparsable (or zero) DURATION and no DTEND. Inherited from the
// behaviour of the upstream family-hub implementation.
const DefaultEventDuration = time.Hour

var durationPattern = regexp.MustCompile(`P(?:(\d+)D)?T?(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?`)

// ParseDuration converts an iCal DURATION value (P[n]DT[n]H[n]M[n]S) into a
// time.Duration. Unparsable or zero-length values resolve to
// DefaultEventDuration.
func ParseDuration(raw string) time.Duration {
	match := durationPattern.FindStringSubmatch(raw)
	if match == nil {
		return DefaultEventDuration
	}

	var d time.Duration
	if match[1] != "" {
		if n, err := strconv.Atoi(match[1]); err == nil {
			d += time.Duration(n) * 24 * time.Hour
		}
	}
	if match[2] != "" {
		if n, err := strconv.Atoi(match[2]); err == nil {
			d += time.Duration(n) * time.Hour
		}
	}
	if match[3] != "" {
		if n, err := strconv.Atoi(match[3]); err == nil {
			d += time.Duration(n) * time.Minute
		}
	}
	if match[4] != "" {
		if n, err := strconv.Atoi(match[4]); err == nil {
			d += time.Duration(n) * time.Second
		}
	}

	if d == 0 {
		return DefaultEventDuration
	}
	return d
}

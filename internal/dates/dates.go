// Package dates canonicalizes the date representations that show up in feed
// payloads: unix timestamps in seconds or milliseconds, ISO-8601 strings, and
// a handful of locale formats. Everything resolves to UTC; failure to parse
// yields the zero time, never an error.
package dates

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Timestamps above this magnitude are milliseconds, below it seconds. A unix
// seconds value would not cross 1e10 until the year 2286.
const millisThreshold = int64(1e10)

// layouts tried in order for string inputs that are not unix timestamps.
var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"January 2, 2006",
	"Jan 2, 2006",
	"02/01/2006",
}

// Parse converts a raw date representation into a UTC instant. Accepted
// inputs: integer or float unix timestamps (seconds or milliseconds,
// disambiguated by magnitude), numeric strings, ISO-8601 strings, and common
// locale date strings. Returns the zero time when nothing parses.
func Parse(raw interface{}) time.Time {
	switch v := raw.(type) {
	case nil:
		return time.Time{}
	case time.Time:
		return v.UTC()
	case int:
		return fromUnix(int64(v))
	case int64:
		return fromUnix(v)
	case float64:
		return fromUnix(int64(v))
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return fromUnix(n)
		}
		if f, err := v.Float64(); err == nil {
			return fromUnix(int64(f))
		}
		return time.Time{}
	case string:
		return parseString(v)
	default:
		return time.Time{}
	}
}

func parseString(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}

	// Numeric strings are unix timestamps.
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return fromUnix(n)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return fromUnix(int64(f))
	}

	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func fromUnix(n int64) time.Time {
	if n <= 0 {
		return time.Time{}
	}
	if n > millisThreshold {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}

// WithinRange reports whether t falls inside the closed interval
// [start, end]. The zero time is always out of range. A zero start or end
// leaves that side of the interval unbounded.
func WithinRange(t, start, end time.Time) bool {
	if t.IsZero() {
		return false
	}
	if !start.IsZero() && t.Before(start) {
		return false
	}
	if !end.IsZero() && t.After(end) {
		return false
	}
	return true
}

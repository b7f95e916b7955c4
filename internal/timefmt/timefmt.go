// Package timefmt turns API timestamps into the strings shown on cards and
// tables.
package timefmt

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Unknown is rendered for values that cannot be parsed.
const Unknown = "Unknown"

const (
	day   = 24 * time.Hour
	month = 30 * day
	year  = 365 * day
)

var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Parse accepts the timestamp shapes the API and import files use: RFC 3339,
// SQL-ish datetimes, plain dates and unix seconds or milliseconds.
func Parse(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && n > 0 {
		// Anything past year ~2286 in seconds is really milliseconds.
		if n > 1e10 {
			return time.UnixMilli(n), true
		}
		return time.Unix(n, 0), true
	}
	return time.Time{}, false
}

// toTime normalizes the values templates hand us.
func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, !t.IsZero()
	case string:
		return Parse(t)
	case int64:
		return Parse(strconv.FormatInt(t, 10))
	case int:
		return Parse(strconv.Itoa(t))
	default:
		return time.Time{}, false
	}
}

// TimeAgo renders v relative to now: "just now", "5m ago", "3h ago",
// "2d ago", "4mo ago", "1y ago". Future timestamps are "just now".
func TimeAgo(v any, now time.Time) string {
	t, ok := toTime(v)
	if !ok {
		return Unknown
	}

	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d/time.Minute))
	case d < day:
		return fmt.Sprintf("%dh ago", int(d/time.Hour))
	case d < month:
		return fmt.Sprintf("%dd ago", int(d/day))
	case d < year:
		return fmt.Sprintf("%dmo ago", int(d/month))
	default:
		return fmt.Sprintf("%dy ago", int(d/year))
	}
}

// FormatDate renders v as "Jan 2, 2006" in loc.
func FormatDate(v any, loc *time.Location) string {
	t, ok := toTime(v)
	if !ok {
		return Unknown
	}
	return t.In(loc).Format("Jan 2, 2006")
}

// FormatDateTime renders v as "Jan 2, 2006 3:04 PM" in loc.
func FormatDateTime(v any, loc *time.Location) string {
	t, ok := toTime(v)
	if !ok {
		return Unknown
	}
	return t.In(loc).Format("Jan 2, 2006 3:04 PM")
}

package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tj/go-naturaldate"
)

// dateLayouts are tried in order before any relative or natural language parsing.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	time.DateTime,
	time.DateOnly,
}

// parseDateTime parses a --modified-after or --since expression relative to now.
func parseDateTime(expr string) (time.Time, error) {
	return parseTimeExpr(expr, time.Now())
}

// parseTimeExpr accepts:
//   - today, yesterday, tomorrow (local midnight)
//   - RFC 3339 and ISO 8601 dates or datetimes
//   - 7d, 2w (days and weeks back from now)
//   - Go durations such as 24h or 90m (back from now)
//   - natural language via go-naturaldate, e.g. "last week" or "3 days ago"
func parseTimeExpr(expr string, now time.Time) (time.Time, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return time.Time{}, fmt.Errorf("empty date expression")
	}

	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	switch strings.ToLower(expr) {
	case "today":
		return midnight, nil
	case "yesterday":
		return midnight.AddDate(0, 0, -1), nil
	case "tomorrow":
		return midnight.AddDate(0, 0, 1), nil
	case "now":
		return now, nil
	}

	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, expr, now.Location()); err == nil {
			return t, nil
		}
	}

	if t, ok := parseCalendarOffset(expr, now); ok {
		return t, nil
	}

	if d, err := time.ParseDuration(expr); err == nil && d >= 0 {
		return now.Add(-d), nil
	}

	t, err := naturaldate.Parse(expr, now, naturaldate.WithDirection(naturaldate.Past))
	if err != nil || t.Equal(now) {
		// naturaldate returns the reference time for input it does not understand.
		return time.Time{}, fmt.Errorf("unable to parse date %q: use 2006-01-02, 7d, 24h, yesterday or an expression like \"3 days ago\"", expr)
	}

	return t, nil
}

// parseCalendarOffset handles "<n>d" and "<n>w", which time.ParseDuration rejects.
func parseCalendarOffset(expr string, now time.Time) (time.Time, bool) {
	if len(expr) < 2 {
		return time.Time{}, false
	}

	n, err := strconv.Atoi(expr[:len(expr)-1])
	if err != nil || n < 0 {
		return time.Time{}, false
	}

	switch expr[len(expr)-1] {
	case 'd':
		return now.AddDate(0, 0, -n), true
	case 'w':
		return now.AddDate(0, 0, -7*n), true
	}

	return time.Time{}, false
}

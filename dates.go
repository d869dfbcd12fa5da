package main

import (
	"strings"
	"time"
)

// Category is one of the five date buckets rows are grouped under.
type Category string

const (
	CategoryToday      Category = "Today"
	CategoryYesterday  Category = "Yesterday"
	CategoryLast7Days  Category = "Last 7 days"
	CategoryLast30Days Category = "Last 30 days"
	CategoryOlder      Category = "Older"
)

// CategoryOrder lists categories in chronological-descending order. Header
// insertion walks this order so headers never appear out of sequence even if
// the host's row order is imperfect.
var CategoryOrder = []Category{
	CategoryToday,
	CategoryYesterday,
	CategoryLast7Days,
	CategoryLast30Days,
	CategoryOlder,
}

// Thresholds holds the calendar-day boundaries used for categorization.
// All values are truncated to midnight local time.
type Thresholds struct {
	Today     time.Time
	Yesterday time.Time
	Last7     time.Time
	Last30    time.Time
}

// ComputeThresholds derives the bucket boundaries from the given wall clock.
func ComputeThresholds(now time.Time) Thresholds {
	today := truncateToDay(now)
	return Thresholds{
		Today:     today,
		Yesterday: today.AddDate(0, 0, -1),
		Last7:     today.AddDate(0, 0, -6),
		Last30:    today.AddDate(0, 0, -29),
	}
}

// absoluteLayouts are tried in order when parsing a row's displayed date.
var absoluteLayouts = []string{
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2006-01-02",
	"1/2/2006",
	"01/02/2006",
	time.RFC1123,
	time.RFC3339,
}

// monthDayLayouts cover displays that omit the year ("Nov 14"); the current
// year is assumed.
var monthDayLayouts = []string{
	"Jan 2",
	"January 2",
	"2 Jan",
}

// Categorize classifies a displayed date string into a bucket. Unparsable
// input (relative strings like "2 hours ago", garbage, empty) classifies as
// Older: grouping must never fail on a single bad date.
func Categorize(dateText string, th Thresholds) Category {
	day, ok := parseDisplayedDate(dateText, th.Today)
	if !ok {
		return CategoryOlder
	}

	switch {
	case day.After(th.Today):
		// Host clock skew or a just-arrived message; treat as today.
		return CategoryToday
	case day.Equal(th.Today):
		return CategoryToday
	case day.Equal(th.Yesterday):
		return CategoryYesterday
	case !day.Before(th.Last7):
		return CategoryLast7Days
	case !day.Before(th.Last30):
		return CategoryLast30Days
	default:
		return CategoryOlder
	}
}

// parseDisplayedDate parses dateText as an absolute date, falling back to a
// year-less "month day" pattern with the current year assumed. The result is
// truncated to the calendar day.
func parseDisplayedDate(dateText string, today time.Time) (time.Time, bool) {
	text := strings.TrimSpace(dateText)
	if text == "" {
		return time.Time{}, false
	}

	for _, layout := range absoluteLayouts {
		if t, err := time.ParseInLocation(layout, text, today.Location()); err == nil {
			return truncateToDay(t), true
		}
	}

	for _, layout := range monthDayLayouts {
		if t, err := time.ParseInLocation(layout, text, today.Location()); err == nil {
			t = time.Date(today.Year(), t.Month(), t.Day(), 0, 0, 0, 0, today.Location())
			return t, true
		}
	}

	return time.Time{}, false
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// GroupByCategory buckets rows by their displayed date, preserving row order
// within each bucket.
func GroupByCategory(rows []Row, th Thresholds) map[Category][]Row {
	groups := make(map[Category][]Row)
	for _, row := range rows {
		c := Categorize(row.DateText, th)
		groups[c] = append(groups[c], row)
	}
	return groups
}

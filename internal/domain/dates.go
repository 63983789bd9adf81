package domain

import (
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	DateLayout,
}

// CalendarDate reduces a date or timestamp to its YYYY-MM-DD calendar day,
// ignoring time of day.
func CalendarDate(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(DateLayout), true
		}
	}
	return "", false
}

func Today(now time.Time) string {
	return now.Format(DateLayout)
}

// IsPastDate compares two YYYY-MM-DD strings; no timezone arithmetic.
func IsPastDate(date, today string) bool {
	return date < today
}

package service

import (
	"fmt"
	"time"

	"sheetnotes/internal/domain"
	"sheetnotes/internal/priority"
)

const DefaultTimezone = "Asia/Manila"

// DefaultDueDate is the start of the day after now, in loc.
func DefaultDueDate(now time.Time, loc *time.Location) string {
	local := now.In(loc)
	tomorrow := time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc)
	return priority.FormatTime(tomorrow)
}

// ParseDueDate accepts a full timestamp or a bare date, which is read in loc.
func ParseDueDate(s string, loc *time.Location) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	if t, err := time.ParseInLocation("2006-01-02", s, loc); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: due date %q is not a date", domain.ErrInvalidInput, s)
}

// IsOverdue reports whether the due day, seen in loc, is before today.
// Notes without a parseable due date are never overdue.
func IsOverdue(dueDate string, now time.Time, loc *time.Location) bool {
	if dueDate == "" {
		return false
	}
	due, err := ParseDueDate(dueDate, loc)
	if err != nil {
		return false
	}
	return startOfDay(due.In(loc)).Before(startOfDay(now.In(loc)))
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

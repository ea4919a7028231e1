package datamodel

import (
	"strings"
	"time"
)

const (
	// DateLayout is the calendar date format used for stop dates, shift dates and event dates
	DateLayout = "2006-01-02"
	// ClockLayout is the local wall clock format with second precision
	ClockLayout = "15:04:05"

	clockLayoutShort = "15:04"
	minutesPerDay    = 1440
)

// ParseClock converts a HH:MM or HH:MM:SS local clock string into minutes since midnight.
// Seconds become fractional minutes.
func ParseClock(clock string) (float64, error) {
	clock = strings.TrimSpace(clock)
	layout := ClockLayout
	if strings.Count(clock, ":") == 1 {
		layout = clockLayoutShort
	}
	t, err := time.Parse(layout, clock)
	if err != nil {
		return 0, NewValidationError("invalid clock %q, expected HH:MM or HH:MM:SS", clock)
	}
	return float64(t.Hour()*60+t.Minute()) + float64(t.Second())/60, nil
}

// DurationMinutes returns end - start in minutes.
// When end is before start the interval crossed midnight and 1440 minutes are added.
// There is no date awareness: intervals of 24h or more cannot be expressed.
func DurationMinutes(start string, end string) (float64, error) {
	startMinutes, err := ParseClock(start)
	if err != nil {
		return 0, err
	}
	endMinutes, err := ParseClock(end)
	if err != nil {
		return 0, err
	}
	if endMinutes < startMinutes {
		endMinutes += minutesPerDay
	}
	return endMinutes - startMinutes, nil
}

// ClockOf formats the local wall clock of t
func ClockOf(t time.Time) string {
	return t.Format(ClockLayout)
}

// ElapsedMinutes is the duration of a still running stop, using now as its end
func ElapsedMinutes(start string, now time.Time) (float64, error) {
	return DurationMinutes(start, ClockOf(now))
}

// ParseDate validates a YYYY-MM-DD calendar date
func ParseDate(date string) (time.Time, error) {
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		return time.Time{}, NewValidationError("invalid date %q, expected YYYY-MM-DD", date)
	}
	return t, nil
}

// CompareEventTime orders events by date, then by clock. Unparsable clocks sort first.
func CompareEventTime(dateA, clockA, dateB, clockB string) int {
	if c := strings.Compare(dateA, dateB); c != 0 {
		return c
	}
	a, errA := ParseClock(clockA)
	b, errB := ParseClock(clockB)
	switch {
	case errA != nil && errB != nil:
		return strings.Compare(clockA, clockB)
	case errA != nil:
		return -1
	case errB != nil:
		return 1
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

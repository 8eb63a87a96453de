package appointment

import (
	"fmt"
	"time"
)

const minutesPerDay = 24 * 60

// Date is a clinic-local calendar day. Each day is an independent conflict domain.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar day of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return Date{}, validationErrorf("date must be YYYY-MM-DD, got %q", s)
	}
	return DateOf(t), nil
}

// In returns local midnight of d in loc.
func (d Date) In(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// AddDays normalizes across month and year boundaries.
func (d Date) AddDays(n int) Date {
	return DateOf(d.In(time.UTC).AddDate(0, 0, n))
}

func (d Date) Before(other Date) bool {
	return d.In(time.UTC).Before(other.In(time.UTC))
}

func (d Date) IsZero() bool {
	return d == Date{}
}

func (d Date) String() string {
	return d.In(time.UTC).Format(time.DateOnly)
}

// TimeOfDay is a wall-clock time as minutes since local midnight.
// 1440 is allowed so that a window can close at midnight.
type TimeOfDay int

func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*60 + minute)
}

// ParseTimeOfDay parses HH:MM (24h). "24:00" is accepted as end of day.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	if s == "24:00" {
		return minutesPerDay, nil
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, validationErrorf("time must be HH:MM, got %q", s)
	}
	return NewTimeOfDay(t.Hour(), t.Minute()), nil
}

func (t TimeOfDay) Valid() bool {
	return t >= 0 && t <= minutesPerDay
}

func (t TimeOfDay) Add(d time.Duration) TimeOfDay {
	return t + TimeOfDay(d/time.Minute)
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// TimeInterval is a half-open range [Start, End) on a single calendar day.
type TimeInterval struct {
	Date  Date
	Start TimeOfDay
	End   TimeOfDay
}

// NewTimeInterval rejects zero-length, inverted and out-of-day intervals.
func NewTimeInterval(date Date, start, end TimeOfDay) (TimeInterval, error) {
	if date.IsZero() {
		return TimeInterval{}, validationErrorf("date is required")
	}
	if !start.Valid() || !end.Valid() {
		return TimeInterval{}, validationErrorf("time of day out of range")
	}
	if end <= start {
		return TimeInterval{}, validationErrorf("end time %s must be after start time %s", end, start)
	}
	return TimeInterval{Date: date, Start: start, End: end}, nil
}

// Overlaps uses half-open semantics: back-to-back intervals do not overlap.
// Intervals on different dates never overlap.
func (i TimeInterval) Overlaps(other TimeInterval) bool {
	if i.Date != other.Date {
		return false
	}
	return i.Start < other.End && other.Start < i.End
}

func (i TimeInterval) Contains(point TimeOfDay) bool {
	return i.Start <= point && point < i.End
}

// Within reports whether i lies fully inside the window on the same day.
func (i TimeInterval) Within(open, close TimeOfDay) bool {
	return i.Start >= open && i.End <= close
}

// Duration in minutes.
func (i TimeInterval) Duration() int {
	return int(i.End - i.Start)
}

func (i TimeInterval) String() string {
	return fmt.Sprintf("%s [%s,%s)", i.Date, i.Start, i.End)
}

package core

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

// =============================================================================
// DAY - Calendar-date abstraction (this IS a day-lifecycle system)
// =============================================================================

// Day is a date with no time-of-day component, in the operator's local
// calendar. The zero value means "unset".
type Day struct {
	t time.Time
}

// Constructors
func NewDay(year int, month time.Month, day int) Day {
	return Day{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DayOf returns the calendar date of an instant, read in the instant's
// own location.
func DayOf(at time.Time) Day {
	return NewDay(at.Year(), at.Month(), at.Day())
}

// ParseDay parses a YYYY-MM-DD string.
func ParseDay(s string) (Day, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Day{}, &InvalidArgumentError{Field: "date", Value: s, Reason: "want YYYY-MM-DD"}
	}
	return Day{t: t}, nil
}

// Comparison
func (d Day) Before(other Day) bool        { return d.t.Before(other.t) }
func (d Day) After(other Day) bool         { return d.t.After(other.t) }
func (d Day) Equal(other Day) bool         { return d.t.Equal(other.t) }
func (d Day) BeforeOrEqual(other Day) bool { return d.Before(other) || d.Equal(other) }
func (d Day) AfterOrEqual(other Day) bool  { return d.After(other) || d.Equal(other) }

// Arithmetic
func (d Day) AddDays(n int) Day { return Day{t: d.t.AddDate(0, 0, n)} }

// Properties
func (d Day) Year() int             { return d.t.Year() }
func (d Day) Month() time.Month     { return d.t.Month() }
func (d Day) Day() int              { return d.t.Day() }
func (d Day) Weekday() time.Weekday { return d.t.Weekday() }
func (d Day) IsZero() bool          { return d.t.IsZero() }

func (d Day) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format("2006-01-02")
}

// DaysBetween returns to − from in whole days.
func DaysBetween(from, to Day) int { return int(to.t.Sub(from.t).Hours() / 24) }

// =============================================================================
// CLOCK TIME - "HH:MM" wall-clock times from Settings
// =============================================================================

// ClockTime is a time of day with minute resolution.
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClock parses an "HH:MM" string. The hour may be a single digit.
func ParseClock(s string) (ClockTime, error) {
	bad := &InvalidArgumentError{Field: "time", Value: s, Reason: "want HH:MM"}
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return ClockTime{}, bad
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return ClockTime{}, bad
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return ClockTime{}, bad
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return ClockTime{}, bad
	}
	return ClockTime{Hour: h, Minute: m}, nil
}

func (c ClockTime) Minutes() int { return c.Hour*60 + c.Minute }

func (c ClockTime) String() string {
	return strconv.Itoa(c.Hour/10) + strconv.Itoa(c.Hour%10) + ":" +
		strconv.Itoa(c.Minute/10) + strconv.Itoa(c.Minute%10)
}

// MinuteOfDay returns the instant's local time of day in minutes.
func MinuteOfDay(at time.Time) int { return at.Hour()*60 + at.Minute() }

// =============================================================================
// DATE CONTEXT - Effective-date computation
// =============================================================================

// EffectiveDate computes the operator's subjective "today". With the day
// boundary enabled, instants before day_start_time still belong to the
// previous date: a task finished at 01:30 counts for yesterday.
//
// The result is non-decreasing in real time for fixed settings.
func EffectiveDate(now time.Time, s *Settings) Day {
	today := DayOf(now)
	if s == nil || !s.DayStartEnabled {
		return today
	}
	start, err := ParseClock(s.DayStartTime)
	if err != nil {
		return today
	}
	if MinuteOfDay(now) < start.Minutes() {
		return today.AddDays(-1)
	}
	return today
}

// IsNewDay reports whether the effective date has advanced past last.
func IsNewDay(now time.Time, s *Settings, last Day) bool {
	return EffectiveDate(now, s).After(last)
}

// =============================================================================
// CLOCK - Wall-clock source, swappable in tests
// =============================================================================

type Clock interface {
	Now() time.Time
}

// SystemClock reads the real wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ManualClock is a settable clock for tests and replay.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewManualClock(at time.Time) *ManualClock { return &ManualClock{now: at} }

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Set(at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = at
}

func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

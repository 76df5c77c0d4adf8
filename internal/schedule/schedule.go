// Package schedule derives local weekday/time parts from an instant and decides
// whether a configured weekly trigger is due.
//
// Matching is exact to the minute: a trigger for TUESDAY 10:00 is due only
// while the local clock reads Tuesday 10:00. The caller must therefore tick at
// least once per minute. A missed minute skips that stage until the same
// weekday/time comes around next week.
//
// The week key is always derived from the tick instant. With a schedule whose
// generate trigger falls later in the week than lock/send (the default
// FRIDAY generate, TUESDAY lock/send), generation fills the week whose
// lock/send minute has already passed.
package schedule

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	_ "time/tzdata" // embedded zone database so LoadLocation works in slim containers
)

// Weekdays lists the accepted weekday names, Monday first.
var Weekdays = []string{"MONDAY", "TUESDAY", "WEDNESDAY", "THURSDAY", "FRIDAY", "SATURDAY", "SUNDAY"}

var hhmmRe = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)
var ymdRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Trigger is a weekly (weekday, HH:MM) point in local time.
type Trigger struct {
	Weekday string `yaml:"dow" json:"dow"`
	Time    string `yaml:"time" json:"time"`
}

// Normalize upper-cases and trims the weekday and trims the time.
func (t Trigger) Normalize() Trigger {
	return Trigger{
		Weekday: strings.ToUpper(strings.TrimSpace(t.Weekday)),
		Time:    strings.TrimSpace(t.Time),
	}
}

// Validate checks the weekday name and the 24-hour HH:MM time.
func (t Trigger) Validate() error {
	if !ValidWeekday(t.Weekday) {
		return fmt.Errorf("invalid weekday %q", t.Weekday)
	}
	if !ValidTime(t.Time) {
		return fmt.Errorf("invalid time %q (expected HH:MM 24h)", t.Time)
	}
	return nil
}

// ValidWeekday reports whether name is an upper-case English weekday.
func ValidWeekday(name string) bool {
	_, ok := weekdayIndex(name)
	return ok
}

// ValidTime reports whether s is HH:MM on a 24-hour clock.
func ValidTime(s string) bool { return hhmmRe.MatchString(s) }

// String renders the trigger as "TUESDAY 10:00".
func (t Trigger) String() string { return t.Weekday + " " + t.Time }

// LoadLocation resolves an IANA zone name.
func LoadLocation(name string) (*time.Location, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("timezone is empty")
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", name, err)
	}
	return loc, nil
}

// LocalParts returns the local weekday name (upper case) and "HH:MM" of the
// instant in loc.
func LocalParts(instant time.Time, loc *time.Location) (weekday, hhmm string) {
	local := instant.In(loc)
	return Weekdays[mondayOffset(local.Weekday())], local.Format("15:04")
}

// WeekOf returns the Monday (YYYY-MM-DD) of the local calendar week that
// contains instant. Sunday counts as six days after Monday.
func WeekOf(instant time.Time, loc *time.Location) string {
	local := instant.In(loc)
	y, m, d := local.Date()
	monday := time.Date(y, m, d-mondayOffset(local.Weekday()), 0, 0, 0, 0, time.UTC)
	return monday.Format(time.DateOnly)
}

// IsDue reports whether instant's local weekday and HH:MM equal the trigger
// exactly.
func IsDue(instant time.Time, loc *time.Location, t Trigger) bool {
	dow, hhmm := LocalParts(instant, loc)
	t = t.Normalize()
	return dow == t.Weekday && hhmm == t.Time
}

// LocalISO formats the instant as local "YYYY-MM-DDTHH:MM:SS" without an
// offset. Display and logging only.
func LocalISO(instant time.Time, loc *time.Location) string {
	return instant.In(loc).Format("2006-01-02T15:04:05")
}

// At returns the instant at which the trigger fires in the week that starts
// on weekOf (a Monday).
func At(weekOf string, t Trigger, loc *time.Location) (time.Time, error) {
	t = t.Normalize()
	if err := t.Validate(); err != nil {
		return time.Time{}, err
	}
	monday, err := time.Parse(time.DateOnly, weekOf)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid week_of %q: %w", weekOf, err)
	}
	idx, _ := weekdayIndex(t.Weekday)
	clock, _ := time.Parse("15:04", t.Time)
	y, m, d := monday.Date()
	return time.Date(y, m, d+idx, clock.Hour(), clock.Minute(), 0, 0, loc), nil
}

// AddDays shifts a YYYY-MM-DD date by days.
func AddDays(ymd string, days int) (string, error) {
	d, err := time.Parse(time.DateOnly, ymd)
	if err != nil {
		return "", fmt.Errorf("invalid date %q: %w", ymd, err)
	}
	return d.AddDate(0, 0, days).Format(time.DateOnly), nil
}

// IsYMD reports whether s looks like YYYY-MM-DD.
func IsYMD(s string) bool { return ymdRe.MatchString(s) }

// NormalizeWeekOf accepts YYYY-MM-DD or a date-time whose date part is
// YYYY-MM-DD, and returns the Monday of that calendar week. The date part is
// taken as written; no timezone conversion happens.
func NormalizeWeekOf(s string) (string, error) {
	s = strings.TrimSpace(s)
	if len(s) < 10 || !IsYMD(s[:10]) {
		return "", fmt.Errorf("week_of must be YYYY-MM-DD, got %q", s)
	}
	if len(s) > 10 && !validDateTime(s) {
		return "", fmt.Errorf("week_of must be YYYY-MM-DD, got %q", s)
	}
	d, err := time.Parse(time.DateOnly, s[:10])
	if err != nil {
		return "", fmt.Errorf("week_of must be YYYY-MM-DD, got %q", s)
	}
	return d.AddDate(0, 0, -mondayOffset(d.Weekday())).Format(time.DateOnly), nil
}

var dateTimeLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04"}

func validDateTime(s string) bool {
	for _, layout := range dateTimeLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

func mondayOffset(wd time.Weekday) int {
	return (int(wd) + 6) % 7
}

func weekdayIndex(name string) (int, bool) {
	for i, d := range Weekdays {
		if d == name {
			return i, true
		}
	}
	return 0, false
}

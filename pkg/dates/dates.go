// Package dates formats and parses the calendar dates used in schedule
// lookups and messages.
package dates

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

const keyLayout = "2006-01-02"

var keyRe = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`)

var weekdays = [...]string{"Вс", "Пн", "Вт", "Ср", "Чт", "Пт", "Сб"}

// LoadLocation returns the named zone, or a fixed UTC+3 zone when the tz
// database is unavailable.
func LoadLocation(name string) *time.Location {
	if name == "" {
		name = "Europe/Moscow"
	}
	if loc, err := time.LoadLocation(name); err == nil {
		return loc
	}
	return time.FixedZone("MSK", 3*60*60)
}

// Parse accepts YYYY-MM-DD and rejects dates that do not exist
// (2025-02-30). The result is midnight in loc.
func Parse(s string, loc *time.Location) (time.Time, error) {
	m := keyRe.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, fmt.Errorf("date %q: want YYYY-MM-DD", s)
	}
	y, _ := strconv.Atoi(m[1])
	mo, _ := strconv.Atoi(m[2])
	d, _ := strconv.Atoi(m[3])
	if loc == nil {
		loc = time.UTC
	}
	t := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, loc)
	if t.Year() != y || int(t.Month()) != mo || t.Day() != d {
		return time.Time{}, fmt.Errorf("date %q does not exist", s)
	}
	return t, nil
}

// Key formats t as YYYY-MM-DD.
func Key(t time.Time) string { return t.Format(keyLayout) }

// Calendar formats t as DD.MM.YYYY.
func Calendar(t time.Time) string { return t.Format("02.01.2006") }

// WithWeekday formats t as "DD.MM.YYYY (Пн)".
func WithWeekday(t time.Time) string {
	return Calendar(t) + " (" + weekdays[t.Weekday()] + ")"
}

// AfterDays returns midnight n days after now, in now's location.
func AfterDays(now time.Time, n int) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d+n, 0, 0, 0, 0, now.Location())
}

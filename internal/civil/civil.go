// Package civil implements timezone-pinned calendar dates. Every other
// package does its date math through this one.
package civil

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"time"
	_ "time/tzdata"
)

const layout = "2006-01-02"

// noon is the hour every date is pinned to before instant math. No zone
// offset moves 12:00 across a day boundary.
const noon = 12

var ErrInvalidDate = errors.New("invalid civil date")

// Date is a calendar date with no time of day and no zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// Calendar derives civil dates from instants in one reference zone.
type Calendar struct {
	loc *time.Location
}

// NewCalendar loads the named IANA zone.
func NewCalendar(zone string) (*Calendar, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("load zone %q: %w", zone, err)
	}
	return &Calendar{loc: loc}, nil
}

// CalendarIn wraps an already loaded location.
func CalendarIn(loc *time.Location) *Calendar {
	return &Calendar{loc: loc}
}

// Location returns the reference zone.
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// Today returns the civil date of now in the reference zone.
func (c *Calendar) Today(now time.Time) Date {
	return c.DateOf(now)
}

// DateOf converts an instant to its civil date in the reference zone.
func (c *Calendar) DateOf(t time.Time) Date {
	y, m, d := t.In(c.loc).Date()
	return Date{Year: y, Month: m, Day: d}
}

// Noon returns the instant for 12:00 on d in the reference zone.
func (c *Calendar) Noon(d Date) time.Time {
	return d.in(c.loc)
}

// Weekday reads d's day of week through the reference zone. It always agrees
// with d.Weekday().
func (c *Calendar) Weekday(d Date) time.Weekday {
	return c.Noon(d).Weekday()
}

// Midnight returns the first instant of d in the reference zone.
func (c *Calendar) Midnight(d Date) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, c.loc)
}

// New builds a Date, normalizing overflow (Jan 32 becomes Feb 1).
func New(year int, month time.Month, day int) Date {
	return fromInstant(time.Date(year, month, day, noon, 0, 0, 0, time.UTC))
}

// Parse reads a YYYY-MM-DD date. Values that do not name a real day are rejected.
func Parse(s string) (Date, error) {
	t, err := time.ParseInLocation(layout, s, time.UTC)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

// MustParse is Parse for literals.
func MustParse(s string) Date {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// in pins d to noon in loc. Arithmetic done on the result and read back in
// the same loc cannot shift the civil day.
func (d Date) in(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, noon, 0, 0, 0, loc)
}

// FromTime returns the wall-clock date of t in t's own location. Use
// Calendar.DateOf when t must be read in the reference zone.
func FromTime(t time.Time) Date {
	return fromInstant(t)
}

func fromInstant(t time.Time) Date {
	y, m, day := t.Date()
	return Date{Year: y, Month: m, Day: day}
}

// AddDays returns d shifted by n days; n may be negative.
func (d Date) AddDays(n int) Date {
	return fromInstant(d.in(time.UTC).AddDate(0, 0, n))
}

// AddMonths returns the first day of the month n months after d's month.
func (d Date) AddMonths(n int) Date {
	return New(d.Year, d.Month+time.Month(n), 1)
}

// Weekday returns the day of week, Sunday = 0.
func (d Date) Weekday() time.Weekday {
	return d.in(time.UTC).Weekday()
}

// Format renders d with a time.Format layout. Time-of-day verbs read noon.
func (d Date) Format(layout string) string {
	return d.in(time.UTC).Format(layout)
}

// FirstOfMonth returns day 1 of d's month.
func (d Date) FirstOfMonth() Date {
	return Date{Year: d.Year, Month: d.Month, Day: 1}
}

// DaysInMonth returns the length of d's month.
func (d Date) DaysInMonth() int {
	return New(d.Year, d.Month+1, 0).Day
}

// LastOfMonth returns the final day of d's month.
func (d Date) LastOfMonth() Date {
	return Date{Year: d.Year, Month: d.Month, Day: d.DaysInMonth()}
}

// SameMonth reports whether a and d fall in the same calendar month.
func (d Date) SameMonth(a Date) bool {
	return d.Year == a.Year && d.Month == a.Month
}

func (d Date) IsZero() bool {
	return d == Date{}
}

func (d Date) Before(a Date) bool { return Compare(d, a) < 0 }
func (d Date) After(a Date) bool  { return Compare(d, a) > 0 }

// Compare returns -1, 0 or 1.
func Compare(a, b Date) int {
	switch {
	case a.Year != b.Year:
		return sign(a.Year - b.Year)
	case a.Month != b.Month:
		return sign(int(a.Month) - int(b.Month))
	default:
		return sign(a.Day - b.Day)
	}
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}

// Min returns the earlier of a and b.
func Min(a, b Date) Date {
	if a.Before(b) {
		return a
	}
	return b
}

// Max returns the later of a and b.
func Max(a, b Date) Date {
	if a.After(b) {
		return a
	}
	return b
}

// DaysBetween returns the number of days from a to b (negative if b is earlier).
func DaysBetween(a, b Date) int {
	hours := b.in(time.UTC).Sub(a.in(time.UTC)).Hours()
	return int(hours / 24)
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	p, err := Parse(string(b))
	if err != nil {
		return err
	}
	*d = p
	return nil
}

// Value stores dates as YYYY-MM-DD text.
func (d Date) Value() (driver.Value, error) {
	return d.String(), nil
}

// Scan reads a YYYY-MM-DD column. sqlite may hand back a time.Time for
// columns it recognizes as dates; only its Y/M/D is used.
func (d *Date) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return d.UnmarshalText([]byte(v))
	case []byte:
		return d.UnmarshalText(v)
	case time.Time:
		*d = fromInstant(v)
		return nil
	default:
		return fmt.Errorf("%w: cannot scan %T", ErrInvalidDate, src)
	}
}

package recurrence

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dukerupert/happenings/internal/civil"
)

var (
	ErrInvalidWindow = errors.New("window start is after window end")
	ErrInvalidCount  = errors.New("max count must be at least 1")
)

// Expand returns the dates in [start, end] that d produces, ascending, at
// most max of them. A descriptor that is not confident yields nothing.
func Expand(d Descriptor, start, end civil.Date, max int) ([]civil.Date, error) {
	if start.After(end) {
		return nil, fmt.Errorf("%w: %s > %s", ErrInvalidWindow, start, end)
	}
	if max < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCount, max)
	}
	if !d.Confident {
		return nil, nil
	}

	switch d.Frequency {
	case None:
		return expandOnce(d, start, end), nil
	case Weekly, MonthlyByOrdinalWeekday:
		wd, hasWeekday := d.Weekday.Get()
		start, end, ok := d.bounds(start, end)
		if !ok || !hasWeekday {
			return nil, nil
		}
		if d.Frequency == Weekly {
			return expandWeekly(wd, start, end, max), nil
		}
		return expandMonthly(wd, d.Ordinals, start, end, max), nil
	}
	return nil, nil
}

func expandOnce(d Descriptor, start, end civil.Date) []civil.Date {
	a, ok := d.Anchor.Get()
	if !ok || a.Before(start) || a.After(end) {
		return nil
	}
	return []civil.Date{a}
}

// bounds narrows a window to the part a series can occupy: not before its
// anchor, not after its end date.
func (d Descriptor) bounds(start, end civil.Date) (civil.Date, civil.Date, bool) {
	if a, ok := d.Anchor.Get(); ok {
		start = civil.Max(start, a)
	}
	if u, ok := d.Until.Get(); ok {
		end = civil.Min(end, u)
	}
	return start, end, !start.After(end)
}

func expandWeekly(wd time.Weekday, start, end civil.Date, max int) []civil.Date {
	first := start.AddDays(daysUntil(start.Weekday(), wd))

	var out []civil.Date
	for day := first; !day.After(end) && len(out) < max; day = day.AddDays(7) {
		out = append(out, day)
	}
	return out
}

func expandMonthly(wd time.Weekday, ordinals []Ordinal, start, end civil.Date, max int) []civil.Date {
	var out []civil.Date
	for month := start.FirstOfMonth(); !month.After(end) && len(out) < max; month = month.AddMonths(1) {
		for _, day := range monthDates(month, wd, ordinals) {
			if day.Before(start) || day.After(end) {
				continue
			}
			out = append(out, day)
			if len(out) == max {
				break
			}
		}
	}
	return out
}

// monthDates returns the ordinal weekdays of one month, ascending and
// without duplicates (the 4th and the last Tuesday are often the same day).
func monthDates(month civil.Date, wd time.Weekday, ordinals []Ordinal) []civil.Date {
	var days []civil.Date
	for _, o := range ordinals {
		if day, ok := ordinalWeekday(month, wd, o); ok {
			days = append(days, day)
		}
	}
	slices.SortFunc(days, civil.Compare)
	return slices.Compact(days)
}

// ordinalWeekday finds the o-th wd of month. A 5th that the month does not
// have is reported as missing, not moved to the 4th.
func ordinalWeekday(month civil.Date, wd time.Weekday, o Ordinal) (civil.Date, bool) {
	if o == Last {
		last := month.LastOfMonth()
		return last.AddDays(-daysUntil(wd, last.Weekday())), true
	}
	if !o.valid() {
		return civil.Date{}, false
	}
	first := month.FirstOfMonth()
	day := first.AddDays(daysUntil(first.Weekday(), wd) + 7*(int(o)-1))
	if !day.SameMonth(first) {
		return civil.Date{}, false
	}
	return day, true
}

// daysUntil counts forward from weekday `from` to the next `to`, 0..6.
func daysUntil(from, to time.Weekday) int {
	return (int(to) - int(from) + 7) % 7
}

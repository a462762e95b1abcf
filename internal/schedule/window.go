package schedule

import (
	"fmt"

	"github.com/dukerupert/happenings/internal/civil"
	"github.com/dukerupert/happenings/internal/recurrence"
)

// Order is the direction days are listed in.
type Order int

const (
	Ascending Order = iota
	Descending
)

func (o Order) String() string {
	if o == Descending {
		return "descending"
	}
	return "ascending"
}

// Window is an inclusive range of civil dates plus the order results are
// listed in.
type Window struct {
	Start civil.Date
	End   civil.Date
	Order Order
}

// Upcoming is [today, today+days].
func Upcoming(today civil.Date, days int) Window {
	return Window{Start: today, End: today.AddDays(days), Order: Ascending}
}

// Past is [bound, today-1], most recent first.
func Past(today, bound civil.Date) Window {
	return Window{Start: bound, End: today.AddDays(-1), Order: Descending}
}

// All is [bound, today+days].
func All(bound, today civil.Date, days int) Window {
	return Window{Start: bound, End: today.AddDays(days), Order: Ascending}
}

func (w Window) validate() error {
	if w.Start.After(w.End) {
		return fmt.Errorf("%w: %s > %s", recurrence.ErrInvalidWindow, w.Start, w.End)
	}
	return nil
}

// Days is the number of dates the window covers.
func (w Window) Days() int {
	return civil.DaysBetween(w.Start, w.End) + 1
}

// direction picks Backward only for windows that end before today. A window
// that straddles today, such as the "all" view, resolves forward so its
// series show what happens next rather than what already happened.
func (w Window) direction(today civil.Date) recurrence.Direction {
	if w.End.Before(today) {
		return recurrence.Backward
	}
	return recurrence.Forward
}

// seriesRef is the reference date Series resolves Next from.
func (w Window) seriesRef(today civil.Date, dir recurrence.Direction) civil.Date {
	if dir == recurrence.Backward {
		return w.End.AddDays(1)
	}
	return civil.Max(today, w.Start)
}

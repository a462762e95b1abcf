package recurrence

import (
	"github.com/samber/mo"

	"github.com/dukerupert/happenings/internal/civil"
)

type Direction int

const (
	// Forward looks for the earliest date on or after the reference date.
	Forward Direction = iota
	// Backward looks for the latest date strictly before it.
	Backward
)

func (d Direction) String() string {
	if d == Backward {
		return "backward"
	}
	return "forward"
}

// searchHorizon is how far Next looks past the nearest possible date. Every
// supported shape repeats well within it; a 5th weekday recurs within a
// few months.
const searchHorizon = 731

// Next resolves the single nearest date of d relative to ref. It runs the
// same expansion Expand does over a window anchored at ref, so the two never
// disagree. The bool is d's confidence; an unconfident descriptor yields
// no date.
func Next(d Descriptor, ref civil.Date, dir Direction) (mo.Option[civil.Date], bool) {
	if !d.Confident {
		return mo.None[civil.Date](), false
	}
	if dir == Backward {
		return previous(d, ref), true
	}

	from := ref
	if a, ok := d.Anchor.Get(); ok {
		from = civil.Max(from, a)
	}
	dates, err := Expand(d, ref, from.AddDays(searchHorizon), 1)
	if err != nil || len(dates) == 0 {
		return mo.None[civil.Date](), true
	}
	return mo.Some(dates[0]), true
}

func previous(d Descriptor, ref civil.Date) mo.Option[civil.Date] {
	end := ref.AddDays(-1)
	from := end
	if u, ok := d.Until.Get(); ok && d.IsRecurring() {
		from = civil.Min(from, u)
	}
	if a, ok := d.Anchor.Get(); ok && !d.IsRecurring() {
		from = civil.Min(from, a)
	}
	start := from.AddDays(-searchHorizon)

	dates, err := Expand(d, start, end, civil.DaysBetween(start, end)+1)
	if err != nil || len(dates) == 0 {
		return mo.None[civil.Date]()
	}
	return mo.Some(dates[len(dates)-1])
}

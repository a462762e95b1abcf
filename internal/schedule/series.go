package schedule

import (
	"cmp"
	"slices"

	"github.com/dukerupert/happenings/internal/civil"
	"github.com/dukerupert/happenings/internal/model"
	"github.com/dukerupert/happenings/internal/override"
	"github.com/dukerupert/happenings/internal/recurrence"
)

// SeriesSummary is the series-view entry for one event definition.
type SeriesSummary struct {
	EventID       int64        `json:"event_id"`
	Next          *Occurrence  `json:"next_occurrence"`
	NextConfident bool         `json:"next_occurrence_confident"`
	Upcoming      []civil.Date `json:"upcoming_dates"`
	Label         string       `json:"recurrence_label"`
}

// Series builds one summary per event. For a window that ends before today
// Next is the most recent date in the window and Upcoming lists the latest
// dates, newest first; otherwise Next is the first date on or after
// max(today, w.Start) and Upcoming runs forward to w.End. Summaries are
// sorted by Next ascending; events without one sort last, by ID.
func Series(events []model.EventDefinition, overrides []model.OverrideRecord, w Window, today civil.Date, maxUpcoming int) ([]SeriesSummary, Stats, error) {
	var stats Stats
	if err := w.validate(); err != nil {
		return nil, stats, err
	}
	if err := checkCount("max upcoming", maxUpcoming); err != nil {
		return nil, stats, err
	}

	idx := override.NewIndex(overrides)
	dir := w.direction(today)
	ref := w.seriesRef(today, dir)
	out := make([]SeriesSummary, 0, len(events))

	for _, ev := range events {
		stats.Events++
		d := Describe(ev)
		s := SeriesSummary{EventID: ev.ID, Label: recurrence.Label(d)}
		if !d.Confident {
			stats.Unconfident++
			out = append(out, s)
			continue
		}

		var (
			upcoming []civil.Date
			err      error
		)
		if dir == recurrence.Backward {
			upcoming, err = recurrence.Expand(d, w.Start, w.End, w.Days())
			if len(upcoming) > maxUpcoming {
				upcoming = upcoming[len(upcoming)-maxUpcoming:]
			}
			slices.Reverse(upcoming)
		} else if !ref.After(w.End) {
			upcoming, err = recurrence.Expand(d, ref, w.End, maxUpcoming)
		}
		if err != nil {
			return nil, stats, err
		}
		s.Upcoming = upcoming

		next, confident := recurrence.Next(d, ref, dir)
		s.NextConfident = confident
		if date, ok := next.Get(); ok {
			o := OccurrenceOn(ev, date, idx)
			s.Next = &o
			if o.Cancelled {
				stats.Cancelled++
			}
		}
		stats.Occurrences += len(upcoming)
		out = append(out, s)
	}

	slices.SortStableFunc(out, compareSummaries)
	return out, stats, nil
}

// OverrideSpan returns the date range whose overrides Series needs: w itself
// widened to every event's resolved Next date, which may fall well outside
// w in either direction.
func OverrideSpan(events []model.EventDefinition, w Window, today civil.Date) (start, end civil.Date) {
	start, end = w.Start, w.End
	dir := w.direction(today)
	ref := w.seriesRef(today, dir)
	for _, ev := range events {
		next, _ := recurrence.Next(Describe(ev), ref, dir)
		if date, ok := next.Get(); ok {
			start = civil.Min(start, date)
			end = civil.Max(end, date)
		}
	}
	return start, end
}

func compareSummaries(a, b SeriesSummary) int {
	switch {
	case a.Next == nil && b.Next == nil:
		return cmp.Compare(a.EventID, b.EventID)
	case a.Next == nil:
		return 1
	case b.Next == nil:
		return -1
	}
	if c := civil.Compare(a.Next.Date, b.Next.Date); c != 0 {
		return c
	}
	return cmp.Compare(a.EventID, b.EventID)
}

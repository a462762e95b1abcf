// Package schedule groups many event definitions into a date timeline or
// per-series summaries over a window.
package schedule

import (
	"fmt"
	"slices"

	"github.com/dukerupert/happenings/internal/civil"
	"github.com/dukerupert/happenings/internal/model"
	"github.com/dukerupert/happenings/internal/override"
	"github.com/dukerupert/happenings/internal/recurrence"
)

// Occurrence is one event on one date with its overrides applied.
type Occurrence struct {
	EventID   int64        `json:"event_id"`
	Date      civil.Date   `json:"date"`
	Record    model.Record `json:"record"`
	Cancelled bool         `json:"cancelled"`
}

// Day is one timeline bucket.
type Day struct {
	Date        civil.Date   `json:"date"`
	Occurrences []Occurrence `json:"occurrences"`
}

// Stats counts what a grouping pass saw.
type Stats struct {
	Events      int
	Unconfident int
	Occurrences int
	Cancelled   int
}

func inputOf(s model.Schedule) recurrence.Input {
	return recurrence.Input{
		Anchor:    s.EventDate,
		Weekday:   s.DayOfWeek,
		Rule:      s.RecurrenceRule,
		Pattern:   s.RecurrencePattern,
		Recurring: s.IsRecurring,
		Until:     s.RecurrenceEndDate,
	}
}

// Describe interprets one event's schedule.
func Describe(ev model.EventDefinition) recurrence.Descriptor {
	return recurrence.Interpret(inputOf(ev.Schedule))
}

// OccurrenceOn builds ev's occurrence on date with any override in idx
// applied.
func OccurrenceOn(ev model.EventDefinition, date civil.Date, idx override.Index) Occurrence {
	key := model.OverrideKey{EventID: ev.ID, Date: date}
	rec, cancelled := override.Merge(ev.Record, idx.Lookup(key))
	return Occurrence{EventID: ev.ID, Date: date, Record: rec, Cancelled: cancelled}
}

func checkCount(name string, n int) error {
	if n < 1 {
		return fmt.Errorf("%s: %w: got %d", name, recurrence.ErrInvalidCount, n)
	}
	return nil
}

// Timeline expands every event over w and buckets the occurrences by date.
// Each event contributes at most maxPerEvent dates: the earliest ones for an
// ascending window, the most recent for a descending one. Cancelled
// occurrences stay in their bucket with Cancelled set. maxTotal caps the
// number of occurrences in the final order.
func Timeline(events []model.EventDefinition, overrides []model.OverrideRecord, w Window, maxPerEvent, maxTotal int) ([]Day, Stats, error) {
	var stats Stats
	if err := w.validate(); err != nil {
		return nil, stats, err
	}
	if err := checkCount("max per event", maxPerEvent); err != nil {
		return nil, stats, err
	}
	if err := checkCount("max total", maxTotal); err != nil {
		return nil, stats, err
	}

	idx := override.NewIndex(overrides)
	buckets := make(map[civil.Date][]Occurrence)

	for _, ev := range events {
		stats.Events++
		d := Describe(ev)
		if !d.Confident {
			stats.Unconfident++
			continue
		}

		limit := maxPerEvent
		if w.Order == Descending {
			limit = w.Days()
		}
		dates, err := recurrence.Expand(d, w.Start, w.End, limit)
		if err != nil {
			return nil, stats, fmt.Errorf("expand event %d: %w", ev.ID, err)
		}
		if len(dates) > maxPerEvent {
			dates = dates[len(dates)-maxPerEvent:]
		}

		for _, date := range dates {
			buckets[date] = append(buckets[date], OccurrenceOn(ev, date, idx))
		}
	}

	keys := make([]civil.Date, 0, len(buckets))
	for date := range buckets {
		keys = append(keys, date)
	}
	slices.SortFunc(keys, civil.Compare)
	if w.Order == Descending {
		slices.Reverse(keys)
	}

	days := make([]Day, 0, len(keys))
	remaining := maxTotal
	for _, date := range keys {
		if remaining == 0 {
			break
		}
		occ := buckets[date]
		if len(occ) > remaining {
			occ = occ[:remaining]
		}
		remaining -= len(occ)
		for _, o := range occ {
			stats.Occurrences++
			if o.Cancelled {
				stats.Cancelled++
			}
		}
		days = append(days, Day{Date: date, Occurrences: occ})
	}
	return days, stats, nil
}

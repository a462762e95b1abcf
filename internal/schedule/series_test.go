package schedule

import (
	"slices"
	"testing"

	"github.com/samber/mo"

	"github.com/dukerupert/happenings/internal/model"
)

func TestSeriesForward(t *testing.T) {
	today := d("2026-01-12")
	events := []model.EventDefinition{
		secondFourthTuesday(2),
		weeklyTuesday(1),
		event(3, "Thursday Jam", model.Schedule{RecurrenceRule: "FREQ=WEEKLY;BYDAY=TH"}),
	}
	got, stats, err := Series(events, nil, Upcoming(today, 30), today, 3)
	if err != nil {
		t.Fatalf("Series: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if stats.Unconfident != 0 {
		t.Errorf("stats.Unconfident = %d, want 0", stats.Unconfident)
	}

	// Both Tuesday series land on 01-13; the tie goes to the lower ID.
	for i, id := range []int64{1, 2, 3} {
		if got[i].EventID != id {
			t.Errorf("got[%d].EventID = %d, want %d", i, got[i].EventID, id)
		}
	}

	if got[0].Next == nil || got[0].Next.Date != d("2026-01-13") || !got[0].NextConfident {
		t.Errorf("got[0].Next = %+v, want confident 2026-01-13", got[0].Next)
	}
	if want := dates("2026-01-13", "2026-01-20", "2026-01-27"); !slices.Equal(got[0].Upcoming, want) {
		t.Errorf("got[0].Upcoming = %v, want %v", got[0].Upcoming, want)
	}
	if got[0].Label != "Every Tuesday" {
		t.Errorf("got[0].Label = %q", got[0].Label)
	}

	if want := dates("2026-01-13", "2026-01-27", "2026-02-10"); !slices.Equal(got[1].Upcoming, want) {
		t.Errorf("got[1].Upcoming = %v, want %v", got[1].Upcoming, want)
	}
	if got[1].Label != "2nd & 4th Tuesday" {
		t.Errorf("got[1].Label = %q", got[1].Label)
	}

	if got[2].Next == nil || got[2].Next.Date != d("2026-01-15") {
		t.Errorf("got[2].Next = %+v, want 2026-01-15", got[2].Next)
	}
}

func TestSeriesUnconfidentSortLast(t *testing.T) {
	today := d("2026-01-12")
	events := []model.EventDefinition{
		event(9, "Mystery", model.Schedule{DayOfWeek: "Friday"}),
		event(4, "Broken", model.Schedule{RecurrenceRule: "FREQ=SOMETIMES"}),
		weeklyTuesday(5),
	}
	got, stats, err := Series(events, nil, Upcoming(today, 30), today, 3)
	if err != nil {
		t.Fatalf("Series: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}

	if stats.Unconfident != 2 {
		t.Errorf("stats.Unconfident = %d, want 2", stats.Unconfident)
	}
	for i, id := range []int64{5, 4, 9} {
		if got[i].EventID != id {
			t.Errorf("got[%d].EventID = %d, want %d", i, got[i].EventID, id)
		}
	}
	if got[1].Next != nil || got[1].NextConfident || len(got[1].Upcoming) != 0 {
		t.Errorf("unconfident summary = %+v, want no dates", got[1])
	}
	if got[2].Label != "Every Friday (schedule unconfirmed)" {
		t.Errorf("got[2].Label = %q", got[2].Label)
	}
}

func TestSeriesPastWindow(t *testing.T) {
	today := d("2026-01-12")
	got, _, err := Series([]model.EventDefinition{weeklyTuesday(1)}, nil, Past(today, d("2025-10-01")), today, 3)
	if err != nil {
		t.Fatalf("Series: %v", err)
	}
	if len(got) != 1 || got[0].Next == nil {
		t.Fatalf("got = %+v, want one summary with a date", got)
	}

	if got[0].Next.Date != d("2026-01-06") {
		t.Errorf("Next = %s, want 2026-01-06", got[0].Next.Date)
	}
	if want := dates("2026-01-06", "2025-12-30", "2025-12-23"); !slices.Equal(got[0].Upcoming, want) {
		t.Errorf("Upcoming = %v, want %v", got[0].Upcoming, want)
	}
}

func TestSeriesNextCarriesOverride(t *testing.T) {
	today := d("2026-01-12")
	overrides := []model.OverrideRecord{
		{EventID: 1, Date: d("2026-01-13"), Status: model.OverrideCancelled},
	}
	got, stats, err := Series([]model.EventDefinition{weeklyTuesday(1)}, overrides, Upcoming(today, 30), today, 2)
	if err != nil {
		t.Fatalf("Series: %v", err)
	}
	if got[0].Next == nil {
		t.Fatal("Next = nil")
	}
	if !got[0].Next.Cancelled {
		t.Error("Next should be cancelled")
	}
	if stats.Cancelled != 1 {
		t.Errorf("stats.Cancelled = %d, want 1", stats.Cancelled)
	}
}

func TestSeriesEndedAndOneTime(t *testing.T) {
	today := d("2026-01-12")
	events := []model.EventDefinition{
		event(1, "Old Series", model.Schedule{
			RecurrenceRule:    "FREQ=WEEKLY;BYDAY=TU",
			RecurrenceEndDate: mo.Some(d("2025-12-31")),
		}),
		event(2, "Gala", model.Schedule{EventDate: mo.Some(d("2026-03-01"))}),
	}
	got, _, err := Series(events, nil, Upcoming(today, 30), today, 3)
	if err != nil {
		t.Fatalf("Series: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}

	// The gala is outside the window but still has a next date.
	gala := got[0]
	if gala.EventID != 2 || gala.Next == nil || gala.Next.Date != d("2026-03-01") {
		t.Errorf("gala = %+v, want event 2 next 2026-03-01", gala)
	}
	if len(gala.Upcoming) != 0 || gala.Label != "One-time" {
		t.Errorf("gala upcoming=%v label=%q", gala.Upcoming, gala.Label)
	}

	ended := got[1]
	if ended.EventID != 1 || ended.Next != nil || !ended.NextConfident {
		t.Errorf("ended = %+v, want event 1, confident, no next date", ended)
	}
}

func TestOverrideSpan(t *testing.T) {
	today := d("2026-01-12")
	events := []model.EventDefinition{
		weeklyTuesday(1),
		event(2, "Harvest Fair", model.Schedule{EventDate: mo.Some(d("2025-09-02"))}),
		event(3, "Gala", model.Schedule{EventDate: mo.Some(d("2027-06-01"))}),
		event(4, "Mystery", model.Schedule{DayOfWeek: "Friday"}),
	}

	tests := []struct {
		name     string
		w        Window
		from, to string
	}{
		// Backward: the fair is the most recent date before the window ends.
		{"past", Past(today, d("2025-10-14")), "2025-09-02", "2026-01-11"},
		// Forward: the gala is the next date, far beyond the window.
		{"upcoming", Upcoming(today, 30), "2026-01-12", "2027-06-01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from, to := OverrideSpan(events, tt.w, today)
			if from != d(tt.from) || to != d(tt.to) {
				t.Errorf("OverrideSpan = [%s, %s], want [%s, %s]", from, to, tt.from, tt.to)
			}
		})
	}
}

func TestSeriesInvalidCount(t *testing.T) {
	if _, _, err := Series(nil, nil, Upcoming(d("2026-01-12"), 7), d("2026-01-12"), 0); err == nil {
		t.Error("expected error for zero max upcoming")
	}
}

package store

import (
	"testing"

	"github.com/dukerupert/happenings/internal/civil"
	"github.com/dukerupert/happenings/internal/model"
)

func setupOverrideStore(t *testing.T) (*OverrideStore, int64) {
	t.Helper()
	db := openTestDB(t)
	event, err := NewEventStore(db).Create(model.Event{Title: "Showcase"})
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	return NewOverrideStore(db), event.ID
}

func strPtr(s string) *string { return &s }

func TestUpsertAndGet(t *testing.T) {
	s, eventID := setupOverrideStore(t)
	date := civil.MustParse("2026-01-13")

	o, err := s.Upsert(model.OverrideRecord{
		EventID:   eventID,
		Date:      date,
		Status:    model.OverrideCancelled,
		StartTime: strPtr("20:00"),
		Patch:     model.Record{model.FieldTitle: "Snowed out"},
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if o.Status != model.OverrideCancelled {
		t.Errorf("status = %q, want cancelled", o.Status)
	}
	if o.Date != date {
		t.Errorf("date = %v, want %v", o.Date, date)
	}
	if o.StartTime == nil || *o.StartTime != "20:00" {
		t.Errorf("start time = %v, want 20:00", o.StartTime)
	}
	if o.Notes != nil {
		t.Errorf("notes = %v, want nil", *o.Notes)
	}
	if o.Patch[model.FieldTitle] != "Snowed out" {
		t.Errorf("patch title = %v", o.Patch[model.FieldTitle])
	}

	// Second upsert on the same key replaces the row.
	o2, err := s.Upsert(model.OverrideRecord{EventID: eventID, Date: date, Notes: strPtr("Back on")})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if o2.ID != o.ID {
		t.Errorf("id = %d, want %d", o2.ID, o.ID)
	}
	if o2.Status != model.OverrideNormal {
		t.Errorf("status = %q, want normal", o2.Status)
	}
	if o2.StartTime != nil {
		t.Error("start time should be cleared")
	}
	if len(o2.Patch) != 0 {
		t.Errorf("patch = %v, want empty", o2.Patch)
	}
}

func TestGetOverrideNotFound(t *testing.T) {
	s, eventID := setupOverrideStore(t)

	got, err := s.Get(eventID, civil.MustParse("2026-01-13"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Error("expected nil for missing override")
	}
}

func TestListInRange(t *testing.T) {
	s, eventID := setupOverrideStore(t)

	for _, d := range []string{"2025-12-30", "2026-01-13", "2026-01-27", "2026-02-10"} {
		if _, err := s.Upsert(model.OverrideRecord{EventID: eventID, Date: civil.MustParse(d)}); err != nil {
			t.Fatalf("upsert %s: %v", d, err)
		}
	}

	got, err := s.ListInRange(civil.MustParse("2026-01-01"), civil.MustParse("2026-01-31"))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Date.String() != "2026-01-13" || got[1].Date.String() != "2026-01-27" {
		t.Errorf("dates = %s, %s", got[0].Date, got[1].Date)
	}
}

func TestDeleteOverride(t *testing.T) {
	s, eventID := setupOverrideStore(t)
	date := civil.MustParse("2026-01-13")

	if _, err := s.Upsert(model.OverrideRecord{EventID: eventID, Date: date}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.Delete(eventID, date); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err := s.Get(eventID, date)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Error("override should be deleted")
	}
}

func TestOverridesCascadeWithEvent(t *testing.T) {
	db := openTestDB(t)
	events := NewEventStore(db)
	overrides := NewOverrideStore(db)

	event, err := events.Create(model.Event{Title: "Short-lived"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	date := civil.MustParse("2026-01-13")
	if _, err := overrides.Upsert(model.OverrideRecord{EventID: event.ID, Date: date}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := events.Delete(event.ID); err != nil {
		t.Fatalf("delete event: %v", err)
	}
	got, err := overrides.Get(event.ID, date)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Error("override should be removed with its event")
	}
}

package store

import (
	"testing"
	"time"

	"github.com/dukerupert/happenings/internal/civil"
	"github.com/dukerupert/happenings/internal/model"
)

func setupBackupStore(t *testing.T) *BackupStore {
	t.Helper()
	return NewBackupStore(openTestDB(t))
}

func TestBackupCreate(t *testing.T) {
	bs := setupBackupStore(t)

	b, err := bs.Create("happenings/2026-01-12T030000Z.db.enc")
	if err != nil {
		t.Fatalf("create backup: %v", err)
	}
	if b.ID == 0 {
		t.Error("expected non-zero ID")
	}
	if b.Key != "happenings/2026-01-12T030000Z.db.enc" {
		t.Errorf("key = %q", b.Key)
	}
	if b.Status != model.BackupPending {
		t.Errorf("status = %q, want %q", b.Status, model.BackupPending)
	}
	if b.CompletedAt != nil {
		t.Error("pending backup should have no completed_at")
	}
}

func TestBackupMarkCompleted(t *testing.T) {
	bs := setupBackupStore(t)
	b, _ := bs.Create("a.db.enc")

	if err := bs.MarkCompleted(b.ID, 4096, 12, 3); err != nil {
		t.Fatalf("mark completed: %v", err)
	}

	got, err := bs.GetByID(b.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != model.BackupCompleted {
		t.Errorf("status = %q, want completed", got.Status)
	}
	if got.SizeBytes != 4096 || got.EventCount != 12 || got.OverrideCount != 3 {
		t.Errorf("got size=%d events=%d overrides=%d", got.SizeBytes, got.EventCount, got.OverrideCount)
	}
	if got.CompletedAt == nil {
		t.Error("expected completed_at")
	}
}

func TestBackupMarkFailed(t *testing.T) {
	bs := setupBackupStore(t)
	b, _ := bs.Create("a.db.enc")

	if err := bs.MarkFailed(b.ID, "upload failed"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	got, _ := bs.GetByID(b.ID)
	if got.Status != model.BackupFailed {
		t.Errorf("status = %q, want failed", got.Status)
	}
	if got.ErrorMessage != "upload failed" {
		t.Errorf("error_message = %q", got.ErrorMessage)
	}

	latest, err := bs.LatestCompleted()
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest != nil {
		t.Errorf("failed backup reported as latest completed: %+v", latest)
	}
}

func TestBackupGetByIDNotFound(t *testing.T) {
	bs := setupBackupStore(t)

	b, err := bs.GetByID(999)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b != nil {
		t.Error("expected nil for missing backup")
	}
}

func TestBackupListNewestFirst(t *testing.T) {
	bs := setupBackupStore(t)
	for _, k := range []string{"a", "b", "c"} {
		if _, err := bs.Create(k); err != nil {
			t.Fatalf("create %s: %v", k, err)
		}
	}

	list, err := bs.List(2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	if list[0].Key != "c" || list[1].Key != "b" {
		t.Errorf("order = %s, %s; want c, b", list[0].Key, list[1].Key)
	}
}

func TestBackupDeleteOlderThan(t *testing.T) {
	bs := setupBackupStore(t)
	old, _ := bs.Create("old")
	bs.Create("new")

	if _, err := bs.db.Exec(`UPDATE backups SET created_at = '2025-01-01 00:00:00' WHERE id = ?`, old.ID); err != nil {
		t.Fatalf("backdate: %v", err)
	}

	keys, err := bs.DeleteOlderThan(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("delete older: %v", err)
	}
	if len(keys) != 1 || keys[0] != "old" {
		t.Errorf("keys = %v, want [old]", keys)
	}

	list, _ := bs.List(10)
	if len(list) != 1 || list[0].Key != "new" {
		t.Errorf("remaining = %+v, want only new", list)
	}
}

func TestBackupTableCounts(t *testing.T) {
	db := openTestDB(t)
	events := NewEventStore(db)
	overrides := NewOverrideStore(db)
	bs := NewBackupStore(db)

	e, err := events.Create(model.Event{Title: "Trivia", Schedule: model.Schedule{DayOfWeek: "Tuesday"}})
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	if _, err := overrides.Upsert(model.OverrideRecord{
		EventID: e.ID,
		Date:    civil.MustParse("2026-01-13"),
		Status:  model.OverrideCancelled,
	}); err != nil {
		t.Fatalf("upsert override: %v", err)
	}

	ev, ov, err := bs.TableCounts()
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if ev != 1 || ov != 1 {
		t.Errorf("counts = %d, %d; want 1, 1", ev, ov)
	}
}

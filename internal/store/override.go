package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/dukerupert/happenings/internal/civil"
	"github.com/dukerupert/happenings/internal/model"
)

type OverrideStore struct {
	db *sql.DB
}

func NewOverrideStore(db *sql.DB) *OverrideStore {
	return &OverrideStore{db: db}
}

const overrideColumns = `id, event_id, date, status, override_start_time, override_cover_image_url,
	override_notes, override_patch, created_at, updated_at`

// Upsert writes the override for (o.EventID, o.Date), replacing any existing
// one, and returns the stored row.
func (s *OverrideStore) Upsert(o model.OverrideRecord) (*model.OverrideRecord, error) {
	if o.Status == "" {
		o.Status = model.OverrideNormal
	}
	patch := o.Patch
	if patch == nil {
		patch = model.Record{}
	}
	patchJSON, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("marshal override patch: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO event_overrides (event_id, date, status, override_start_time, override_cover_image_url, override_notes, override_patch)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (event_id, date) DO UPDATE SET
			status = excluded.status,
			override_start_time = excluded.override_start_time,
			override_cover_image_url = excluded.override_cover_image_url,
			override_notes = excluded.override_notes,
			override_patch = excluded.override_patch,
			updated_at = CURRENT_TIMESTAMP`,
		o.EventID, o.Date.String(), o.Status, nullString(o.StartTime), nullString(o.CoverImageURL),
		nullString(o.Notes), string(patchJSON),
	)
	if err != nil {
		return nil, fmt.Errorf("upsert override: %w", err)
	}

	return s.Get(o.EventID, o.Date)
}

func (s *OverrideStore) Get(eventID int64, date civil.Date) (*model.OverrideRecord, error) {
	o, err := scanOverride(s.db.QueryRow(
		`SELECT `+overrideColumns+` FROM event_overrides WHERE event_id = ? AND date = ?`,
		eventID, date.String(),
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query override: %w", err)
	}
	return o, nil
}

// ListInRange returns the overrides dated within [start, end]. Dates are
// stored as YYYY-MM-DD so text comparison orders them correctly.
func (s *OverrideStore) ListInRange(start, end civil.Date) ([]model.OverrideRecord, error) {
	rows, err := s.db.Query(
		`SELECT `+overrideColumns+` FROM event_overrides
		 WHERE date >= ? AND date <= ?
		 ORDER BY date ASC, event_id ASC`,
		start.String(), end.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("query overrides: %w", err)
	}
	defer rows.Close()

	var overrides []model.OverrideRecord
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, fmt.Errorf("scan override: %w", err)
		}
		overrides = append(overrides, *o)
	}
	return overrides, rows.Err()
}

func (s *OverrideStore) Delete(eventID int64, date civil.Date) error {
	_, err := s.db.Exec("DELETE FROM event_overrides WHERE event_id = ? AND date = ?", eventID, date.String())
	if err != nil {
		return fmt.Errorf("delete override: %w", err)
	}
	return nil
}

func scanOverride(row scanner) (*model.OverrideRecord, error) {
	var o model.OverrideRecord
	var date, patch string
	var startTime, cover, notes sql.NullString

	err := row.Scan(&o.ID, &o.EventID, &date, &o.Status, &startTime, &cover, &notes, &patch, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if o.Date, err = civil.Parse(date); err != nil {
		return nil, fmt.Errorf("override %d: %w", o.ID, err)
	}
	if patch != "" {
		if err := json.Unmarshal([]byte(patch), &o.Patch); err != nil {
			return nil, fmt.Errorf("override %d patch: %w", o.ID, err)
		}
	}
	o.StartTime = stringPtr(startTime)
	o.CoverImageURL = stringPtr(cover)
	o.Notes = stringPtr(notes)
	return &o, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

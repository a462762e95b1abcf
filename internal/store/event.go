package store

import (
	"database/sql"
	"fmt"

	"github.com/samber/mo"

	"github.com/dukerupert/happenings/internal/civil"
	"github.com/dukerupert/happenings/internal/model"
)

type EventStore struct {
	db *sql.DB
}

func NewEventStore(db *sql.DB) *EventStore {
	return &EventStore{db: db}
}

const eventColumns = `id, title, description, venue_name, venue_address, start_time, end_time,
	cover_image_url, host_notes, signup_url, category, cost, status,
	event_date, day_of_week, recurrence_rule, recurrence_pattern, is_recurring, recurrence_end_date,
	created_at, updated_at`

func (s *EventStore) Create(e model.Event) (*model.Event, error) {
	if e.Status == "" {
		e.Status = model.EventPublished
	}

	result, err := s.db.Exec(
		`INSERT INTO events (title, description, venue_name, venue_address, start_time, end_time,
			cover_image_url, host_notes, signup_url, category, cost, status,
			event_date, day_of_week, recurrence_rule, recurrence_pattern, is_recurring, recurrence_end_date)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Title, e.Description, e.VenueName, e.VenueAddress, e.StartTime, e.EndTime,
		e.CoverImageURL, e.HostNotes, e.SignupURL, e.Category, e.Cost, e.Status,
		nullDate(e.EventDate), e.DayOfWeek, e.RecurrenceRule, e.RecurrencePattern,
		nullBool(e.IsRecurring), nullDate(e.RecurrenceEndDate),
	)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return s.GetByID(id)
}

func (s *EventStore) GetByID(id int64) (*model.Event, error) {
	e, err := scanEvent(s.db.QueryRow(`SELECT `+eventColumns+` FROM events WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query event: %w", err)
	}
	return e, nil
}

// ListPublished returns every published event. Filtering by date is left to
// the recurrence engine since most rows are recurring.
func (s *EventStore) ListPublished() ([]model.Event, error) {
	rows, err := s.db.Query(
		`SELECT `+eventColumns+` FROM events WHERE status = ? ORDER BY id ASC`,
		model.EventPublished,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

func (s *EventStore) UpdateStatus(id int64, status model.EventStatus) error {
	_, err := s.db.Exec(`UPDATE events SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("update event status: %w", err)
	}
	return nil
}

func (s *EventStore) Delete(id int64) error {
	_, err := s.db.Exec("DELETE FROM events WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (*model.Event, error) {
	var e model.Event
	var eventDate, endDate sql.NullString
	var recurring sql.NullBool

	err := row.Scan(&e.ID, &e.Title, &e.Description, &e.VenueName, &e.VenueAddress, &e.StartTime, &e.EndTime,
		&e.CoverImageURL, &e.HostNotes, &e.SignupURL, &e.Category, &e.Cost, &e.Status,
		&eventDate, &e.DayOfWeek, &e.RecurrenceRule, &e.RecurrencePattern, &recurring, &endDate,
		&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}

	// A malformed stored date is treated as absent; the interpreter flags
	// whatever that leaves ambiguous.
	e.EventDate = optionalDate(eventDate)
	e.RecurrenceEndDate = optionalDate(endDate)
	if recurring.Valid {
		e.IsRecurring = mo.Some(recurring.Bool)
	}
	return &e, nil
}

func optionalDate(ns sql.NullString) mo.Option[civil.Date] {
	if !ns.Valid || ns.String == "" {
		return mo.None[civil.Date]()
	}
	d, err := civil.Parse(ns.String)
	if err != nil {
		return mo.None[civil.Date]()
	}
	return mo.Some(d)
}

func nullDate(o mo.Option[civil.Date]) any {
	if d, ok := o.Get(); ok {
		return d.String()
	}
	return nil
}

func nullBool(o mo.Option[bool]) any {
	if b, ok := o.Get(); ok {
		return b
	}
	return nil
}

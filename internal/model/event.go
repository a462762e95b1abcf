package model

import (
	"maps"
	"time"

	"github.com/samber/mo"

	"github.com/dukerupert/happenings/internal/civil"
)

type EventStatus string

const (
	EventDraft     EventStatus = "draft"
	EventPublished EventStatus = "published"
	EventCancelled EventStatus = "cancelled"
)

// Record keys for the pass-through fields of an event.
const (
	FieldTitle         = "title"
	FieldDescription   = "description"
	FieldStartTime     = "start_time"
	FieldEndTime       = "end_time"
	FieldVenueName     = "venue_name"
	FieldVenueAddress  = "venue_address"
	FieldCoverImageURL = "cover_image_url"
	FieldHostNotes     = "host_notes"
	FieldSignupURL     = "signup_url"
	FieldCategory      = "category"
	FieldCost          = "cost"
)

// Record is the opaque payload carried with each event and occurrence. The
// recurrence engine never reads it; only override patches write to it.
type Record map[string]any

// Clone returns a shallow copy.
func (r Record) Clone() Record {
	if r == nil {
		return Record{}
	}
	return maps.Clone(r)
}

// Schedule holds the recurrence-relevant columns of an event row, exactly as
// stored. Legacy rows may have any combination of them set.
type Schedule struct {
	EventDate         mo.Option[civil.Date] `json:"event_date"`
	DayOfWeek         string                `json:"day_of_week"`
	RecurrenceRule    string                `json:"recurrence_rule"`
	RecurrencePattern string                `json:"recurrence_pattern"`
	IsRecurring       mo.Option[bool]       `json:"is_recurring"`
	RecurrenceEndDate mo.Option[civil.Date] `json:"recurrence_end_date"`
}

// EventDefinition is one series as the engine sees it.
type EventDefinition struct {
	ID       int64    `json:"id"`
	Schedule Schedule `json:"schedule"`
	Record   Record   `json:"record"`
}

// Event is a row of the events table.
type Event struct {
	ID            int64       `json:"id"`
	Title         string      `json:"title"`
	Description   string      `json:"description"`
	VenueName     string      `json:"venue_name"`
	VenueAddress  string      `json:"venue_address"`
	StartTime     string      `json:"start_time"`
	EndTime       string      `json:"end_time"`
	CoverImageURL string      `json:"cover_image_url"`
	HostNotes     string      `json:"host_notes"`
	SignupURL     string      `json:"signup_url"`
	Category      string      `json:"category"`
	Cost          string      `json:"cost"`
	Status        EventStatus `json:"status"`
	Schedule
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Definition splits the row into schedule fields and pass-through record.
func (e Event) Definition() EventDefinition {
	return EventDefinition{
		ID:       e.ID,
		Schedule: e.Schedule,
		Record: Record{
			"id":               e.ID,
			FieldTitle:         e.Title,
			FieldDescription:   e.Description,
			FieldStartTime:     e.StartTime,
			FieldEndTime:       e.EndTime,
			FieldVenueName:     e.VenueName,
			FieldVenueAddress:  e.VenueAddress,
			FieldCoverImageURL: e.CoverImageURL,
			FieldHostNotes:     e.HostNotes,
			FieldSignupURL:     e.SignupURL,
			FieldCategory:      e.Category,
			FieldCost:          e.Cost,
		},
	}
}

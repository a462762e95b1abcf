package model

import (
	"time"

	"github.com/dukerupert/happenings/internal/civil"
)

type OverrideStatus string

const (
	OverrideNormal    OverrideStatus = "normal"
	OverrideCancelled OverrideStatus = "cancelled"
)

// OverrideRecord changes a single date of a series: it cancels it, patches
// fields for it, or both.
type OverrideRecord struct {
	ID      int64          `json:"id"`
	EventID int64          `json:"event_id"`
	Date    civil.Date     `json:"date"`
	Status  OverrideStatus `json:"status"`

	// Dedicated columns kept for rows written before Patch existed.
	StartTime     *string `json:"override_start_time"`
	CoverImageURL *string `json:"override_cover_image_url"`
	Notes         *string `json:"override_notes"`

	Patch Record `json:"override_patch"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OverrideKey identifies the date an override applies to.
type OverrideKey struct {
	EventID int64
	Date    civil.Date
}

func (o OverrideRecord) Key() OverrideKey {
	return OverrideKey{EventID: o.EventID, Date: o.Date}
}

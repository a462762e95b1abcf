// Package override applies per-date override records to event records.
package override

import (
	"github.com/dukerupert/happenings/internal/model"
)

// allowed lists the record fields an override patch may change. Anything
// else in a patch is dropped.
var allowed = map[string]bool{
	model.FieldTitle:         true,
	model.FieldDescription:   true,
	model.FieldStartTime:     true,
	model.FieldEndTime:       true,
	model.FieldVenueName:     true,
	model.FieldVenueAddress:  true,
	model.FieldCoverImageURL: true,
	model.FieldHostNotes:     true,
	model.FieldSignupURL:     true,
	model.FieldCost:          true,
}

// Allowed reports whether a patch may set key.
func Allowed(key string) bool {
	return allowed[key]
}

// Merge returns the record to show for one date and whether that date is
// cancelled. base and o are never modified, so merging the same override
// again gives the same result.
func Merge(base model.Record, o *model.OverrideRecord) (model.Record, bool) {
	out := base.Clone()
	if o == nil {
		return out, false
	}

	if o.StartTime != nil {
		out[model.FieldStartTime] = *o.StartTime
	}
	if o.CoverImageURL != nil {
		out[model.FieldCoverImageURL] = *o.CoverImageURL
	}
	if o.Notes != nil {
		out[model.FieldHostNotes] = *o.Notes
	}

	// Patch values win over the dedicated columns.
	for k, v := range o.Patch {
		if allowed[k] {
			out[k] = v
		}
	}
	return out, o.Status == model.OverrideCancelled
}

// Index maps overrides by (event, date). A later record for the same key
// replaces an earlier one.
type Index map[model.OverrideKey]*model.OverrideRecord

func NewIndex(records []model.OverrideRecord) Index {
	idx := make(Index, len(records))
	for i := range records {
		idx[records[i].Key()] = &records[i]
	}
	return idx
}

// Lookup returns the override for eventID on date, or nil.
func (idx Index) Lookup(key model.OverrideKey) *model.OverrideRecord {
	return idx[key]
}

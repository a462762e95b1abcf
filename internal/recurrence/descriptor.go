package recurrence

import (
	"fmt"
	"slices"
	"time"

	"github.com/samber/mo"

	"github.com/dukerupert/happenings/internal/civil"
)

type Frequency int

const (
	None Frequency = iota
	Weekly
	MonthlyByOrdinalWeekday
)

var frequencyNames = map[Frequency]string{
	None:                    "none",
	Weekly:                  "weekly",
	MonthlyByOrdinalWeekday: "monthly_ordinal",
}

func (f Frequency) String() string {
	if n, ok := frequencyNames[f]; ok {
		return n
	}
	return fmt.Sprintf("Frequency(%d)", int(f))
}

func (f Frequency) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// Ordinal selects one weekday of a month: 1st through 5th, or Last.
// Fifth only exists in some months; Last exists in every month.
type Ordinal int

const (
	First  Ordinal = 1
	Second Ordinal = 2
	Third  Ordinal = 3
	Fourth Ordinal = 4
	Fifth  Ordinal = 5
	Last   Ordinal = -1
)

func (o Ordinal) valid() bool {
	return (o >= First && o <= Fifth) || o == Last
}

// Descriptor is the canonical, immutable form of a recurrence.
type Descriptor struct {
	Frequency Frequency               `json:"frequency"`
	Weekday   mo.Option[time.Weekday] `json:"weekday"`
	Ordinals  []Ordinal               `json:"ordinals,omitempty"`
	Anchor    mo.Option[civil.Date]   `json:"anchor"`
	Until     mo.Option[civil.Date]   `json:"until"`
	Confident bool                    `json:"confident"`

	// Ambiguity says why Confident is false.
	Ambiguity string `json:"ambiguity,omitempty"`
}

// IsRecurring reports whether d repeats.
func (d Descriptor) IsRecurring() bool {
	return d.Frequency != None
}

// flag marks d as not confident, keeping the first reason given.
func (d Descriptor) flag(format string, args ...any) Descriptor {
	d.Confident = false
	if d.Ambiguity == "" {
		d.Ambiguity = fmt.Sprintf(format, args...)
	}
	return d
}

// normalizeOrdinals sorts ordinals (Last after Fifth) and drops duplicates.
func normalizeOrdinals(in []Ordinal) []Ordinal {
	out := slices.Clone(in)
	slices.SortFunc(out, func(a, b Ordinal) int {
		return ordinalRank(a) - ordinalRank(b)
	})
	return slices.Compact(out)
}

func ordinalRank(o Ordinal) int {
	if o == Last {
		return 6
	}
	return int(o)
}

package recurrence

import "strings"

var ordinalLabels = map[Ordinal]string{
	First:  "1st",
	Second: "2nd",
	Third:  "3rd",
	Fourth: "4th",
	Fifth:  "5th",
	Last:   "Last",
}

const unknownSchedule = "Schedule unknown"

// Label describes d for display, e.g. "Every Tuesday" or
// "2nd & 4th Thursday". It is derived from the same descriptor the
// expander reads, so the text always matches the dates.
func Label(d Descriptor) string {
	label := describe(d)
	switch {
	case label == "":
		return unknownSchedule
	case !d.Confident:
		return label + " (schedule unconfirmed)"
	}
	return label
}

func describe(d Descriptor) string {
	switch d.Frequency {
	case None:
		if d.Confident {
			return "One-time"
		}
		return ""
	case Weekly:
		wd, ok := d.Weekday.Get()
		if !ok {
			return ""
		}
		return "Every " + wd.String()
	case MonthlyByOrdinalWeekday:
		wd, ok := d.Weekday.Get()
		if !ok || len(d.Ordinals) == 0 {
			return ""
		}
		return joinOrdinals(d.Ordinals) + " " + wd.String()
	}
	return ""
}

// joinOrdinals renders "2nd", "2nd & 4th", "1st, 3rd & Last".
func joinOrdinals(ordinals []Ordinal) string {
	names := make([]string, 0, len(ordinals))
	for _, o := range ordinals {
		if n, ok := ordinalLabels[o]; ok {
			names = append(names, n)
		}
	}
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	}
	return strings.Join(names[:len(names)-1], ", ") + " & " + names[len(names)-1]
}

package recurrence

import (
	"strings"
	"time"
	"unicode"
)

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,

	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday, "tues": time.Tuesday,
	"wed": time.Wednesday, "weds": time.Wednesday,
	"thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

// rruleDays are the two-letter codes accepted only in the weekday field,
// where "tu" cannot be confused with prose.
var rruleDays = map[string]time.Weekday{
	"su": time.Sunday,
	"mo": time.Monday,
	"tu": time.Tuesday,
	"we": time.Wednesday,
	"th": time.Thursday,
	"fr": time.Friday,
	"sa": time.Saturday,
}

var ordinalWords = map[string]Ordinal{
	"1st": First, "first": First,
	"2nd": Second, "second": Second,
	"3rd": Third, "third": Third,
	"4th": Fourth, "fourth": Fourth,
	"5th": Fifth, "fifth": Fifth,
	"last": Last, "final": Last,
}

// unsupportedPhrases name recurrences this engine cannot express.
var unsupportedPhrases = []string{
	"biweekly", "bi weekly", "every other", "fortnightly", "every 2 weeks", "every two weeks",
	"daily", "every day", "yearly", "annually", "quarterly",
}

// parseWeekday reads the weekday field: full names, common abbreviations,
// plurals ("Tuesdays") and RRULE codes.
func parseWeekday(s string) (time.Weekday, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimSuffix(s, ".")
	if wd, ok := rruleDays[s]; ok {
		return wd, true
	}
	return weekdayWord(s)
}

func weekdayWord(w string) (time.Weekday, bool) {
	if wd, ok := weekdayNames[w]; ok {
		return wd, true
	}
	if strings.HasSuffix(w, "s") {
		if wd, ok := weekdayNames[strings.TrimSuffix(w, "s")]; ok {
			return wd, true
		}
	}
	return 0, false
}

// textPattern is what a free-text recurrence phrase says.
type textPattern struct {
	ordinals    []Ordinal
	weekdays    []time.Weekday
	weekly      bool
	monthly     bool
	unsupported string
}

func (p textPattern) empty() bool {
	return len(p.ordinals) == 0 && len(p.weekdays) == 0 && !p.weekly && !p.monthly && p.unsupported == ""
}

// scanText reads phrases like "2nd & 4th Tuesday", "every Thursday",
// "1st/3rd Mondays" or "last friday of the month".
func scanText(s string) textPattern {
	var p textPattern
	lower := strings.ToLower(s)
	words := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	joined := " " + strings.Join(words, " ") + " "

	for _, phrase := range unsupportedPhrases {
		if strings.Contains(joined, " "+phrase+" ") {
			p.unsupported = phrase
			return p
		}
	}

	for i, w := range words {
		if o, ok := ordinalWords[w]; ok {
			p.ordinals = append(p.ordinals, o)
			continue
		}
		if wd, ok := weekdayWord(w); ok {
			if !containsWeekday(p.weekdays, wd) {
				p.weekdays = append(p.weekdays, wd)
			}
			_, singular := weekdayNames[w]
			if !singular || (i > 0 && (words[i-1] == "every" || words[i-1] == "each")) {
				p.weekly = true
			}
			continue
		}
		switch w {
		case "weekly":
			p.weekly = true
		case "monthly":
			p.monthly = true
		case "week":
			if i > 0 && (words[i-1] == "every" || words[i-1] == "each") {
				p.weekly = true
			}
		case "month":
			if i > 0 && (words[i-1] == "every" || words[i-1] == "each" || words[i-1] == "the") {
				p.monthly = true
			}
		}
	}
	return p
}

func containsWeekday(list []time.Weekday, wd time.Weekday) bool {
	for _, w := range list {
		if w == wd {
			return true
		}
	}
	return false
}

package recurrence

import (
	"strings"
	"time"

	"github.com/samber/mo"
	"github.com/teambition/rrule-go"

	"github.com/dukerupert/happenings/internal/civil"
)

// Input is the raw, possibly legacy, recurrence description of one event.
type Input struct {
	// Anchor is the event date: the only date of a one-time event, the
	// first possible date of a series.
	Anchor mo.Option[civil.Date]
	// Weekday is the free-form weekday field ("Tuesday", "tue", "TU").
	Weekday string
	// Rule is a machine-readable rule: an RRULE such as
	// "FREQ=MONTHLY;BYDAY=2TU,4TU" or a keyword such as "weekly".
	Rule string
	// Pattern is legacy free text such as "2nd & 4th Tuesday".
	Pattern string
	// Recurring is the row's is-recurring hint, absent when NULL.
	Recurring mo.Option[bool]
	// Until is the last date the series may run, if any.
	Until mo.Option[civil.Date]
}

// source is Input after the one-time parsing every strategy shares.
type source struct {
	in Input

	weekday       mo.Option[time.Weekday]
	weekdayBroken bool

	rule    *rrule.ROption
	ruleErr error
	// ruleText is Rule when it is not an RRULE.
	ruleText textPattern
	pattern  textPattern
}

// strategy returns a descriptor if it recognizes src, or false to let the
// next strategy try.
type strategy func(src source) (Descriptor, bool)

// strategies run in priority order; the first match wins.
var strategies = []strategy{
	weeklyRule,
	monthlyOrdinal,
	unrecognizedRule,
	bareWeekday,
	oneTime,
}

// Interpret turns raw recurrence fields into a canonical Descriptor. It never
// fails: input it cannot read yields Confident = false with Ambiguity set.
func Interpret(in Input) Descriptor {
	src := prepare(in)

	var d Descriptor
	for _, s := range strategies {
		if got, ok := s(src); ok {
			d = got
			break
		}
	}
	return finish(d, src)
}

func prepare(in Input) source {
	src := source{in: in}

	if w := strings.TrimSpace(in.Weekday); w != "" {
		if wd, ok := parseWeekday(w); ok {
			src.weekday = mo.Some(wd)
		} else {
			src.weekdayBroken = true
		}
	}

	rule := strings.TrimSpace(in.Rule)
	if isRRule(rule) {
		src.rule, src.ruleErr = parseRRule(rule)
		if src.ruleErr != nil {
			src.rule = nil
		}
	} else if rule != "" {
		src.ruleText = scanText(rule)
	}
	if p := strings.TrimSpace(in.Pattern); p != "" {
		src.pattern = scanText(p)
	}
	return src
}

func isRRule(s string) bool {
	return strings.Contains(strings.ToUpper(s), "FREQ=")
}

func parseRRule(s string) (*rrule.ROption, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "RRULE:")
	return rrule.StrToROption(s)
}

// base seeds a descriptor with the fields every strategy carries over.
func (src source) base(f Frequency) Descriptor {
	return Descriptor{
		Frequency: f,
		Anchor:    src.in.Anchor,
		Confident: true,
	}
}

// pickWeekday resolves the weekday from the explicit field and whatever the
// rule itself names. A broken field or a disagreement is never guessed past.
func (src source) pickWeekday(d Descriptor, fromRule []time.Weekday) Descriptor {
	if src.weekdayBroken {
		return d.flag("unknown weekday %q", src.in.Weekday)
	}
	if len(fromRule) > 1 {
		return d.flag("rule names %d weekdays; only one is supported", len(fromRule))
	}
	field, hasField := src.weekday.Get()
	switch {
	case hasField && len(fromRule) == 1 && fromRule[0] != field:
		d.Weekday = mo.Some(field)
		return d.flag("weekday field %s disagrees with rule weekday %s", field, fromRule[0])
	case hasField:
		d.Weekday = mo.Some(field)
	case len(fromRule) == 1:
		d.Weekday = mo.Some(fromRule[0])
	default:
		return d.flag("recurring rule has no weekday")
	}
	return d
}

func weeklyRule(src source) (Descriptor, bool) {
	if src.rule != nil {
		if src.rule.Freq != rrule.WEEKLY {
			return Descriptor{}, false
		}
		d := src.base(Weekly)
		var days []time.Weekday
		for _, wd := range src.rule.Byweekday {
			if wd.N() != 0 {
				return d.flag("weekly rule with ordinal weekday %d", wd.N()), true
			}
			days = append(days, fromRRuleDay(wd.Day()))
		}
		d = src.pickWeekday(d, days)
		if src.rule.Interval > 1 {
			d = d.flag("weekly interval %d is not supported", src.rule.Interval)
		}
		return withRuleUntil(d, src.rule), true
	}

	text := src.ruleText
	if text.empty() || text.unsupported != "" || len(text.ordinals) > 0 || !text.weekly {
		return Descriptor{}, false
	}
	return src.pickWeekday(src.base(Weekly), text.weekdays), true
}

func monthlyOrdinal(src source) (Descriptor, bool) {
	if src.rule != nil {
		if src.rule.Freq != rrule.MONTHLY {
			return Descriptor{}, false
		}
		return monthlyFromRRule(src), true
	}

	for _, text := range []textPattern{src.ruleText, src.pattern} {
		if text.unsupported != "" || len(text.ordinals) == 0 {
			continue
		}
		d := src.base(MonthlyByOrdinalWeekday)
		d.Ordinals = normalizeOrdinals(text.ordinals)
		return src.pickWeekday(d, text.weekdays), true
	}
	return Descriptor{}, false
}

func monthlyFromRRule(src source) Descriptor {
	opt := src.rule
	d := src.base(MonthlyByOrdinalWeekday)

	if len(opt.Bymonthday) > 0 {
		return d.flag("monthly by day of month is not supported")
	}
	if opt.Interval > 1 {
		return d.flag("monthly interval %d is not supported", opt.Interval)
	}

	var days []time.Weekday
	var ordinals []Ordinal
	for _, wd := range opt.Byweekday {
		day := fromRRuleDay(wd.Day())
		if !containsWeekday(days, day) {
			days = append(days, day)
		}
		if n := wd.N(); n != 0 {
			ordinals = append(ordinals, Ordinal(n))
		}
	}
	for _, pos := range opt.Bysetpos {
		ordinals = append(ordinals, Ordinal(pos))
	}

	d = src.pickWeekday(d, days)
	if len(ordinals) == 0 {
		return withRuleUntil(d.flag("monthly rule has no ordinal"), opt)
	}
	for _, o := range ordinals {
		if !o.valid() {
			return withRuleUntil(d.flag("ordinal %d is not supported", int(o)), opt)
		}
	}
	d.Ordinals = normalizeOrdinals(ordinals)
	return withRuleUntil(d, opt)
}

// unrecognizedRule catches a rule, or a legacy pattern, that states a
// recurrence none of the earlier strategies could read.
func unrecognizedRule(src source) (Descriptor, bool) {
	switch {
	case src.ruleErr != nil:
		return src.base(None).flag("unparseable rule %q", src.in.Rule), true
	case src.rule != nil:
		return src.base(None).flag("unsupported frequency %v", src.rule.Freq), true
	case src.ruleText.unsupported != "":
		return src.base(None).flag("unsupported recurrence %q", src.ruleText.unsupported), true
	case strings.TrimSpace(src.in.Rule) != "":
		return src.base(None).flag("unrecognized rule %q", src.in.Rule), true
	case src.pattern.unsupported != "":
		return src.base(None).flag("unsupported recurrence %q", src.pattern.unsupported), true
	case src.pattern.monthly:
		return src.base(MonthlyByOrdinalWeekday).flag("monthly pattern %q has no ordinal", src.in.Pattern), true
	}
	return Descriptor{}, false
}

// bareWeekday handles a weekday with no rule. It is always weekly. A legacy
// pattern such as "every Tuesday" or a true recurring hint corroborates it;
// no hint or a false hint leaves it flagged, anchor date or not.
func bareWeekday(src source) (Descriptor, bool) {
	textWeekly := src.pattern.weekly && len(src.pattern.weekdays) > 0
	if !src.weekday.IsPresent() && !src.weekdayBroken && !textWeekly {
		return Descriptor{}, false
	}

	recurring, hinted := src.in.Recurring.Get()
	d := src.pickWeekday(src.base(Weekly), src.pattern.weekdays)
	switch {
	case hinted && !recurring:
		return d.flag("weekday given but the row is not recurring"), true
	case textWeekly, hinted:
		return d, true
	}
	return d.flag("weekday without rule or recurring hint"), true
}

func oneTime(src source) (Descriptor, bool) {
	d := src.base(None)
	if src.weekdayBroken {
		d = d.flag("unknown weekday %q", src.in.Weekday)
	}
	if !src.in.Anchor.IsPresent() {
		d = d.flag("no date and no recurrence")
	}
	return d, true
}

// finish applies the end date and enforces the descriptor invariants.
func finish(d Descriptor, src source) Descriptor {
	if u, ok := src.in.Until.Get(); ok {
		if cur, set := d.Until.Get(); !set || u.Before(cur) {
			d.Until = mo.Some(u)
		}
	}
	if d.IsRecurring() && d.Confident && !d.Weekday.IsPresent() {
		d = d.flag("recurring rule has no weekday")
	}
	if d.Frequency == MonthlyByOrdinalWeekday && d.Confident && len(d.Ordinals) == 0 {
		d = d.flag("monthly rule has no ordinal")
	}
	return d
}

func withRuleUntil(d Descriptor, opt *rrule.ROption) Descriptor {
	if !opt.Until.IsZero() {
		d.Until = mo.Some(civil.FromTime(opt.Until))
	}
	return d
}

// fromRRuleDay maps rrule-go's Monday-first index to time.Weekday.
func fromRRuleDay(day int) time.Weekday {
	return time.Weekday((day + 1) % 7)
}

package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/happenings/internal/civil"
	"github.com/dukerupert/happenings/internal/model"
	"github.com/dukerupert/happenings/internal/recurrence"
	"github.com/dukerupert/happenings/internal/schedule"
	"github.com/dukerupert/happenings/internal/store"
)

// ScheduleHandler serves the timeline and series views.
type ScheduleHandler struct {
	events    *store.EventStore
	overrides *store.OverrideStore
	clock     Clock
	limits    Limits
	logger    *slog.Logger
}

func NewScheduleHandler(es *store.EventStore, ovs *store.OverrideStore, clock Clock, limits Limits, logger *slog.Logger) *ScheduleHandler {
	return &ScheduleHandler{events: es, overrides: ovs, clock: clock, limits: limits, logger: logger}
}

type windowResponse struct {
	View  string     `json:"view"`
	Today civil.Date `json:"today"`
	Start civil.Date `json:"start"`
	End   civil.Date `json:"end"`
	Order string     `json:"order"`
}

type timelineResponse struct {
	windowResponse
	Days []schedule.Day `json:"days"`
}

type seriesResponse struct {
	windowResponse
	Series []schedule.SeriesSummary `json:"series"`
}

// errBadQuery marks problems with the request's query string.
var errBadQuery = errors.New("bad query")

// window resolves the view, days, start and end query parameters.
func (h *ScheduleHandler) window(r *http.Request, today civil.Date) (string, schedule.Window, error) {
	q := r.URL.Query()
	view := q.Get("view")
	if view == "" {
		view = "upcoming"
	}

	days := 0
	if s := q.Get("days"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > h.limits.MaxWindowDays {
			return "", schedule.Window{}, fmt.Errorf("%w: days must be between 1 and %d", errBadQuery, h.limits.MaxWindowDays)
		}
		days = n
	}
	orDefault := func(def int) int {
		if days > 0 {
			return days
		}
		return def
	}

	switch view {
	case "upcoming":
		return view, schedule.Upcoming(today, orDefault(h.limits.UpcomingDays)), nil
	case "past":
		return view, schedule.Past(today, today.AddDays(-orDefault(h.limits.PastDays))), nil
	case "all":
		return view, schedule.All(today.AddDays(-h.limits.PastDays), today, orDefault(h.limits.UpcomingDays)), nil
	case "range":
		start, err := civil.Parse(q.Get("start"))
		if err != nil {
			return "", schedule.Window{}, fmt.Errorf("%w: start must be YYYY-MM-DD", errBadQuery)
		}
		end, err := civil.Parse(q.Get("end"))
		if err != nil {
			return "", schedule.Window{}, fmt.Errorf("%w: end must be YYYY-MM-DD", errBadQuery)
		}
		w := schedule.Window{Start: start, End: end}
		if end.Before(today) {
			w.Order = schedule.Descending
		}
		if !start.After(end) && w.Days() > h.limits.MaxWindowDays {
			return "", schedule.Window{}, fmt.Errorf("%w: window is longer than %d days", errBadQuery, h.limits.MaxWindowDays)
		}
		return view, w, nil
	}
	return "", schedule.Window{}, fmt.Errorf("%w: view must be upcoming, past, all or range", errBadQuery)
}

func (h *ScheduleHandler) load(start, end civil.Date) ([]model.EventDefinition, []model.OverrideRecord, error) {
	defs, err := h.definitions()
	if err != nil {
		return nil, nil, err
	}
	overrides, err := h.overridesIn(start, end)
	if err != nil {
		return nil, nil, err
	}
	return defs, overrides, nil
}

func (h *ScheduleHandler) definitions() ([]model.EventDefinition, error) {
	events, err := h.events.ListPublished()
	if err != nil {
		return nil, err
	}
	defs := make([]model.EventDefinition, 0, len(events))
	for _, e := range events {
		defs = append(defs, e.Definition())
	}
	return defs, nil
}

func (h *ScheduleHandler) overridesIn(start, end civil.Date) ([]model.OverrideRecord, error) {
	if start.After(end) {
		return nil, nil
	}
	return h.overrides.ListInRange(start, end)
}

// windowError maps a bad query or window to 400 and anything else to 500.
func (h *ScheduleHandler) windowError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBadQuery), errors.Is(err, recurrence.ErrInvalidWindow):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("build schedule", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to build schedule")
	}
}

func (h *ScheduleHandler) Timeline(w http.ResponseWriter, r *http.Request) {
	today := h.clock.Today()
	view, win, err := h.window(r, today)
	if err != nil {
		h.windowError(w, err)
		return
	}

	events, overrides, err := h.load(win.Start, win.End)
	if err != nil {
		h.logger.Error("load timeline", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load events")
		return
	}

	days, stats, err := schedule.Timeline(events, overrides, win, h.limits.MaxPerEvent, h.limits.MaxTotal)
	if err != nil {
		h.windowError(w, err)
		return
	}
	h.logStats(r, "timeline", view, stats)

	if days == nil {
		days = []schedule.Day{}
	}
	writeJSON(w, http.StatusOK, timelineResponse{
		windowResponse: windowResponse{View: view, Today: today, Start: win.Start, End: win.End, Order: win.Order.String()},
		Days:           days,
	})
}

func (h *ScheduleHandler) Series(w http.ResponseWriter, r *http.Request) {
	today := h.clock.Today()
	view, win, err := h.window(r, today)
	if err != nil {
		h.windowError(w, err)
		return
	}

	events, err := h.definitions()
	if err != nil {
		h.logger.Error("load series", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load events")
		return
	}
	from, to := schedule.OverrideSpan(events, win, today)
	overrides, err := h.overridesIn(from, to)
	if err != nil {
		h.logger.Error("load series overrides", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load events")
		return
	}

	series, stats, err := schedule.Series(events, overrides, win, today, h.limits.MaxUpcoming)
	if err != nil {
		h.windowError(w, err)
		return
	}
	h.logStats(r, "series", view, stats)

	writeJSON(w, http.StatusOK, seriesResponse{
		windowResponse: windowResponse{View: view, Today: today, Start: win.Start, End: win.End, Order: win.Order.String()},
		Series:         series,
	})
}

func (h *ScheduleHandler) logStats(r *http.Request, mode, view string, s schedule.Stats) {
	h.logger.DebugContext(r.Context(), "grouped schedule",
		"mode", mode,
		"view", view,
		"events", s.Events,
		"unconfident", s.Unconfident,
		"occurrences", s.Occurrences,
		"cancelled", s.Cancelled,
	)
}

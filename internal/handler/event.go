package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/samber/mo"

	"github.com/dukerupert/happenings/internal/civil"
	"github.com/dukerupert/happenings/internal/model"
	"github.com/dukerupert/happenings/internal/override"
	"github.com/dukerupert/happenings/internal/recurrence"
	"github.com/dukerupert/happenings/internal/schedule"
	"github.com/dukerupert/happenings/internal/store"
	"github.com/dukerupert/happenings/internal/websocket"
)

type EventHandler struct {
	events    *store.EventStore
	overrides *store.OverrideStore
	hub       *websocket.Hub
	clock     Clock
	limits    Limits
	logger    *slog.Logger
}

func NewEventHandler(es *store.EventStore, ovs *store.OverrideStore, hub *websocket.Hub, clock Clock, limits Limits, logger *slog.Logger) *EventHandler {
	return &EventHandler{events: es, overrides: ovs, hub: hub, clock: clock, limits: limits, logger: logger}
}

type eventRequest struct {
	Title         string `json:"title"`
	Description   string `json:"description"`
	VenueName     string `json:"venue_name"`
	VenueAddress  string `json:"venue_address"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	CoverImageURL string `json:"cover_image_url"`
	HostNotes     string `json:"host_notes"`
	SignupURL     string `json:"signup_url"`
	Category      string `json:"category"`
	Cost          string `json:"cost"`
	Status        string `json:"status"`

	EventDate         string `json:"event_date"`
	DayOfWeek         string `json:"day_of_week"`
	RecurrenceRule    string `json:"recurrence_rule"`
	RecurrencePattern string `json:"recurrence_pattern"`
	IsRecurring       *bool  `json:"is_recurring"`
	RecurrenceEndDate string `json:"recurrence_end_date"`
}

// descriptorView is the JSON form of a descriptor with readable weekday
// names.
type descriptorView struct {
	Frequency recurrence.Frequency  `json:"frequency"`
	Weekday   string                `json:"weekday,omitempty"`
	Ordinals  []recurrence.Ordinal  `json:"ordinals,omitempty"`
	Anchor    mo.Option[civil.Date] `json:"anchor"`
	Until     mo.Option[civil.Date] `json:"until"`
	Confident bool                  `json:"confident"`
	Ambiguity string                `json:"ambiguity,omitempty"`
}

func viewOf(d recurrence.Descriptor) descriptorView {
	v := descriptorView{
		Frequency: d.Frequency,
		Ordinals:  d.Ordinals,
		Anchor:    d.Anchor,
		Until:     d.Until,
		Confident: d.Confident,
		Ambiguity: d.Ambiguity,
	}
	if wd, ok := d.Weekday.Get(); ok {
		v.Weekday = wd.String()
	}
	return v
}

type eventResponse struct {
	Event      *model.Event          `json:"event"`
	Descriptor descriptorView        `json:"descriptor"`
	Label      string                `json:"recurrence_label"`
	Next       *schedule.Occurrence  `json:"next_occurrence,omitempty"`
	Previous   *schedule.Occurrence  `json:"previous_occurrence,omitempty"`
	Upcoming   []schedule.Occurrence `json:"upcoming,omitempty"`
}

func optionalDate(s string) (mo.Option[civil.Date], error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return mo.None[civil.Date](), nil
	}
	d, err := civil.Parse(s)
	if err != nil {
		return mo.None[civil.Date](), err
	}
	return mo.Some(d), nil
}

func (req *eventRequest) toEvent() (model.Event, string) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return model.Event{}, "title is required"
	}

	status := model.EventStatus(req.Status)
	switch status {
	case "":
		status = model.EventPublished
	case model.EventDraft, model.EventPublished, model.EventCancelled:
	default:
		return model.Event{}, "status must be draft, published or cancelled"
	}

	eventDate, err := optionalDate(req.EventDate)
	if err != nil {
		return model.Event{}, "event_date must be YYYY-MM-DD"
	}
	endDate, err := optionalDate(req.RecurrenceEndDate)
	if err != nil {
		return model.Event{}, "recurrence_end_date must be YYYY-MM-DD"
	}
	recurring := mo.None[bool]()
	if req.IsRecurring != nil {
		recurring = mo.Some(*req.IsRecurring)
	}

	return model.Event{
		Title:         title,
		Description:   req.Description,
		VenueName:     req.VenueName,
		VenueAddress:  req.VenueAddress,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
		CoverImageURL: req.CoverImageURL,
		HostNotes:     req.HostNotes,
		SignupURL:     req.SignupURL,
		Category:      req.Category,
		Cost:          req.Cost,
		Status:        status,
		Schedule: model.Schedule{
			EventDate:         eventDate,
			DayOfWeek:         strings.TrimSpace(req.DayOfWeek),
			RecurrenceRule:    strings.TrimSpace(req.RecurrenceRule),
			RecurrencePattern: strings.TrimSpace(req.RecurrencePattern),
			IsRecurring:       recurring,
			RecurrenceEndDate: endDate,
		},
	}, ""
}

func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	e, msg := req.toEvent()
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	event, err := h.events.Create(e)
	if err != nil {
		h.logger.Error("create event", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create event")
		return
	}

	d := schedule.Describe(event.Definition())
	if !d.Confident {
		// Still stored; it is listed as unconfirmed until someone fixes it.
		h.logger.Warn("event schedule is ambiguous", "id", event.ID, "reason", d.Ambiguity)
	}
	label := recurrence.Label(d)
	h.hub.Broadcast(websocket.EventCreated(event.ID, label))

	writeJSON(w, http.StatusCreated, eventResponse{Event: event, Descriptor: viewOf(d), Label: label})
}

// Get returns one event with its interpretation, nearest dates both ways and
// the next few occurrences.
func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	event, err := h.events.GetByID(id)
	if err != nil {
		h.logger.Error("get event", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get event")
		return
	}
	if event == nil {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}

	today := h.clock.Today()
	def := event.Definition()
	d := schedule.Describe(def)
	resp := eventResponse{Event: event, Descriptor: viewOf(d), Label: recurrence.Label(d)}

	next, _ := recurrence.Next(d, today, recurrence.Forward)
	prev, _ := recurrence.Next(d, today, recurrence.Backward)
	end := today.AddDays(h.limits.UpcomingDays)
	upcoming, err := recurrence.Expand(d, today, end, h.limits.MaxUpcoming)
	if err != nil {
		h.logger.Error("expand event", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to expand event")
		return
	}

	from, to := today, end
	if p, ok := prev.Get(); ok {
		from = p
	}
	if n, ok := next.Get(); ok {
		to = civil.Max(to, n)
	}
	records, err := h.overrides.ListInRange(from, to)
	if err != nil {
		h.logger.Error("list overrides", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load overrides")
		return
	}
	idx := override.NewIndex(records)

	if n, ok := next.Get(); ok {
		o := schedule.OccurrenceOn(def, n, idx)
		resp.Next = &o
	}
	if p, ok := prev.Get(); ok {
		o := schedule.OccurrenceOn(def, p, idx)
		resp.Previous = &o
	}
	for _, date := range upcoming {
		resp.Upcoming = append(resp.Upcoming, schedule.OccurrenceOn(def, date, idx))
	}

	writeJSON(w, http.StatusOK, resp)
}

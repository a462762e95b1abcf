package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"

	"github.com/dukerupert/happenings/internal/civil"
	"github.com/dukerupert/happenings/internal/model"
	"github.com/dukerupert/happenings/internal/override"
	"github.com/dukerupert/happenings/internal/recurrence"
	"github.com/dukerupert/happenings/internal/schedule"
	"github.com/dukerupert/happenings/internal/store"
	"github.com/dukerupert/happenings/internal/websocket"
)

// OverrideNotifier is told about every saved override.
type OverrideNotifier interface {
	OverrideSaved(event model.Event, o model.OverrideRecord)
}

type OverrideHandler struct {
	events    *store.EventStore
	overrides *store.OverrideStore
	hub       *websocket.Hub
	notifier  OverrideNotifier
	logger    *slog.Logger
}

// NewOverrideHandler builds the handler; notifier may be nil.
func NewOverrideHandler(es *store.EventStore, ovs *store.OverrideStore, hub *websocket.Hub, notifier OverrideNotifier, logger *slog.Logger) *OverrideHandler {
	return &OverrideHandler{events: es, overrides: ovs, hub: hub, notifier: notifier, logger: logger}
}

type overrideRequest struct {
	Status        string       `json:"status"`
	StartTime     *string      `json:"override_start_time"`
	CoverImageURL *string      `json:"override_cover_image_url"`
	Notes         *string      `json:"override_notes"`
	Patch         model.Record `json:"override_patch"`
}

type overrideResponse struct {
	Override *model.OverrideRecord `json:"override"`
	// Ignored lists patch keys that will never reach the occurrence.
	Ignored    []string            `json:"ignored_fields,omitempty"`
	Occurrence schedule.Occurrence `json:"occurrence"`
}

// target resolves the {id} and {date} path values to an existing event.
// It writes the error response itself and returns nil when it fails.
func (h *OverrideHandler) target(w http.ResponseWriter, r *http.Request) (*model.Event, civil.Date) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return nil, civil.Date{}
	}
	date, err := civil.Parse(r.PathValue("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return nil, civil.Date{}
	}
	event, err := h.events.GetByID(id)
	if err != nil {
		h.logger.Error("get event", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get event")
		return nil, civil.Date{}
	}
	if event == nil {
		writeError(w, http.StatusNotFound, "event not found")
		return nil, civil.Date{}
	}
	return event, date
}

// Put creates or replaces the override for one date of an event.
func (h *OverrideHandler) Put(w http.ResponseWriter, r *http.Request) {
	event, date := h.target(w, r)
	if event == nil {
		return
	}

	var req overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	status := model.OverrideStatus(req.Status)
	switch status {
	case "":
		status = model.OverrideNormal
	case model.OverrideNormal, model.OverrideCancelled:
	default:
		writeError(w, http.StatusBadRequest, "status must be normal or cancelled")
		return
	}

	def := event.Definition()
	d := schedule.Describe(def)
	if d.Confident {
		dates, err := recurrence.Expand(d, date, date, 1)
		if err != nil || len(dates) == 0 {
			writeError(w, http.StatusBadRequest, "event does not occur on "+date.String())
			return
		}
	}

	var ignored []string
	for k := range req.Patch {
		if !override.Allowed(k) {
			ignored = append(ignored, k)
		}
	}
	slices.Sort(ignored)

	saved, err := h.overrides.Upsert(model.OverrideRecord{
		EventID:       event.ID,
		Date:          date,
		Status:        status,
		StartTime:     req.StartTime,
		CoverImageURL: req.CoverImageURL,
		Notes:         req.Notes,
		Patch:         req.Patch,
	})
	if err != nil {
		h.logger.Error("upsert override", "id", event.ID, "date", date.String(), "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save override")
		return
	}

	h.hub.Broadcast(websocket.OverrideMessage(websocket.TypeOverrideUpdated, event.ID, date,
		map[string]any{"status": string(saved.Status)}))
	if h.notifier != nil {
		h.notifier.OverrideSaved(*event, *saved)
	}

	idx := override.NewIndex([]model.OverrideRecord{*saved})
	writeJSON(w, http.StatusOK, overrideResponse{
		Override:   saved,
		Ignored:    ignored,
		Occurrence: schedule.OccurrenceOn(def, date, idx),
	})
}

func (h *OverrideHandler) Delete(w http.ResponseWriter, r *http.Request) {
	event, date := h.target(w, r)
	if event == nil {
		return
	}

	existing, err := h.overrides.Get(event.ID, date)
	if err != nil {
		h.logger.Error("get override", "id", event.ID, "date", date.String(), "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get override")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "override not found")
		return
	}

	if err := h.overrides.Delete(event.ID, date); err != nil {
		h.logger.Error("delete override", "id", event.ID, "date", date.String(), "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete override")
		return
	}

	h.hub.Broadcast(websocket.OverrideMessage(websocket.TypeOverrideDeleted, event.ID, date, nil))
	w.WriteHeader(http.StatusNoContent)
}

package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/happenings/internal/civil"
	"github.com/dukerupert/happenings/internal/database"
	"github.com/dukerupert/happenings/internal/model"
	"github.com/dukerupert/happenings/internal/store"
	"github.com/dukerupert/happenings/internal/websocket"
)

type testEnv struct {
	mux       *http.ServeMux
	events    *store.EventStore
	overrides *store.OverrideStore
	push      *store.PushStore
	notified  *recordingNotifier
}

type recordingNotifier struct {
	saved []model.OverrideRecord
}

func (n *recordingNotifier) OverrideSaved(_ model.Event, o model.OverrideRecord) {
	n.saved = append(n.saved, o)
}

var testLimits = Limits{
	UpcomingDays:  30,
	PastDays:      90,
	MaxPerEvent:   50,
	MaxTotal:      200,
	MaxUpcoming:   3,
	MaxWindowDays: 400,
}

// newTestEnv serves the API with "today" fixed at Monday 2026-01-12 in Denver.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cal, err := civil.NewCalendar("America/Denver")
	require.NoError(t, err)
	clock := Clock{Calendar: cal, Now: func() time.Time {
		return time.Date(2026, 1, 12, 18, 0, 0, 0, time.UTC)
	}}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := websocket.NewHub(logger)
	es := store.NewEventStore(db)
	ovs := store.NewOverrideStore(db)

	sh := NewScheduleHandler(es, ovs, clock, testLimits, logger)
	eh := NewEventHandler(es, ovs, hub, clock, testLimits, logger)
	ps := store.NewPushStore(db)
	notifier := &recordingNotifier{}
	oh := NewOverrideHandler(es, ovs, hub, notifier, logger)
	ph := NewPushHandler(ps, es, "test-public-key", logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/timeline", sh.Timeline)
	mux.HandleFunc("GET /api/series", sh.Series)
	mux.HandleFunc("POST /api/events", eh.Create)
	mux.HandleFunc("GET /api/events/{id}", eh.Get)
	mux.HandleFunc("PUT /api/events/{id}/overrides/{date}", oh.Put)
	mux.HandleFunc("DELETE /api/events/{id}/overrides/{date}", oh.Delete)
	mux.HandleFunc("GET /api/push/vapid-key", ph.VAPIDKey)
	mux.HandleFunc("POST /api/push/subscriptions", ph.Subscribe)
	mux.HandleFunc("DELETE /api/push/subscriptions", ph.Unsubscribe)
	mux.HandleFunc("POST /api/events/{id}/follow", ph.Follow)
	mux.HandleFunc("DELETE /api/events/{id}/follow", ph.Unfollow)

	return &testEnv{mux: mux, events: es, overrides: ovs, push: ps, notified: notifier}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, httptest.NewRequest(method, path, r))
	return rec
}

func (e *testEnv) create(t *testing.T, body map[string]any) int64 {
	t.Helper()
	rec := e.do(t, "POST", "/api/events", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Event struct {
			ID int64 `json:"id"`
		} `json:"event"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Event.ID
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type dayJSON struct {
	Date        string `json:"date"`
	Occurrences []struct {
		EventID   int64          `json:"event_id"`
		Date      string         `json:"date"`
		Record    map[string]any `json:"record"`
		Cancelled bool           `json:"cancelled"`
	} `json:"occurrences"`
}

type timelineJSON struct {
	View  string    `json:"view"`
	Today string    `json:"today"`
	Start string    `json:"start"`
	End   string    `json:"end"`
	Order string    `json:"order"`
	Days  []dayJSON `json:"days"`
}

func dayDates(days []dayJSON) []string {
	var out []string
	for _, d := range days {
		out = append(out, d.Date)
	}
	return out
}

func TestCreateEvent(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "POST", "/api/events", map[string]any{
		"title":              "Showcase",
		"recurrence_pattern": "2nd & 4th Tuesday",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	resp := decode[struct {
		Event struct {
			Title  string `json:"title"`
			Status string `json:"status"`
		} `json:"event"`
		Label      string `json:"recurrence_label"`
		Descriptor struct {
			Frequency string `json:"frequency"`
			Weekday   string `json:"weekday"`
			Ordinals  []int  `json:"ordinals"`
			Confident bool   `json:"confident"`
		} `json:"descriptor"`
	}](t, rec)

	assert.Equal(t, "Showcase", resp.Event.Title)
	assert.Equal(t, "published", resp.Event.Status)
	assert.Equal(t, "2nd & 4th Tuesday", resp.Label)
	assert.Equal(t, "monthly_ordinal", resp.Descriptor.Frequency)
	assert.Equal(t, "Tuesday", resp.Descriptor.Weekday)
	assert.Equal(t, []int{2, 4}, resp.Descriptor.Ordinals)
	assert.True(t, resp.Descriptor.Confident)
}

func TestCreateEventValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body any
	}{
		{"missing title", map[string]any{"title": "  "}},
		{"bad date", map[string]any{"title": "x", "event_date": "01/13/2026"}},
		{"bad end date", map[string]any{"title": "x", "recurrence_end_date": "soon"}},
		{"bad status", map[string]any{"title": "x", "status": "archived"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, "POST", "/api/events", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}

	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, httptest.NewRequest("POST", "/api/events", bytes.NewBufferString("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTimelineUpcoming(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, map[string]any{"title": "Open Mic", "recurrence_rule": "FREQ=WEEKLY;BYDAY=TU"})

	rec := env.do(t, "GET", "/api/timeline", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	tl := decode[timelineJSON](t, rec)

	assert.Equal(t, "upcoming", tl.View)
	assert.Equal(t, "2026-01-12", tl.Today)
	assert.Equal(t, "2026-02-11", tl.End)
	assert.Equal(t, []string{"2026-01-13", "2026-01-20", "2026-01-27", "2026-02-03", "2026-02-10"}, dayDates(tl.Days))
	assert.Equal(t, "Open Mic", tl.Days[0].Occurrences[0].Record["title"])
}

func TestTimelinePastIsDescending(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, map[string]any{"title": "Open Mic", "recurrence_rule": "FREQ=WEEKLY;BYDAY=TU"})

	rec := env.do(t, "GET", "/api/timeline?view=past&days=103", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	tl := decode[timelineJSON](t, rec)

	assert.Equal(t, "2025-10-01", tl.Start)
	assert.Equal(t, "2026-01-11", tl.End)
	assert.Equal(t, "descending", tl.Order)
	dates := dayDates(tl.Days)
	require.NotEmpty(t, dates)
	assert.Equal(t, "2026-01-06", dates[0])
	assert.Equal(t, "2025-12-30", dates[1])
}

func TestTimelineBadQuery(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{
		"/api/timeline?view=sideways",
		"/api/timeline?days=0",
		"/api/timeline?days=9999",
		"/api/timeline?view=range&start=2026-02-01&end=2026-01-01",
		"/api/timeline?view=range&start=yesterday&end=2026-01-01",
	} {
		rec := env.do(t, "GET", path, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}
}

func TestOverrideLifecycle(t *testing.T) {
	env := newTestEnv(t)
	id := env.create(t, map[string]any{"title": "Showcase", "recurrence_rule": "FREQ=MONTHLY;BYDAY=2TU,4TU"})
	path := "/api/events/" + itoa(id) + "/overrides/2026-01-13"

	rec := env.do(t, "PUT", path, map[string]any{
		"status":         "cancelled",
		"override_patch": map[string]any{"title": "Snowed out", "capacity": 10},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	put := decode[struct {
		Ignored    []string `json:"ignored_fields"`
		Occurrence struct {
			Cancelled bool           `json:"cancelled"`
			Record    map[string]any `json:"record"`
		} `json:"occurrence"`
	}](t, rec)
	assert.Equal(t, []string{"capacity"}, put.Ignored)
	assert.True(t, put.Occurrence.Cancelled)
	assert.Equal(t, "Snowed out", put.Occurrence.Record["title"])
	require.Len(t, env.notified.saved, 1)
	assert.Equal(t, model.OverrideCancelled, env.notified.saved[0].Status)

	rec = env.do(t, "GET", "/api/timeline?view=range&start=2026-01-01&end=2026-01-31", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	tl := decode[timelineJSON](t, rec)
	require.Len(t, tl.Days, 2)
	assert.Equal(t, "2026-01-13", tl.Days[0].Date)
	assert.True(t, tl.Days[0].Occurrences[0].Cancelled)
	assert.Equal(t, "2026-01-27", tl.Days[1].Date)
	assert.False(t, tl.Days[1].Occurrences[0].Cancelled)

	rec = env.do(t, "DELETE", path, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = env.do(t, "DELETE", path, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOverrideRejectsNonOccurrence(t *testing.T) {
	env := newTestEnv(t)
	id := env.create(t, map[string]any{"title": "Open Mic", "recurrence_rule": "FREQ=WEEKLY;BYDAY=TU"})

	rec := env.do(t, "PUT", "/api/events/"+itoa(id)+"/overrides/2026-01-14", map[string]any{"status": "cancelled"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, "PUT", "/api/events/"+itoa(id)+"/overrides/2026-01-13", map[string]any{"status": "maybe"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, "PUT", "/api/events/999/overrides/2026-01-13", map[string]any{})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetEvent(t *testing.T) {
	env := newTestEnv(t)
	id := env.create(t, map[string]any{"title": "Open Mic", "recurrence_rule": "FREQ=WEEKLY;BYDAY=TU"})

	rec := env.do(t, "PUT", "/api/events/"+itoa(id)+"/overrides/2026-01-13",
		map[string]any{"override_start_time": "20:30"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, "GET", "/api/events/"+itoa(id), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	type occ struct {
		Date   string         `json:"date"`
		Record map[string]any `json:"record"`
	}
	resp := decode[struct {
		Label    string `json:"recurrence_label"`
		Next     *occ   `json:"next_occurrence"`
		Previous *occ   `json:"previous_occurrence"`
		Upcoming []occ  `json:"upcoming"`
	}](t, rec)

	assert.Equal(t, "Every Tuesday", resp.Label)
	require.NotNil(t, resp.Next)
	assert.Equal(t, "2026-01-13", resp.Next.Date)
	assert.Equal(t, "20:30", resp.Next.Record["start_time"])
	require.NotNil(t, resp.Previous)
	assert.Equal(t, "2026-01-06", resp.Previous.Date)
	assert.Len(t, resp.Upcoming, 3)

	assert.Equal(t, http.StatusNotFound, env.do(t, "GET", "/api/events/404", nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, "GET", "/api/events/abc", nil).Code)
}

func TestSeriesEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, map[string]any{"title": "Mystery", "day_of_week": "Friday"})
	env.create(t, map[string]any{"title": "Jam", "recurrence_rule": "FREQ=WEEKLY;BYDAY=TH"})
	env.create(t, map[string]any{"title": "Open Mic", "recurrence_rule": "FREQ=WEEKLY;BYDAY=TU"})
	env.create(t, map[string]any{"title": "Draft", "recurrence_rule": "FREQ=WEEKLY;BYDAY=MO", "status": "draft"})

	rec := env.do(t, "GET", "/api/series", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[struct {
		Series []struct {
			EventID   int64    `json:"event_id"`
			Label     string   `json:"recurrence_label"`
			Confident bool     `json:"next_occurrence_confident"`
			Upcoming  []string `json:"upcoming_dates"`
			Next      *struct {
				Date string `json:"date"`
			} `json:"next_occurrence"`
		} `json:"series"`
	}](t, rec)

	require.Len(t, resp.Series, 3)
	assert.Equal(t, "Every Tuesday", resp.Series[0].Label)
	assert.Equal(t, "2026-01-13", resp.Series[0].Next.Date)
	assert.Equal(t, "Every Thursday", resp.Series[1].Label)
	assert.Equal(t, "Every Friday (schedule unconfirmed)", resp.Series[2].Label)
	assert.Nil(t, resp.Series[2].Next)
	assert.False(t, resp.Series[2].Confident)
}

func TestSeriesNextOutsideWindowCarriesOverride(t *testing.T) {
	env := newTestEnv(t)
	fair := env.create(t, map[string]any{"title": "Harvest Fair", "event_date": "2025-09-02"})
	gala := env.create(t, map[string]any{"title": "Gala", "event_date": "2027-06-01"})

	for _, path := range []string{
		"/api/events/" + itoa(fair) + "/overrides/2025-09-02",
		"/api/events/" + itoa(gala) + "/overrides/2027-06-01",
	} {
		rec := env.do(t, "PUT", path, map[string]any{"status": "cancelled"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	type seriesJSON struct {
		Series []struct {
			EventID int64 `json:"event_id"`
			Next    *struct {
				Date      string `json:"date"`
				Cancelled bool   `json:"cancelled"`
			} `json:"next_occurrence"`
		} `json:"series"`
	}

	tests := []struct {
		view    string
		eventID int64
		date    string
	}{
		// The past window starts 2025-10-14; the fair's latest date is before it.
		{"past", fair, "2025-09-02"},
		// The gala is more than a year past the upcoming window.
		{"upcoming", gala, "2027-06-01"},
	}
	for _, tt := range tests {
		t.Run(tt.view, func(t *testing.T) {
			rec := env.do(t, "GET", "/api/series?view="+tt.view, nil)
			require.Equal(t, http.StatusOK, rec.Code)
			resp := decode[seriesJSON](t, rec)

			var found bool
			for _, s := range resp.Series {
				if s.EventID != tt.eventID {
					continue
				}
				found = true
				require.NotNil(t, s.Next)
				assert.Equal(t, tt.date, s.Next.Date)
				assert.True(t, s.Next.Cancelled, "override outside the window must still apply")
			}
			assert.True(t, found, "event %d missing from %s series", tt.eventID, tt.view)
		})
	}
}

package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/happenings/internal/backup"
	"github.com/dukerupert/happenings/internal/civil"
	"github.com/dukerupert/happenings/internal/database"
	"github.com/dukerupert/happenings/internal/handler"
	"github.com/dukerupert/happenings/internal/middleware"
	"github.com/dukerupert/happenings/internal/push"
	"github.com/dukerupert/happenings/internal/store"
)

func newTestServer(t *testing.T, writeLimit int) *Server {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cal, err := civil.NewCalendar("America/Denver")
	require.NoError(t, err)

	return New(db, Options{
		Clock: handler.Clock{Calendar: cal, Now: func() time.Time {
			return time.Date(2026, 1, 12, 18, 0, 0, 0, time.UTC)
		}},
		Limits: handler.Limits{
			UpcomingDays: 30, PastDays: 90, MaxPerEvent: 10, MaxTotal: 100, MaxUpcoming: 3, MaxWindowDays: 400,
		},
		WriteRateLimit: writeLimit,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, 0)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "2026-01-12", body["today"])
	assert.Equal(t, float64(4), body["schema_version"])
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
}

func TestRoutes(t *testing.T) {
	srv := newTestServer(t, 0)
	router := srv.Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/api/events",
		bytes.NewBufferString(`{"title":"Open Mic","recurrence_rule":"FREQ=WEEKLY;BYDAY=TU"}`)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	for _, path := range []string{"/api/timeline", "/api/series", "/api/timeline?view=past", "/api/events/1"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("PATCH", "/api/events/1", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestWriteRateLimit(t *testing.T) {
	srv := newTestServer(t, 2)
	router := srv.Router()

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("POST", "/api/events", bytes.NewBufferString(`{"title":"x"}`)))
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusCreated, http.StatusCreated, http.StatusTooManyRequests}, codes)

	// Reads are not limited.
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/timeline", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBackupsRoute(t *testing.T) {
	srv := newTestServer(t, 0)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/api/backups", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code, "route is only mounted with a manager")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mgr := backup.NewManager(backup.Config{}, srv.db, store.NewBackupStore(srv.db), logger)
	srv = New(srv.db, Options{Clock: srv.opts.Clock, Limits: srv.opts.Limits, Backups: mgr}, logger)

	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/api/backups", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"disabled"`)

	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	assert.Contains(t, rec.Body.String(), `"backup":"disabled"`)
}

func TestPushRoutes(t *testing.T) {
	srv := newTestServer(t, 0)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/api/push/vapid-key", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code, "push routes need a notifier")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := push.NewService(push.Config{VAPIDPublicKey: "pub", VAPIDPrivateKey: "priv"})
	n := push.NewNotifier(svc, store.NewPushStore(srv.db), store.NewEventStore(srv.db), store.NewOverrideStore(srv.db),
		srv.opts.Clock.Calendar, logger)
	srv = New(srv.db, Options{Clock: srv.opts.Clock, Limits: srv.opts.Limits, Push: n, VAPIDPublicKey: svc.VAPIDPublicKey()}, logger)

	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/api/push/vapid-key", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"public_key":"pub"`)
}

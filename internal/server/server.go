package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/happenings/internal/backup"
	"github.com/dukerupert/happenings/internal/database"
	"github.com/dukerupert/happenings/internal/handler"
	"github.com/dukerupert/happenings/internal/middleware"
	"github.com/dukerupert/happenings/internal/push"
	"github.com/dukerupert/happenings/internal/store"
	ws "github.com/dukerupert/happenings/internal/websocket"
)

type Options struct {
	Clock          handler.Clock
	Limits         handler.Limits
	AllowedOrigins []string
	// WriteRateLimit is requests per minute per client IP on write routes.
	WriteRateLimit int
	// Backups, when set, exposes backup status and history.
	Backups *backup.Manager
	// Push, when set, mounts the subscription and follow routes and
	// notifies followers of saved overrides.
	Push           *push.Notifier
	VAPIDPublicKey string
}

type Server struct {
	db          *sql.DB
	hub         *ws.Hub
	scheduleH   *handler.ScheduleHandler
	eventH      *handler.EventHandler
	overrideH   *handler.OverrideHandler
	backupH     *handler.BackupHandler
	pushH       *handler.PushHandler
	rateLimiter *middleware.RateLimiter
	opts        Options
	logger      *slog.Logger
}

func New(db *sql.DB, opts Options, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	eventStore := store.NewEventStore(db)
	overrideStore := store.NewOverrideStore(db)

	s := &Server{
		db:          db,
		hub:         hub,
		scheduleH:   handler.NewScheduleHandler(eventStore, overrideStore, opts.Clock, opts.Limits, logger.With("component", "schedule")),
		eventH:      handler.NewEventHandler(eventStore, overrideStore, hub, opts.Clock, opts.Limits, logger.With("component", "event")),
		overrideH:   handler.NewOverrideHandler(eventStore, overrideStore, hub, notifier(opts.Push), logger.With("component", "override")),
		rateLimiter: middleware.NewRateLimiter(),
		opts:        opts,
		logger:      logger,
	}
	if opts.Push != nil {
		s.pushH = handler.NewPushHandler(store.NewPushStore(db), eventStore, opts.VAPIDPublicKey, logger.With("component", "push"))
	}
	if opts.Backups != nil {
		s.backupH = handler.NewBackupHandler(opts.Backups, logger.With("component", "backup"))
	}
	return s
}

// Hub returns the websocket hub for background broadcasters.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)

	mux.HandleFunc("GET /api/timeline", s.scheduleH.Timeline)
	mux.HandleFunc("GET /api/series", s.scheduleH.Series)
	mux.HandleFunc("GET /api/events/{id}", s.eventH.Get)
	mux.HandleFunc("POST /api/events", s.rateLimited(s.eventH.Create))
	mux.HandleFunc("PUT /api/events/{id}/overrides/{date}", s.rateLimited(s.overrideH.Put))
	mux.HandleFunc("DELETE /api/events/{id}/overrides/{date}", s.rateLimited(s.overrideH.Delete))

	if s.pushH != nil {
		mux.HandleFunc("GET /api/push/vapid-key", s.pushH.VAPIDKey)
		mux.HandleFunc("POST /api/push/subscriptions", s.rateLimited(s.pushH.Subscribe))
		mux.HandleFunc("DELETE /api/push/subscriptions", s.rateLimited(s.pushH.Unsubscribe))
		mux.HandleFunc("POST /api/events/{id}/follow", s.rateLimited(s.pushH.Follow))
		mux.HandleFunc("DELETE /api/events/{id}/follow", s.rateLimited(s.pushH.Unfollow))
	}
	if s.backupH != nil {
		mux.HandleFunc("GET /api/backups", s.backupH.List)
	}

	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.opts.AllowedOrigins))

	logged := middleware.RequestLogger(s.logger.With("component", "http"))(mux)
	return middleware.RequestID(logged)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := s.db.PingContext(r.Context()); err != nil {
		s.logger.Error("health check", "error", err)
		status, code = "unavailable", http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	body := map[string]any{
		"status":  status,
		"today":   s.opts.Clock.Today().String(),
		"clients": s.hub.ClientCount(),
	}
	if current, _, err := database.SchemaVersion(r.Context(), s.db); err == nil {
		body["schema_version"] = current
	}
	if s.opts.Backups != nil {
		body["backup"] = s.opts.Backups.Status().State
	}
	json.NewEncoder(w).Encode(body)
}

// notifier keeps a nil *push.Notifier from becoming a non-nil interface.
func notifier(n *push.Notifier) handler.OverrideNotifier {
	if n == nil {
		return nil
	}
	return n
}

func (s *Server) rateLimited(h http.HandlerFunc) http.HandlerFunc {
	limit := s.opts.WriteRateLimit
	if limit <= 0 {
		return h
	}
	return middleware.RateLimit(s.rateLimiter, limit, time.Minute)(h).ServeHTTP
}

package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/dukerupert/happenings/internal/civil"
)

// Limits bounds the windows and result sizes the schedule endpoints accept.
type Limits struct {
	UpcomingDays  int
	PastDays      int
	MaxPerEvent   int
	MaxTotal      int
	MaxUpcoming   int
	MaxWindowDays int
}

// Clock supplies "today" once per request.
type Clock struct {
	Calendar *civil.Calendar
	Now      func() time.Time
}

func (c Clock) Today() civil.Date {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	return c.Calendar.Today(now())
}

func parseIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

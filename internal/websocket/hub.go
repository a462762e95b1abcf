package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/dukerupert/happenings/internal/civil"
)

// Message tells connected pages that some part of the schedule changed and
// which window they should refetch.
type Message struct {
	Type    string         `json:"type"`
	EventID int64          `json:"event_id,omitempty"`
	Date    string         `json:"date,omitempty"`
	Extra   map[string]any `json:"extra,omitempty"`
}

const (
	TypeEventCreated    = "event_created"
	TypeOverrideUpdated = "override_updated"
	TypeOverrideDeleted = "override_deleted"
	TypeDayRollover     = "day_rollover"
	TypeBackupStatus    = "backup_status"
)

// OverrideMessage builds the notification for an override written or
// removed on date.
func OverrideMessage(typ string, eventID int64, date civil.Date, extra map[string]any) Message {
	return Message{Type: typ, EventID: eventID, Date: date.String(), Extra: extra}
}

func EventCreated(eventID int64, label string) Message {
	return Message{Type: TypeEventCreated, EventID: eventID, Extra: map[string]any{"label": label}}
}

// DayRollover announces the new civil date in the reference zone.
func DayRollover(today civil.Date) Message {
	return Message{Type: TypeDayRollover, Date: today.String()}
}

// BackupStatus reports a change in the backup manager's state.
func BackupStatus(state, errMsg string) Message {
	extra := map[string]any{"state": state}
	if errMsg != "" {
		extra["error"] = errMsg
	}
	return Message{Type: TypeBackupStatus, Extra: extra}
}

// Hub maintains the set of active WebSocket clients and broadcasts messages.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	dropped atomic.Int64
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("client connected", "clients", n)
}

// Unregister removes a client from the hub and closes its send channel.
// Calling it twice is safe.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Broadcast sends msg to every connected client. Slow clients whose buffer
// is full miss the message; they catch up on their next refetch.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "type", msg.Type, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.dropped.Add(1)
			h.logger.Debug("dropped message for slow client", "type", msg.Type)
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped reports how many messages were skipped for full client buffers.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

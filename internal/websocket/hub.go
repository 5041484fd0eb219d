// Package websocket relays change-feed events to connected browsers. Each
// client watches a fixed set of users and only receives their changes.
package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/moneyseed/moneyseed/internal/realtime"
)

// relayedTables are forwarded to clients.
var relayedTables = []string{
	realtime.TableMissions,
	realtime.TableTransactions,
	realtime.TableProgress,
	realtime.TableRewards,
	realtime.TableTemplates,
}

// Message is the JSON frame sent to clients. A zero UserID is a system
// message delivered to everyone.
type Message struct {
	Type   string      `json:"type"`
	Table  string      `json:"table,omitempty"`
	Op     realtime.Op `json:"op,omitempty"`
	UserID int64       `json:"user_id,omitempty"`
	ID     int64       `json:"id,omitempty"`
	Row    any         `json:"row,omitempty"`
}

// FromChange converts a feed change into a client frame.
func FromChange(c realtime.Change) Message {
	return Message{
		Type:   fmt.Sprintf("%s_%s", c.Table, c.Op),
		Table:  c.Table,
		Op:     c.Op,
		UserID: c.UserID,
		ID:     c.ID,
		Row:    c.Row,
	}
}

// Hub maintains the set of active clients and routes messages to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

// Attach subscribes the hub to every relayed table of the feed. The returned
// function detaches it.
func (h *Hub) Attach(feed *realtime.Feed) (detach func()) {
	relay := func(c realtime.Change) { h.Send(FromChange(c)) }
	handlers := realtime.Handlers{OnInsert: relay, OnUpdate: relay, OnDelete: relay}

	unsubs := make([]func(), 0, len(relayedTables))
	for _, table := range relayedTables {
		unsubs = append(unsubs, feed.Subscribe(table, realtime.Filter{}, handlers))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Send delivers msg to every client watching msg.UserID.
func (h *Hub) Send(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal message", "type", msg.Type, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if msg.UserID != 0 && !c.watches(msg.UserID) {
			continue
		}
		select {
		case c.send <- data:
		default:
			// Client buffer full, drop rather than block the feed.
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

package server

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shaunagostinho/cdc-bridge/internal/log"
)

// Hub fans frames out to WebSocket clients. It is created before the logger
// so that LogHook can be passed to log.New.
type Hub struct {
	clients   map[*wsClient]struct{}
	clientsMu sync.RWMutex
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Frame is the JSON structure sent to all WebSocket clients. Exactly one of
// Status and Log is set.
type Frame struct {
	Type   string     `json:"type"` // "status" or "log"
	Status *Status    `json:"status,omitempty"`
	Log    *log.Entry `json:"log,omitempty"`
	Stamp  int64      `json:"stamp"` // Unix ms
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*wsClient]struct{})}
}

// LogHook streams a log entry to every client. It never blocks and never
// logs.
func (h *Hub) LogHook(e log.Entry) {
	h.broadcast(Frame{Type: "log", Log: &e, Stamp: e.Time.UnixMilli()})
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

func (h *Hub) add(c *wsClient) int {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	h.clients[c] = struct{}{}
	return len(h.clients)
}

func (h *Hub) remove(c *wsClient) int {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	return len(h.clients)
}

func (h *Hub) broadcast(frame Frame) {
	if frame.Stamp == 0 {
		frame.Stamp = time.Now().UnixMilli()
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}

	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()

	for client := range h.clients {
		select {
		case client.send <- data:
		default:
			// Client too slow, skip
		}
	}
}

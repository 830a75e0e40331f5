package server

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeTimeout = 10 * time.Second
	// sendBuffer bounds the per-client queue. A client that falls this far
	// behind is dropped rather than back-pressuring the broadcast.
	sendBuffer = 16
)

// Hub fans broadcast messages out to connected WebSocket clients. Each
// client gets its own writer goroutine and bounded queue.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]chan []byte
	log     zerolog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]chan []byte),
		log:     logger.With().Str("component", "ws_hub").Logger(),
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast sends a JSON-encoded message to every connected client.
func (h *Hub) Broadcast(v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		h.log.Error().Err(err).Msg("broadcast payload marshal failed")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, send := range h.clients {
		select {
		case send <- payload:
		default:
			// Slow client, disconnect it.
			h.removeLocked(conn)
		}
	}
}

// add registers a connection and starts its writer. The read loop runs in
// the caller's goroutine until the client disconnects.
func (h *Hub) add(conn *websocket.Conn) {
	send := make(chan []byte, sendBuffer)

	h.mu.Lock()
	h.clients[conn] = send
	h.mu.Unlock()

	go h.writeLoop(conn, send)
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(conn)
}

func (h *Hub) removeLocked(conn *websocket.Conn) {
	if send, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		close(send)
		conn.Close()
	}
}

func (h *Hub) writeLoop(conn *websocket.Conn, send <-chan []byte) {
	for payload := range send {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.remove(conn)
			return
		}
	}
}

// readLoop drains client frames until the connection drops. Inbound
// payloads are ignored; the trade stream is one-way.
func (h *Hub) readLoop(conn *websocket.Conn) {
	defer h.remove(conn)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		h.removeLocked(conn)
	}
}

// Package alert implements the display/UI state machine (C13): a
// per-track alert set with expiry and cooldown, the three display-mode
// enum, and a websocket broadcast transport for headless/remote viewing.
package alert

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/gatenet/edge-node/internal/observability"
	"github.com/gatenet/edge-node/pkg/dto"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsClient is one connected alert-stream viewer.
type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub maintains active websocket clients and broadcasts alert events,
// grounded on the FD teacher's internal/api/ws/hub.go register/unregister/
// broadcast pattern.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*wsClient]bool
	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *wsClient
	log        *slog.Logger
}

// NewHub constructs a Hub. Call Run in a goroutine to start its event loop.
func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*wsClient]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		log:        log,
	}
}

// Run drives the hub's event loop until stop is closed.
func (h *Hub) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			observability.WSConnections.Inc()

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			observability.WSConnections.Dec()

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					h.log.Warn("alert ws client buffer full, dropping")
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast marshals and sends an alert event to every connected client.
func (h *Hub) Broadcast(ev dto.AlertEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("marshal alert event", "error", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.log.Warn("alert hub broadcast queue full, dropping event")
	}
}

// HandleWS upgrades an HTTP request to a websocket alert-event stream.
func (h *Hub) HandleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error("alert ws upgrade failed", "error", err)
		return
	}

	client := &wsClient{conn: conn, send: make(chan []byte, 64)}
	h.register <- client

	go client.writePump()
	go client.readPump(h)
}

func (c *wsClient) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *wsClient) readPump(h *Hub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

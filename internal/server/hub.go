package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"paper_ledger/internal/event"
	"paper_ledger/internal/infra"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	streamWriteTimeout = 10 * time.Second
	streamPongWait     = 60 * time.Second
	streamPingInterval = 50 * time.Second // must be shorter than streamPongWait
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// subscriber is one connected stream client.
type subscriber struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub fans applied ledger events out to WebSocket subscribers.
// A subscriber whose buffer is full is dropped rather than slowing the sequencer.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*subscriber
	bufSize int
	metrics *infra.Metrics
}

// NewHub creates a hub with a per-subscriber buffer of bufSize messages.
func NewHub(bufSize int, metrics *infra.Metrics) *Hub {
	if bufSize <= 0 {
		bufSize = 256
	}
	if metrics == nil {
		metrics = infra.GlobalMetrics
	}
	return &Hub{
		clients: make(map[string]*subscriber),
		bufSize: bufSize,
		metrics: metrics,
	}
}

// Broadcast sends ev to every subscriber. It never blocks.
func (h *Hub) Broadcast(ev event.Event) {
	msg, err := json.Marshal(event.Wrap(ev))
	if err != nil {
		slog.Error("Failed to marshal stream event", slog.Any("error", err))
		return
	}

	var slow []*subscriber
	h.mu.RLock()
	for _, c := range h.clients {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		slog.Warn("Dropping slow stream subscriber", slog.String("subscriber", c.id))
		h.remove(c)
	}
}

// Len returns the number of connected subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and streams events until the client goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("WebSocket upgrade failed", slog.Any("error", err))
		return
	}

	c := &subscriber{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, h.bufSize),
	}
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	h.metrics.IncrementSubscribers()
	slog.Info("Stream subscriber connected", slog.String("subscriber", c.id))

	go h.writeLoop(c)
	h.readLoop(c)
}

// remove unregisters c once; closing send stops its write loop.
func (h *Hub) remove(c *subscriber) {
	h.mu.Lock()
	_, ok := h.clients[c.id]
	if ok {
		delete(h.clients, c.id)
		close(c.send)
	}
	h.mu.Unlock()

	if ok {
		h.metrics.DecrementSubscribers()
		slog.Info("Stream subscriber disconnected", slog.String("subscriber", c.id))
	}
}

// readLoop discards client messages and detects disconnects.
func (h *Hub) readLoop(c *subscriber) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(streamPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("Stream read error", slog.String("subscriber", c.id), slog.Any("error", err))
			}
			return
		}
	}
}

func (h *Hub) writeLoop(c *subscriber) {
	ticker := time.NewTicker(streamPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.remove(c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c)
				return
			}
		}
	}
}

// Package stream pushes read-model snapshots to websocket clients.
package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"swarm-gcs/internal/logging"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub fans broadcast messages out to connected websocket clients. Run must
// be running for clients to register.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	mu         sync.Mutex
	count      int
	last       []byte
}

// NewHub creates an idle hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 8),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
	}
}

// Run serves registrations and broadcasts until ctx is done, then closes
// every client.
func (h *Hub) Run(ctx context.Context) {
	log := logging.FromContext(ctx)
	defer close(h.done)
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			if !h.clients[c] {
				h.clients[c] = true
				h.count++
				log.Info("stream client connected", "remote", c.RemoteAddr().String(), "clients", h.count)
				if h.last != nil {
					h.send(c, h.last)
				}
			}
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			h.drop(c)
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.Lock()
			h.last = msg
			for c := range h.clients {
				h.send(c, msg)
			}
			h.mu.Unlock()

		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				h.drop(c)
			}
			h.mu.Unlock()
			return
		}
	}
}

// send writes msg to c, dropping the client on failure. Callers hold mu.
func (h *Hub) send(c *websocket.Conn, msg []byte) {
	c.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
		h.drop(c)
	}
}

// drop closes and forgets c. Callers hold mu.
func (h *Hub) drop(c *websocket.Conn) {
	if !h.clients[c] {
		return
	}
	delete(h.clients, c)
	h.count--
	c.Close()
}

// Broadcast encodes v as JSON and queues it for every client. The newest
// message is also replayed to clients that connect later. When the queue is
// full the message is dropped; the next refresh supersedes it.
func (h *Hub) Broadcast(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- data:
	default:
	}
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// ServeHTTP upgrades the request and registers the connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, "websocket upgrade required", http.StatusBadRequest)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.FromContext(r.Context()).Warn("websocket upgrade failed", "err", err)
		return
	}
	select {
	case h.register <- conn:
	case <-h.done:
		conn.Close()
		return
	}

	// Reads only detect the close; clients send nothing.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				select {
				case h.unregister <- conn:
				case <-h.done:
				}
				return
			}
		}
	}()
}

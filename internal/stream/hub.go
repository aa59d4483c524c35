// Package stream pushes freshly persisted batches to websocket clients.
package stream

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/frost-warsaw/frost/internal/model"
)

const (
	writeWait = 5 * time.Second
	// sendBuffer is how many batches a client may fall behind before it is
	// dropped.
	sendBuffer = 16
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Message is the JSON document sent for every persisted batch.
type Message struct {
	Class   string                   `json:"class"`
	Cycle   int64                    `json:"cycle"`
	Records []*model.VehiclePosition `json:"records"`
}

// client owns one connection. Only its writePump writes to conn.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans batches out to connected clients. Publish never blocks on the
// network: each client has its own writer, and a client whose buffer is full
// is dropped.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	logger  *log.Logger
}

// NewHub returns an empty hub. A nil logger uses the standard logger.
func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{
		clients: make(map[*client]struct{}),
		logger:  logger,
	}
}

// ServeWS upgrades the request and registers the connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("stream: upgrade error: %v", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	h.add(c)
	go h.writePump(c)
	go h.readPump(c)
}

// ObserveBatch implements collector.BatchObserver.
func (h *Hub) ObserveBatch(batch model.PollBatch) {
	h.Publish(batch)
}

// Publish queues batch for every client. Records the store ignored as
// duplicates carry no id and are left out.
func (h *Hub) Publish(batch model.PollBatch) {
	msg := Message{
		Class:   batch.Class.String(),
		Cycle:   batch.Cycle,
		Records: make([]*model.VehiclePosition, 0, len(batch.Records)),
	}
	for _, rec := range batch.Records {
		if rec.ID != 0 {
			msg.Records = append(msg.Records, rec)
		}
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Printf("stream: encode batch: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Printf("stream: WARN dropping client %d batches behind", sendBuffer)
			h.dropLocked(c)
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.dropLocked(c)
	}
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	h.dropLocked(c)
	h.mu.Unlock()
}

// dropLocked unregisters c and closes its queue, which tells its writePump
// to say goodbye and close the connection. h.mu must be held.
func (h *Hub) dropLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

// writePump sends queued batches until the queue is closed or a write fails.
func (h *Hub) writePump(c *client) {
	defer c.conn.Close()
	for data := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.remove(c)
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
		time.Now().Add(time.Second))
}

// readPump drains client frames so close messages are noticed.
func (h *Hub) readPump(c *client) {
	defer h.remove(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

package events

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"unibox/internal/constants"
	"unibox/internal/metrics"
	"unibox/internal/models"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxInboundSize = 512
)

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans events out to every connected WebSocket client. Clients that
// cannot keep up are dropped rather than allowed to stall the stream.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	bufferSize int
	logger     *logrus.Logger
	upgrader   websocket.Upgrader
}

// NewHub creates the fanout hub. bufferSize is the per-client send queue;
// zero selects the default.
func NewHub(bufferSize int, logger *logrus.Logger) *Hub {
	if bufferSize <= 0 {
		bufferSize = constants.DefaultEventBufferSize
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Hub{
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, 256),
		bufferSize: bufferSize,
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Run owns the client set. It returns when ctx is cancelled, closing every
// client's send queue on the way out.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.updateClientGauge()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			count := len(h.clients)
			h.mu.Unlock()
			h.updateClientGauge()
			h.logger.WithField("clients", count).Debug("Event stream client connected")

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.updateClientGauge()
			h.logger.WithField("clients", count).Debug("Event stream client disconnected")

		case data := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- data:
				default:
					// Slow consumer: drop it rather than stall the stream.
					delete(h.clients, c)
					close(c.send)
					metrics.IncrementCounter("event_stream_evictions_total", nil, "Clients dropped for not keeping up")
				}
			}
			h.mu.Unlock()
			h.updateClientGauge()
		}
	}
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) updateClientGauge() {
	metrics.SetGauge("event_stream_clients", float64(h.ClientCount()), nil, "Connected event stream clients")
}

// ServeHTTP upgrades the request and attaches the connection to the hub.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Failed to upgrade event stream connection")
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, h.bufferSize),
	}
	h.register <- c

	go h.writePump(c)
	go h.readPump(c)
}

// readPump drains inbound frames. The stream is one-way; reads exist only
// to process control frames and detect the peer going away.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxInboundSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.WithError(err).Debug("Event stream read error")
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// MessageIngested publishes a frame for a newly stored message.
func (h *Hub) MessageIngested(msg *models.Message, channelName string) {
	h.publish(Frame{
		EventID:        newEventID(),
		Type:           TypeMessageIngested,
		ConversationID: msg.ConversationID,
		MessageID:      msg.ID,
		Channel:        channelName,
		Direction:      msg.Direction,
		Timestamp:      msg.Timestamp,
	})
}

// ConversationCategorized publishes a frame for a category change.
func (h *Hub) ConversationCategorized(conversationID int64, category models.Category) {
	h.publish(Frame{
		EventID:        newEventID(),
		Type:           TypeConversationCategorized,
		ConversationID: conversationID,
		Category:       category,
		Timestamp:      time.Now().UTC(),
	})
}

// publish never blocks: ingestion latency must not depend on the event
// stream. Frames are dropped when the broadcast queue is full.
func (h *Hub) publish(frame Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal event frame")
		return
	}

	select {
	case h.broadcast <- data:
	default:
		metrics.IncrementCounter("event_stream_dropped_total", nil, "Frames dropped because the broadcast queue was full")
		h.logger.Warn("Event stream broadcast queue full, frame dropped")
	}
}

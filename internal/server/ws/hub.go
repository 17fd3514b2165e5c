// Package ws bridges the transient event path to websocket clients: every
// lifecycle event published on the per-order Redis channels is fanned out to
// connected clients, filtered by the order ids each client watches.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/swapd/internal/domain"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize caps incoming control messages.
	maxMessageSize = 4096

	// sendBufferSize is the per-client outgoing buffer.
	sendBufferSize = 256
)

// upgrader configures the WebSocket upgrade parameters.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins. In production, restrict this to known origins.
		return true
	},
}

// client is a single websocket connection. orders is the set of order ids the
// client watches; empty means watch everything.
type client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	orders map[string]bool
	mu     sync.RWMutex
}

// watchMsg is the JSON control message a client sends to narrow or widen the
// set of orders it receives events for.
type watchMsg struct {
	Watch   []string `json:"watch"`
	Unwatch []string `json:"unwatch"`
}

// eventEnvelope mirrors the wire format the transient event bus publishes.
// Only the order id is needed for routing; the rest is forwarded untouched.
type eventEnvelope struct {
	OrderID string `json:"order_id"`
}

// Hub manages connected websocket clients and broadcasts lifecycle events
// from the transient bus to clients watching the relevant order.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan broadcastMsg
	register   chan *client
	unregister chan *client
	bus        domain.SignalBus
	pattern    string
	mu         sync.RWMutex
	logger     *slog.Logger
	startedAt  time.Time
}

// broadcastMsg carries one event payload with the order id it belongs to.
type broadcastMsg struct {
	orderID string
	data    []byte
}

// NewHub creates a Hub that subscribes to the given channel pattern on the
// bus (typically the all-orders pattern) and relays matching messages.
func NewHub(bus domain.SignalBus, pattern string, logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan broadcastMsg, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		bus:        bus,
		pattern:    pattern,
		logger:     logger.With(slog.String("component", "ws")),
		startedAt:  time.Now().UTC(),
	}
}

// Run is the hub's main loop: client registration, unregistration, and event
// broadcasting. It exits when the context is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	go h.subscribe(ctx)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.logger.Info("client connected",
				slog.Int("total_clients", h.clientCount()),
			)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.logger.Info("client disconnected",
				slog.Int("total_clients", h.clientCount()),
			)

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				if !c.watches(msg.orderID) {
					continue
				}
				select {
				case c.send <- msg.data:
				default:
					// Send buffer full; transient events are droppable.
					h.logger.Warn("dropping event for slow client",
						slog.String("order_id", msg.orderID),
					)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// subscribe consumes the bus subscription and feeds the broadcast loop. The
// order id is parsed out of the envelope so routing never depends on channel
// names.
func (h *Hub) subscribe(ctx context.Context) {
	msgCh, err := h.bus.Subscribe(ctx, h.pattern)
	if err != nil {
		h.logger.Error("subscribe failed",
			slog.String("pattern", h.pattern),
			slog.String("error", err.Error()),
		)
		return
	}

	h.logger.Info("subscribed", slog.String("pattern", h.pattern))

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgCh:
			if !ok {
				h.logger.Warn("subscription closed",
					slog.String("pattern", h.pattern),
				)
				return
			}

			var env eventEnvelope
			if err := json.Unmarshal(data, &env); err != nil || env.OrderID == "" {
				continue
			}
			h.broadcast <- broadcastMsg{orderID: env.OrderID, data: data}
		}
	}
}

// HandleWS upgrades the request and registers the client. An optional
// ?order_id=a,b query narrows the watch set from the start.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		orders: make(map[string]bool),
	}

	if ids := r.URL.Query().Get("order_id"); ids != "" {
		for _, id := range strings.Split(ids, ",") {
			if id = strings.TrimSpace(id); id != "" {
				c.orders[id] = true
			}
		}
	}

	h.register <- c
	c.sendWelcome()

	go c.writePump()
	go c.readPump()
}

// clientCount returns the number of currently connected clients.
func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// watches reports whether the client should receive events for the order.
// An empty watch set means everything.
func (c *client) watches(orderID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.orders) == 0 || c.orders[orderID]
}

// readPump consumes watch/unwatch control messages until the connection
// drops.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("unexpected close error",
					slog.String("error", err.Error()),
				)
			}
			return
		}

		var msg watchMsg
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		c.updateWatch(msg)
	}
}

// updateWatch applies a watch/unwatch control message.
func (c *client) updateWatch(msg watchMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range msg.Watch {
		if id = strings.TrimSpace(id); id != "" {
			c.orders[id] = true
		}
	}
	for _, id := range msg.Unwatch {
		delete(c.orders, strings.TrimSpace(id))
	}
}

// sendWelcome pushes a small envelope so clients can mark the connection
// healthy before any order events flow.
func (c *client) sendWelcome() {
	uptime := int64(time.Since(c.hub.startedAt).Seconds())
	if uptime < 0 {
		uptime = 0
	}

	msg, err := json.Marshal(map[string]any{
		"type": "connected",
		"payload": map[string]any{
			"uptime_seconds": uptime,
		},
	})
	if err != nil {
		return
	}

	select {
	case c.send <- msg:
	default:
	}
}

// writePump forwards hub messages as text frames and sends periodic pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

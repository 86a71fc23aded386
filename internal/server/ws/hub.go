// Package ws implements the dashboard WebSocket hub. Browser clients connect
// to /ws, subscribe to tickers, and receive live price snapshots, arbitrage
// opportunity updates, and adapter status changes.
package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MaksymDeneka/arbitrage-hub/internal/domain"
	"github.com/MaksymDeneka/arbitrage-hub/internal/manager"
	"github.com/MaksymDeneka/arbitrage-hub/internal/pricestore"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum size of an incoming message.
	maxMessageSize = 1024

	// sendBufferSize is the channel buffer for outgoing messages per client.
	sendBufferSize = 256
)

// upgrader configures the WebSocket upgrade parameters.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The CORS policy is enforced by the HTTP middleware; the hub
		// accepts whatever made it through.
		return true
	},
}

// client represents a single WebSocket connection.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	subs   map[string]bool // subscribed tickers
	closed bool            // send is closed; no further writes allowed
}

// clientCommand is the JSON message a client sends to manage subscriptions.
type clientCommand struct {
	Action string `json:"action"` // "subscribe" | "unsubscribe"
	Ticker string `json:"ticker"`
}

// event is the JSON envelope of every outbound hub message.
type event struct {
	Type   string `json:"type"`
	Ticker string `json:"ticker,omitempty"`
	Data   any    `json:"data,omitempty"`
}

// Hub fans price-store and manager events out to WebSocket clients.
type Hub struct {
	store   *pricestore.Store
	manager *manager.Manager
	logger  *slog.Logger

	mu      sync.Mutex
	clients map[*client]bool
	// tickerSubs tracks, per ticker, the store unsubscribe handle shared
	// by all clients watching that ticker.
	tickerSubs map[string]func()

	unsubStatus func()
}

// NewHub creates a hub and attaches it to the manager's status stream.
func NewHub(store *pricestore.Store, m *manager.Manager, logger *slog.Logger) *Hub {
	h := &Hub{
		store:      store,
		manager:    m,
		logger:     logger.With(slog.String("component", "ws_hub")),
		clients:    make(map[*client]bool),
		tickerSubs: make(map[string]func()),
	}
	h.unsubStatus = m.OnStatusUpdate(h.broadcastStatus)
	return h
}

// Close detaches the hub from the manager and drops every client.
func (h *Hub) Close() {
	if h.unsubStatus != nil {
		h.unsubStatus()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.closeSend()
		delete(h.clients, c)
	}
	for ticker, unsub := range h.tickerSubs {
		unsub()
		delete(h.tickerSubs, ticker)
	}
}

// HandleWS upgrades the HTTP request and runs the client pumps.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		subs: make(map[string]bool),
	}

	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()

	go c.writePump()
	go c.readPump()
}

// broadcastOpportunities pushes an opportunity-set change to every client
// subscribed to the ticker.
func (h *Hub) broadcastOpportunities(ticker string, opps []domain.ArbitrageOpportunity) {
	h.broadcast(ticker, event{Type: "opportunities", Ticker: ticker, Data: opps})
}

// broadcastStatus pushes an adapter status change to the ticker's watchers.
func (h *Hub) broadcastStatus(update domain.StatusUpdate) {
	h.broadcast(update.Ticker, event{Type: "status", Ticker: update.Ticker, Data: update})
}

func (h *Hub) broadcast(ticker string, ev event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if !c.subscribed(ticker) {
			continue
		}
		// Slow consumers lose the message, never the connection: only
		// dropClient and Close may close the send channel.
		c.trySend(payload)
	}
}

// subscribeTicker registers the shared store subscription for a ticker when
// its first watcher arrives.
func (h *Hub) subscribeTicker(ticker string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.tickerSubs[ticker]; ok {
		return
	}
	h.tickerSubs[ticker] = h.store.Subscribe(ticker, h.broadcastOpportunities)
}

// maybeDropTicker removes the shared store subscription once no client
// watches the ticker anymore.
func (h *Hub) maybeDropTicker(ticker string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.subscribed(ticker) {
			return
		}
	}
	if unsub, ok := h.tickerSubs[ticker]; ok {
		unsub()
		delete(h.tickerSubs, ticker)
	}
}

func (h *Hub) dropClient(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		c.closeSend()
		delete(h.clients, c)
	}
	h.mu.Unlock()

	c.mu.RLock()
	tickers := make([]string, 0, len(c.subs))
	for t := range c.subs {
		tickers = append(tickers, t)
	}
	c.mu.RUnlock()
	for _, t := range tickers {
		h.maybeDropTicker(t)
	}
}

func (c *client) subscribed(ticker string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subs[ticker]
}

// trySend queues a payload unless the client is closed or its buffer is
// full. Sending on a closed channel panics even under select, so every write
// checks the closed flag under the same lock closeSend holds.
func (c *client) trySend(payload []byte) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.send <- payload:
	default:
	}
}

// closeSend marks the client closed and closes its send channel exactly
// once. Safe to call more than once.
func (c *client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// readPump consumes subscription commands until the client goes away.
func (c *client) readPump() {
	defer func() {
		c.hub.dropClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd clientCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			continue
		}
		ticker := domain.NormalizeTicker(cmd.Ticker)
		if ticker == "" {
			continue
		}

		switch cmd.Action {
		case "subscribe":
			c.mu.Lock()
			c.subs[ticker] = true
			c.mu.Unlock()
			c.hub.subscribeTicker(ticker)
			c.sendSnapshot(ticker)
		case "unsubscribe":
			c.mu.Lock()
			delete(c.subs, ticker)
			c.mu.Unlock()
			c.hub.maybeDropTicker(ticker)
		}
	}
}

// sendSnapshot queues the current prices and opportunities for a freshly
// subscribed ticker.
func (c *client) sendSnapshot(ticker string) {
	payload, err := json.Marshal(event{
		Type:   "snapshot",
		Ticker: ticker,
		Data: map[string]any{
			"prices":        c.hub.store.GetPrices(ticker),
			"opportunities": c.hub.store.GetOpportunities(ticker),
		},
	})
	if err != nil {
		return
	}
	c.trySend(payload)
}

// writePump flushes outbound messages and keeps the connection alive.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
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

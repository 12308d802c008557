package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"TanssiDashboard/internal/log"
	"TanssiDashboard/internal/store"
)

// Acquirer registers a viewer of a network and returns its current
// snapshot. An empty name selects the default network.
type Acquirer func(network string) (store.Snapshot, error)

// Releaser drops a viewer registered by an Acquirer.
type Releaser func(network string)

// Encoder turns a snapshot into the message pushed to browsers.
type Encoder func(snap store.Snapshot) ([]byte, error)

type client struct {
	id      string
	network string
	conn    *websocket.Conn
	send    chan []byte

	// network acquired for this client, owned by its read pump
	watching string
}

type message struct {
	network string
	data    []byte
}

// direct targets one client and optionally moves it to another network.
type direct struct {
	c       *client
	network string
	data    []byte
}

type switchRequest struct {
	Network string `json:"network"`
}

// Hub pushes snapshots to websocket clients watching the same network.
type Hub struct {
	Acquire Acquirer
	Release Releaser
	Encode  Encoder

	mu         sync.RWMutex
	clients    map[*client]bool
	broadcast  chan message
	direct     chan direct
	register   chan *client
	unregister chan *client
	done       chan struct{}
	upgrader   websocket.Upgrader
}

func New(allowedOrigins []string, encode Encoder) *Hub {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}

	return &Hub{
		Encode:     encode,
		clients:    make(map[*client]bool),
		broadcast:  make(chan message, 256),
		direct:     make(chan direct, 64),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || allowed["*"] || allowed[origin] {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Host == r.Host {
					return true
				}
				host := u.Hostname()
				return host == "localhost" || host == "127.0.0.1" || host == "::1"
			},
		},
	}
}

// Run serves registrations and deliveries until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
		case d := <-h.direct:
			h.mu.Lock()
			if _, ok := h.clients[d.c]; ok {
				if d.network != "" {
					d.c.network = d.network
				}
				h.deliver(d.c, d.data)
			}
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				if c.network == msg.network {
					h.deliver(c, msg.data)
				}
			}
			h.mu.Unlock()
		}
	}
}

// deliver drops clients that cannot keep up. Callers hold h.mu.
func (h *Hub) deliver(c *client, data []byte) {
	select {
	case c.send <- data:
	default:
		hubLog().Warn().Str("client", c.id).Msg("client too slow, dropping")
		close(c.send)
		delete(h.clients, c)
	}
}

// Publish implements the aggregator's publisher. It never blocks.
func (h *Hub) Publish(snap store.Snapshot) {
	data, err := h.encode(snap)
	if err != nil {
		hubLog().Error().Err(err).Str("network", snap.Network).Msg("encode snapshot")
		return
	}
	select {
	case h.broadcast <- message{network: snap.Network, data: data}:
	default:
		hubLog().Warn().Str("network", snap.Network).Msg("broadcast queue full, dropping snapshot")
	}
}

// Clients counts connected clients per network.
func (h *Hub) Clients() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := map[string]int{}
	for c := range h.clients {
		out[c.network]++
	}
	return out
}

func (h *Hub) HandleConnect(w http.ResponseWriter, r *http.Request) {
	snap, err := h.acquire(r.URL.Query().Get("network"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.release(snap.Network)
		hubLog().Warn().Err(err).Msg("ws upgrade")
		return
	}

	c := &client{id: uuid.NewString(), network: snap.Network, watching: snap.Network, conn: conn, send: make(chan []byte, 64)}
	select {
	case h.register <- c:
	case <-h.done:
		h.release(snap.Network)
		conn.Close()
		return
	}
	hubLog().Debug().Str("client", c.id).Str("network", c.network).Msg("ws client connected")
	h.sendTo(c, "", snap)

	go c.writePump()
	go c.readPump(h)
}

func (h *Hub) sendTo(c *client, network string, snap store.Snapshot) {
	data, err := h.encode(snap)
	if err != nil {
		hubLog().Error().Err(err).Str("client", c.id).Msg("encode snapshot")
		return
	}
	h.queue(direct{c: c, network: network, data: data})
}

func (h *Hub) switchNetwork(c *client, raw []byte) {
	var req switchRequest
	if err := json.Unmarshal(raw, &req); err != nil || req.Network == "" {
		h.queue(direct{c: c, data: errorMessage(`expected {"network":"<name>"}`)})
		return
	}
	snap, err := h.acquire(req.Network)
	if err != nil {
		h.queue(direct{c: c, data: errorMessage(err.Error())})
		return
	}
	previous := c.watching
	c.watching = snap.Network
	h.release(previous)
	h.sendTo(c, snap.Network, snap)
}

func (h *Hub) queue(d direct) {
	select {
	case h.direct <- d:
	case <-h.done:
	}
}

func (h *Hub) acquire(network string) (store.Snapshot, error) {
	if h.Acquire == nil {
		return store.Snapshot{Network: network}, nil
	}
	return h.Acquire(network)
}

func (h *Hub) release(network string) {
	if h.Release != nil {
		h.Release(network)
	}
}

func (h *Hub) encode(snap store.Snapshot) ([]byte, error) {
	if h.Encode == nil {
		return json.Marshal(snap)
	}
	return h.Encode(snap)
}

func hubLog() *zerolog.Logger {
	l := log.Component("hub")
	return &l
}

func errorMessage(msg string) []byte {
	data, _ := json.Marshal(map[string]string{"error": msg})
	return data
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		h.release(c.watching)
		c.conn.Close()
	}()
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		h.switchNetwork(c, msg)
	}
}

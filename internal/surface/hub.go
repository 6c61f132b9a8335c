package surface

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/treeremote/internal/eventbus"
)

// clientBuffer is how many envelopes a slow client may lag behind before
// it is dropped.
const clientBuffer = 16

// Envelope is one WebSocket message.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type client struct {
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub fans view, notice and command events out to connected WebSocket clients.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

// Handle is an eventbus.Handler for view, notice and command events.
func (h *Hub) Handle(event eventbus.Event) {
	switch event.Type {
	case eventbus.EventTypeView, eventbus.EventTypeNotice, eventbus.EventTypeCommand:
		h.Broadcast(Envelope{Type: string(event.Type), Data: event.Data})
	}
}

// Broadcast sends env to every client. Clients whose buffer is full are
// disconnected.
func (h *Hub) Broadcast(env Envelope) {
	msg, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Str("type", env.Type).Msg("Failed to encode websocket envelope")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			log.Warn().Msg("WebSocket client too slow, disconnecting")
			delete(h.clients, c)
			c.close()
		}
	}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects all clients and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}

func (h *Hub) register() (*client, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, false
	}
	c := &client{send: make(chan []byte, clientBuffer)}
	h.clients[c] = struct{}{}
	return c, true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
}

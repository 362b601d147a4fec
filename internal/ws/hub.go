package ws

import "sync"

// Hub indexes the live clients owned by this process, keyed by connection
// id. Cross-process membership and presence never live here; the shared
// state store is the source of truth for those, and the hub only resolves
// connection ids it owns into sockets at delivery time.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

// Add registers a client under its connection id.
func (h *Hub) Add(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.Conn.ID] = client
}

// Remove drops a client. No-op if the id is unknown.
func (h *Hub) Remove(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, connID)
}

// Get resolves a connection id to its client, if this process owns it.
func (h *Hub) Get(connID string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	client, ok := h.clients[connID]
	return client, ok
}

// Count reports how many clients this process owns.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Each calls fn for every client. fn must not block.
func (h *Hub) Each(fn func(*Client)) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		fn(client)
	}
}

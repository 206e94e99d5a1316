package room

import (
	"sync"

	"presentsync/internal/presentation"
)

// ClientRole is how a network connection participates in a room.
type ClientRole string

const (
	// RoleViewer is a remote viewer receiving broadcasts.
	RoleViewer ClientRole = "viewer"
	// RoleOperator is the operator console's socket.
	RoleOperator ClientRole = "operator"
	// RoleBridge is a protocol-bridge connection relaying to another
	// transport.
	RoleBridge ClientRole = "bridge"
)

// Client is one network connection attached to a room.
type Client struct {
	ID       string
	RoomCode string
	Role     ClientRole
	Send     chan presentation.Event

	// counted tracks whether this connection incremented the persisted
	// viewer counter, so leave can decrement exactly once even for
	// connections that never fully joined.
	counted bool

	// leaveOnce makes disconnect cleanup idempotent no matter how many
	// paths (read pump error, hub drop, explicit leave) report it.
	leaveOnce sync.Once
}

// broadcast pairs an event with its destination room.
type broadcast struct {
	RoomCode string
	Event    presentation.Event
}

// Hub owns per-room connection membership. All broadcasts flow through a
// single run loop, so members of one room receive events in the order the
// operator issued them. Each Hub instance owns its registry.
type Hub struct {
	mu        sync.RWMutex
	rooms     map[string]map[*Client]bool
	Broadcast chan broadcast
	done      chan struct{}
}

// NewHub returns an empty hub. Call Run in its own goroutine.
func NewHub() *Hub {
	return &Hub{
		rooms:     make(map[string]map[*Client]bool),
		Broadcast: make(chan broadcast, 64),
		done:      make(chan struct{}),
	}
}

// Run drains the broadcast channel until Stop is called. Slow consumers
// whose send buffer is full are dropped rather than allowed to stall the
// rest of the room.
func (h *Hub) Run() {
	for {
		select {
		case msg := <-h.Broadcast:
			h.mu.Lock()
			for client := range h.rooms[msg.RoomCode] {
				select {
				case client.Send <- msg.Event:
				default:
					delete(h.rooms[msg.RoomCode], client)
					close(client.Send)
				}
			}
			h.mu.Unlock()
		case <-h.done:
			return
		}
	}
}

// Stop terminates the run loop.
func (h *Hub) Stop() {
	close(h.done)
}

// Add registers a client as a member of its room.
func (h *Hub) Add(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[client.RoomCode] == nil {
		h.rooms[client.RoomCode] = make(map[*Client]bool)
	}
	h.rooms[client.RoomCode][client] = true
}

// Remove unregisters a client from every piece of membership bookkeeping.
// It is idempotent; the second and later calls are no-ops. Returns whether
// the client was still a member.
func (h *Hub) Remove(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[client.RoomCode]
	if !ok || !members[client] {
		return false
	}
	delete(members, client)
	close(client.Send)
	if len(members) == 0 {
		delete(h.rooms, client.RoomCode)
	}
	return true
}

// BroadcastToRoom queues an event for every member of the room.
func (h *Hub) BroadcastToRoom(code string, ev presentation.Event) {
	h.Broadcast <- broadcast{RoomCode: code, Event: ev}
}

// SendTo queues an event for a single client (snapshot replies). A client
// with a full buffer is skipped; its read pump will notice the stall and
// tear the connection down.
func (h *Hub) SendTo(client *Client, ev presentation.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.rooms[client.RoomCode][client] {
		return
	}
	select {
	case client.Send <- ev:
	default:
	}
}

// Count returns the number of connections currently attached to a room.
func (h *Hub) Count(code string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[code])
}

// TotalConnections returns the number of connections across all rooms.
// Used for metrics.
func (h *Hub) TotalConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, members := range h.rooms {
		n += len(members)
	}
	return n
}

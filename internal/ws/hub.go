package ws

import (
	"context"
	"log"
	"sync"

	"messaging-service/internal/models"
	"messaging-service/internal/observability"
)

// Bridge fans room events out to other service instances.
type Bridge interface {
	Publish(ctx context.Context, ev models.RoomEvent) error
}

// Hub tracks which clients are joined to which conversation room and
// routes room events to them.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[int]map[*Client]bool
	bridge Bridge
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[int]map[*Client]bool)}
}

// SetBridge installs a cross-instance distribution bridge. Without one,
// events only reach clients connected to this process.
func (h *Hub) SetBridge(bridge Bridge) {
	h.bridge = bridge
}

// Join adds a client to its conversation room.
func (h *Hub) Join(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[c.ConversationID]
	if !ok {
		room = make(map[*Client]bool)
		h.rooms[c.ConversationID] = room
	}
	room[c] = true
}

// Leave removes a client from its room, dropping the room when empty.
func (h *Hub) Leave(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[c.ConversationID]
	if !ok {
		return
	}
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, c.ConversationID)
	}
}

// Publish distributes a room event. With a bridge installed the event
// travels through it so every instance, including this one, delivers it.
func (h *Hub) Publish(ctx context.Context, ev models.RoomEvent) {
	observability.IncRoomEvent(ev.Kind)

	if h.bridge != nil {
		if err := h.bridge.Publish(ctx, ev); err == nil {
			return
		} else {
			log.Printf("hub: bridge publish failed, delivering locally: %v", err)
		}
	}
	h.DeliverLocal(ev)
}

// DeliverLocal hands the event to every client of the room connected to
// this process.
func (h *Hub) DeliverLocal(ev models.RoomEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.rooms[ev.ConversationID] {
		c.Deliver(ev)
	}
}

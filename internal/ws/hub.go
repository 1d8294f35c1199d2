// Package ws carries the duplex channel: one coder/websocket connection per
// client, a per-connection write queue, and lobby-code rooms for broadcast.
package ws

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/SiMista/Onskone-sub000/pkg/types"
)

type client struct {
	id  string
	out chan []byte
}

// Hub tracks live connections and their room membership. It implements
// session.Messenger.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client
	rooms   map[string]map[string]bool // code -> conn ids
	log     *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*client),
		rooms:   make(map[string]map[string]bool),
		log:     log,
	}
}

const outboxSize = 32

// register adds a connection and returns its outbox channel.
func (h *Hub) register(connID string) <-chan []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	cl := &client{id: connID, out: make(chan []byte, outboxSize)}
	h.clients[connID] = cl
	return cl.out
}

// unregister drops a connection from every room and closes its outbox.
func (h *Hub) unregister(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	cl, ok := h.clients[connID]
	if !ok {
		return
	}
	delete(h.clients, connID)
	for code, members := range h.rooms {
		delete(members, connID)
		if len(members) == 0 {
			delete(h.rooms, code)
		}
	}
	close(cl.out)
}

func encode(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(types.Envelope{Event: event, Data: data})
}

// Send queues one message for a single connection. Unknown connections are
// dropped silently: the target may have just disconnected.
func (h *Hub) Send(connID, event string, payload any) {
	frame, err := encode(event, payload)
	if err != nil {
		h.log.Error("encode outbound message", zap.String("event", event), zap.Error(err))
		return
	}
	// the lock must cover the send: unregister closes the outbox under the
	// write lock, and a send racing that close would panic
	h.mu.RLock()
	defer h.mu.RUnlock()
	cl, ok := h.clients[connID]
	if !ok {
		return
	}
	select {
	case cl.out <- frame:
	default:
		h.log.Warn("send queue full, dropping message",
			zap.String("conn", connID), zap.String("event", event))
	}
}

// Broadcast queues one message for every connection in a lobby's room.
func (h *Hub) Broadcast(code, event string, payload any) {
	frame, err := encode(event, payload)
	if err != nil {
		h.log.Error("encode broadcast", zap.String("event", event), zap.Error(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for connID := range h.rooms[code] {
		cl, ok := h.clients[connID]
		if !ok {
			continue
		}
		select {
		case cl.out <- frame:
		default:
			h.log.Warn("broadcast queue full, dropping message",
				zap.String("conn", connID), zap.String("event", event))
		}
	}
}

// Join subscribes a connection to a lobby's broadcast group.
func (h *Hub) Join(connID, code string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[code] == nil {
		h.rooms[code] = make(map[string]bool)
	}
	h.rooms[code][connID] = true
}

// Leave unsubscribes a connection from a room.
func (h *Hub) Leave(connID, code string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.rooms[code]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(h.rooms, code)
		}
	}
}

// CloseRoom drops a room entirely; connections stay open.
func (h *Hub) CloseRoom(code string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.rooms, code)
}

// RoomSize reports a room's membership. Test hook.
func (h *Hub) RoomSize(code string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[code])
}

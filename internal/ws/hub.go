// Package ws is the websocket transport: a broadcast hub for the public
// feed plus per-user delivery for chat and notifications.
package ws

import (
	"fmt"
	"sync"
)

// Hub maintains the set of connected clients. The feed channel fans out to
// everyone; directed sends go to every connection a user has open.
type Hub struct {
	// Broadcast fans a payload out to all connected clients.
	Broadcast chan []byte

	register   chan *Client
	unregister chan *Client

	mu      sync.RWMutex
	clients map[*Client]bool
	byUser  map[int64]map[*Client]bool
}

// NewHub returns a hub ready for Run.
func NewHub() *Hub {
	return &Hub{
		Broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		byUser:     make(map[int64]map[*Client]bool),
	}
}

// Run owns the client set. Call it in its own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			if client.userID != 0 {
				if h.byUser[client.userID] == nil {
					h.byUser[client.userID] = make(map[*Client]bool)
				}
				h.byUser[client.userID][client] = true
			}
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				if conns := h.byUser[client.userID]; conns != nil {
					delete(conns, client)
					if len(conns) == 0 {
						delete(h.byUser, client.userID)
					}
				}
				close(client.send)
			}
			h.mu.Unlock()

		case message := <-h.Broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow consumer; drop the frame rather than stall
					// the hub.
				}
			}
			h.mu.RUnlock()
		}
	}
}

// SendToUser delivers a payload to every open connection of a user. It
// fails when the user has no connection, so callers can retry or fall back
// to a stored notification.
func (h *Hub) SendToUser(userID int64, payload []byte) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns := h.byUser[userID]
	if len(conns) == 0 {
		return fmt.Errorf("user %d has no active connection", userID)
	}
	for client := range conns {
		select {
		case client.send <- payload:
		default:
		}
	}
	return nil
}

// Connected reports whether the user has at least one open connection.
func (h *Hub) Connected(userID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byUser[userID]) > 0
}

package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"card-room-server/game"
	"card-room-server/round"
	"card-room-server/wsutil"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allow all origins for development; restrict in production.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// RoomService is what the Hub needs from the room manager.
type RoomService interface {
	CreateRoom(ctx context.Context, connID string, mode, maxBoosts, decks int) (*round.Room, error)
	Dispatch(ctx context.Context, roomID string, a game.Action) error
}

// Hub maintains the set of active clients and their room membership, and
// delivers room events to them. It implements game.Delivery.
type Hub struct {
	Register   chan *Client
	Unregister chan *Client
	Rooms      RoomService

	mu      sync.RWMutex
	clients map[string]*Client
	members map[string]map[string]struct{} // room -> connection ids
}

// NewHub creates a new Hub. Set Rooms before serving connections.
func NewHub() *Hub {
	return &Hub{
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[string]*Client),
		members:    make(map[string]map[string]struct{}),
	}
}

// Run starts the hub's main loop. Should be run as a goroutine.
// When ctx is cancelled (e.g. on server shutdown), Run returns and no longer accepts new registrations.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			slog.Info("shutdown signal received, stopping", "tag", "ws")
			return
		case client := <-h.Register:
			h.add(client)
		case client := <-h.Unregister:
			h.remove(client)
		}
	}
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	total := len(h.clients)
	h.mu.Unlock()
	slog.Info("client connected", "tag", "ws", "conn", c.ID, "total", total)
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.ID)
	room := c.roomID
	h.leaveLocked(c)
	close(c.Send)
	total := len(h.clients)
	h.mu.Unlock()
	slog.Info("client disconnected", "tag", "ws", "conn", c.ID, "room", room, "total", total)
}

// Join moves c into roomID's broadcast group, leaving any previous room.
func (h *Hub) Join(c *Client, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c)
	if h.members[roomID] == nil {
		h.members[roomID] = make(map[string]struct{})
	}
	h.members[roomID][c.ID] = struct{}{}
	c.roomID = roomID
}

// Leave removes c from its room's broadcast group.
func (h *Hub) Leave(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c)
}

func (h *Hub) leaveLocked(c *Client) {
	if c.roomID == "" {
		return
	}
	if m := h.members[c.roomID]; m != nil {
		delete(m, c.ID)
		if len(m) == 0 {
			delete(h.members, c.roomID)
		}
	}
	c.roomID = ""
}

// SendTo delivers one event to one connection. Unknown connections are skipped.
func (h *Hub) SendTo(connID, event string, payload any) {
	data, err := encode(event, payload)
	if err != nil {
		slog.Error("encoding event failed", "tag", "ws", "event", event, "error", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if c, ok := h.clients[connID]; ok {
		wsutil.SafeSend(c.Send, data)
	}
}

// BroadcastToRoom delivers one event to every member of roomID except excludeConnID.
func (h *Hub) BroadcastToRoom(roomID, event string, payload any, excludeConnID string) {
	data, err := encode(event, payload)
	if err != nil {
		slog.Error("encoding event failed", "tag", "ws", "event", event, "error", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for connID := range h.members[roomID] {
		if connID == excludeConnID {
			continue
		}
		if c, ok := h.clients[connID]; ok {
			wsutil.SafeSend(c.Send, data)
		}
	}
}

func encode(event string, payload any) ([]byte, error) {
	return json.Marshal(OutboundMsg{Type: event, Data: payload})
}

// ServeWS handles WebSocket upgrade requests and creates a new Client.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "tag", "ws", "error", err)
		return
	}

	client := &Client{
		ID:   uuid.NewString(),
		Hub:  h,
		Conn: conn,
		Send: make(chan []byte, 256),
	}

	h.Register <- client

	go client.WritePump()
	go client.ReadPump()
}

package broadcast

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
)

// Conn is the part of a websocket connection the hub writes to.
// *websocket.Conn satisfies it.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client is a connected websocket session of one owner.
type Client struct {
	ID      string
	OwnerID string
	Conn    Conn
}

type message struct {
	ownerID string
	payload any
}

// Hub fans notices out to the connections of a single owner. Every
// connection of an owner gets every notice for that owner and nothing else.
type Hub struct {
	clients    map[string]*Client         // clientID -> Client
	owners     map[string]map[string]bool // ownerID -> set of clientIDs
	register   chan *Client
	unregister chan *Client
	broadcast  chan message
	done       chan struct{}
	mu         sync.RWMutex
	logger     types.Logger
}

// NewHub creates a new Hub.
func NewHub(logger types.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		owners:     make(map[string]map[string]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan message, 256),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run processes registrations and notices until ctx is cancelled, then
// closes every connection.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("Hub shutting down")
			h.closeAllClients()
			close(h.done)
			return
		case client := <-h.register:
			h.handleRegister(client)
		case client := <-h.unregister:
			h.handleUnregister(client)
		case msg := <-h.broadcast:
			h.handleBroadcast(msg)
		}
	}
}

// Wait blocks until the hub has stopped.
func (h *Hub) Wait() {
	<-h.done
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		_ = client.Conn.Close()
	}
	h.clients = make(map[string]*Client)
	h.owners = make(map[string]map[string]bool)
}

func (h *Hub) handleRegister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.ID] = client
	if h.owners[client.OwnerID] == nil {
		h.owners[client.OwnerID] = make(map[string]bool)
	}
	h.owners[client.OwnerID][client.ID] = true
	h.logger.Debug("Client registered", "client_id", client.ID, "owner_id", client.OwnerID)
}

func (h *Hub) handleUnregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	delete(h.clients, client.ID)
	if ids := h.owners[client.OwnerID]; ids != nil {
		delete(ids, client.ID)
		if len(ids) == 0 {
			delete(h.owners, client.OwnerID)
		}
	}
	h.logger.Debug("Client unregistered", "client_id", client.ID, "owner_id", client.OwnerID)
}

func (h *Hub) handleBroadcast(msg message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids, ok := h.owners[msg.ownerID]
	if !ok {
		return
	}

	data, err := json.Marshal(msg.payload)
	if err != nil {
		h.logger.Error("Failed to marshal notice", "error", err)
		return
	}

	for id := range ids {
		if client, ok := h.clients[id]; ok {
			if err := client.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Warn("Failed to send notice", "client_id", id, "error", err)
			}
		}
	}
}

// Register adds a client. It is a no-op once the hub has stopped.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

// Unregister removes a client. It is a no-op once the hub has stopped.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Send queues payload for every connection of ownerID. Notices are dropped
// when the queue is full.
func (h *Hub) Send(ownerID string, payload any) {
	select {
	case h.broadcast <- message{ownerID: ownerID, payload: payload}:
	default:
		h.logger.Warn("Notice queue full, dropping notice", "owner_id", ownerID)
	}
}

// ClientCount returns the total number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// OwnerClientCount returns the number of connections of ownerID.
func (h *Hub) OwnerClientCount(ownerID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.owners[ownerID])
}

// Serve registers conn for ownerID and blocks until the peer disconnects.
// Incoming frames are ignored; the socket is push-only.
func (h *Hub) Serve(conn *websocket.Conn, ownerID string) {
	client := &Client{
		ID:      uuid.NewString(),
		OwnerID: ownerID,
		Conn:    conn,
	}
	h.Register(client)
	defer func() {
		h.Unregister(client)
		_ = conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("WebSocket error", "client_id", client.ID, "error", err)
			}
			return
		}
	}
}

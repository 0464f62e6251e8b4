package realtime

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Event is a server push message. SSE clients receive it as "event: <type>",
// websocket clients as a JSON text frame.
type Event struct {
	EventType string `json:"event"`
	Data      string `json:"data"`
}

// Client is a connected subscriber. Events is closed by the hub on Unregister.
type Client struct {
	ID     string
	UserID string
	Events chan Event
}

// NewClient creates a client with a buffered event channel.
func NewClient(id, userID string) *Client {
	return &Client{ID: id, UserID: userID, Events: make(chan Event, 64)}
}

// Hub fans events out to all connected clients. Slow clients drop events instead of blocking publishers.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  *zap.Logger
	onCount func(int)
}

// NewHub creates a new Hub
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients: make(map[string]*Client),
		logger:  logger.Named("realtime"),
	}
}

// OnCountChange registers a callback invoked with the client count after every register/unregister.
// Must be set before the hub is used.
func (h *Hub) OnCountChange(fn func(int)) {
	h.onCount = fn
}

func (h *Hub) countChanged() {
	if h.onCount != nil {
		h.onCount(len(h.clients))
	}
}

// Register adds a new client to the hub
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
	h.countChanged()
	h.logger.Debug("client registered", zap.String("client_id", client.ID), zap.String("user_id", client.UserID), zap.Int("total", len(h.clients)))
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client, ok := h.clients[clientID]; ok {
		close(client.Events)
		delete(h.clients, clientID)
		h.countChanged()
		h.logger.Debug("client unregistered", zap.String("client_id", clientID), zap.Int("total", len(h.clients)))
	}
}

// Count returns the number of connected clients
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends an event to all connected clients
func (h *Hub) Broadcast(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		select {
		case client.Events <- event:
		default:
			h.logger.Warn("client buffer full, skipping event", zap.String("client_id", client.ID))
		}
	}
}

// SendToUser 给特定用户发送事件（而非广播）
func (h *Hub) SendToUser(userID string, event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if client.UserID != userID {
			continue
		}
		select {
		case client.Events <- event:
		default:
			h.logger.Warn("client buffer full, skipping user event", zap.String("client_id", client.ID))
		}
	}
}

// OrderUpdate mo_update 事件内容，前端据此刷新MO缓存
type OrderUpdate struct {
	MOID     string `json:"mo_id"`
	MOCode   string `json:"mo_code"`
	Entity   string `json:"entity"`
	EntityID string `json:"entity_id,omitempty"`
	Action   string `json:"action"`
	Status   string `json:"status,omitempty"`
}

// PublishOrderUpdate 广播MO变更
func (h *Hub) PublishOrderUpdate(update OrderUpdate) {
	data, err := json.Marshal(update)
	if err != nil {
		h.logger.Error("marshal mo_update", zap.Error(err))
		return
	}
	h.Broadcast(Event{EventType: "mo_update", Data: string(data)})
	h.logger.Debug("published mo_update",
		zap.String("mo_id", update.MOID),
		zap.String("entity", update.Entity),
		zap.String("action", update.Action),
	)
}

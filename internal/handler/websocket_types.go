// internal/handler/websocket_types.go
package handler

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"device-dispatch/internal/model"
)

// Client represents a WebSocket client
type Client struct {
	ID          string          `json:"id"`
	Connection  *websocket.Conn `json:"-"`
	Send        chan []byte     `json:"-"`
	DeviceID    *string         `json:"device_id,omitempty"`
	UserAgent   string          `json:"user_agent"`
	RemoteAddr  string          `json:"remote_addr"`
	ConnectedAt time.Time       `json:"connected_at"`

	// subscriptions holds event types; empty means every type
	subscriptions map[model.EventType]bool
	subMutex      sync.RWMutex
}

// Subscribe adds eventType to the client's filter
func (c *Client) Subscribe(eventType model.EventType) {
	c.subMutex.Lock()
	defer c.subMutex.Unlock()
	if c.subscriptions == nil {
		c.subscriptions = make(map[model.EventType]bool)
	}
	c.subscriptions[eventType] = true
}

// Unsubscribe removes eventType from the client's filter
func (c *Client) Unsubscribe(eventType model.EventType) {
	c.subMutex.Lock()
	defer c.subMutex.Unlock()
	delete(c.subscriptions, eventType)
}

// Wants reports whether event passes the client's device and type filters
func (c *Client) Wants(event model.CommandEvent) bool {
	if c.DeviceID != nil && *c.DeviceID != event.DeviceID {
		return false
	}

	c.subMutex.RLock()
	defer c.subMutex.RUnlock()
	if len(c.subscriptions) == 0 {
		return true
	}
	return c.subscriptions[event.Type]
}

// WebSocketMessage represents a WebSocket message
type WebSocketMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// ConnectionManager manages WebSocket connections
type ConnectionManager struct {
	clients map[string]*Client
	mutex   sync.RWMutex
}

// NewConnectionManager creates a new connection manager
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		clients: make(map[string]*Client),
	}
}

// Register registers a new client
func (cm *ConnectionManager) Register(client *Client) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	cm.clients[client.ID] = client
}

// Unregister removes a client and closes its send channel. Safe to call twice.
func (cm *ConnectionManager) Unregister(client *Client) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	if _, ok := cm.clients[client.ID]; ok {
		delete(cm.clients, client.ID)
		close(client.Send)
	}
}

// Broadcast delivers payload to every client whose filters accept event.
// Clients with a full send buffer miss the message. Returns the number of
// clients the message was queued for.
func (cm *ConnectionManager) Broadcast(event model.CommandEvent, payload []byte) int {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	delivered := 0
	for _, client := range cm.clients {
		if !client.Wants(event) {
			continue
		}
		select {
		case client.Send <- payload:
			delivered++
		default:
		}
	}
	return delivered
}

// GetStats returns connection statistics
func (cm *ConnectionManager) GetStats() *ConnectionStats {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	stats := &ConnectionStats{
		TotalConnections: len(cm.clients),
		ByDevice:         make(map[string]int),
		Clients:          make([]*Client, 0, len(cm.clients)),
	}

	for _, client := range cm.clients {
		key := "*"
		if client.DeviceID != nil {
			key = *client.DeviceID
		}
		stats.ByDevice[key]++
		stats.Clients = append(stats.Clients, client)
	}

	return stats
}

// ConnectionStats represents connection statistics
type ConnectionStats struct {
	TotalConnections int            `json:"total_connections"`
	ByDevice         map[string]int `json:"by_device"`
	Clients          []*Client      `json:"clients"`
}

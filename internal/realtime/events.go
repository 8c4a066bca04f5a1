// file: internal/realtime/events.go
// version: 2.0.0
// guid: 9e8d7f6a-5c4b-3a21-0f9e-8d7c6b5a4392

package realtime

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// EventType defines the type of real-time event
type EventType string

const (
	EventTransferQueued   EventType = "transfer.queued"
	EventTransferStarted  EventType = "transfer.started"
	EventTransferProgress EventType = "transfer.progress"
	EventTransferFinished EventType = "transfer.finished"
	EventShareLink        EventType = "findersync.share_link"
	EventSystemStatus     EventType = "system.status"
	EventSystemShutdown   EventType = "system.shutdown"
)

// Event represents a real-time event to send to clients
type Event struct {
	Type      EventType              `json:"type"`
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Client represents a connected SSE client
type Client struct {
	ID        string
	Channel   chan *Event
	Transfers map[string]bool // Transfer ids this client is interested in
	mu        sync.RWMutex
}

// NewClient creates a new SSE client
func NewClient(id string) *Client {
	return &Client{
		ID:        id,
		Channel:   make(chan *Event, 100),
		Transfers: make(map[string]bool),
	}
}

// Subscribe subscribes the client to a transfer
func (c *Client) Subscribe(transferID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Transfers[transferID] = true
	log.Printf("Client %s subscribed to transfer %s", c.ID, transferID)
}

// IsSubscribed checks if client is subscribed to a transfer
func (c *Client) IsSubscribed(transferID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Transfers[transferID]
}

func (c *Client) wantsAll() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.Transfers) == 0
}

// EventHub manages SSE connections and event distribution
type EventHub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewEventHub creates a new event hub
func NewEventHub() *EventHub {
	return &EventHub{
		clients: make(map[string]*Client),
	}
}

// RegisterClient registers a new client
func (h *EventHub) RegisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
	log.Printf("Client %s registered, total clients: %d", client.ID, len(h.clients))
}

// UnregisterClient removes a client
func (h *EventHub) UnregisterClient(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if client, exists := h.clients[clientID]; exists {
		close(client.Channel)
		delete(h.clients, clientID)
		log.Printf("Client %s unregistered, remaining clients: %d", clientID, len(h.clients))
	}
}

// Broadcast sends an event to all subscribed clients. Slow clients lose
// events instead of blocking the sender.
func (h *EventHub) Broadcast(event *Event) {
	if h == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		// System-wide events have no ID; clients without subscriptions get everything.
		if event.ID == "" || client.wantsAll() || client.IsSubscribed(event.ID) {
			select {
			case client.Channel <- event:
			default:
				log.Printf("[WARN] Client %s channel full, dropping event %s", client.ID, event.Type)
			}
		}
	}
}

// SendTransferStatus sends a transfer lifecycle event (queued, started, finished).
func (h *EventHub) SendTransferStatus(eventType EventType, transferID, repoID, path string, details map[string]interface{}) {
	data := map[string]interface{}{
		"transfer_id": transferID,
		"repo_id":     repoID,
		"path":        path,
	}
	for k, v := range details {
		data[k] = v
	}
	h.Broadcast(&Event{
		Type:      eventType,
		ID:        transferID,
		Timestamp: time.Now(),
		Data:      data,
	})
}

// SendTransferProgress sends a byte-level progress event for the active transfer.
func (h *EventHub) SendTransferProgress(transferID, repoID, path string, transferred, total int64) {
	h.Broadcast(&Event{
		Type:      EventTransferProgress,
		ID:        transferID,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"transfer_id": transferID,
			"repo_id":     repoID,
			"path":        path,
			"transferred": transferred,
			"total":       total,
			"percentage":  calculatePercentage(transferred, total),
		},
	})
}

// SendShareLink announces a share link produced for the file browser.
func (h *EventHub) SendShareLink(path, link string) {
	h.Broadcast(&Event{
		Type:      EventShareLink,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"path": path,
			"link": link,
		},
	})
}

// SendSystemStatus sends a system status event
func (h *EventHub) SendSystemStatus(data map[string]interface{}) {
	h.Broadcast(&Event{
		Type:      EventSystemStatus,
		Timestamp: time.Now(),
		Data:      data,
	})
}

// GetClientCount returns the number of connected clients
func (h *EventHub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleSSE handles Server-Sent Events connection
func (h *EventHub) HandleSSE(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache, no-transform")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	clientID := fmt.Sprintf("client-%d", time.Now().UnixNano())
	client := NewClient(clientID)

	if transferID := c.Query("transfer"); transferID != "" {
		client.Subscribe(transferID)
	}

	h.RegisterClient(client)
	defer h.UnregisterClient(clientID)

	writeEvent(c, &Event{
		Type:      "connection.established",
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"client_id": clientID,
		},
	})

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			log.Printf("Client %s connection closed", clientID)
			return
		case event, ok := <-client.Channel:
			if !ok {
				return
			}
			if err := writeEvent(c, event); err != nil {
				log.Printf("[WARN] Error writing to client %s: %v", clientID, err)
				return
			}
		case <-ticker.C:
			heartbeat := map[string]interface{}{
				"type":      "heartbeat",
				"timestamp": time.Now(),
			}
			if data, err := json.Marshal(heartbeat); err == nil {
				_, _ = c.Writer.Write([]byte(fmt.Sprintf("data: %s\n\n", data)))
				c.Writer.Flush()
			}
		}
	}
}

func writeEvent(c *gin.Context, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("[ERROR] Error marshaling event: %v", err)
		return nil
	}
	if _, err := c.Writer.Write([]byte(fmt.Sprintf("data: %s\n\n", data))); err != nil {
		return err
	}
	c.Writer.Flush()
	return nil
}

// calculatePercentage calculates percentage with bounds checking
func calculatePercentage(current, total int64) int {
	if total <= 0 {
		return 0
	}
	percentage := (current * 100) / total
	if percentage > 100 {
		return 100
	}
	return int(percentage)
}

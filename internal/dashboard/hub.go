// Package dashboard pushes live change notifications to WebSocket clients.
//
// Each connection belongs to one user and only receives that user's task,
// project, section and sync events.
package dashboard

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// MessageType defines the type of dashboard message
type MessageType string

const (
	// MessageTypeHello is sent once when a client connects
	MessageTypeHello MessageType = "hello"

	// MessageTypeTaskUpdate indicates a task was created, updated, or deleted
	MessageTypeTaskUpdate MessageType = "task_update"

	// MessageTypeProjectUpdate indicates a project was created, updated, or deleted
	MessageTypeProjectUpdate MessageType = "project_update"

	// MessageTypeSectionUpdate indicates a section was created, updated, or deleted
	MessageTypeSectionUpdate MessageType = "section_update"

	// MessageTypeSyncComplete indicates a Todoist reconciliation finished
	MessageTypeSyncComplete MessageType = "sync_complete"

	// MessageTypeSyncFailed indicates a Todoist reconciliation aborted
	MessageTypeSyncFailed MessageType = "sync_failed"
)

// Message represents a dashboard message
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// envelope addresses a message to one user's clients.
type envelope struct {
	userID string
	msg    Message
}

// Hub manages WebSocket clients and fans messages out to them
type Hub struct {
	// conn -> owning user id
	clients   map[*websocket.Conn]string
	clientsMu sync.RWMutex

	broadcast chan envelope

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	writeTimeout time.Duration
	logger       *log.Logger
}

// Config holds hub configuration
type Config struct {
	// BufferSize is the number of queued messages (default: 100)
	BufferSize int

	// WriteTimeout bounds a single client write (default: 5s)
	WriteTimeout time.Duration

	// Logger for hub activity (default: stderr logger)
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		BufferSize:   100,
		WriteTimeout: 5 * time.Second,
	}
}

// NewHub creates a hub. Call Start before publishing.
func NewHub(config *Config) *Hub {
	if config == nil {
		config = DefaultConfig()
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 100
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 5 * time.Second
	}
	logger := config.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[dashboard] ", log.LstdFlags)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:      make(map[*websocket.Conn]string),
		broadcast:    make(chan envelope, config.BufferSize),
		ctx:          ctx,
		cancel:       cancel,
		writeTimeout: config.WriteTimeout,
		logger:       logger,
	}
}

// Start runs the broadcast loop until Stop is called.
func (h *Hub) Start() {
	h.wg.Add(1)
	go h.broadcastLoop()
}

// Stop disconnects every client and waits for the broadcast loop to exit.
func (h *Hub) Stop() {
	h.logger.Println("Stopping dashboard hub")
	h.cancel()

	h.clientsMu.Lock()
	for conn := range h.clients {
		_ = conn.Close(websocket.StatusGoingAway, "Server shutting down")
		delete(h.clients, conn)
	}
	h.clientsMu.Unlock()

	h.wg.Wait()
	h.logger.Println("Dashboard hub stopped")
}

// Publish queues a message for all clients of userID. It never blocks; a
// message is dropped when the queue is full.
func (h *Hub) Publish(userID string, msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	select {
	case <-h.ctx.Done():
		return
	default:
	}
	select {
	case h.broadcast <- envelope{userID: userID, msg: msg}:
	default:
		h.logger.Println("WARNING: broadcast channel full, dropping message")
	}
}

func (h *Hub) broadcastLoop() {
	defer h.wg.Done()

	for {
		select {
		case <-h.ctx.Done():
			return

		case env := <-h.broadcast:
			data, err := json.Marshal(env.msg)
			if err != nil {
				h.logger.Printf("Failed to marshal message: %v", err)
				continue
			}

			h.clientsMu.RLock()
			targets := make([]*websocket.Conn, 0, len(h.clients))
			for conn, userID := range h.clients {
				if userID == env.userID {
					targets = append(targets, conn)
				}
			}
			h.clientsMu.RUnlock()

			// Writes happen outside the lock so a slow client cannot stall registration
			for _, conn := range targets {
				if err := h.write(conn, data); err != nil {
					h.logger.Printf("Failed to send to client: %v", err)
					h.removeClient(conn)
				}
			}
		}
	}
}

func (h *Hub) write(conn *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(h.ctx, h.writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

// ServeWS upgrades the request to a WebSocket owned by userID. The caller
// is responsible for authenticating the request.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	h.clientsMu.Lock()
	h.clients[conn] = userID
	count := len(h.clients)
	h.clientsMu.Unlock()

	h.logger.Printf("Client for user %s connected (total: %d)", userID, count)

	hello := mustMarshal(Message{
		Type:      MessageTypeHello,
		Timestamp: time.Now().UTC(),
		Data:      mustMarshal(map[string]string{"user_id": userID}),
	})
	if err := h.write(conn, hello); err != nil {
		h.removeClient(conn)
		return
	}

	go h.readLoop(conn)
}

// readLoop keeps the connection alive until the client goes away.
func (h *Hub) readLoop(conn *websocket.Conn) {
	defer h.removeClient(conn)

	for {
		if _, _, err := conn.Read(h.ctx); err != nil {
			return
		}
	}
}

func (h *Hub) removeClient(conn *websocket.Conn) {
	h.clientsMu.Lock()
	if _, exists := h.clients[conn]; exists {
		delete(h.clients, conn)
		count := len(h.clients)
		h.clientsMu.Unlock()

		_ = conn.Close(websocket.StatusNormalClosure, "")
		h.logger.Printf("Client disconnected (total: %d)", count)
	} else {
		h.clientsMu.Unlock()
	}
}

// ClientCount returns the current number of connected clients
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

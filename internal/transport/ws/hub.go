// Package ws provides the WebSocket chat transport.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Connection represents a single WebSocket connection.
type Connection struct {
	ID             string
	UserID         string
	ConversationID string
	Conn           *websocket.Conn
	Send           chan []byte
	hub            *Hub
	mu             sync.Mutex

	// closed is set by the hub, under its lock, when Send is closed.
	closed bool

	// cancel stops the in-flight reply, if any. streamID identifies the
	// reply that owns the slot.
	streamMu sync.Mutex
	cancel   context.CancelFunc
	streamID uint64
}

// Hub manages all WebSocket connections.
type Hub struct {
	// Connections indexed by connection ID
	connections map[string]*Connection

	// conversations maps conversation_id to set of connection IDs
	conversations map[string]map[string]bool

	// Channels for registration/unregistration
	register   chan *Connection
	unregister chan *Connection

	// Broadcast channel for sending to one conversation
	broadcast chan *ConversationMessage

	// done is closed when Run returns.
	done chan struct{}

	logger *zap.Logger
	mu     sync.RWMutex
}

// ConversationMessage is used to broadcast a message to a conversation.
type ConversationMessage struct {
	ConversationID string
	Data           []byte
}

// NewHub creates a new Hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		connections:   make(map[string]*Connection),
		conversations: make(map[string]map[string]bool),
		register:      make(chan *Connection),
		unregister:    make(chan *Connection),
		broadcast:     make(chan *ConversationMessage, 256),
		done:          make(chan struct{}),
		logger:        logger,
	}
}

// Run starts the hub's main loop. It returns when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn.ID] = conn
			h.mu.Unlock()
			h.logger.Debug("connection registered", zap.String("conn_id", conn.ID))

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.connections[conn.ID]; ok {
				delete(h.connections, conn.ID)
				h.unbindLocked(conn)
				conn.closed = true
				close(conn.Send)
			}
			h.mu.Unlock()
			h.logger.Debug("connection unregistered", zap.String("conn_id", conn.ID))

		case msg := <-h.broadcast:
			h.mu.RLock()
			for connID := range h.conversations[msg.ConversationID] {
				conn, exists := h.connections[connID]
				if !exists {
					continue
				}
				select {
				case conn.Send <- msg.Data:
				default:
					// Buffer full, close the connection
					h.logger.Warn("connection buffer full, closing", zap.String("conn_id", connID))
					go h.Unregister(conn)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// NewConnection creates a new connection. It is not registered yet.
func (h *Hub) NewConnection(ws *websocket.Conn) *Connection {
	return &Connection{
		ID:   uuid.New().String(),
		Conn: ws,
		Send: make(chan []byte, 256),
		hub:  h,
	}
}

// Register registers a connection with the hub.
func (h *Hub) Register(conn *Connection) {
	select {
	case h.register <- conn:
	case <-h.done:
	}
}

// Unregister unregisters a connection from the hub.
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// BindConversation subscribes a connection to a conversation's frames,
// replacing any previous binding.
func (h *Hub) BindConversation(conn *Connection, conversationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.unbindLocked(conn)
	conn.ConversationID = conversationID
	if conversationID == "" {
		return
	}
	if h.conversations[conversationID] == nil {
		h.conversations[conversationID] = make(map[string]bool)
	}
	h.conversations[conversationID][conn.ID] = true
}

func (h *Hub) unbindLocked(conn *Connection) {
	if conn.ConversationID == "" || h.conversations[conn.ConversationID] == nil {
		return
	}
	delete(h.conversations[conn.ConversationID], conn.ID)
	if len(h.conversations[conn.ConversationID]) == 0 {
		delete(h.conversations, conn.ConversationID)
	}
}

// Broadcast sends a message to all connections of a conversation.
func (h *Hub) Broadcast(conversationID string, data []byte) {
	select {
	case h.broadcast <- &ConversationMessage{ConversationID: conversationID, Data: data}:
	case <-h.done:
	}
}

// BroadcastJSON sends a JSON message to all connections of a conversation.
func (h *Hub) BroadcastJSON(conversationID string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(conversationID, data)
	return nil
}

// SendToConnection sends a message to a specific connection.
func (h *Hub) SendToConnection(conn *Connection, data []byte) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if conn.closed {
		return ErrConnectionClosed
	}
	select {
	case conn.Send <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

// SendJSONToConnection sends a JSON message to a specific connection.
func (h *Hub) SendJSONToConnection(conn *Connection, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return h.SendToConnection(conn, data)
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// ConversationCount returns the number of conversations with subscribers.
func (h *Hub) ConversationCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conversations)
}

// WriteMessage writes a message to the connection with proper locking.
func (c *Connection) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}

// SetWriteDeadline sets the write deadline for the connection.
func (c *Connection) SetWriteDeadline(t time.Time) error {
	return c.Conn.SetWriteDeadline(t)
}

// SetReadDeadline sets the read deadline for the connection.
func (c *Connection) SetReadDeadline(t time.Time) error {
	return c.Conn.SetReadDeadline(t)
}

// Close closes the connection.
func (c *Connection) Close() error {
	return c.Conn.Close()
}

// startStream records the cancel func of a new reply and returns the id
// that owns the slot. It reports false when a reply is already running.
func (c *Connection) startStream(cancel context.CancelFunc) (uint64, bool) {
	c.streamMu.Lock()
	defer c.streamMu.Unlock()
	if c.cancel != nil {
		return 0, false
	}
	c.streamID++
	c.cancel = cancel
	return c.streamID, true
}

// releaseStream frees the slot when reply id still owns it. A reply that
// was cancelled may finish after a newer one has started.
func (c *Connection) releaseStream(id uint64) {
	c.streamMu.Lock()
	defer c.streamMu.Unlock()
	if c.cancel != nil && c.streamID == id {
		c.cancel = nil
	}
}

// endStream clears and runs the cancel func. It reports whether a reply
// was running.
func (c *Connection) endStream() bool {
	c.streamMu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.streamMu.Unlock()
	if cancel == nil {
		return false
	}
	cancel()
	return true
}

// ErrConnectionClosed is returned when sending to an unregistered connection.
var ErrConnectionClosed = errors.New("connection closed")

// ErrBufferFull is returned when the send buffer is full.
var ErrBufferFull = &BufferFullError{}

// BufferFullError represents a buffer full error.
type BufferFullError struct{}

func (e *BufferFullError) Error() string {
	return "send buffer full"
}

// conversationOf returns the conversation a connection is bound to.
func (h *Hub) conversationOf(conn *Connection) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return conn.ConversationID
}

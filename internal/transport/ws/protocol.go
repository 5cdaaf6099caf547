package ws

import "encoding/json"

// Message types from client to server
const (
	TypeHello  = "hello"
	TypeChat   = "chat"
	TypeCancel = "cancel"
)

// Message types from server to client. Stream frames reuse the SSE event
// names: routing, delta, data, done and error.
const (
	TypeHelloAck  = "hello_ack"
	TypeCancelled = "cancelled"
	TypeError     = "error"
)

// BaseMessage contains common fields for all messages.
type BaseMessage struct {
	Type           string `json:"type"`
	Ts             int64  `json:"ts"`
	RequestID      string `json:"request_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// HelloMessage is sent by the client to establish the connection.
type HelloMessage struct {
	BaseMessage
	UserID string `json:"user_id,omitempty"`
}

// HelloAckMessage is sent by the server after a successful hello.
type HelloAckMessage struct {
	BaseMessage
	UserID string `json:"user_id"`
}

// ChatMessage is sent by the client to post a message. An empty
// conversation id starts a new conversation.
type ChatMessage struct {
	BaseMessage
	Content string `json:"content"`
}

// CancelMessage stops the connection's in-flight reply.
type CancelMessage struct {
	BaseMessage
}

// StreamMessage carries one frame of a streamed reply.
type StreamMessage struct {
	BaseMessage
	Data json.RawMessage `json:"data"`
}

// ErrorMessage is sent by the server when an error occurs.
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrorCodeInvalidMessage = "invalid_message"
	ErrorCodeHelloRequired  = "hello_required"
	ErrorCodeBusy           = "busy"
	ErrorCodeNotFound       = "not_found"
	ErrorCodeInternalError  = "internal_error"
)

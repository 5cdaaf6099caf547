package domain

import "encoding/json"

// Stream event names, shared by SSE and WebSocket transports.
const (
	StreamEventRouting = "routing"
	StreamEventDelta   = "delta"
	StreamEventData    = "data"
	StreamEventDone    = "done"
	StreamEventError   = "error"
)

// StreamEvent is one frame of a streamed reply.
type StreamEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// RoutingEventData announces which responder took the message.
type RoutingEventData struct {
	ConversationID string `json:"conversation_id"`
	Responder      string `json:"responder"`
	AgentName      string `json:"agent_name"`
	Content        string `json:"content"`
}

// DeltaEventData is the data for a delta event.
type DeltaEventData struct {
	Text string `json:"text"`
}

// DoneEventData carries the persisted agent message identity.
type DoneEventData struct {
	RunID     string `json:"run_id"`
	MessageID string `json:"message_id"`
	CreatedAt int64  `json:"created_at"`
	Reasoning string `json:"reasoning,omitempty"`
}

// ErrorEventData is the data for an error event.
type ErrorEventData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SendMessageRequest is the inbound chat request.
type SendMessageRequest struct {
	ConversationID string `json:"conversationId,omitempty"`
	Content        string `json:"content"`
}

// SendMessageResponse is returned by the non-streaming chat endpoint.
type SendMessageResponse struct {
	ConversationID string    `json:"conversationId"`
	RunID          string    `json:"runId"`
	UserMessage    Message   `json:"userMessage"`
	AgentMessages  []Message `json:"agentMessages"`
}

package domain

import (
	"encoding/json"
	"time"
)

// Run represents a single pass of the routing pipeline for one user message.
type Run struct {
	RunID          string          `json:"run_id"`
	ConversationID string          `json:"conversation_id"`
	Responder      string          `json:"responder,omitempty"`
	Status         RunStatus       `json:"status"`
	StartedAt      time.Time       `json:"started_at"`
	EndedAt        *time.Time      `json:"ended_at,omitempty"`
	Error          json.RawMessage `json:"error,omitempty"`
}

// Event represents a trace event for replay.
type Event struct {
	EventID string          `json:"event_id"`
	RunID   string          `json:"run_id"`
	Ts      int64           `json:"ts"` // Unix milliseconds
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

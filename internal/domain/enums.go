// Package domain defines the core domain models for supportdesk.
package domain

// RunStatus represents the status of a run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusDone      RunStatus = "DONE"
	RunStatusFailed    RunStatus = "FAILED"
	RunStatusCancelled RunStatus = "CANCELLED"
)

// EventType represents the type of a run trace event.
type EventType string

const (
	EventTypeRunStarted   EventType = "run_started"
	EventTypeUserInput    EventType = "user_input"
	EventTypeRouted       EventType = "routed"
	EventTypeRunDone      EventType = "run_done"
	EventTypeRunFailed    EventType = "run_failed"
	EventTypeRunCancelled EventType = "run_cancelled"

	// LLM call events
	EventTypeLLMCallDone EventType = "llm_call_done"

	// Tool events
	EventTypeToolCall       EventType = "tool_call"
	EventTypePolicyDecision EventType = "policy_decision"
	EventTypeToolResult     EventType = "tool_result"
)

// MessageRole is the stored role of a conversation message.
type MessageRole string

const (
	MessageRoleUser   MessageRole = "user"
	MessageRoleRouter MessageRole = "router"
)

// RouteSource tells whether a route came from the model or the keyword fallback.
type RouteSource string

const (
	RouteSourceModel    RouteSource = "model"
	RouteSourceFallback RouteSource = "fallback"
)

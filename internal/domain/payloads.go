package domain

import "encoding/json"

// Event payloads recorded in the run trace.

type RunStartedPayload struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	Stream         bool   `json:"stream"`
}

type UserInputPayload struct {
	MessageID string `json:"message_id"`
	Content   string `json:"content"`
}

type RoutedPayload struct {
	Responder string `json:"responder"`
	Source    string `json:"source"`
	Analysis  string `json:"analysis,omitempty"`
}

type UsageData struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type LLMCallDonePayload struct {
	Step      int        `json:"step"`
	LatencyMs int64      `json:"latency_ms"`
	Usage     *UsageData `json:"usage,omitempty"`
	Error     string     `json:"error,omitempty"`
}

type PolicyDecisionPayload struct {
	Step     int    `json:"step"`
	ToolName string `json:"tool_name"`
	Decision string `json:"decision"`
	Reason   string `json:"reason,omitempty"`
}

type ToolCallPayload struct {
	Step       int             `json:"step"`
	ToolCallID string          `json:"tool_call_id"`
	ToolName   string          `json:"tool_name"`
	Args       json.RawMessage `json:"args,omitempty"`
}

type ToolResultPayload struct {
	Step       int        `json:"step"`
	ToolCallID string     `json:"tool_call_id"`
	ToolName   string     `json:"tool_name"`
	Result     ToolResult `json:"result,omitempty"`
	Error      string     `json:"error,omitempty"`
}

type RunDonePayload struct {
	MessageID string `json:"message_id"`
	Responder string `json:"responder"`
	HasData   bool   `json:"has_data"`
}

type RunFailedPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

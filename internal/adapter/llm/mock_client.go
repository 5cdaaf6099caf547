package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var referencePattern = regexp.MustCompile(`(?i)\b(ORD-\d+|INV-\d{4}-\d+)\b`)

// MockClient is a deterministic scripted LLMClient used in MOCK mode and
// tests. It answers routing prompts by keyword, calls the first advertised
// tool once when an order or invoice number appears, and then narrates the
// tool result.
type MockClient struct {
	// ChunkSize controls how streamed text is split.
	ChunkSize int
}

// NewMockClient creates a new mock LLM client.
func NewMockClient() *MockClient {
	return &MockClient{ChunkSize: 12}
}

// CreateChatCompletion returns the scripted reply as a single message.
func (m *MockClient) CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	msg, finish := m.reply(req)
	return &ChatCompletionResponse{
		ID:      fmt.Sprintf("mock-chatcmpl-%d", time.Now().UnixNano()),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []Choice{{Index: 0, Message: &msg, FinishReason: finish}},
		Usage:   m.usage(req, msg.Content),
	}, nil
}

// CreateChatCompletionStream streams the scripted reply in fixed-size pieces.
func (m *MockClient) CreateChatCompletionStream(ctx context.Context, req *ChatCompletionRequest, callback StreamCallback) (*Usage, error) {
	msg, finish := m.reply(req)
	id := fmt.Sprintf("mock-chatcmpl-%d", time.Now().UnixNano())
	created := time.Now().Unix()

	emit := func(delta *ChatMessage, finishReason string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return callback(&StreamChunk{
			ID:      id,
			Object:  "chat.completion.chunk",
			Created: created,
			Model:   req.Model,
			Choices: []Choice{{Index: 0, Delta: delta, FinishReason: finishReason}},
		})
	}

	for _, piece := range splitIntoChunks(msg.Content, m.ChunkSize) {
		if err := emit(&ChatMessage{Role: "assistant", Content: piece}, ""); err != nil {
			return nil, err
		}
	}
	for i, tc := range msg.ToolCalls {
		idx := i
		tc.Index = &idx
		if err := emit(&ChatMessage{Role: "assistant", ToolCalls: []ToolCall{tc}}, ""); err != nil {
			return nil, err
		}
	}
	if err := emit(&ChatMessage{}, finish); err != nil {
		return nil, err
	}
	return m.usage(req, msg.Content), nil
}

// ListModels returns a list of mock models.
func (m *MockClient) ListModels(ctx context.Context) ([]Model, error) {
	return []Model{
		{ID: "mock-support-model", Object: "model", Created: time.Now().Unix(), OwnedBy: "mock"},
	}, nil
}

func (m *MockClient) reply(req *ChatCompletionRequest) (ChatMessage, string) {
	if isRouterPrompt(req.Messages) {
		user := lastByRole(req.Messages, "user")
		target := mockRoute(user)
		return ChatMessage{
			Role:    "assistant",
			Content: fmt.Sprintf("DELEGATE_TO: %s\nANALYSIS: The customer is asking about %s matters.", target, target),
		}, "stop"
	}

	if n := len(req.Messages); n > 0 && req.Messages[n-1].Role == "tool" {
		last := req.Messages[n-1]
		return ChatMessage{Role: "assistant", Content: narrate(last.Content)}, "stop"
	}

	user := lastByRole(req.Messages, "user")
	if ref := referencePattern.FindString(user); ref != "" && len(req.Tools) > 0 {
		tool := req.Tools[0].Function
		args, _ := json.Marshal(map[string]string{firstRequired(tool.Parameters): strings.ToUpper(ref)})
		return ChatMessage{
			Role: "assistant",
			ToolCalls: []ToolCall{{
				ID:       fmt.Sprintf("call_mock_%d", time.Now().UnixNano()),
				Type:     "function",
				Function: ToolCallFunction{Name: tool.Name, Arguments: string(args)},
			}},
		}, "tool_calls"
	}

	if user == "" {
		return ChatMessage{Role: "assistant", Content: "How can I help you today?"}, "stop"
	}
	return ChatMessage{
		Role:    "assistant",
		Content: fmt.Sprintf("Thanks for your message: %q. Could you share an order or invoice number so I can look into it?", truncate(user, 100)),
	}, "stop"
}

func (m *MockClient) usage(req *ChatCompletionRequest, reply string) *Usage {
	prompt := 0
	for _, msg := range req.Messages {
		prompt += len(msg.Content) / 4
	}
	return &Usage{PromptTokens: prompt, CompletionTokens: len(reply) / 4, TotalTokens: prompt + len(reply)/4}
}

func isRouterPrompt(msgs []ChatMessage) bool {
	for _, msg := range msgs {
		if msg.Role == "system" && strings.Contains(msg.Content, "DELEGATE_TO") {
			return true
		}
	}
	return false
}

func lastByRole(msgs []ChatMessage, role string) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == role {
			return msgs[i].Content
		}
	}
	return ""
}

func mockRoute(message string) string {
	q := strings.ToLower(message)
	for _, kw := range []string{"order", "tracking", "delivery", "ship", "ord-"} {
		if strings.Contains(q, kw) {
			return "order"
		}
	}
	for _, kw := range []string{"bill", "refund", "charge", "invoice", "payment", "inv-"} {
		if strings.Contains(q, kw) {
			return "billing"
		}
	}
	return "support"
}

// narrate turns a tool result payload into a short customer-facing reply.
func narrate(payload string) string {
	var res struct {
		Found   *bool  `json:"found"`
		Success *bool  `json:"success"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal([]byte(payload), &res); err != nil {
		return "I checked our records for you."
	}
	switch {
	case res.Error != "":
		return "I wasn't able to look that up right now: " + res.Error
	case res.Found != nil && !*res.Found, res.Success != nil && !*res.Success:
		return res.Message
	case res.Message != "":
		return res.Message
	default:
		return "I found the details you asked about. Here is a summary."
	}
}

func firstRequired(params interface{}) string {
	raw, err := json.Marshal(params)
	if err != nil {
		return "query"
	}
	var schema struct {
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(raw, &schema); err != nil || len(schema.Required) == 0 {
		return "query"
	}
	return schema.Required[0]
}

func splitIntoChunks(s string, size int) []string {
	runes := []rune(s)
	if size <= 0 {
		size = len(runes)
	}
	var chunks []string
	for len(runes) > size {
		chunks = append(chunks, string(runes[:size]))
		runes = runes[size:]
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}

// truncate truncates a string to the given length.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

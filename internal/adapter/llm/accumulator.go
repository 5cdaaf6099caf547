package llm

import "strings"

// StreamAccumulator folds streamed deltas back into a complete assistant
// message. Tool call fragments are merged by their index.
type StreamAccumulator struct {
	content      strings.Builder
	calls        []ToolCall
	finishReason string
}

// Add merges one chunk and returns the text it contributed.
func (a *StreamAccumulator) Add(chunk *StreamChunk) string {
	var text strings.Builder
	for _, choice := range chunk.Choices {
		if choice.FinishReason != "" {
			a.finishReason = choice.FinishReason
		}
		if choice.Delta == nil {
			continue
		}
		text.WriteString(choice.Delta.Content)
		for _, tc := range choice.Delta.ToolCalls {
			a.mergeToolCall(tc)
		}
	}
	a.content.WriteString(text.String())
	return text.String()
}

func (a *StreamAccumulator) mergeToolCall(tc ToolCall) {
	idx := len(a.calls)
	if tc.Index != nil {
		idx = *tc.Index
	} else if tc.ID == "" && idx > 0 {
		// Continuation fragment without an index belongs to the last call.
		idx--
	}
	for len(a.calls) <= idx {
		a.calls = append(a.calls, ToolCall{Type: "function"})
	}
	call := &a.calls[idx]
	if tc.ID != "" {
		call.ID = tc.ID
	}
	if tc.Type != "" {
		call.Type = tc.Type
	}
	if tc.Function.Name != "" {
		call.Function.Name = tc.Function.Name
	}
	call.Function.Arguments += tc.Function.Arguments
}

// Message returns the accumulated assistant message.
func (a *StreamAccumulator) Message() ChatMessage {
	msg := ChatMessage{Role: "assistant", Content: a.content.String()}
	for _, c := range a.calls {
		if c.Function.Name == "" {
			continue
		}
		c.Index = nil
		msg.ToolCalls = append(msg.ToolCalls, c)
	}
	return msg
}

// FinishReason returns the last finish reason seen.
func (a *StreamAccumulator) FinishReason() string {
	return a.finishReason
}

package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xiaot623/supportdesk/internal/adapter/llm"
	"github.com/xiaot623/supportdesk/internal/domain"
	"github.com/xiaot623/supportdesk/internal/policy"
	"github.com/xiaot623/supportdesk/internal/tools"
)

// scriptedLLM replays canned assistant messages, one per call. When the
// script runs out the last reply repeats.
type scriptedLLM struct {
	mu       sync.Mutex
	replies  []llm.ChatMessage
	err      error
	failAt   int
	calls    int
	requests []llm.ChatCompletionRequest
}

func (s *scriptedLLM) next(req *llm.ChatCompletionRequest) (llm.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	cp := *req
	cp.Messages = append([]llm.ChatMessage(nil), req.Messages...)
	s.requests = append(s.requests, cp)
	if s.err != nil && (s.failAt == 0 || s.failAt == s.calls) {
		return llm.ChatMessage{}, s.err
	}
	if len(s.replies) == 0 {
		return llm.ChatMessage{Role: "assistant"}, nil
	}
	i := s.calls - 1
	if i >= len(s.replies) {
		i = len(s.replies) - 1
	}
	return s.replies[i], nil
}

func (s *scriptedLLM) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *scriptedLLM) CreateChatCompletion(ctx context.Context, req *llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	msg, err := s.next(req)
	if err != nil {
		return nil, err
	}
	finish := "stop"
	if len(msg.ToolCalls) > 0 {
		finish = "tool_calls"
	}
	return &llm.ChatCompletionResponse{Choices: []llm.Choice{{Message: &msg, FinishReason: finish}}}, nil
}

func (s *scriptedLLM) CreateChatCompletionStream(ctx context.Context, req *llm.ChatCompletionRequest, cb llm.StreamCallback) (*llm.Usage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	msg, err := s.next(req)
	if err != nil {
		return nil, err
	}
	send := func(delta llm.ChatMessage, finish string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return cb(&llm.StreamChunk{Choices: []llm.Choice{{Delta: &delta, FinishReason: finish}}})
	}
	text := msg.Content
	for len(text) > 0 {
		n := min(4, len(text))
		if err := send(llm.ChatMessage{Content: text[:n]}, ""); err != nil {
			return nil, err
		}
		text = text[n:]
	}
	for i, tc := range msg.ToolCalls {
		idx := i
		// Split arguments to exercise fragment merging.
		half := len(tc.Function.Arguments) / 2
		first := llm.ToolCall{Index: &idx, ID: tc.ID, Type: "function", Function: llm.ToolCallFunction{Name: tc.Function.Name, Arguments: tc.Function.Arguments[:half]}}
		second := llm.ToolCall{Index: &idx, Function: llm.ToolCallFunction{Arguments: tc.Function.Arguments[half:]}}
		if err := send(llm.ChatMessage{ToolCalls: []llm.ToolCall{first}}, ""); err != nil {
			return nil, err
		}
		if err := send(llm.ChatMessage{ToolCalls: []llm.ToolCall{second}}, ""); err != nil {
			return nil, err
		}
	}
	finish := "stop"
	if len(msg.ToolCalls) > 0 {
		finish = "tool_calls"
	}
	return &llm.Usage{TotalTokens: 1}, send(llm.ChatMessage{}, finish)
}

func (s *scriptedLLM) ListModels(context.Context) ([]llm.Model, error) {
	return nil, nil
}

func say(s string) llm.ChatMessage {
	return llm.ChatMessage{Role: "assistant", Content: s}
}

func toolCall(id, name, args string) llm.ChatMessage {
	return llm.ChatMessage{Role: "assistant", ToolCalls: []llm.ToolCall{call(id, name, args)}}
}

func call(id, name, args string) llm.ToolCall {
	return llm.ToolCall{ID: id, Type: "function", Function: llm.ToolCallFunction{Name: name, Arguments: args}}
}

// memStore is an in-memory tools.DataStore.
type memStore struct {
	mu       sync.Mutex
	orders   map[string]*domain.OrderRecord
	payments map[string]*domain.PaymentRecord
	lookups  int
	failWith error
}

func newMemStore() *memStore {
	return &memStore{
		orders: map[string]*domain.OrderRecord{
			"ORD-9283": {UserID: "demo-user", OrderNumber: "ORD-9283", Status: "in_transit", Total: "$249.00",
				Items: []domain.OrderItem{
					{Name: "Wireless Headphones", Quantity: 1, Price: "$199.00"},
					{Name: "Protective Case", Quantity: 1, Price: "$50.00"},
				},
				TrackingNumber: "TRK-8827364", ETA: "Tomorrow by 8 PM"},
			"ORD-3120": {UserID: "demo-user", OrderNumber: "ORD-3120", Status: "processing", Total: "$149.00",
				Items: []domain.OrderItem{{Name: "Mechanical Keyboard", Quantity: 1}}, ETA: "3-5 business days"},
		},
		payments: map[string]*domain.PaymentRecord{
			"INV-2024-001": {UserID: "demo-user", InvoiceNumber: "INV-2024-001", Amount: "$249.00", Status: "paid", Date: "Feb 10, 2024",
				Items: []domain.InvoiceItem{{Desc: "Premium Plan (Monthly)", Amount: "$99.00"}, {Desc: "AI Credits Pack", Amount: "$150.00"}}},
		},
	}
}

func (m *memStore) GetOrderByNumber(_ context.Context, userID, n string) (*domain.OrderRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	if m.failWith != nil {
		return nil, m.failWith
	}
	o, ok := m.orders[n]
	if !ok || o.UserID != userID {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (m *memStore) UpdateOrderStatus(_ context.Context, n, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[n]
	if !ok {
		return errors.New("no such order")
	}
	o.Status = status
	return nil
}

func (m *memStore) CreateOrder(_ context.Context, o *domain.OrderRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.OrderNumber] = o
	return nil
}

func (m *memStore) GetPaymentByInvoice(_ context.Context, userID, n string) (*domain.PaymentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	p, ok := m.payments[n]
	if !ok || p.UserID != userID {
		return nil, nil
	}
	return p, nil
}

func (m *memStore) SearchMessages(_ context.Context, _ string, term string, _ int) ([]domain.Message, error) {
	if strings.Contains("where is my order", strings.ToLower(term)) {
		return []domain.Message{{Role: "user", Content: "Where is my order?"}}, nil
	}
	return nil, nil
}

func (m *memStore) lookupCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lookups
}

type (
	llmMsg  = llm.ChatMessage
	llmCall = llm.ToolCall
)

type engineOpt func(*Options)

func withPolicy(t *testing.T) engineOpt {
	return func(o *Options) {
		pe, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
		require.NoError(t, err)
		o.Policy = pe
	}
}

func newTestEngine(model llm.LLMClient, store tools.DataStore, opts ...engineOpt) *Engine {
	o := Options{
		LLM:   model,
		Model: "test-model",
		Tools: tools.NewBuiltinRegistry(store),
	}
	for _, fn := range opts {
		fn(&o)
	}
	return NewEngine(o)
}

func orderRequest(msg string) ExecuteRequest {
	return ExecuteRequest{Responder: domain.ResponderOrder, Message: msg, UserID: "demo-user"}
}

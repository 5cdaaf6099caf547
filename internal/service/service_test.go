package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/supportdesk/internal/adapter/llm"
	"github.com/xiaot623/supportdesk/internal/agent"
	"github.com/xiaot623/supportdesk/internal/domain"
	"github.com/xiaot623/supportdesk/internal/repository"
	"github.com/xiaot623/supportdesk/internal/service"
	"github.com/xiaot623/supportdesk/tests/helpers"
)

// downLLM fails every call.
type downLLM struct{}

func (downLLM) CreateChatCompletion(context.Context, *llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error) {
	return nil, errors.New("model unavailable")
}

func (downLLM) CreateChatCompletionStream(context.Context, *llm.ChatCompletionRequest, llm.StreamCallback) (*llm.Usage, error) {
	return nil, errors.New("model unavailable")
}

func (downLLM) ListModels(context.Context) ([]llm.Model, error) {
	return nil, errors.New("model unavailable")
}

func collect(events *[]domain.StreamEvent) service.Sink {
	return func(ev domain.StreamEvent) error {
		*events = append(*events, ev)
		return nil
	}
}

func names(events []domain.StreamEvent) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.Event
	}
	return out
}

// idPattern matches a prefixed full UUID.
func idPattern(prefix string) string {
	return `^` + prefix + `_[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`
}

func TestSendMessageOrderLookup(t *testing.T) {
	ctx := context.Background()
	svc, _ := helpers.NewMockService(t)

	resp, err := svc.SendMessage(ctx, repository.DemoUserID, domain.SendMessageRequest{Content: "Where is my order ORD-9283?"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.ConversationID)
	require.NotEmpty(t, resp.RunID)
	assert.Equal(t, "user", resp.UserMessage.Role)

	require.Len(t, resp.AgentMessages, 2)
	router, reply := resp.AgentMessages[0], resp.AgentMessages[1]
	assert.Equal(t, "router", router.Role)
	assert.Equal(t, agent.RouterName, router.AgentName)
	assert.Equal(t, "I'll connect you with our Order Agent to assist you.", router.Content)

	assert.Equal(t, "order", reply.Role)
	assert.Equal(t, "Order Agent", reply.AgentName)
	assert.NotEmpty(t, reply.Content)
	require.NotNil(t, reply.Data)
	assert.Equal(t, domain.RichDataOrder, reply.Data.Type)
	assert.Equal(t, "ORD-9283", reply.Data.Order.ID)

	detail, err := svc.GetConversation(ctx, repository.DemoUserID, resp.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, "Where is my order ORD-9283?...", detail.Title)
	require.Len(t, detail.Messages, 3)
	assert.Equal(t, []string{"user", "router", "order"}, []string{detail.Messages[0].Role, detail.Messages[1].Role, detail.Messages[2].Role})

	run, err := svc.GetRun(ctx, resp.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusDone, run.Status)
	assert.Equal(t, "order", run.Responder)

	events, err := svc.GetRunEvents(ctx, resp.RunID, 0, nil, 0)
	require.NoError(t, err)
	assert.Regexp(t, idPattern("run"), resp.RunID)
	seen := map[domain.EventType]bool{}
	for _, ev := range events {
		seen[ev.Type] = true
		assert.Regexp(t, idPattern("evt"), ev.EventID)
	}
	for _, typ := range []domain.EventType{
		domain.EventTypeRunStarted, domain.EventTypeUserInput, domain.EventTypeRouted,
		domain.EventTypeLLMCallDone, domain.EventTypePolicyDecision,
		domain.EventTypeToolCall, domain.EventTypeToolResult, domain.EventTypeRunDone,
	} {
		assert.True(t, seen[typ], "missing %s event", typ)
	}
}

func TestSendMessageContinuesConversation(t *testing.T) {
	ctx := context.Background()
	svc, _ := helpers.NewMockService(t)

	first, err := svc.SendMessage(ctx, "u1", domain.SendMessageRequest{Content: "hello there"})
	require.NoError(t, err)

	second, err := svc.SendMessage(ctx, "u1", domain.SendMessageRequest{ConversationID: first.ConversationID, Content: "I need a refund for INV-2024-003"})
	require.NoError(t, err)
	assert.Equal(t, first.ConversationID, second.ConversationID)
	assert.Equal(t, "billing", second.AgentMessages[1].Role)

	detail, err := svc.GetConversation(ctx, "u1", first.ConversationID)
	require.NoError(t, err)
	assert.Len(t, detail.Messages, 6)
}

func TestSendMessageValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := helpers.NewMockService(t)

	_, err := svc.SendMessage(ctx, "u1", domain.SendMessageRequest{Content: "   "})
	assert.ErrorIs(t, err, service.ErrInvalidRequest)

	_, err = svc.SendMessage(ctx, "u1", domain.SendMessageRequest{ConversationID: "missing", Content: "hi"})
	assert.ErrorIs(t, err, service.ErrConversationNotFound)

	theirs, err := svc.SendMessage(ctx, "u2", domain.SendMessageRequest{Content: "hi"})
	require.NoError(t, err)
	_, err = svc.SendMessage(ctx, "u1", domain.SendMessageRequest{ConversationID: theirs.ConversationID, Content: "hi"})
	assert.ErrorIs(t, err, service.ErrConversationNotFound)
}

func TestSendMessageModelDown(t *testing.T) {
	ctx := context.Background()
	svc, _ := helpers.NewTestService(t, downLLM{})

	resp, err := svc.SendMessage(ctx, "u1", domain.SendMessageRequest{Content: "Where is my refund?"})
	require.NoError(t, err)
	reply := resp.AgentMessages[1]
	assert.Equal(t, "billing", reply.Role)
	assert.Equal(t, agent.ApologyText, reply.Content)
	assert.Nil(t, reply.Data)
}

func TestStreamMessage(t *testing.T) {
	ctx := context.Background()
	svc, _ := helpers.NewMockService(t)

	var events []domain.StreamEvent
	err := svc.StreamMessage(ctx, repository.DemoUserID, domain.SendMessageRequest{Content: "Can I see invoice INV-2024-001?"}, collect(&events))
	require.NoError(t, err)

	seq := names(events)
	require.GreaterOrEqual(t, len(seq), 4)
	assert.Equal(t, domain.StreamEventRouting, seq[0])
	assert.Equal(t, domain.StreamEventData, seq[len(seq)-2])
	assert.Equal(t, domain.StreamEventDone, seq[len(seq)-1])

	var routing domain.RoutingEventData
	require.NoError(t, json.Unmarshal(events[0].Data, &routing))
	assert.Equal(t, "billing", routing.Responder)

	var text strings.Builder
	for _, ev := range events[1 : len(events)-2] {
		require.Equal(t, domain.StreamEventDelta, ev.Event)
		var d domain.DeltaEventData
		require.NoError(t, json.Unmarshal(ev.Data, &d))
		text.WriteString(d.Text)
	}

	var data domain.RichData
	require.NoError(t, json.Unmarshal(events[len(events)-2].Data, &data))
	assert.Equal(t, domain.RichDataInvoice, data.Type)
	assert.Equal(t, "INV-2024-001", data.Invoice.ID)

	var done domain.DoneEventData
	require.NoError(t, json.Unmarshal(events[len(events)-1].Data, &done))
	assert.NotEmpty(t, done.MessageID)
	assert.Equal(t, "Used 2 steps to process your request.", done.Reasoning)

	detail, err := svc.GetConversation(ctx, repository.DemoUserID, routing.ConversationID)
	require.NoError(t, err)
	require.Len(t, detail.Messages, 3)
	assert.Equal(t, done.MessageID, detail.Messages[2].ID)
	assert.Equal(t, text.String(), detail.Messages[2].Content)

	run, err := svc.GetRun(ctx, done.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusDone, run.Status)
}

func TestStreamMessageModelFailure(t *testing.T) {
	ctx := context.Background()
	svc, _ := helpers.NewTestService(t, downLLM{})

	var events []domain.StreamEvent
	err := svc.StreamMessage(ctx, "u1", domain.SendMessageRequest{Content: "track my delivery"}, collect(&events))
	require.NoError(t, err)
	assert.Equal(t, []string{domain.StreamEventRouting, domain.StreamEventError}, names(events))

	var e domain.ErrorEventData
	require.NoError(t, json.Unmarshal(events[1].Data, &e))
	assert.Equal(t, "model_error", e.Code)
}

func TestStreamMessageSinkFailureCancelsRun(t *testing.T) {
	ctx := context.Background()
	svc, store := helpers.NewMockService(t)

	gone := errors.New("client gone")
	err := svc.StreamMessage(ctx, "u1", domain.SendMessageRequest{Content: "hello"}, func(domain.StreamEvent) error {
		return gone
	})
	assert.ErrorIs(t, err, gone)

	convs, err := store.ListConversations(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, convs, 1)
	msgs, err := store.ListMessages(ctx, convs[0].ID, 0)
	require.NoError(t, err)
	for _, m := range msgs {
		assert.NotEqual(t, "support", m.Role, "no reply should be stored for an abandoned stream")
	}
}

func TestStreamMessageRejectsBadRequestBeforeFrames(t *testing.T) {
	svc, _ := helpers.NewMockService(t)

	var events []domain.StreamEvent
	err := svc.StreamMessage(context.Background(), "u1", domain.SendMessageRequest{}, collect(&events))
	assert.ErrorIs(t, err, service.ErrInvalidRequest)
	assert.Empty(t, events)
}

func TestConversations(t *testing.T) {
	ctx := context.Background()
	svc, _ := helpers.NewMockService(t)

	seeded, err := svc.ListConversations(ctx, repository.DemoUserID)
	require.NoError(t, err)
	require.Len(t, seeded, 1)
	assert.Equal(t, "Order tracking inquiry", seeded[0].Title)

	assert.ErrorIs(t, svc.DeleteConversation(ctx, "someone-else", seeded[0].ID), service.ErrConversationNotFound)
	require.NoError(t, svc.DeleteConversation(ctx, repository.DemoUserID, seeded[0].ID))

	_, err = svc.GetConversation(ctx, repository.DemoUserID, seeded[0].ID)
	assert.ErrorIs(t, err, service.ErrConversationNotFound)
}

func TestAgentCatalogue(t *testing.T) {
	ctx := context.Background()
	svc, _ := helpers.NewMockService(t)

	agents := svc.ListAgents(ctx)
	require.Len(t, agents, 4)
	assert.Equal(t, "router", agents[0].Type)
	assert.Equal(t, []string{"support", "order", "billing"}, []string{agents[1].Type, agents[2].Type, agents[3].Type})

	order, err := svc.GetAgent(ctx, "order")
	require.NoError(t, err)
	require.NotEmpty(t, order.Tools)
	assert.Equal(t, "fetchOrderDetails", order.Tools[0].Name)
	assert.NotEmpty(t, order.Tools[0].Description)

	_, err = svc.GetAgent(ctx, "sales")
	assert.ErrorIs(t, err, service.ErrAgentNotFound)
}

func TestListModelsAndRunErrors(t *testing.T) {
	ctx := context.Background()
	svc, _ := helpers.NewMockService(t)

	models, err := svc.ListModels(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, models)

	_, err = svc.GetRunEvents(ctx, "run_missing", 0, nil, 0)
	assert.ErrorIs(t, err, service.ErrRunNotFound)

	down, _ := helpers.NewTestService(t, downLLM{})
	_, err = down.ListModels(ctx)
	assert.Error(t, err)
}

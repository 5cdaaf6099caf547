package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/supportdesk/internal/domain"
	"github.com/xiaot623/supportdesk/internal/tools"
)

func TestExecuteNeverReturnsEmptyContent(t *testing.T) {
	for _, reply := range []string{"", "   \n"} {
		model := &scriptedLLM{replies: []llmMsg{say(reply)}}
		res := newTestEngine(model, newMemStore()).Execute(context.Background(), orderRequest("hi"))
		assert.Equal(t, FallbackText, res.Content)
		assert.Equal(t, "Order Agent", res.AgentName)
		assert.Equal(t, domain.ResponderOrder, res.Role)
	}
}

func TestExecuteReasoningOnlyForMultipleSteps(t *testing.T) {
	single := &scriptedLLM{replies: []llmMsg{say("Hello!")}}
	res := newTestEngine(single, newMemStore()).Execute(context.Background(), orderRequest("hi"))
	assert.Equal(t, "Hello!", res.Content)
	assert.Empty(t, res.Reasoning)
	assert.Len(t, res.Steps, 1)

	double := &scriptedLLM{replies: []llmMsg{
		toolCall("c1", tools.FetchOrderDetails, `{"orderNumber":"ORD-9283"}`),
		say("Your order is in transit."),
	}}
	res = newTestEngine(double, newMemStore()).Execute(context.Background(), orderRequest("where is ORD-9283"))
	assert.Equal(t, "Your order is in transit.", res.Content)
	assert.Equal(t, "Used 2 steps to process your request.", res.Reasoning)
	require.NotNil(t, res.Data)
	assert.Equal(t, domain.RichDataOrder, res.Data.Type)
	assert.Equal(t, []string{"1x Wireless Headphones", "1x Protective Case"}, res.Data.Order.Items)
}

func TestExecuteStopsAtStepBudget(t *testing.T) {
	model := &scriptedLLM{replies: []llmMsg{
		toolCall("c", tools.FetchOrderDetails, `{"orderNumber":"ORD-9283"}`),
	}}
	res := newTestEngine(model, newMemStore()).Execute(context.Background(), orderRequest("loop forever"))

	assert.Equal(t, MaxSteps, model.callCount())
	assert.Len(t, res.Steps, MaxSteps)
	assert.Equal(t, FallbackText, res.Content)
	assert.Equal(t, "Used 5 steps to process your request.", res.Reasoning)
	assert.NotNil(t, res.Data)
}

func TestExecuteAdvertisesOnlyProfileTools(t *testing.T) {
	for _, id := range domain.Responders {
		model := &scriptedLLM{replies: []llmMsg{say("ok")}}
		newTestEngine(model, newMemStore()).Execute(context.Background(), ExecuteRequest{Responder: id, Message: "hi", UserID: "demo-user"})

		var advertised []string
		for _, tool := range model.requests[0].Tools {
			advertised = append(advertised, tool.Function.Name)
		}
		assert.Equal(t, GetProfile(id).Tools, advertised, id)
		assert.Equal(t, GetProfile(id).Prompt, model.requests[0].Messages[0].Content)
	}
}

func TestExecuteRejectsOutOfScopeTool(t *testing.T) {
	store := newMemStore()
	model := &scriptedLLM{replies: []llmMsg{
		toolCall("c1", tools.GetInvoiceDetails, `{"invoiceNumber":"INV-2024-001"}`),
		say("I can't look up invoices here."),
	}}
	res := newTestEngine(model, store).Execute(context.Background(), ExecuteRequest{
		Responder: domain.ResponderSupport, Message: "invoice INV-2024-001?", UserID: "demo-user",
	})

	require.Len(t, res.Steps, 2)
	inv := res.Steps[0].ToolCalls[0]
	assert.Nil(t, inv.Result)
	assert.Contains(t, inv.Error, "not available to the Support Agent")
	assert.Equal(t, 0, store.lookupCount())
	assert.Nil(t, res.Data)

	// The refusal is fed back to the model as a tool message.
	second := model.requests[1].Messages
	last := second[len(second)-1]
	assert.Equal(t, "tool", last.Role)
	assert.Equal(t, "c1", last.ToolCallID)
	assert.Contains(t, last.Content, "not available")
}

func TestExecuteContainsToolFailures(t *testing.T) {
	store := newMemStore()
	store.failWith = errors.New("database unavailable")
	model := &scriptedLLM{replies: []llmMsg{
		{Role: "assistant", ToolCalls: []llmCall{
			call("bad", tools.FetchOrderDetails, `{"orderNum":"ORD-9283"}`),
			call("garbled", tools.CheckDeliveryStatus, `{"orderNumber":`),
			call("infra", tools.CheckDeliveryStatus, `{"orderNumber":"ORD-9283"}`),
		}},
		say("Sorry, I couldn't reach the order system."),
	}}
	res := newTestEngine(model, store).Execute(context.Background(), orderRequest("ORD-9283?"))

	require.Len(t, res.Steps, 2)
	calls := res.Steps[0].ToolCalls
	require.Len(t, calls, 3)
	assert.Equal(t, []string{"bad", "garbled", "infra"}, []string{calls[0].ID, calls[1].ID, calls[2].ID})
	assert.Contains(t, calls[0].Error, "invalid arguments")
	assert.Contains(t, calls[1].Error, "not valid JSON")
	assert.Contains(t, calls[2].Error, "database unavailable")
	assert.Equal(t, "Sorry, I couldn't reach the order system.", res.Content)
	assert.Nil(t, res.Data)
}

func TestExecuteModelFailureApologises(t *testing.T) {
	model := &scriptedLLM{replies: []llmMsg{toolCall("c1", tools.FetchOrderDetails, `{"orderNumber":"ORD-9283"}`)}, err: errors.New("upstream 502"), failAt: 2}
	res := newTestEngine(model, newMemStore()).Execute(context.Background(), orderRequest("ORD-9283"))

	assert.Equal(t, ApologyText, res.Content)
	assert.Nil(t, res.Data)
	assert.Empty(t, res.Reasoning)
	assert.Equal(t, "Order Agent", res.AgentName)
}

func TestExecuteBatchKeepsModelOrder(t *testing.T) {
	model := &scriptedLLM{replies: []llmMsg{
		{Role: "assistant", ToolCalls: []llmCall{
			call("a", tools.CheckDeliveryStatus, `{"orderNumber":"ORD-3120"}`),
			call("b", tools.FetchOrderDetails, `{"orderNumber":"ORD-9283"}`),
		}},
		say("Both orders found."),
	}}
	res := newTestEngine(model, newMemStore()).Execute(context.Background(), orderRequest("ORD-3120 and ORD-9283"))

	calls := res.Steps[0].ToolCalls
	require.Len(t, calls, 2)
	assert.IsType(t, domain.DeliveryLookup{}, calls[0].Result)
	assert.IsType(t, domain.OrderLookup{}, calls[1].Result)
	// Last match wins, so the card is the second call's order.
	assert.Equal(t, "ORD-9283", res.Data.Order.ID)

	msgs := model.requests[1].Messages
	assert.Equal(t, "a", msgs[len(msgs)-2].ToolCallID)
	assert.Equal(t, "b", msgs[len(msgs)-1].ToolCallID)
}

func TestExecutePolicyBlocksAnonymousMutation(t *testing.T) {
	store := newMemStore()
	model := &scriptedLLM{replies: []llmMsg{
		toolCall("c1", tools.CancelOrder, `{"orderNumber":"ORD-3120"}`),
		say("Please sign in to cancel."),
	}}
	res := newTestEngine(model, store, withPolicy(t)).Execute(context.Background(), ExecuteRequest{
		Responder: domain.ResponderOrder, Message: "cancel ORD-3120", UserID: "anonymous",
	})
	assert.True(t, strings.HasPrefix(res.Steps[0].ToolCalls[0].Error, "tool call blocked"))
	assert.Equal(t, "processing", store.orders["ORD-3120"].Status)

	model = &scriptedLLM{replies: []llmMsg{
		toolCall("c1", tools.CancelOrder, `{"orderNumber":"ORD-3120"}`),
		say("Cancelled."),
	}}
	res = newTestEngine(model, store, withPolicy(t)).Execute(context.Background(), orderRequest("cancel ORD-3120"))
	require.Empty(t, res.Steps[0].ToolCalls[0].Error)
	assert.Equal(t, "cancelled", store.orders["ORD-3120"].Status)
	assert.Equal(t, "cancelled", res.Data.Order.Status)
}

func TestExecutePassesHistoryBeforeMessage(t *testing.T) {
	model := &scriptedLLM{replies: []llmMsg{say("ok")}}
	newTestEngine(model, newMemStore()).Execute(context.Background(), ExecuteRequest{
		Responder: domain.ResponderSupport,
		Message:   "and now?",
		History: []domain.HistoryMessage{
			{Role: "user", Content: "hello"},
			{Role: "assistant", Content: "hi there"},
		},
	})
	msgs := model.requests[0].Messages
	require.Len(t, msgs, 4)
	assert.Equal(t, []string{"system", "user", "assistant", "user"}, []string{msgs[0].Role, msgs[1].Role, msgs[2].Role, msgs[3].Role})
	assert.Equal(t, "and now?", msgs[3].Content)
}

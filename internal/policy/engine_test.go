package policy

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDefaultEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(context.Background(), DefaultPolicy)
	require.NoError(t, err)
	return e
}

func TestDefaultPolicyAllowsAdvertisedTool(t *testing.T) {
	e := newDefaultEngine(t)
	d, err := e.Evaluate(context.Background(), Input{
		Responder:    "order",
		ToolName:     "fetchOrderDetails",
		AllowedTools: []string{"fetchOrderDetails", "checkDeliveryStatus"},
		UserID:       "demo-user",
		Args:         json.RawMessage(`{"orderNumber":"ORD-9283"}`),
	})
	require.NoError(t, err)
	assert.True(t, d.Allowed())
}

func TestDefaultPolicyBlocksToolOutsideProfile(t *testing.T) {
	e := newDefaultEngine(t)
	d, err := e.Evaluate(context.Background(), Input{
		Responder:    "support",
		ToolName:     "getInvoiceDetails",
		AllowedTools: []string{"queryConversationHistory"},
		UserID:       "demo-user",
	})
	require.NoError(t, err)
	assert.Equal(t, DecisionBlock, d.Decision)
	assert.Contains(t, d.Reason, "getInvoiceDetails")
}

func TestDefaultPolicyBlocksAnonymousMutation(t *testing.T) {
	e := newDefaultEngine(t)
	d, err := e.Evaluate(context.Background(), Input{
		Responder:    "order",
		ToolName:     "cancelOrder",
		AllowedTools: []string{"cancelOrder"},
		Mutating:     true,
		UserID:       "anonymous",
	})
	require.NoError(t, err)
	assert.Equal(t, DecisionBlock, d.Decision)

	d, err = e.Evaluate(context.Background(), Input{
		Responder:    "order",
		ToolName:     "cancelOrder",
		AllowedTools: []string{"cancelOrder"},
		Mutating:     true,
		UserID:       "demo-user",
	})
	require.NoError(t, err)
	assert.True(t, d.Allowed())
}

func TestNewEngineRejectsBrokenPolicy(t *testing.T) {
	_, err := NewEngine(context.Background(), "package tool_policy\n\ndecision = {")
	assert.Error(t, err)
}

func TestStringDecision(t *testing.T) {
	e, err := NewEngine(context.Background(), "package tool_policy\n\ndefault decision = \"allow\"\n")
	require.NoError(t, err)
	d, err := e.Evaluate(context.Background(), Input{ToolName: "x"})
	require.NoError(t, err)
	assert.Equal(t, Decision{Decision: "allow"}, d)
}

package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xiaot623/supportdesk/internal/domain"
)

func TestFallbackRoute(t *testing.T) {
	tests := []struct {
		message string
		want    domain.ResponderID
	}{
		{"Where is my ORDER?", domain.ResponderOrder},
		{"tracking number please", domain.ResponderOrder},
		{"When will delivery happen", domain.ResponderOrder},
		{"has it shipped", domain.ResponderOrder},
		{"I was charged twice", domain.ResponderBilling},
		{"Need a copy of my invoice", domain.ResponderBilling},
		{"refund status?", domain.ResponderBilling},
		{"payment failed", domain.ResponderBilling},
		{"billing question", domain.ResponderBilling},
		// Order keywords win over billing keywords.
		{"refund for my order", domain.ResponderOrder},
		{"How do I reset my password?", domain.ResponderSupport},
		{"", domain.ResponderSupport},
	}
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			got := FallbackRoute(tt.message)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, FallbackRoute(tt.message), "fallback must be deterministic")
		})
	}
}

func TestParseDelegation(t *testing.T) {
	id, ok := ParseDelegation("delegate_to:   BILLING\nANALYSIS: refund")
	assert.True(t, ok)
	assert.Equal(t, domain.ResponderBilling, id)

	_, ok = ParseDelegation("DELEGATE_TO: shipping")
	assert.False(t, ok)
}

func TestClassifyUsesModelReply(t *testing.T) {
	model := &scriptedLLM{replies: []llmMsg{say("DELEGATE_TO: billing\nANALYSIS: asks about a charge")}}
	c := NewClassifier(model, "m", 0, nil)

	// The model wins even when keywords point elsewhere.
	res := c.Route(context.Background(), "where is my order")
	assert.Equal(t, domain.ResponderBilling, res.Responder)
	assert.Equal(t, domain.RouteSourceModel, res.Source)
	assert.Equal(t, "asks about a charge", res.Analysis)
	assert.Equal(t, 1, model.callCount())
	assert.Equal(t, RouterPrompt, model.requests[0].Messages[0].Content)
}

func TestClassifyFallsBackWithoutRetry(t *testing.T) {
	failing := &scriptedLLM{err: errors.New("boom")}
	c := NewClassifier(failing, "m", 0, nil)
	res := c.Route(context.Background(), "I need a refund")
	assert.Equal(t, domain.ResponderBilling, res.Responder)
	assert.Equal(t, domain.RouteSourceFallback, res.Source)
	assert.Equal(t, 1, failing.callCount())

	vague := &scriptedLLM{replies: []llmMsg{say("I think this is about shipping")}}
	c = NewClassifier(vague, "m", 0, nil)
	assert.Equal(t, domain.ResponderOrder, c.Classify(context.Background(), "has it shipped"))
	assert.Equal(t, 1, vague.callCount())
}

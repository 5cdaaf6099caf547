package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xiaot623/supportdesk/internal/adapter/llm"
	"github.com/xiaot623/supportdesk/internal/agent"
	"github.com/xiaot623/supportdesk/internal/domain"
	"github.com/xiaot623/supportdesk/internal/policy"
)

// recordEvent records an event to the store.
func (s *Service) recordEvent(ctx context.Context, runID string, eventType domain.EventType, payload interface{}) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	event := &domain.Event{
		EventID: "evt_" + uuid.New().String(),
		RunID:   runID,
		Ts:      time.Now().UnixMilli(),
		Type:    eventType,
		Payload: payloadBytes,
	}

	return s.store.CreateEvent(ctx, event)
}

// traceEvent records an event, logging rather than returning failures.
func (s *Service) traceEvent(ctx context.Context, runID string, eventType domain.EventType, payload interface{}) {
	if err := s.recordEvent(ctx, runID, eventType, payload); err != nil {
		s.logger.Error("failed to record event",
			zap.String("run_id", runID),
			zap.String("type", string(eventType)),
			zap.Error(err))
	}
}

// runTracer turns pipeline callbacks into run trace events. It writes with
// a context detached from the request so a disconnecting client does not
// truncate the trace.
type runTracer struct {
	s     *Service
	ctx   context.Context
	runID string
}

var _ agent.Observer = (*runTracer)(nil)

func (s *Service) newRunTracer(ctx context.Context, runID string) *runTracer {
	return &runTracer{s: s, ctx: context.WithoutCancel(ctx), runID: runID}
}

func (t *runTracer) Routed(c agent.Classification) {
	if err := t.s.store.UpdateRunResponder(t.ctx, t.runID, string(c.Responder)); err != nil {
		t.s.logger.Error("failed to update run responder", zap.String("run_id", t.runID), zap.Error(err))
	}
	t.s.traceEvent(t.ctx, t.runID, domain.EventTypeRouted, domain.RoutedPayload{
		Responder: string(c.Responder),
		Source:    string(c.Source),
		Analysis:  c.Analysis,
	})
}

func (t *runTracer) ModelCallDone(step int, usage *llm.Usage, elapsed time.Duration, err error) {
	p := domain.LLMCallDonePayload{Step: step, LatencyMs: elapsed.Milliseconds()}
	if usage != nil {
		p.Usage = &domain.UsageData{
			PromptTokens:     usage.PromptTokens,
			CompletionTokens: usage.CompletionTokens,
			TotalTokens:      usage.TotalTokens,
		}
	}
	if err != nil {
		p.Error = err.Error()
	}
	t.s.traceEvent(t.ctx, t.runID, domain.EventTypeLLMCallDone, p)
}

func (t *runTracer) PolicyDecision(step int, tool string, d policy.Decision) {
	t.s.traceEvent(t.ctx, t.runID, domain.EventTypePolicyDecision, domain.PolicyDecisionPayload{
		Step:     step,
		ToolName: tool,
		Decision: d.Decision,
		Reason:   d.Reason,
	})
}

func (t *runTracer) ToolCallDone(step int, inv agent.ToolInvocation) {
	args := inv.Args
	if len(args) > 0 && !json.Valid(args) {
		// Keep malformed model arguments readable in the trace.
		args, _ = json.Marshal(string(inv.Args))
	}
	t.s.traceEvent(t.ctx, t.runID, domain.EventTypeToolCall, domain.ToolCallPayload{
		Step:       step,
		ToolCallID: inv.ID,
		ToolName:   inv.Name,
		Args:       args,
	})
	t.s.traceEvent(t.ctx, t.runID, domain.EventTypeToolResult, domain.ToolResultPayload{
		Step:       step,
		ToolCallID: inv.ID,
		ToolName:   inv.Name,
		Result:     inv.Result,
		Error:      inv.Error,
	})
}

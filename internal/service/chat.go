package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xiaot623/supportdesk/internal/agent"
	"github.com/xiaot623/supportdesk/internal/domain"
)

const titleLength = 30

// Sink receives the frames of a streamed reply in order. Returning an error
// aborts the stream.
type Sink func(ev domain.StreamEvent) error

// turn is one accepted user message with its run.
type turn struct {
	userID  string
	conv    *domain.Conversation
	userMsg domain.Message
	history []domain.HistoryMessage
	runID   string
}

func (t *turn) request() agent.Request {
	return agent.Request{
		Message:        t.userMsg.Content,
		UserID:         t.userID,
		ConversationID: t.conv.ID,
		History:        t.history,
	}
}

// SendMessage runs the full pipeline for one message and returns the
// persisted user message with the router and responder replies.
func (s *Service) SendMessage(ctx context.Context, userID string, req domain.SendMessageRequest) (*domain.SendMessageResponse, error) {
	t, err := s.begin(ctx, userID, req, false)
	if err != nil {
		return nil, err
	}

	areq := t.request()
	areq.Observer = s.newRunTracer(ctx, t.runID)
	outcome, err := s.orchestrator.Process(ctx, areq)
	if err != nil {
		s.cancelRun(ctx, t.runID, err.Error())
		return nil, err
	}

	routerMsg, err := s.saveRouterMessage(ctx, t, outcome.Routing)
	if err != nil {
		s.failRun(ctx, t.runID, "store_error", err.Error())
		return nil, err
	}
	agentMsg, err := s.saveAgentMessage(ctx, t, &outcome.Result)
	if err != nil {
		s.failRun(ctx, t.runID, "store_error", err.Error())
		return nil, err
	}
	s.completeRun(ctx, t, agentMsg)

	return &domain.SendMessageResponse{
		ConversationID: t.conv.ID,
		RunID:          t.runID,
		UserMessage:    t.userMsg,
		AgentMessages:  []domain.Message{*routerMsg, *agentMsg},
	}, nil
}

// StreamMessage runs the pipeline and emits routing, delta, data and done
// frames to sink. Request errors are returned before any frame is sent. A
// model failure is reported to sink as a single error frame in place of done.
func (s *Service) StreamMessage(ctx context.Context, userID string, req domain.SendMessageRequest, sink Sink) error {
	t, err := s.begin(ctx, userID, req, true)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	areq := t.request()
	areq.Observer = s.newRunTracer(ctx, t.runID)
	st := s.orchestrator.ProcessStream(ctx, areq)

	routing := st.Route()
	if _, err := s.saveRouterMessage(ctx, t, routing); err != nil {
		s.logger.Error("failed to save router message", zap.String("run_id", t.runID), zap.Error(err))
	}
	sinkErr := sink(streamEvent(domain.StreamEventRouting, domain.RoutingEventData{
		ConversationID: t.conv.ID,
		Responder:      string(routing.Responder),
		AgentName:      routing.AgentName,
		Content:        routing.Notice,
	}))
	if sinkErr != nil {
		cancel()
	}

	for delta := range st.Deltas() {
		if sinkErr != nil {
			continue
		}
		if err := sink(streamEvent(domain.StreamEventDelta, domain.DeltaEventData{Text: delta})); err != nil {
			sinkErr = err
			cancel()
		}
	}

	res, err := st.Result()
	switch {
	case sinkErr != nil:
		s.cancelRun(ctx, t.runID, sinkErr.Error())
		return sinkErr
	case err != nil && ctx.Err() != nil:
		s.cancelRun(ctx, t.runID, err.Error())
		return err
	case err != nil:
		s.failRun(ctx, t.runID, "model_error", err.Error())
		return sink(streamEvent(domain.StreamEventError, domain.ErrorEventData{
			Code:    "model_error",
			Message: agent.ApologyText,
		}))
	}

	agentMsg, err := s.saveAgentMessage(ctx, t, res)
	if err != nil {
		s.failRun(ctx, t.runID, "store_error", err.Error())
		return sink(streamEvent(domain.StreamEventError, domain.ErrorEventData{
			Code:    "store_error",
			Message: "failed to save reply",
		}))
	}
	s.completeRun(ctx, t, agentMsg)

	if res.Data != nil {
		if err := sink(streamEvent(domain.StreamEventData, res.Data)); err != nil {
			return err
		}
	}
	return sink(streamEvent(domain.StreamEventDone, domain.DoneEventData{
		RunID:     t.runID,
		MessageID: agentMsg.ID,
		CreatedAt: agentMsg.CreatedAt.UnixMilli(),
		Reasoning: res.Reasoning,
	}))
}

// begin validates the request, resolves the conversation, stores the user
// message and opens a run.
func (s *Service) begin(ctx context.Context, userID string, req domain.SendMessageRequest, stream bool) (*turn, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, fmt.Errorf("%w: content is required", ErrInvalidRequest)
	}
	if userID == "" {
		userID = s.config.DefaultUserID
	}

	var conv *domain.Conversation
	var err error
	if req.ConversationID != "" {
		conv, err = s.ownedConversation(ctx, userID, req.ConversationID)
		if err != nil {
			return nil, err
		}
	} else {
		conv = &domain.Conversation{UserID: userID, Title: titleFor(content)}
		if err := s.store.CreateConversation(ctx, conv); err != nil {
			return nil, fmt.Errorf("failed to create conversation: %w", err)
		}
	}

	prior, err := s.store.ListMessages(ctx, conv.ID, s.config.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	now := time.Now().UTC()
	userMsg := domain.Message{
		ID:             "msg_" + uuid.New().String(),
		ConversationID: conv.ID,
		Role:           string(domain.MessageRoleUser),
		Content:        content,
		CreatedAt:      now,
	}
	if err := s.store.CreateMessage(ctx, &userMsg); err != nil {
		return nil, fmt.Errorf("failed to save user message: %w", err)
	}

	runID := "run_" + uuid.New().String()
	run := &domain.Run{
		RunID:          runID,
		ConversationID: conv.ID,
		Status:         domain.RunStatusRunning,
		StartedAt:      now,
	}
	if err := s.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	s.traceEvent(ctx, runID, domain.EventTypeRunStarted, domain.RunStartedPayload{
		ConversationID: conv.ID,
		UserID:         userID,
		Stream:         stream,
	})
	s.traceEvent(ctx, runID, domain.EventTypeUserInput, domain.UserInputPayload{
		MessageID: userMsg.ID,
		Content:   content,
	})

	return &turn{
		userID:  userID,
		conv:    conv,
		userMsg: userMsg,
		history: domain.ToHistory(prior),
		runID:   runID,
	}, nil
}

func (s *Service) saveRouterMessage(ctx context.Context, t *turn, r agent.Routing) (*domain.Message, error) {
	msg := &domain.Message{
		ID:             "msg_" + uuid.New().String(),
		ConversationID: t.conv.ID,
		Role:           string(domain.MessageRoleRouter),
		Content:        r.Notice,
		AgentName:      r.AgentName,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.store.CreateMessage(context.WithoutCancel(ctx), msg); err != nil {
		return nil, fmt.Errorf("failed to save router message: %w", err)
	}
	return msg, nil
}

func (s *Service) saveAgentMessage(ctx context.Context, t *turn, res *agent.AgentResult) (*domain.Message, error) {
	ctx = context.WithoutCancel(ctx)
	msg := &domain.Message{
		ID:             "msg_" + uuid.New().String(),
		ConversationID: t.conv.ID,
		Role:           string(res.Role),
		Content:        res.Content,
		AgentName:      res.AgentName,
		Data:           res.Data,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to save agent message: %w", err)
	}
	if err := s.store.TouchConversation(ctx, t.conv.ID); err != nil {
		s.logger.Warn("failed to touch conversation", zap.String("conversation_id", t.conv.ID), zap.Error(err))
	}
	return msg, nil
}

func titleFor(content string) string {
	r := []rune(content)
	if len(r) > titleLength {
		r = r[:titleLength]
	}
	return string(r) + "..."
}

func streamEvent(name string, data interface{}) domain.StreamEvent {
	b, err := json.Marshal(data)
	if err != nil {
		b, _ = json.Marshal(domain.ErrorEventData{Code: "encode_error", Message: err.Error()})
		name = domain.StreamEventError
	}
	return domain.StreamEvent{Event: name, Data: b}
}

package service

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/xiaot623/supportdesk/internal/domain"
)

func isTerminalRunStatus(status domain.RunStatus) bool {
	switch status {
	case domain.RunStatusDone, domain.RunStatusFailed, domain.RunStatusCancelled:
		return true
	}
	return false
}

func (s *Service) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if run == nil {
		return nil, ErrRunNotFound
	}
	return run, nil
}

func (s *Service) completeRun(ctx context.Context, t *turn, msg *domain.Message) {
	ctx = context.WithoutCancel(ctx)
	s.traceEvent(ctx, t.runID, domain.EventTypeRunDone, domain.RunDonePayload{
		MessageID: msg.ID,
		Responder: msg.Role,
		HasData:   msg.Data != nil,
	})
	if err := s.store.UpdateRunCompleted(ctx, t.runID, domain.RunStatusDone, nil); err != nil {
		s.logger.Error("failed to update run status", zap.String("run_id", t.runID), zap.Error(err))
	}
}

func (s *Service) failRun(ctx context.Context, runID, code, message string) {
	ctx = context.WithoutCancel(ctx)
	payload := domain.RunFailedPayload{Code: code, Message: message}
	s.logger.Error("run failed", zap.String("run_id", runID), zap.String("code", code), zap.String("message", message))
	s.traceEvent(ctx, runID, domain.EventTypeRunFailed, payload)

	errData, _ := json.Marshal(payload)
	if err := s.store.UpdateRunCompleted(ctx, runID, domain.RunStatusFailed, errData); err != nil {
		s.logger.Error("failed to update run status", zap.String("run_id", runID), zap.Error(err))
	}
}

// cancelRun marks a run abandoned by its client. It is a no-op for runs
// that already ended.
func (s *Service) cancelRun(ctx context.Context, runID, reason string) {
	ctx = context.WithoutCancel(ctx)
	run, err := s.store.GetRun(ctx, runID)
	if err != nil || run == nil || isTerminalRunStatus(run.Status) {
		return
	}
	s.traceEvent(ctx, runID, domain.EventTypeRunCancelled, map[string]interface{}{
		"reason": reason,
	})
	if err := s.store.UpdateRunCompleted(ctx, runID, domain.RunStatusCancelled, nil); err != nil {
		s.logger.Error("failed to cancel run", zap.String("run_id", runID), zap.Error(err))
	}
}

// Package service implements the support desk use cases on top of the
// routing pipeline and the store.
package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/xiaot623/supportdesk/internal/adapter/llm"
	"github.com/xiaot623/supportdesk/internal/agent"
	"github.com/xiaot623/supportdesk/internal/config"
	"github.com/xiaot623/supportdesk/internal/repository"
)

var (
	ErrInvalidRequest       = errors.New("invalid request")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrAgentNotFound        = errors.New("agent not found")
	ErrRunNotFound          = errors.New("run not found")
)

type Service struct {
	store        repository.Store
	orchestrator *agent.Orchestrator
	llmClient    llm.LLMClient
	config       *config.Config
	logger       *zap.Logger
}

func New(store repository.Store, orchestrator *agent.Orchestrator, llmClient llm.LLMClient, cfg *config.Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:        store,
		orchestrator: orchestrator,
		llmClient:    llmClient,
		config:       cfg,
		logger:       logger,
	}
}

// Orchestrator returns the routing pipeline.
func (s *Service) Orchestrator() *agent.Orchestrator {
	return s.orchestrator
}

// Ping checks the store.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

package helpers

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/xiaot623/supportdesk/internal/adapter/llm"
	"github.com/xiaot623/supportdesk/internal/agent"
	"github.com/xiaot623/supportdesk/internal/config"
	"github.com/xiaot623/supportdesk/internal/policy"
	"github.com/xiaot623/supportdesk/internal/repository"
	"github.com/xiaot623/supportdesk/internal/service"
	"github.com/xiaot623/supportdesk/internal/tools"
)

// TestConfig returns a configuration suitable for tests.
func TestConfig() *config.Config {
	return &config.Config{
		Mode:           llm.ModeMock,
		LLMModel:       "mock-support-model",
		ModelTimeout:   5 * time.Second,
		ToolTimeout:    time.Second,
		HistoryLimit:   20,
		DefaultUserID:  repository.DemoUserID,
		DatabaseDriver: repository.DriverSQLite,
		RateLimitAPI:   config.RateLimit{Requests: 100, Window: time.Minute, Message: "Too many API requests."},
		RateLimitChat:  config.RateLimit{Requests: 20, Window: time.Minute, Message: "Too many messages."},
	}
}

// NewTestService builds the full pipeline on a seeded in-memory store
// with the given model client.
func NewTestService(t *testing.T, client llm.LLMClient) (*service.Service, *repository.SQLStore) {
	t.Helper()

	cfg := TestConfig()
	store := NewSeededStore(t)

	engine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	if err != nil {
		t.Fatalf("failed to create policy engine: %v", err)
	}

	logger := zap.NewNop()
	exec := agent.NewEngine(agent.Options{
		LLM:          client,
		Model:        cfg.LLMModel,
		Profiles:     agent.NewProfileSet(nil),
		Tools:        tools.NewBuiltinRegistry(store),
		Policy:       engine,
		ModelTimeout: cfg.ModelTimeout,
		ToolTimeout:  cfg.ToolTimeout,
		Logger:       logger,
	})
	classifier := agent.NewClassifier(client, cfg.LLMModel, cfg.ModelTimeout, logger)
	orch := agent.NewOrchestrator(classifier, exec)

	return service.New(store, orch, client, cfg, logger), store
}

// NewMockService is NewTestService with the scripted mock model.
func NewMockService(t *testing.T) (*service.Service, *repository.SQLStore) {
	t.Helper()
	return NewTestService(t, llm.NewMockClient())
}

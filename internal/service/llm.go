package service

import (
	"context"
	"fmt"

	"github.com/xiaot623/supportdesk/internal/adapter/llm"
)

// ListModels lists the models offered by the model endpoint.
func (s *Service) ListModels(ctx context.Context) ([]llm.Model, error) {
	models, err := s.llmClient.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	return models, nil
}

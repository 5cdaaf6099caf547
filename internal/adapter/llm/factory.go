package llm

import (
	"strings"
	"time"

	"go.uber.org/zap"
)

// ModeMock selects the scripted mock client.
const ModeMock = "MOCK"

// NewLLMClient returns the scripted MockClient when mode is MOCK and a
// real Client otherwise.
func NewLLMClient(mode, baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) LLMClient {
	if strings.EqualFold(mode, ModeMock) {
		logger.Info("mock mode enabled, using scripted LLM client")
		return NewMockClient()
	}
	logger.Info("using LLM endpoint", zap.String("base_url", baseURL))
	return NewClient(baseURL, apiKey, timeout)
}

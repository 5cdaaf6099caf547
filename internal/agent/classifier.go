package agent

import (
	"context"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xiaot623/supportdesk/internal/adapter/llm"
	"github.com/xiaot623/supportdesk/internal/domain"
	"github.com/xiaot623/supportdesk/internal/metrics"
)

var delegatePattern = regexp.MustCompile(`(?i)DELEGATE_TO:\s*(support|order|billing)`)

var (
	orderKeywords   = []string{"order", "tracking", "delivery", "ship"}
	billingKeywords = []string{"bill", "refund", "charge", "invoice", "payment"}
)

// FallbackRoute picks a responder by keyword. Order keywords are checked
// before billing keywords.
func FallbackRoute(message string) domain.ResponderID {
	q := strings.ToLower(message)
	if containsAny(q, orderKeywords) {
		return domain.ResponderOrder
	}
	if containsAny(q, billingKeywords) {
		return domain.ResponderBilling
	}
	return domain.ResponderSupport
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// ParseDelegation extracts the responder from a router reply.
func ParseDelegation(text string) (domain.ResponderID, bool) {
	m := delegatePattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return domain.ResponderID(strings.ToLower(m[1])), true
}

// Classification is the outcome of routing one message.
type Classification struct {
	Responder domain.ResponderID
	Source    domain.RouteSource
	Analysis  string
}

// Classifier asks the model which responder should handle a message.
type Classifier struct {
	llm     llm.LLMClient
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

// NewClassifier creates a classifier. A zero timeout disables the per-call deadline.
func NewClassifier(client llm.LLMClient, model string, timeout time.Duration, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{llm: client, model: model, timeout: timeout, logger: logger}
}

// Classify returns the responder for message. It never fails: model errors
// and unparseable replies fall back to keyword routing.
func (c *Classifier) Classify(ctx context.Context, message string) domain.ResponderID {
	return c.Route(ctx, message).Responder
}

// Route is Classify with the routing source and the model's analysis.
func (c *Classifier) Route(ctx context.Context, message string) Classification {
	res := c.route(ctx, message)
	metrics.RoutesTotal.WithLabelValues(string(res.Responder), string(res.Source)).Inc()
	return res
}

func (c *Classifier) route(ctx context.Context, message string) Classification {
	fallback := Classification{Responder: FallbackRoute(message), Source: domain.RouteSourceFallback}

	callCtx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.llm.CreateChatCompletion(callCtx, &llm.ChatCompletionRequest{
		Model: c.model,
		Messages: []llm.ChatMessage{
			{Role: "system", Content: RouterPrompt},
			{Role: "user", Content: message},
		},
	})
	metrics.ModelLatency.WithLabelValues("route").Observe(time.Since(start).Seconds())
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Warn("router model call failed, using keyword fallback", zap.Error(err))
		}
		return fallback
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message == nil {
		return fallback
	}

	text := resp.Choices[0].Message.Content
	id, ok := ParseDelegation(text)
	if !ok {
		c.logger.Debug("router reply had no delegation, using keyword fallback", zap.String("reply", text))
		return fallback
	}
	return Classification{Responder: id, Source: domain.RouteSourceModel, Analysis: analysisOf(text)}
}

func analysisOf(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if rest, ok := strings.CutPrefix(strings.TrimSpace(line), "ANALYSIS:"); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

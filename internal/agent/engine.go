package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xiaot623/supportdesk/internal/adapter/llm"
	"github.com/xiaot623/supportdesk/internal/domain"
	"github.com/xiaot623/supportdesk/internal/metrics"
	"github.com/xiaot623/supportdesk/internal/policy"
	"github.com/xiaot623/supportdesk/internal/tools"
)

// MaxSteps bounds the number of model calls in one delegated execution.
const MaxSteps = 5

const (
	// FallbackText replaces an empty final reply.
	FallbackText = "I've processed your request. Is there anything else I can help with?"
	// ApologyText is the reply when the model cannot be reached.
	ApologyText = "I'm sorry, I encountered an issue while processing your request. Please try again."
)

// Step is one model round.
type Step struct {
	Index        int              `json:"index"`
	Text         string           `json:"text"`
	ToolCalls    []ToolInvocation `json:"tool_calls,omitempty"`
	FinishReason string           `json:"finish_reason,omitempty"`
}

// ToolInvocation is one tool call requested by the model and its outcome.
// Exactly one of Result and Error is set once the call has run.
type ToolInvocation struct {
	ID     string            `json:"id"`
	Name   string            `json:"name"`
	Args   json.RawMessage   `json:"args"`
	Result domain.ToolResult `json:"result,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// AgentResult is the outcome of a delegated execution.
type AgentResult struct {
	Role      domain.ResponderID `json:"role"`
	AgentName string             `json:"agent_name"`
	Content   string             `json:"content"`
	Data      *domain.RichData   `json:"data,omitempty"`
	Reasoning string             `json:"reasoning,omitempty"`
	Steps     []Step             `json:"-"`
}

// ExecuteRequest is the input to a delegated execution.
type ExecuteRequest struct {
	Responder      domain.ResponderID
	Message        string
	UserID         string
	ConversationID string
	History        []domain.HistoryMessage
	// Observer receives trace callbacks; nil means none.
	Observer Observer
}

// PolicyEvaluator decides whether a tool call may run.
type PolicyEvaluator interface {
	Evaluate(ctx context.Context, in policy.Input) (policy.Decision, error)
}

// Options configures an Engine.
type Options struct {
	LLM          llm.LLMClient
	Model        string
	Profiles     *ProfileSet
	Tools        *tools.Registry
	Policy       PolicyEvaluator
	ModelTimeout time.Duration
	ToolTimeout  time.Duration
	Logger       *zap.Logger
}

// Engine runs a responder against the model with its tool subset.
type Engine struct {
	llm          llm.LLMClient
	model        string
	profiles     *ProfileSet
	tools        *tools.Registry
	policy       PolicyEvaluator
	modelTimeout time.Duration
	toolTimeout  time.Duration
	logger       *zap.Logger
}

// NewEngine creates an engine.
func NewEngine(opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Profiles == nil {
		opts.Profiles = NewProfileSet(nil)
	}
	if opts.Tools == nil {
		opts.Tools = tools.NewRegistry()
	}
	return &Engine{
		llm:          opts.LLM,
		model:        opts.Model,
		profiles:     opts.Profiles,
		tools:        opts.Tools,
		policy:       opts.Policy,
		modelTimeout: opts.ModelTimeout,
		toolTimeout:  opts.ToolTimeout,
		logger:       opts.Logger,
	}
}

// Profiles returns the profile set the engine runs with.
func (e *Engine) Profiles() *ProfileSet {
	return e.profiles
}

// Tools returns the registry the engine executes against.
func (e *Engine) Tools() *tools.Registry {
	return e.tools
}

// Execute runs the responder to completion. Model failures produce the
// apology reply rather than an error.
func (e *Engine) Execute(ctx context.Context, req ExecuteRequest) AgentResult {
	profile := e.profiles.Get(req.Responder)
	steps, err := e.run(ctx, profile, req, e.complete)
	if err != nil {
		if ctx.Err() == nil {
			e.logger.Error("responder execution failed",
				zap.String("responder", string(profile.ID)),
				zap.Error(err))
		}
		return AgentResult{Role: profile.ID, AgentName: profile.Name, Content: ApologyText, Steps: steps}
	}
	return e.finish(profile, steps)
}

// completeFunc performs one model call and returns the assistant message
// and finish reason.
type completeFunc func(ctx context.Context, req *llm.ChatCompletionRequest) (llm.ChatMessage, string, *llm.Usage, error)

func (e *Engine) complete(ctx context.Context, req *llm.ChatCompletionRequest) (llm.ChatMessage, string, *llm.Usage, error) {
	resp, err := e.llm.CreateChatCompletion(ctx, req)
	if err != nil {
		return llm.ChatMessage{}, "", nil, err
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message == nil {
		return llm.ChatMessage{}, "", resp.Usage, errors.New("model returned no choices")
	}
	return *resp.Choices[0].Message, resp.Choices[0].FinishReason, resp.Usage, nil
}

// run is the step loop shared by Execute and ExecuteStream.
func (e *Engine) run(ctx context.Context, profile Profile, req ExecuteRequest, complete completeFunc) ([]Step, error) {
	obs := observerOrNop(req.Observer)
	messages := make([]llm.ChatMessage, 0, len(req.History)+2)
	messages = append(messages, llm.ChatMessage{Role: "system", Content: profile.Prompt})
	for _, h := range req.History {
		messages = append(messages, llm.ChatMessage{Role: h.Role, Content: h.Content})
	}
	messages = append(messages, llm.ChatMessage{Role: "user", Content: req.Message})
	defs := e.toolDefinitions(profile)

	var steps []Step
	for i := 0; i < MaxSteps; i++ {
		callCtx, cancel := withTimeout(ctx, e.modelTimeout)
		start := time.Now()
		msg, finish, usage, err := complete(callCtx, &llm.ChatCompletionRequest{
			Model:    e.model,
			Messages: messages,
			Tools:    defs,
		})
		cancel()
		elapsed := time.Since(start)
		metrics.ModelLatency.WithLabelValues("execute").Observe(elapsed.Seconds())
		obs.ModelCallDone(i, usage, elapsed, err)
		if err != nil {
			return steps, fmt.Errorf("model call %d failed: %w", i+1, err)
		}

		step := Step{Index: i, Text: msg.Content, FinishReason: finish}
		if len(msg.ToolCalls) == 0 {
			steps = append(steps, step)
			break
		}

		step.ToolCalls = e.runTools(ctx, profile, req, i, msg.ToolCalls)
		steps = append(steps, step)

		messages = append(messages, llm.ChatMessage{Role: "assistant", Content: msg.Content, ToolCalls: msg.ToolCalls})
		for _, inv := range step.ToolCalls {
			messages = append(messages, llm.ChatMessage{Role: "tool", ToolCallID: inv.ID, Content: toolMessage(inv)})
		}
	}
	metrics.ExecutionSteps.Observe(float64(len(steps)))
	return steps, nil
}

func (e *Engine) finish(profile Profile, steps []Step) AgentResult {
	res := AgentResult{
		Role:      profile.ID,
		AgentName: profile.Name,
		Content:   FallbackText,
		Data:      ExtractRichData(steps),
		Steps:     steps,
	}
	if n := len(steps); n > 0 && strings.TrimSpace(steps[n-1].Text) != "" {
		res.Content = steps[n-1].Text
	}
	if len(steps) > 1 {
		res.Reasoning = fmt.Sprintf("Used %d steps to process your request.", len(steps))
	}
	return res
}

func (e *Engine) toolDefinitions(profile Profile) []llm.Tool {
	var defs []llm.Tool
	for _, name := range profile.Tools {
		t, ok := e.tools.Get(name)
		if !ok {
			continue
		}
		defs = append(defs, llm.FunctionTool(t.Name, t.Description, t.Schema))
	}
	return defs
}

// runTools executes one batch concurrently. Results keep the model's order.
func (e *Engine) runTools(ctx context.Context, profile Profile, req ExecuteRequest, step int, calls []llm.ToolCall) []ToolInvocation {
	out := make([]ToolInvocation, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		g.Go(func() error {
			out[i] = e.runTool(gctx, profile, req, step, call)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (e *Engine) runTool(ctx context.Context, profile Profile, req ExecuteRequest, step int, call llm.ToolCall) ToolInvocation {
	obs := observerOrNop(req.Observer)
	inv := ToolInvocation{ID: call.ID, Name: call.Function.Name, Args: json.RawMessage(call.Function.Arguments)}
	if len(inv.Args) == 0 || !json.Valid(inv.Args) {
		inv.Args = json.RawMessage(`{}`)
	}

	outcome := "ok"
	defer func() {
		metrics.ToolCallsTotal.WithLabelValues(inv.Name, outcome).Inc()
		obs.ToolCallDone(step, inv)
	}()

	if !profile.Allows(inv.Name) {
		outcome = "denied"
		inv.Error = fmt.Sprintf("tool %s is not available to the %s", inv.Name, profile.Name)
		return inv
	}

	if e.policy != nil {
		var mutating bool
		if t, ok := e.tools.Get(inv.Name); ok {
			mutating = t.Mutating
		}
		decision, err := e.policy.Evaluate(ctx, policy.Input{
			Responder:    string(profile.ID),
			ToolName:     inv.Name,
			AllowedTools: profile.Tools,
			UserID:       req.UserID,
			Mutating:     mutating,
			Args:         json.RawMessage(call.Function.Arguments),
		})
		if err != nil {
			e.logger.Error("policy evaluation failed", zap.String("tool", inv.Name), zap.Error(err))
			outcome = "blocked"
			inv.Error = "tool call could not be authorised"
			return inv
		}
		obs.PolicyDecision(step, inv.Name, decision)
		if !decision.Allowed() {
			outcome = "blocked"
			inv.Error = "tool call blocked: " + decision.Reason
			return inv
		}
	}

	if call.Function.Arguments != "" && !json.Valid([]byte(call.Function.Arguments)) {
		outcome = "invalid"
		inv.Error = fmt.Sprintf("invalid arguments for %s: arguments are not valid JSON", inv.Name)
		return inv
	}

	toolCtx, cancel := withTimeout(ctx, e.toolTimeout)
	defer cancel()
	res, err := e.tools.Execute(toolCtx, tools.ToolContext{UserID: req.UserID, ConversationID: req.ConversationID}, inv.Name, inv.Args)
	if err != nil {
		var verr *tools.ValidationError
		if errors.As(err, &verr) {
			outcome = "invalid"
			inv.Error = verr.Error()
			return inv
		}
		outcome = "error"
		e.logger.Warn("tool execution failed", zap.String("tool", inv.Name), zap.Error(err))
		inv.Error = fmt.Sprintf("tool %s failed: %v", inv.Name, err)
		return inv
	}
	inv.Result = res
	return inv
}

// toolMessage renders an invocation outcome as the tool message content.
func toolMessage(inv ToolInvocation) string {
	if inv.Error != "" {
		b, _ := json.Marshal(map[string]string{"error": inv.Error})
		return string(b)
	}
	b, err := json.Marshal(inv.Result)
	if err != nil {
		return `{"error":"tool result could not be encoded"}`
	}
	return string(b)
}

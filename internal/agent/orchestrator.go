package agent

import (
	"context"
	"fmt"

	"github.com/xiaot623/supportdesk/internal/domain"
	"github.com/xiaot623/supportdesk/internal/tools"
)

// Routing is the router's decision plus the notice shown to the customer.
type Routing struct {
	Responder domain.ResponderID
	Source    domain.RouteSource
	Analysis  string
	AgentName string
	Notice    string
}

// RoutingNotice is the customer-facing hand-off line for a responder.
func RoutingNotice(id domain.ResponderID) string {
	return fmt.Sprintf("I'll connect you with our %s Agent to assist you.", id.Display())
}

// Request is one customer message entering the pipeline.
type Request struct {
	Message        string
	UserID         string
	ConversationID string
	History        []domain.HistoryMessage
	Observer       Observer
}

// Outcome is the result of a non-streaming Process call.
type Outcome struct {
	Routing Routing
	Result  AgentResult
}

// Orchestrator classifies a message and delegates it to a responder.
type Orchestrator struct {
	classifier *Classifier
	engine     *Engine
}

// NewOrchestrator wires a classifier and an engine together.
func NewOrchestrator(classifier *Classifier, engine *Engine) *Orchestrator {
	return &Orchestrator{classifier: classifier, engine: engine}
}

// Profiles exposes the engine's profiles for catalogue endpoints.
func (o *Orchestrator) Profiles() *ProfileSet {
	return o.engine.Profiles()
}

// Tools exposes the engine's tool registry.
func (o *Orchestrator) Tools() *tools.Registry {
	return o.engine.Tools()
}

// Classify routes message without executing a responder.
func (o *Orchestrator) Classify(ctx context.Context, message string) Routing {
	c := o.classifier.Route(ctx, message)
	return routingFor(c)
}

func routingFor(c Classification) Routing {
	return Routing{
		Responder: c.Responder,
		Source:    c.Source,
		Analysis:  c.Analysis,
		AgentName: RouterName,
		Notice:    RoutingNotice(c.Responder),
	}
}

// Process runs classify, delegate and extract for one message. The only
// error is the context's, when the caller gave up.
func (o *Orchestrator) Process(ctx context.Context, req Request) (Outcome, error) {
	c := o.classifier.Route(ctx, req.Message)
	observerOrNop(req.Observer).Routed(c)
	routing := routingFor(c)

	res := o.engine.Execute(ctx, o.executeRequest(req, c.Responder))
	if err := ctx.Err(); err != nil {
		return Outcome{Routing: routing}, err
	}
	return Outcome{Routing: routing, Result: res}, nil
}

// ProcessStream starts the pipeline in the background. Route blocks until
// classification is done; Deltas then carries the responder's text.
func (o *Orchestrator) ProcessStream(ctx context.Context, req Request) *Stream {
	s := newStream(StateAwaitingClassification)
	go func() {
		c := o.classifier.Route(ctx, req.Message)
		observerOrNop(req.Observer).Routed(c)
		s.setRoute(routingFor(c))
		if err := ctx.Err(); err != nil {
			s.finish(nil, err)
			return
		}
		o.engine.stream(ctx, s, o.executeRequest(req, c.Responder))
	}()
	return s
}

func (o *Orchestrator) executeRequest(req Request, id domain.ResponderID) ExecuteRequest {
	return ExecuteRequest{
		Responder:      id,
		Message:        req.Message,
		UserID:         req.UserID,
		ConversationID: req.ConversationID,
		History:        req.History,
		Observer:       req.Observer,
	}
}

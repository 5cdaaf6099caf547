package agent

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/xiaot623/supportdesk/internal/adapter/llm"
	"github.com/xiaot623/supportdesk/internal/metrics"
)

// StreamState is the lifecycle position of a Stream.
type StreamState int

const (
	StateAwaitingClassification StreamState = iota
	StateExecuting
	StateStreamingText
	StateAwaitingFinal
	StateDone
	StateErrored
)

func (s StreamState) String() string {
	switch s {
	case StateAwaitingClassification:
		return "awaiting-classification"
	case StateExecuting:
		return "executing"
	case StateStreamingText:
		return "streaming-text"
	case StateAwaitingFinal:
		return "awaiting-final"
	case StateDone:
		return "done"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Stream is a running streamed execution. Consumers must either drain
// Deltas until it closes or cancel the context passed to ExecuteStream.
type Stream struct {
	deltas chan string
	routed chan struct{}
	done   chan struct{}

	mu     sync.Mutex
	state  StreamState
	route  Routing
	result *AgentResult
	err    error
}

func newStream(initial StreamState) *Stream {
	s := &Stream{
		deltas: make(chan string),
		routed: make(chan struct{}),
		done:   make(chan struct{}),
		state:  initial,
	}
	if initial != StateAwaitingClassification {
		close(s.routed)
	}
	return s
}

// Deltas yields text fragments as the model produces them. It is closed
// when the execution ends, successfully or not.
func (s *Stream) Deltas() <-chan string {
	return s.deltas
}

// Route blocks until classification finishes and returns it. For streams
// started by Engine.ExecuteStream it returns immediately with a zero Routing.
func (s *Stream) Route() Routing {
	<-s.routed
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.route
}

// Result blocks until the execution has finished and the delta channel is
// closed. A model failure or cancellation is returned as the error.
func (s *Stream) Result() (*AgentResult, error) {
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, s.err
}

// State returns the current lifecycle state.
func (s *Stream) State() StreamState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Stream) setState(st StreamState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Stream) setRoute(r Routing) {
	s.mu.Lock()
	s.route = r
	s.state = StateExecuting
	s.mu.Unlock()
	close(s.routed)
}

func (s *Stream) finish(res *AgentResult, err error) {
	close(s.deltas)
	s.mu.Lock()
	s.result = res
	s.err = err
	if err != nil {
		s.state = StateErrored
	} else {
		s.state = StateDone
	}
	s.mu.Unlock()
	close(s.done)
}

// ExecuteStream starts the responder and streams its text. Unlike Execute,
// a model failure is surfaced through Result's error.
func (e *Engine) ExecuteStream(ctx context.Context, req ExecuteRequest) *Stream {
	s := newStream(StateExecuting)
	go e.stream(ctx, s, req)
	return s
}

func (e *Engine) stream(ctx context.Context, s *Stream, req ExecuteRequest) {
	metrics.ActiveStreams.Inc()
	defer metrics.ActiveStreams.Dec()

	profile := e.profiles.Get(req.Responder)
	steps, err := e.run(ctx, profile, req, e.streamingComplete(s))
	s.setState(StateAwaitingFinal)
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		} else {
			e.logger.Error("streamed responder execution failed",
				zap.String("responder", string(profile.ID)),
				zap.Error(err))
		}
		s.finish(nil, err)
		return
	}
	res := e.finish(profile, steps)
	s.finish(&res, nil)
}

// streamingComplete performs a model call in streaming mode, forwarding
// every non-empty text fragment to the consumer before reading the next chunk.
func (e *Engine) streamingComplete(s *Stream) completeFunc {
	return func(ctx context.Context, req *llm.ChatCompletionRequest) (llm.ChatMessage, string, *llm.Usage, error) {
		var acc llm.StreamAccumulator
		usage, err := e.llm.CreateChatCompletionStream(ctx, req, func(chunk *llm.StreamChunk) error {
			text := acc.Add(chunk)
			if text == "" {
				return nil
			}
			s.setState(StateStreamingText)
			select {
			case s.deltas <- text:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		s.setState(StateExecuting)
		if err != nil {
			return llm.ChatMessage{}, "", usage, err
		}
		return acc.Message(), acc.FinishReason(), usage, nil
	}
}

package agent

import (
	"time"

	"github.com/xiaot623/supportdesk/internal/adapter/llm"
	"github.com/xiaot623/supportdesk/internal/policy"
)

// Observer receives trace callbacks from the pipeline. Tool callbacks may
// arrive concurrently from one batch.
type Observer interface {
	Routed(c Classification)
	ModelCallDone(step int, usage *llm.Usage, elapsed time.Duration, err error)
	PolicyDecision(step int, tool string, d policy.Decision)
	ToolCallDone(step int, inv ToolInvocation)
}

type nopObserver struct{}

func (nopObserver) Routed(Classification)                               {}
func (nopObserver) ModelCallDone(int, *llm.Usage, time.Duration, error) {}
func (nopObserver) PolicyDecision(int, string, policy.Decision)         {}
func (nopObserver) ToolCallDone(int, ToolInvocation)                    {}

func observerOrNop(o Observer) Observer {
	if o == nil {
		return nopObserver{}
	}
	return o
}

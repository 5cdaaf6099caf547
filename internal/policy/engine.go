// Package policy evaluates tool-call policy with OPA.
package policy

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// Decision values returned by the policy.
const (
	DecisionAllow = "allow"
	DecisionBlock = "block"
)

// Input is the document the tool policy is evaluated against.
type Input struct {
	Responder    string          `json:"responder"`
	ToolName     string          `json:"tool_name"`
	AllowedTools []string        `json:"allowed_tools"`
	UserID       string          `json:"user_id"`
	Mutating     bool            `json:"mutating"`
	Args         json.RawMessage `json:"args,omitempty"`
}

// Decision is the outcome of a policy evaluation.
type Decision struct {
	Decision string `json:"decision"`
	Reason   string `json:"reason,omitempty"`
}

// Allowed reports whether the call may proceed.
func (d Decision) Allowed() bool {
	return d.Decision == DecisionAllow
}

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.tool_policy.decision"),
		rego.Module("tool_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Evaluate runs the tool policy for one call.
func (e *Engine) Evaluate(ctx context.Context, in Input) (Decision, error) {
	var args interface{}
	if len(in.Args) > 0 {
		if err := json.Unmarshal(in.Args, &args); err != nil {
			args = nil
		}
	}
	allowed := in.AllowedTools
	if allowed == nil {
		allowed = []string{}
	}
	doc := map[string]interface{}{
		"responder":     in.Responder,
		"tool_name":     in.ToolName,
		"allowed_tools": allowed,
		"user_id":       in.UserID,
		"mutating":      in.Mutating,
		"args":          args,
	}

	results, err := e.query.Eval(ctx, rego.EvalInput(doc))
	if err != nil {
		return Decision{}, fmt.Errorf("failed to evaluate policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return Decision{Decision: DecisionBlock, Reason: "policy produced no decision"}, nil
	}

	switch v := results[0].Expressions[0].Value.(type) {
	case string:
		return Decision{Decision: v}, nil
	case map[string]interface{}:
		d := Decision{}
		d.Decision, _ = v["decision"].(string)
		d.Reason, _ = v["reason"].(string)
		if d.Decision == "" {
			d.Decision = DecisionBlock
		}
		return d, nil
	default:
		return Decision{Decision: DecisionBlock, Reason: "unexpected policy result type"}, nil
	}
}

// DefaultPolicy is the default policy content.
const DefaultPolicy = `
package tool_policy

default decision = {"decision": "allow"}

decision = {"decision": "block", "reason": reason} {
	not tool_allowed
	reason := sprintf("tool %s is not available to the %s responder", [input.tool_name, input.responder])
} else = {"decision": "block", "reason": "this action requires an identified customer"} {
	input.mutating
	anonymous
}

tool_allowed {
	input.allowed_tools[_] == input.tool_name
}

anonymous {
	input.user_id == ""
}

anonymous {
	input.user_id == "anonymous"
}
`

// Package tools holds the named tools responders may call, with JSON-Schema
// validated inputs.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/xiaot623/supportdesk/internal/domain"
)

// ToolContext carries caller identity into a tool. Tools never read the
// user from model-supplied arguments.
type ToolContext struct {
	UserID         string
	ConversationID string
}

// ExecutorFunc runs a tool against already-validated arguments.
type ExecutorFunc func(ctx context.Context, tc ToolContext, args json.RawMessage) (domain.ToolResult, error)

// Tool is a named capability advertised to the model.
type Tool struct {
	Name        string
	Description string
	Schema      json.RawMessage
	// Mutating tools change stored state.
	Mutating bool
	Execute  ExecutorFunc

	compiled *gojsonschema.Schema
}

// ErrUnknownTool is returned for names that were never registered.
var ErrUnknownTool = errors.New("unknown tool")

// ValidationError lists every schema violation found in a tool call.
type ValidationError struct {
	Tool   string
	Issues []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %s", e.Tool, strings.Join(e.Issues, "; "))
}

// Registry stores tools keyed by name.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]*Tool),
	}
}

// Register compiles the tool's schema and adds it.
func (r *Registry) Register(t Tool) error {
	if t.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if t.Execute == nil {
		return fmt.Errorf("executor is required for %s", t.Name)
	}
	if len(t.Schema) == 0 {
		t.Schema = json.RawMessage(`{"type":"object"}`)
	}
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(t.Schema))
	if err != nil {
		return fmt.Errorf("invalid schema for %s: %w", t.Name, err)
	}
	t.compiled = compiled

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("tool already registered: %s", t.Name)
	}
	r.tools[t.Name] = &t
	return nil
}

// MustRegister adds a tool or panics.
func (r *Registry) MustRegister(t Tool) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}

// Get returns the named tool.
func (r *Registry) Get(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns every registered tool name in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks args against the tool's input schema.
func (r *Registry) Validate(name string, args json.RawMessage) error {
	t, ok := r.Get(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	if len(strings.TrimSpace(string(args))) == 0 {
		args = json.RawMessage(`{}`)
	}
	res, err := t.compiled.Validate(gojsonschema.NewBytesLoader(args))
	if err != nil {
		return &ValidationError{Tool: name, Issues: []string{"arguments are not valid JSON"}}
	}
	if res.Valid() {
		return nil
	}
	issues := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		issues = append(issues, e.String())
	}
	return &ValidationError{Tool: name, Issues: issues}
}

// Execute validates args and runs the tool.
func (r *Registry) Execute(ctx context.Context, tc ToolContext, name string, args json.RawMessage) (domain.ToolResult, error) {
	if err := r.Validate(name, args); err != nil {
		return nil, err
	}
	t, _ := r.Get(name)
	if len(strings.TrimSpace(string(args))) == 0 {
		args = json.RawMessage(`{}`)
	}
	return t.Execute(ctx, tc, args)
}

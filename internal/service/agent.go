package service

import (
	"context"

	"github.com/xiaot623/supportdesk/internal/agent"
	"github.com/xiaot623/supportdesk/internal/domain"
)

// ToolInfo describes a tool in the agent catalogue.
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Mutating    bool   `json:"mutating,omitempty"`
}

// AgentInfo is one entry of the agent catalogue.
type AgentInfo struct {
	Type         string     `json:"type"`
	Name         string     `json:"name"`
	Description  string     `json:"description"`
	Status       string     `json:"status"`
	Capabilities []string   `json:"capabilities"`
	Tools        []ToolInfo `json:"tools"`
}

const routerType = "router"

var routerInfo = AgentInfo{
	Type:        routerType,
	Name:        "Router Agent",
	Description: "Analyzes incoming customer queries and delegates to the appropriate specialized agent",
	Status:      "active",
	Capabilities: []string{
		"Intent classification",
		"Query analysis",
		"Agent delegation",
		"Fallback handling",
	},
	Tools: []ToolInfo{},
}

// ListAgents returns the router followed by every responder.
func (s *Service) ListAgents(ctx context.Context) []AgentInfo {
	profiles := s.orchestrator.Profiles().All()
	out := make([]AgentInfo, 0, len(profiles)+1)
	out = append(out, routerInfo)
	for _, p := range profiles {
		out = append(out, s.agentInfo(p))
	}
	return out
}

// GetAgent looks up a catalogue entry by type. Unlike profile lookup it
// does not fall back to support.
func (s *Service) GetAgent(ctx context.Context, agentType string) (*AgentInfo, error) {
	if agentType == routerType {
		info := routerInfo
		return &info, nil
	}
	id := domain.ResponderID(agentType)
	if !id.Valid() {
		return nil, ErrAgentNotFound
	}
	info := s.agentInfo(s.orchestrator.Profiles().Get(id))
	return &info, nil
}

func (s *Service) agentInfo(p agent.Profile) AgentInfo {
	tools := make([]ToolInfo, 0, len(p.Tools))
	for _, name := range p.Tools {
		info := ToolInfo{Name: name}
		if t, ok := s.orchestrator.Tools().Get(name); ok {
			info.Description = t.Description
			info.Mutating = t.Mutating
		}
		tools = append(tools, info)
	}
	return AgentInfo{
		Type:         string(p.ID),
		Name:         p.Name,
		Description:  p.Description,
		Status:       "active",
		Capabilities: p.Capabilities,
		Tools:        tools,
	}
}

// Classify routes a message without running a responder.
func (s *Service) Classify(ctx context.Context, message string) agent.Routing {
	return s.orchestrator.Classify(ctx, message)
}

package rtagent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/codewandler/rtagent-go/events"
	"github.com/codewandler/rtagent-go/tool"
)

// RealtimeAgent is one conversational persona: its instructions, the tools
// it may call, the agents it can hand the conversation to, and the output
// guardrails applied to what it says.
type RealtimeAgent struct {
	Name string

	Instructions string

	// InstructionsFunc, when set, resolves instructions dynamically and
	// takes precedence over the static Instructions string.
	InstructionsFunc func(ctx context.Context, history []RealtimeItem) (string, error)

	HandoffDescription string

	Tools      []tool.Tool
	Handoffs   []*RealtimeAgent
	MCPServers []tool.MCPServer

	OutputGuardrails []Guardrail

	Voice string
}

// SystemInstructions resolves the agent's instructions for the given
// history snapshot.
func (a *RealtimeAgent) SystemInstructions(ctx context.Context, history []RealtimeItem) (string, error) {
	if a.InstructionsFunc != nil {
		return a.InstructionsFunc(ctx, history)
	}
	return a.Instructions, nil
}

// HandoffToolName is the function name the model calls to transfer the
// conversation to this agent.
func (a *RealtimeAgent) HandoffToolName() string {
	return "transfer_to_" + toSnake(a.Name)
}

func (a *RealtimeAgent) handoffToolDefinition() events.ToolDefinition {
	description := a.HandoffDescription
	if description == "" {
		description = fmt.Sprintf("Handoff to the %s agent to handle the request.", a.Name)
	}
	params, _ := json.Marshal(map[string]any{
		"type":                 "object",
		"properties":           map[string]any{},
		"additionalProperties": false,
	})
	return events.ToolDefinition{
		Type:        "function",
		Name:        a.HandoffToolName(),
		Description: description,
		Parameters:  params,
	}
}

// toolDefinitions is the full wire tool set for this agent: its function
// tools, one synthetic handoff tool per target, and its MCP servers.
func (a *RealtimeAgent) toolDefinitions() []events.ToolDefinition {
	defs := make([]events.ToolDefinition, 0, len(a.Tools)+len(a.Handoffs)+len(a.MCPServers))
	for _, t := range a.Tools {
		defs = append(defs, t.Definition())
	}
	for _, target := range a.Handoffs {
		defs = append(defs, target.handoffToolDefinition())
	}
	for _, server := range a.MCPServers {
		defs = append(defs, server.Definition())
	}
	return defs
}

func (a *RealtimeAgent) toolByName(name string) (tool.Tool, bool) {
	for _, t := range a.Tools {
		if t.Name == name {
			return t, true
		}
	}
	return tool.Tool{}, false
}

func (a *RealtimeAgent) handoffByToolName(name string) (*RealtimeAgent, bool) {
	for _, target := range a.Handoffs {
		if target.HandoffToolName() == name {
			return target, true
		}
	}
	return nil, false
}

func toSnake(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			out = append(out, r)
		case r == ' ' || r == '-' || r == '_':
			out = append(out, '_')
		}
	}
	return string(out)
}

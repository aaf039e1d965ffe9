package tool

import (
	"context"
	"encoding/json"

	"github.com/codewandler/rtagent-go/events"
)

type Choice string

const (
	ChoiceAuto     Choice = "auto"
	ChoiceNone     Choice = "none"
	ChoiceRequired Choice = "required"
)

type Parameters struct {
	Type       string     `json:"type"`
	Properties Properties `json:"properties"`
	Required   []string   `json:"required,omitempty"`
}

type Properties map[string]Property

type Property struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Enum        []any  `json:"enum,omitempty"`
}

// Tool is a locally defined function tool the model may call.
type Tool struct {
	Name        string
	Description string
	Parameters  Parameters
	Strict      bool

	// NeedsApproval gates execution behind an explicit caller decision.
	NeedsApproval bool

	// Background tools produce output without prompting a new response.
	Background bool

	Invoke func(ctx context.Context, args map[string]any) (any, error)
}

// Definition converts the tool to its wire form.
func (t Tool) Definition() events.ToolDefinition {
	params, _ := json.Marshal(t.Parameters)
	return events.ToolDefinition{
		Type:        "function",
		Name:        t.Name,
		Description: t.Description,
		Parameters:  params,
		Strict:      t.Strict,
	}
}

package tool

import "github.com/codewandler/rtagent-go/events"

type ApprovalMode string

const (
	ApprovalNever  ApprovalMode = "never"
	ApprovalAlways ApprovalMode = "always"
)

// ApprovalFilter lists tool names with a per-tool approval decision. Used
// when a server needs approval for some tools but not others.
type ApprovalFilter struct {
	Always []string `json:"always,omitempty"`
	Never  []string `json:"never,omitempty"`
}

// MCPServer describes a hosted tool provider the model connects to
// directly. The client never invokes these tools itself; it only tracks
// their availability and answers approval requests.
type MCPServer struct {
	ServerLabel     string
	ServerURL       string
	AllowedTools    []string
	RequireApproval ApprovalMode
	ApprovalFilter  *ApprovalFilter
}

// Allows reports whether the server's allow-list admits the named tool. An
// empty allow-list admits everything.
func (s MCPServer) Allows(name string) bool {
	if len(s.AllowedTools) == 0 {
		return true
	}
	for _, allowed := range s.AllowedTools {
		if allowed == name {
			return true
		}
	}
	return false
}

// Definition converts the server descriptor to its wire form.
func (s MCPServer) Definition() events.ToolDefinition {
	def := events.ToolDefinition{
		Type:         "mcp",
		ServerLabel:  s.ServerLabel,
		ServerURL:    s.ServerURL,
		AllowedTools: s.AllowedTools,
	}
	if s.ApprovalFilter != nil {
		def.RequireApproval = s.ApprovalFilter
	} else if s.RequireApproval != "" {
		def.RequireApproval = string(s.RequireApproval)
	}
	return def
}

// Info describes one tool exposed by an MCP server, as reported in the
// server's tool listing.
type Info struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	InputSchema any    `json:"input_schema,omitempty"`
}

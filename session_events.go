package rtagent

import (
	"github.com/codewandler/rtagent-go/events"
	"github.com/codewandler/rtagent-go/tool"
)

// SessionEvent is the caller-facing event stream of a Session.
type SessionEvent interface {
	sessionEvent()
}

type SessionErrorEvent struct {
	Err error
}

type AgentStartEvent struct {
	Agent      *RealtimeAgent
	ResponseID string
}

type AgentEndEvent struct {
	Agent      *RealtimeAgent
	ResponseID string
	Usage      events.Usage
}

type AgentHandoffEvent struct {
	From *RealtimeAgent
	To   *RealtimeAgent
}

type ToolStartEvent struct {
	Agent     *RealtimeAgent
	Tool      tool.Tool
	Arguments string
}

type ToolEndEvent struct {
	Agent     *RealtimeAgent
	Tool      tool.Tool
	Arguments string
	Output    string
}

// ToolApprovalRequestedEvent asks the caller to decide a gated tool call
// via Session.Approve or Session.Reject.
type ToolApprovalRequestedEvent struct {
	Agent   *RealtimeAgent
	Request ApprovalRequest
}

// AudioEvent carries one decoded PCM frame of model output.
type AudioEvent struct {
	Data       []byte
	ItemID     string
	ResponseID string
}

type AudioEndEvent struct {
	ItemID string
}

// InterruptedEvent tells the caller to stop playback immediately.
type InterruptedEvent struct {
	ItemID string
}

type TranscriptDeltaEvent struct {
	ItemID     string
	ResponseID string
	Delta      string
}

type HistoryUpdatedEvent struct {
	History []RealtimeItem
}

type HistoryAddedEvent struct {
	Item RealtimeItem
}

type GuardrailTrippedEvent struct {
	Results    []GuardrailResult
	Message    string
	ResponseID string
}

// MCPToolsChangedEvent fires when the set of tools exposed by the active
// agent's MCP servers actually changes (set equality by name).
type MCPToolsChangedEvent struct {
	Tools []tool.Info
}

type InputTimeoutEvent struct {
	ItemID string
}

// RawTransportEvent mirrors every transport event for observability.
type RawTransportEvent struct {
	Event TransportEvent
}

func (SessionErrorEvent) sessionEvent()          {}
func (AgentStartEvent) sessionEvent()            {}
func (AgentEndEvent) sessionEvent()              {}
func (AgentHandoffEvent) sessionEvent()          {}
func (ToolStartEvent) sessionEvent()             {}
func (ToolEndEvent) sessionEvent()               {}
func (ToolApprovalRequestedEvent) sessionEvent() {}
func (AudioEvent) sessionEvent()                 {}
func (AudioEndEvent) sessionEvent()              {}
func (InterruptedEvent) sessionEvent()           {}
func (TranscriptDeltaEvent) sessionEvent()       {}
func (HistoryUpdatedEvent) sessionEvent()        {}
func (HistoryAddedEvent) sessionEvent()          {}
func (GuardrailTrippedEvent) sessionEvent()      {}
func (MCPToolsChangedEvent) sessionEvent()       {}
func (InputTimeoutEvent) sessionEvent()          {}
func (RawTransportEvent) sessionEvent()          {}

// ApprovalRequest identifies one tool call awaiting a caller decision.
type ApprovalRequest struct {
	// CallID keys the approval ledger; for MCP approval requests it is the
	// approval item's id.
	CallID    string
	Name      string
	Arguments string

	// MCP marks wire-level approval requests answered with an
	// mcp_approval_response rather than a synthesized function output.
	MCP         bool
	ServerLabel string
}

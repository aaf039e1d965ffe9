package rtagent

import (
	"encoding/json"
	"fmt"

	"github.com/codewandler/rtagent-go/tool"
)

type ItemStatus string

const (
	StatusInProgress ItemStatus = "in_progress"
	StatusCompleted  ItemStatus = "completed"
	StatusIncomplete ItemStatus = "incomplete"
)

func (s ItemStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusIncomplete
}

// RealtimeItem is one entry of a session's conversation history. Item
// identity is globally unique within a session and never changes once the
// item exists; PreviousID is consulted only at insertion time.
type RealtimeItem interface {
	ItemID() string
	ItemType() string
	PreviousID() string
}

type ContentPart struct {
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	Audio      string `json:"audio,omitempty"` // base64 raw audio payload
	Transcript string `json:"transcript,omitempty"`
}

type MessageItem struct {
	ID             string        `json:"id"`
	Type           string        `json:"type"`
	Role           string        `json:"role"`
	Status         ItemStatus    `json:"status,omitempty"`
	Content        []ContentPart `json:"content"`
	PreviousItemID string        `json:"previous_item_id,omitempty"`
}

func (m *MessageItem) ItemID() string     { return m.ID }
func (m *MessageItem) ItemType() string   { return "message" }
func (m *MessageItem) PreviousID() string { return m.PreviousItemID }

type FunctionCallItem struct {
	ID             string     `json:"id"`
	Type           string     `json:"type"` // function_call, mcp_call or mcp_tool_call
	Status         ItemStatus `json:"status,omitempty"`
	Name           string     `json:"name"`
	CallID         string     `json:"call_id,omitempty"`
	Arguments      string     `json:"arguments"`
	Output         *string    `json:"output,omitempty"`
	ServerLabel    string     `json:"server_label,omitempty"`
	PreviousItemID string     `json:"previous_item_id,omitempty"`
}

func (f *FunctionCallItem) ItemID() string     { return f.ID }
func (f *FunctionCallItem) ItemType() string   { return f.Type }
func (f *FunctionCallItem) PreviousID() string { return f.PreviousItemID }

// MCP reports whether the call targets a hosted tool provider rather than
// a locally defined function.
func (f *FunctionCallItem) MCP() bool {
	return f.Type == "mcp_call" || f.Type == "mcp_tool_call"
}

type MCPApprovalRequestItem struct {
	ID             string         `json:"id"`
	Type           string         `json:"type"`
	ServerLabel    string         `json:"server_label"`
	Name           string         `json:"name"`
	Arguments      map[string]any `json:"arguments,omitempty"`
	Approved       *bool          `json:"approved,omitempty"`
	PreviousItemID string         `json:"previous_item_id,omitempty"`
}

func (m *MCPApprovalRequestItem) ItemID() string     { return m.ID }
func (m *MCPApprovalRequestItem) ItemType() string   { return "mcp_approval_request" }
func (m *MCPApprovalRequestItem) PreviousID() string { return m.PreviousItemID }

type MCPListToolsItem struct {
	ID             string      `json:"id"`
	Type           string      `json:"type"`
	ServerLabel    string      `json:"server_label"`
	Tools          []tool.Info `json:"tools"`
	PreviousItemID string      `json:"previous_item_id,omitempty"`
}

func (m *MCPListToolsItem) ItemID() string     { return m.ID }
func (m *MCPListToolsItem) ItemType() string   { return "mcp_list_tools" }
func (m *MCPListToolsItem) PreviousID() string { return m.PreviousItemID }

// ParseItem decodes a wire item object into its typed form, keyed on the
// explicit "type" tag only.
func ParseItem(data []byte) (RealtimeItem, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("parse item: %w", err)
	}
	var item RealtimeItem
	switch head.Type {
	case "message":
		item = &MessageItem{}
	case "function_call", "mcp_call", "mcp_tool_call":
		item = &FunctionCallItem{}
	case "mcp_approval_request":
		item = &MCPApprovalRequestItem{}
	case "mcp_list_tools":
		item = &MCPListToolsItem{}
	default:
		return nil, fmt.Errorf("parse item: unsupported item type %q", head.Type)
	}
	if err := json.Unmarshal(data, item); err != nil {
		return nil, fmt.Errorf("parse item: %w", err)
	}
	return item, nil
}

// CloneItem deep-copies an item via a JSON round trip, so history snapshots
// handed to tool code cannot alias session-owned state.
func CloneItem(item RealtimeItem) RealtimeItem {
	if item == nil {
		return nil
	}
	data, err := json.Marshal(item)
	if err != nil {
		return item
	}
	// Force the tag through for types whose zero value omits it.
	clone, err := ParseItem(withItemType(data, item))
	if err != nil {
		return item
	}
	return clone
}

func withItemType(data []byte, item RealtimeItem) []byte {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return data
	}
	if t, _ := fields["type"].(string); t == "" {
		fields["type"] = item.ItemType()
		if out, err := json.Marshal(fields); err == nil {
			return out
		}
	}
	return data
}

// CloneHistory deep-copies an ordered item list.
func CloneHistory(history []RealtimeItem) []RealtimeItem {
	out := make([]RealtimeItem, len(history))
	for i, item := range history {
		out[i] = CloneItem(item)
	}
	return out
}

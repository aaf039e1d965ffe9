package events

import (
	nanoid "github.com/matoous/go-nanoid/v2"
)

// BaseEvent carries the fields shared by every client-originated wire event.
type BaseEvent struct {
	EventID string `json:"event_id,omitempty"`
	Type    string `json:"type"`
}

func NewBaseEvent(eventType string) BaseEvent {
	id, err := nanoid.New()
	if err != nil {
		panic(err)
	}
	return BaseEvent{
		EventID: id,
		Type:    eventType,
	}
}

// Usage holds the token counters reported with a completed response.
type Usage struct {
	TotalTokens        int            `json:"total_tokens"`
	InputTokens        int            `json:"input_tokens"`
	OutputTokens       int            `json:"output_tokens"`
	InputTokenDetails  map[string]any `json:"input_token_details,omitempty"`
	OutputTokenDetails map[string]any `json:"output_token_details,omitempty"`
}

// Add accumulates another response's counters into u.
func (u *Usage) Add(other Usage) {
	u.TotalTokens += other.TotalTokens
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

package events

import "encoding/json"

// Client-originated wire events. Every constructor stamps a fresh event id
// so the server can correlate acknowledgements.

type SessionUpdateEvent struct {
	BaseEvent
	Session SessionConfig `json:"session"`
}

func NewSessionUpdateEvent(session SessionConfig) SessionUpdateEvent {
	return SessionUpdateEvent{
		BaseEvent: NewBaseEvent("session.update"),
		Session:   session,
	}
}

type ConversationItemCreateEvent struct {
	BaseEvent
	PreviousItemID string          `json:"previous_item_id,omitempty"`
	Item           json.RawMessage `json:"item"`
}

func NewConversationItemCreateEvent(item json.RawMessage) ConversationItemCreateEvent {
	return ConversationItemCreateEvent{
		BaseEvent: NewBaseEvent("conversation.item.create"),
		Item:      item,
	}
}

type ConversationItemDeleteEvent struct {
	BaseEvent
	ItemID string `json:"item_id"`
}

func NewConversationItemDeleteEvent(itemID string) ConversationItemDeleteEvent {
	return ConversationItemDeleteEvent{
		BaseEvent: NewBaseEvent("conversation.item.delete"),
		ItemID:    itemID,
	}
}

type ConversationItemRetrieveEvent struct {
	BaseEvent
	ItemID string `json:"item_id"`
}

func NewConversationItemRetrieveEvent(itemID string) ConversationItemRetrieveEvent {
	return ConversationItemRetrieveEvent{
		BaseEvent: NewBaseEvent("conversation.item.retrieve"),
		ItemID:    itemID,
	}
}

type ConversationItemTruncateEvent struct {
	BaseEvent
	ItemID       string `json:"item_id"`
	ContentIndex int    `json:"content_index"`
	AudioEndMs   int    `json:"audio_end_ms"`
}

func NewConversationItemTruncateEvent(itemID string, audioEndMs int) ConversationItemTruncateEvent {
	return ConversationItemTruncateEvent{
		BaseEvent:  NewBaseEvent("conversation.item.truncate"),
		ItemID:     itemID,
		AudioEndMs: audioEndMs,
	}
}

type InputAudioBufferAppendEvent struct {
	BaseEvent
	Audio string `json:"audio"`
}

func NewInputAudioBufferAppendEvent(audioB64 string) InputAudioBufferAppendEvent {
	return InputAudioBufferAppendEvent{
		BaseEvent: NewBaseEvent("input_audio_buffer.append"),
		Audio:     audioB64,
	}
}

type InputAudioBufferCommitEvent struct {
	BaseEvent
}

func NewInputAudioBufferCommitEvent() InputAudioBufferCommitEvent {
	return InputAudioBufferCommitEvent{BaseEvent: NewBaseEvent("input_audio_buffer.commit")}
}

type ResponseCreateEvent struct {
	BaseEvent
	Response map[string]any `json:"response,omitempty"`
}

func NewResponseCreateEvent() ResponseCreateEvent {
	return ResponseCreateEvent{BaseEvent: NewBaseEvent("response.create")}
}

type ResponseCancelEvent struct {
	BaseEvent
}

func NewResponseCancelEvent() ResponseCancelEvent {
	return ResponseCancelEvent{BaseEvent: NewBaseEvent("response.cancel")}
}

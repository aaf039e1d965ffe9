package events

import (
	"encoding/json"
	"fmt"
)

// ServerEvent is one parsed inbound wire message. The concrete type is
// discriminated by the wire "type" field; anything the codec does not
// recognize surfaces as a *GenericServerEvent.
type ServerEvent interface {
	ServerEventType() string
}

type ErrorDetail struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Param   string `json:"param"`
	EventID string `json:"event_id"`
}

func (e *ErrorDetail) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

type ErrorEvent struct {
	BaseEvent
	ErrorDetail ErrorDetail `json:"error"`
}

func (*ErrorEvent) ServerEventType() string { return "error" }

// SessionPayload is the session object echoed back on session.created and
// session.updated. Only the fields the client acts on are modeled.
type SessionPayload struct {
	ID                string         `json:"id,omitempty"`
	Model             string         `json:"model,omitempty"`
	Modalities        []string       `json:"modalities,omitempty"`
	Voice             string         `json:"voice,omitempty"`
	InputAudioFormat  string         `json:"input_audio_format,omitempty"`
	OutputAudioFormat string         `json:"output_audio_format,omitempty"`
	ExpiresAt         int64          `json:"expires_at,omitempty"`
	Tracing           *TracingConfig `json:"tracing,omitempty"`
}

type SessionCreatedEvent struct {
	BaseEvent
	Session SessionPayload `json:"session"`
}

func (*SessionCreatedEvent) ServerEventType() string { return "session.created" }

type SessionUpdatedEvent struct {
	BaseEvent
	Session SessionPayload `json:"session"`
}

func (*SessionUpdatedEvent) ServerEventType() string { return "session.updated" }

type ResponsePayload struct {
	ID     string            `json:"id"`
	Status string            `json:"status,omitempty"`
	Output []json.RawMessage `json:"output,omitempty"`
	Usage  *Usage            `json:"usage,omitempty"`
}

type ResponseCreatedEvent struct {
	BaseEvent
	Response ResponsePayload `json:"response"`
}

func (*ResponseCreatedEvent) ServerEventType() string { return "response.created" }

type ResponseDoneEvent struct {
	BaseEvent
	Response ResponsePayload `json:"response"`
}

func (*ResponseDoneEvent) ServerEventType() string { return "response.done" }

type ResponseAudioDeltaEvent struct {
	BaseEvent
	ResponseID   string `json:"response_id"`
	ItemID       string `json:"item_id"`
	OutputIndex  int    `json:"output_index"`
	ContentIndex int    `json:"content_index"`
	Delta        string `json:"delta"`
}

func (*ResponseAudioDeltaEvent) ServerEventType() string { return "response.audio.delta" }

type ResponseAudioDoneEvent struct {
	BaseEvent
	ResponseID   string `json:"response_id"`
	ItemID       string `json:"item_id"`
	OutputIndex  int    `json:"output_index"`
	ContentIndex int    `json:"content_index"`
}

func (*ResponseAudioDoneEvent) ServerEventType() string { return "response.audio.done" }

type ResponseAudioTranscriptDeltaEvent struct {
	BaseEvent
	ResponseID   string `json:"response_id"`
	ItemID       string `json:"item_id"`
	OutputIndex  int    `json:"output_index"`
	ContentIndex int    `json:"content_index"`
	Delta        string `json:"delta"`
}

func (*ResponseAudioTranscriptDeltaEvent) ServerEventType() string {
	return "response.audio_transcript.delta"
}

type ResponseAudioTranscriptDoneEvent struct {
	BaseEvent
	ResponseID string `json:"response_id"`
	ItemID     string `json:"item_id"`
	Transcript string `json:"transcript"`
}

func (*ResponseAudioTranscriptDoneEvent) ServerEventType() string {
	return "response.audio_transcript.done"
}

type ResponseTextDeltaEvent struct {
	BaseEvent
	ResponseID string `json:"response_id"`
	ItemID     string `json:"item_id"`
	Delta      string `json:"delta"`
}

func (*ResponseTextDeltaEvent) ServerEventType() string { return "response.text.delta" }

type ResponseFunctionCallArgumentsDeltaEvent struct {
	BaseEvent
	ResponseID string `json:"response_id"`
	ItemID     string `json:"item_id"`
	CallID     string `json:"call_id"`
	Delta      string `json:"delta"`
}

func (*ResponseFunctionCallArgumentsDeltaEvent) ServerEventType() string {
	return "response.function_call_arguments.delta"
}

type ResponseOutputItemAddedEvent struct {
	BaseEvent
	ResponseID  string          `json:"response_id"`
	OutputIndex int             `json:"output_index"`
	Item        json.RawMessage `json:"item"`
}

func (*ResponseOutputItemAddedEvent) ServerEventType() string { return "response.output_item.added" }

type ResponseOutputItemDoneEvent struct {
	BaseEvent
	ResponseID  string          `json:"response_id"`
	OutputIndex int             `json:"output_index"`
	Item        json.RawMessage `json:"item"`
}

func (*ResponseOutputItemDoneEvent) ServerEventType() string { return "response.output_item.done" }

type ConversationItemCreatedEvent struct {
	BaseEvent
	PreviousItemID string          `json:"previous_item_id,omitempty"`
	Item           json.RawMessage `json:"item"`
}

func (*ConversationItemCreatedEvent) ServerEventType() string { return "conversation.item.created" }

type ConversationItemRetrievedEvent struct {
	BaseEvent
	Item json.RawMessage `json:"item"`
}

func (*ConversationItemRetrievedEvent) ServerEventType() string {
	return "conversation.item.retrieved"
}

type ConversationItemDeletedEvent struct {
	BaseEvent
	ItemID string `json:"item_id"`
}

func (*ConversationItemDeletedEvent) ServerEventType() string { return "conversation.item.deleted" }

type ConversationItemTruncatedEvent struct {
	BaseEvent
	ItemID       string `json:"item_id"`
	ContentIndex int    `json:"content_index"`
	AudioEndMs   int    `json:"audio_end_ms"`
}

func (*ConversationItemTruncatedEvent) ServerEventType() string {
	return "conversation.item.truncated"
}

type InputAudioTranscriptionCompletedEvent struct {
	BaseEvent
	ItemID       string `json:"item_id"`
	ContentIndex int    `json:"content_index"`
	Transcript   string `json:"transcript"`
}

func (*InputAudioTranscriptionCompletedEvent) ServerEventType() string {
	return "conversation.item.input_audio_transcription.completed"
}

type SpeechStartedEvent struct {
	BaseEvent
	ItemID       string `json:"item_id"`
	AudioStartMs int    `json:"audio_start_ms"`
}

func (*SpeechStartedEvent) ServerEventType() string { return "input_audio_buffer.speech_started" }

type SpeechStoppedEvent struct {
	BaseEvent
	ItemID     string `json:"item_id"`
	AudioEndMs int    `json:"audio_end_ms"`
}

func (*SpeechStoppedEvent) ServerEventType() string { return "input_audio_buffer.speech_stopped" }

type InputAudioTimeoutTriggeredEvent struct {
	BaseEvent
	ItemID       string `json:"item_id"`
	AudioStartMs int    `json:"audio_start_ms"`
	AudioEndMs   int    `json:"audio_end_ms"`
}

func (*InputAudioTimeoutTriggeredEvent) ServerEventType() string {
	return "input_audio_buffer.timeout_triggered"
}

// GenericServerEvent preserves every field of a recognized-but-unmodeled
// wire message so newer server protocol additions pass through untouched.
type GenericServerEvent struct {
	Type   string
	Fields map[string]any
}

func (g *GenericServerEvent) ServerEventType() string { return g.Type }

package events

import "encoding/json"

// ParseServerEvent parses one raw inbound wire message.
//
// The contract has three outcomes:
//   - a known event type parses into its typed struct: (event, generic=false)
//   - an unknown type that still carries a string "type" field degrades into
//     a *GenericServerEvent preserving all fields: (event, generic=true)
//   - anything else (invalid JSON, missing/non-string "type") returns
//     (nil, generic=true) and the caller must drop the message silently
//
// Parsing has no side effects; one malformed frame must never take the
// session down.
func ParseServerEvent(data []byte) (ServerEvent, bool) {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, true
	}
	eventType, ok := fields["type"].(string)
	if !ok || eventType == "" {
		return nil, true
	}

	generic := func() (ServerEvent, bool) {
		return &GenericServerEvent{Type: eventType, Fields: fields}, true
	}

	typed := func(evt ServerEvent) (ServerEvent, bool) {
		if err := json.Unmarshal(data, evt); err != nil {
			return generic()
		}
		return evt, false
	}

	switch eventType {
	case "error":
		return typed(&ErrorEvent{})
	case "session.created":
		return typed(&SessionCreatedEvent{})
	case "session.updated":
		return typed(&SessionUpdatedEvent{})
	case "response.created":
		return typed(&ResponseCreatedEvent{})
	case "response.done":
		return typed(&ResponseDoneEvent{})
	case "response.audio.delta":
		return typed(&ResponseAudioDeltaEvent{})
	case "response.audio.done":
		return typed(&ResponseAudioDoneEvent{})
	case "response.audio_transcript.delta":
		return typed(&ResponseAudioTranscriptDeltaEvent{})
	case "response.audio_transcript.done":
		return typed(&ResponseAudioTranscriptDoneEvent{})
	case "response.text.delta":
		return typed(&ResponseTextDeltaEvent{})
	case "response.function_call_arguments.delta":
		return typed(&ResponseFunctionCallArgumentsDeltaEvent{})
	case "response.output_item.added":
		return typed(&ResponseOutputItemAddedEvent{})
	case "response.output_item.done":
		return typed(&ResponseOutputItemDoneEvent{})
	case "conversation.item.created":
		return typed(&ConversationItemCreatedEvent{})
	case "conversation.item.retrieved":
		return typed(&ConversationItemRetrievedEvent{})
	case "conversation.item.deleted":
		return typed(&ConversationItemDeletedEvent{})
	case "conversation.item.truncated":
		return typed(&ConversationItemTruncatedEvent{})
	case "conversation.item.input_audio_transcription.completed":
		return typed(&InputAudioTranscriptionCompletedEvent{})
	case "input_audio_buffer.speech_started":
		return typed(&SpeechStartedEvent{})
	case "input_audio_buffer.speech_stopped":
		return typed(&SpeechStoppedEvent{})
	case "input_audio_buffer.timeout_triggered":
		return typed(&InputAudioTimeoutTriggeredEvent{})
	default:
		return generic()
	}
}

package rtagent

import (
	"context"

	"github.com/codewandler/rtagent-go/events"
	"github.com/codewandler/rtagent-go/tool"
)

type ConnectionState string

const (
	StateDisconnected  ConnectionState = "disconnected"
	StateConnecting    ConnectionState = "connecting"
	StateConnected     ConnectionState = "connected"
	StateDisconnecting ConnectionState = "disconnecting"
)

// SessionSettings is the caller-facing partial session configuration.
// Fields left at their zero value fall back to the previously pushed config,
// then to built-in defaults. It is merged into the snake_case wire form by
// the transport.
type SessionSettings struct {
	Model                   string
	Instructions            string
	Modalities              []string
	Voice                   string
	Speed                   float64
	InputAudioFormat        events.AudioFormat
	OutputAudioFormat       events.AudioFormat
	InputAudioTranscription *events.InputAudioTranscription

	// TurnDetection accepts both camelCase and snake_case keys; keys
	// resolving to nil are dropped and an empty object is omitted entirely.
	TurnDetection map[string]any

	ToolChoice string
	Tools      []events.ToolDefinition
	Tracing    *events.TracingConfig
}

// ConnectOptions carries everything needed to establish a connection.
// APIKey may be a static credential or be refreshed via the callback.
type ConnectOptions struct {
	APIKey        string
	APIKeyFunc    func(ctx context.Context) (string, error)
	Model         string
	URL           string
	InitialConfig *SessionSettings
}

func (o ConnectOptions) resolveKey(ctx context.Context) (string, error) {
	if o.APIKeyFunc != nil {
		return o.APIKeyFunc(ctx)
	}
	return o.APIKey, nil
}

// Transport is the contract every concrete binding fulfills. Implementations
// deliver protocol activity exclusively through the Events channel; all
// methods are safe for use from the session's dispatch goroutine.
type Transport interface {
	// Connect establishes the connection. Calling it while already
	// connected is a no-op; while connecting it warns and returns nil. On
	// failure every partially opened resource is closed and the state is
	// disconnected before the error is returned.
	Connect(ctx context.Context, opts ConnectOptions) error

	// SendEvent sends one client-originated protocol message, fire and
	// forget. Returns ErrNotConnected when no connection is up.
	SendEvent(event any) error

	// SendMessage creates a user conversation item and immediately
	// requests a new turn. extra is merged into the item create payload.
	SendMessage(text string, extra map[string]any) error

	// SendAudio appends PCM bytes to the server-side input buffer,
	// optionally committing the utterance.
	SendAudio(audio []byte, commit bool) error

	// UpdateSessionConfig merges the partial settings over remembered
	// defaults and pushes a session.update.
	UpdateSessionConfig(settings SessionSettings) error

	// Mute toggles input muting for transports that control their own
	// input path.
	Mute(muted bool) error

	// Muted returns nil when the transport cannot control input muting
	// itself; the caller must then stop feeding audio externally.
	Muted() *bool

	// Interrupt truncates the in-progress turn's audio at the elapsed
	// playback position.
	Interrupt() error

	// ResetHistory diffs the two histories and sends delete/create events
	// to bring the remote conversation in line with local edits.
	ResetHistory(oldHistory, newHistory []RealtimeItem)

	Close() error

	Status() ConnectionState

	Events() <-chan TransportEvent
}

// TransportEvent is the reduced event set a transport emits after mapping
// raw server events.
type TransportEvent interface {
	transportEvent()
}

type TransportErrorEvent struct {
	Err error
}

type TurnStartedEvent struct {
	ResponseID string
}

type TurnDoneEvent struct {
	ResponseID string
	Output     []RealtimeItem
	Usage      events.Usage
}

type UsageUpdateEvent struct {
	ResponseID string
	Usage      events.Usage
}

type AudioFrameEvent struct {
	Data       []byte
	ResponseID string
	ItemID     string
}

type AudioDoneEvent struct {
	ResponseID string
	ItemID     string
}

// AudioInterruptedEvent is emitted locally the moment an interruption is
// computed, before the truncate round trip, so playback can stop at once.
type AudioInterruptedEvent struct {
	ItemID string
}

type AudioTranscriptDeltaEvent struct {
	ItemID     string
	ResponseID string
	Delta      string
}

type ItemUpdateEvent struct {
	Item RealtimeItem
}

type ItemDeletedEvent struct {
	ItemID string
}

type FunctionCallEvent struct {
	ID             string
	CallID         string
	Name           string
	Arguments      string
	PreviousItemID string
}

type InputTranscriptCompletedEvent struct {
	ItemID     string
	Transcript string
}

type InputAudioTimeoutEvent struct {
	ItemID string
}

type MCPListToolsEvent struct {
	ServerLabel string
	Tools       []tool.Info
}

// RawServerEvent carries every parsed non-nil wire message, the transport's
// '*' channel for observability.
type RawServerEvent struct {
	Event events.ServerEvent
}

func (TransportErrorEvent) transportEvent()           {}
func (TurnStartedEvent) transportEvent()              {}
func (TurnDoneEvent) transportEvent()                 {}
func (UsageUpdateEvent) transportEvent()              {}
func (AudioFrameEvent) transportEvent()               {}
func (AudioDoneEvent) transportEvent()                {}
func (AudioInterruptedEvent) transportEvent()         {}
func (AudioTranscriptDeltaEvent) transportEvent()     {}
func (ItemUpdateEvent) transportEvent()               {}
func (ItemDeletedEvent) transportEvent()              {}
func (FunctionCallEvent) transportEvent()             {}
func (InputTranscriptCompletedEvent) transportEvent() {}
func (InputAudioTimeoutEvent) transportEvent()        {}
func (MCPListToolsEvent) transportEvent()             {}
func (RawServerEvent) transportEvent()                {}

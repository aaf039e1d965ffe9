package rtagent

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/url"
	"sync"
	"time"

	nanoid "github.com/matoous/go-nanoid/v2"

	"github.com/codewandler/rtagent-go/events"
)

const (
	defaultModel              = "gpt-4o-realtime-preview-2025-06-03"
	defaultVoice              = "ash"
	defaultTranscriptionModel = "gpt-4o-mini-transcribe"

	// Audio is little-endian 16-bit PCM at 24 kHz mono.
	audioSampleRateKHz  = 24
	audioBytesPerSample = 2
)

// transportCore holds the behavior shared by both transport bindings:
// session config merging, the server-event-to-transport-event mapping,
// tracing negotiation, and interruption timing. Concrete bindings embed a
// pointer to it and bind sendFn to their wire.
type transportCore struct {
	logger *slog.Logger

	// sendFn writes one client event to the wire. Bound by the concrete
	// transport before the first inbound message can arrive.
	sendFn func(event any) error

	// deliverAudio is set by bindings that hand decoded PCM frames to the
	// caller; the peer-channel binding plays audio through the media stack
	// and leaves it unset.
	deliverAudio bool

	emitMu sync.Mutex
	out    chan TransportEvent
	closed bool

	mu    sync.Mutex
	state ConnectionState

	config     events.SessionConfig
	haveConfig bool

	tracing      *events.TracingConfig
	tracingKnown bool

	// Voice and model are fixed once the remote session has produced
	// output; later config pushes must not attempt to change them.
	outputStarted bool

	// Per-turn audio timing for interruption math.
	firstAudioTime    time.Time
	audioLengthMs     float64
	currentItemID     string
	currentResponseID string
	ongoingResponse   bool
}

func newTransportCore(logger *slog.Logger, deliverAudio bool) *transportCore {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &transportCore{
		logger:       logger,
		deliverAudio: deliverAudio,
		out:          make(chan TransportEvent, 256),
		state:        StateDisconnected,
	}
}

func (c *transportCore) emit(event TransportEvent) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	if c.closed {
		return
	}
	c.out <- event
}

func (c *transportCore) closeEvents() {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.out)
	}
}

func (c *transportCore) events() <-chan TransportEvent { return c.out }

func (c *transportCore) setState(state ConnectionState) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

func (c *transportCore) status() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *transportCore) send(event any) error {
	if c.status() != StateConnected && c.status() != StateConnecting {
		return ErrNotConnected
	}
	return c.sendFn(event)
}

// handleRawMessage is the single inbound dispatch path. Every parsed
// non-nil message is mirrored on the raw passthrough event first.
func (c *transportCore) handleRawMessage(data []byte) {
	event, generic := events.ParseServerEvent(data)
	if event == nil {
		c.logger.Debug("dropping malformed wire message")
		return
	}
	c.emit(RawServerEvent{Event: event})
	if generic {
		return
	}
	c.handleServerEvent(event)
}

func (c *transportCore) handleServerEvent(event events.ServerEvent) {
	switch e := event.(type) {
	case *events.ErrorEvent:
		detail := e.ErrorDetail
		c.emit(TransportErrorEvent{Err: &detail})

	case *events.SessionCreatedEvent:
		c.adoptServerTracing(e.Session.Tracing)

	case *events.SessionUpdatedEvent:
		// Config acknowledgement, nothing to map.

	case *events.ResponseCreatedEvent:
		c.mu.Lock()
		c.ongoingResponse = true
		c.currentResponseID = e.Response.ID
		c.mu.Unlock()
		c.emit(TurnStartedEvent{ResponseID: e.Response.ID})

	case *events.ResponseDoneEvent:
		c.mu.Lock()
		c.ongoingResponse = false
		c.outputStarted = true
		c.mu.Unlock()
		var usage events.Usage
		if e.Response.Usage != nil {
			usage = *e.Response.Usage
		}
		output := make([]RealtimeItem, 0, len(e.Response.Output))
		for _, raw := range e.Response.Output {
			item, err := ParseItem(raw)
			if err != nil {
				c.logger.Debug("skipping unparseable response output item", slog.Any("err", err))
				continue
			}
			output = append(output, item)
		}
		c.emit(UsageUpdateEvent{ResponseID: e.Response.ID, Usage: usage})
		c.emit(TurnDoneEvent{ResponseID: e.Response.ID, Output: output, Usage: usage})

	case *events.ResponseAudioDeltaEvent:
		c.handleAudioDelta(e)

	case *events.ResponseAudioDoneEvent:
		c.emit(AudioDoneEvent{ResponseID: e.ResponseID, ItemID: e.ItemID})

	case *events.ResponseAudioTranscriptDeltaEvent:
		c.emit(AudioTranscriptDeltaEvent{
			ItemID:     e.ItemID,
			ResponseID: e.ResponseID,
			Delta:      e.Delta,
		})

	case *events.ResponseTextDeltaEvent, *events.ResponseFunctionCallArgumentsDeltaEvent,
		*events.ResponseAudioTranscriptDoneEvent:
		// Not surfaced as discrete events at this layer.

	case *events.ConversationItemCreatedEvent:
		c.handleItemPayload(e.Item, e.PreviousItemID)

	case *events.ConversationItemRetrievedEvent:
		c.handleItemPayload(e.Item, "")

	case *events.ConversationItemDeletedEvent:
		c.emit(ItemDeletedEvent{ItemID: e.ItemID})

	case *events.ConversationItemTruncatedEvent:
		// The server already finalized the item; fetch the authoritative
		// copy instead of reconstructing partial state locally.
		c.requestItem(e.ItemID)

	case *events.InputAudioTranscriptionCompletedEvent:
		c.emit(InputTranscriptCompletedEvent{ItemID: e.ItemID, Transcript: e.Transcript})
		c.requestItem(e.ItemID)

	case *events.ResponseOutputItemAddedEvent:
		c.handleOutputItem(e.Item, false)

	case *events.ResponseOutputItemDoneEvent:
		c.handleOutputItem(e.Item, true)

	case *events.SpeechStartedEvent:
		// VAD barge-in takes the same path as a caller-initiated interrupt.
		if err := c.interruptTurn(); err != nil {
			c.logger.Warn("speech-started interrupt failed", slog.Any("err", err))
		}

	case *events.SpeechStoppedEvent:
		// End-of-utterance, nothing to map.

	case *events.InputAudioTimeoutTriggeredEvent:
		c.emit(InputAudioTimeoutEvent{ItemID: e.ItemID})
	}
}

func (c *transportCore) requestItem(itemID string) {
	if itemID == "" {
		return
	}
	if err := c.send(events.NewConversationItemRetrieveEvent(itemID)); err != nil {
		c.logger.Warn("item retrieve failed", slog.String("item_id", itemID), slog.Any("err", err))
	}
}

func (c *transportCore) handleItemPayload(raw json.RawMessage, previousItemID string) {
	item, err := ParseItem(raw)
	if err != nil {
		c.logger.Debug("skipping unsupported conversation item", slog.Any("err", err))
		return
	}
	if previousItemID != "" {
		setPreviousID(item, previousItemID)
	}
	if listing, ok := item.(*MCPListToolsItem); ok {
		c.emit(MCPListToolsEvent{ServerLabel: listing.ServerLabel, Tools: listing.Tools})
		return
	}
	c.emit(ItemUpdateEvent{Item: item})
}

func (c *transportCore) handleOutputItem(raw json.RawMessage, done bool) {
	item, err := ParseItem(raw)
	if err != nil {
		c.logger.Debug("skipping unsupported output item", slog.Any("err", err))
		return
	}
	switch it := item.(type) {
	case *FunctionCallItem:
		if it.Status == StatusCompleted {
			// The call is not complete from the caller's perspective until
			// its output is attached.
			update := *it
			update.Status = StatusInProgress
			c.emit(ItemUpdateEvent{Item: &update})
			if !it.MCP() {
				c.emit(FunctionCallEvent{
					ID:             it.ID,
					CallID:         it.CallID,
					Name:           it.Name,
					Arguments:      it.Arguments,
					PreviousItemID: it.PreviousItemID,
				})
			}
			return
		}
		c.emit(ItemUpdateEvent{Item: it})

	case *MessageItem:
		if done {
			if it.Status == "" {
				it.Status = StatusCompleted
			}
		} else if !it.Status.Terminal() {
			it.Status = StatusInProgress
		}
		c.emit(ItemUpdateEvent{Item: it})

	case *MCPListToolsItem:
		c.emit(MCPListToolsEvent{ServerLabel: it.ServerLabel, Tools: it.Tools})

	default:
		c.emit(ItemUpdateEvent{Item: item})
	}
}

func setPreviousID(item RealtimeItem, previousItemID string) {
	switch it := item.(type) {
	case *MessageItem:
		if it.PreviousItemID == "" {
			it.PreviousItemID = previousItemID
		}
	case *FunctionCallItem:
		if it.PreviousItemID == "" {
			it.PreviousItemID = previousItemID
		}
	case *MCPApprovalRequestItem:
		if it.PreviousItemID == "" {
			it.PreviousItemID = previousItemID
		}
	case *MCPListToolsItem:
		if it.PreviousItemID == "" {
			it.PreviousItemID = previousItemID
		}
	}
}

func (c *transportCore) handleAudioDelta(e *events.ResponseAudioDeltaEvent) {
	data, err := base64.StdEncoding.DecodeString(e.Delta)
	if err != nil {
		c.logger.Warn("failed to decode audio delta", slog.Any("err", err))
		return
	}
	c.mu.Lock()
	if c.firstAudioTime.IsZero() {
		c.firstAudioTime = time.Now()
	}
	c.currentItemID = e.ItemID
	c.currentResponseID = e.ResponseID
	c.audioLengthMs += float64(len(data)) / audioSampleRateKHz / audioBytesPerSample
	deliver := c.deliverAudio
	c.mu.Unlock()
	if deliver {
		c.emit(AudioFrameEvent{Data: data, ResponseID: e.ResponseID, ItemID: e.ItemID})
	}
}

// truncateAudioEndMs computes the integer millisecond offset to send in an
// audio truncate event. Playback speed multipliers and scheduling jitter can
// push elapsed past the buffered audio length, so the result is clamped to
// [0, audioLengthMs].
func truncateAudioEndMs(elapsedMs, audioLengthMs float64) (int, bool) {
	if elapsedMs < 0 || audioLengthMs <= 0 {
		return 0, false
	}
	end := int(math.Floor(elapsedMs))
	if float64(end) > audioLengthMs {
		end = int(math.Floor(audioLengthMs))
	}
	if end < 0 {
		end = 0
	}
	return end, true
}

// interruptTurn cancels the in-flight turn, notifies the caller that
// playback should stop, and truncates the remote item at the elapsed
// playback position. A no-op when no audio has started this turn.
func (c *transportCore) interruptTurn() error {
	c.mu.Lock()
	if c.firstAudioTime.IsZero() || c.currentItemID == "" {
		c.mu.Unlock()
		return nil
	}
	cancel := c.ongoingResponse
	c.ongoingResponse = false
	elapsedMs := float64(time.Since(c.firstAudioTime)) / float64(time.Millisecond)
	itemID := c.currentItemID
	lengthMs := c.audioLengthMs
	c.resetTimingLocked()
	c.mu.Unlock()

	if cancel {
		if err := c.send(events.NewResponseCancelEvent()); err != nil {
			c.logger.Warn("response cancel failed", slog.Any("err", err))
		}
	}

	endMs, ok := truncateAudioEndMs(elapsedMs, lengthMs)
	if !ok {
		return nil
	}
	// Local notification first so playback stops without a round trip.
	c.emit(AudioInterruptedEvent{ItemID: itemID})
	return c.send(events.NewConversationItemTruncateEvent(itemID, endMs))
}

func (c *transportCore) resetTimingLocked() {
	c.firstAudioTime = time.Time{}
	c.audioLengthMs = 0
	c.currentItemID = ""
}

func (c *transportCore) resetConnectionState() {
	c.mu.Lock()
	c.resetTimingLocked()
	c.ongoingResponse = false
	c.currentResponseID = ""
	c.mu.Unlock()
}

// --- session config merge ---

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// mergedSessionConfig resolves a partial settings struct against the
// previously cached full config, then against built-in defaults, producing
// the flat snake_case wire object. The result becomes the new cached config.
func (c *transportCore) mergedSessionConfig(partial SessionSettings) events.SessionConfig {
	c.mu.Lock()
	base := c.config
	outputStarted := c.outputStarted
	c.mu.Unlock()

	cfg := events.SessionConfig{
		Model:        firstNonEmpty(partial.Model, base.Model, defaultModel),
		Voice:        firstNonEmpty(partial.Voice, base.Voice, defaultVoice),
		Instructions: firstNonEmpty(partial.Instructions, base.Instructions),
		ToolChoice:   firstNonEmpty(partial.ToolChoice, base.ToolChoice, "auto"),
		InputAudioFormat: events.AudioFormat(firstNonEmpty(
			string(partial.InputAudioFormat), string(base.InputAudioFormat), string(events.AudioFormatPCM16))),
		OutputAudioFormat: events.AudioFormat(firstNonEmpty(
			string(partial.OutputAudioFormat), string(base.OutputAudioFormat), string(events.AudioFormatPCM16))),
	}

	if outputStarted {
		// Voice and model are locked once the session has produced output.
		if base.Voice != "" && cfg.Voice != base.Voice {
			c.logger.Warn("voice cannot change after the session produced output; keeping previous",
				slog.String("voice", base.Voice))
			cfg.Voice = base.Voice
		}
		if base.Model != "" && cfg.Model != base.Model {
			c.logger.Warn("model cannot change after the session produced output; keeping previous",
				slog.String("model", base.Model))
			cfg.Model = base.Model
		}
	}

	switch {
	case len(partial.Modalities) > 0:
		cfg.Modalities = partial.Modalities
	case len(base.Modalities) > 0:
		cfg.Modalities = base.Modalities
	default:
		cfg.Modalities = []string{"text", "audio"}
	}

	switch {
	case partial.Speed != 0:
		cfg.Speed = partial.Speed
	case base.Speed != 0:
		cfg.Speed = base.Speed
	}

	switch {
	case partial.InputAudioTranscription != nil:
		cfg.InputAudioTranscription = partial.InputAudioTranscription
	case base.InputAudioTranscription != nil:
		cfg.InputAudioTranscription = base.InputAudioTranscription
	default:
		cfg.InputAudioTranscription = &events.InputAudioTranscription{Model: defaultTranscriptionModel}
	}

	switch {
	case partial.TurnDetection != nil:
		cfg.TurnDetection = normalizeTurnDetection(partial.TurnDetection)
	case base.TurnDetection != nil:
		cfg.TurnDetection = base.TurnDetection
	default:
		cfg.TurnDetection = map[string]any{"type": "semantic_vad"}
	}

	switch {
	case partial.Tools != nil:
		cfg.Tools = partial.Tools
	default:
		cfg.Tools = base.Tools
	}

	cfg.Tracing = c.negotiateTracing(partial.Tracing)

	c.mu.Lock()
	c.config = cfg
	c.haveConfig = true
	c.mu.Unlock()
	return cfg
}

// turnDetectionKeys maps accepted camelCase keys to their wire form.
// snake_case input keys pass through unchanged.
var turnDetectionKeys = map[string]string{
	"type":              "type",
	"threshold":         "threshold",
	"eagerness":         "eagerness",
	"prefixPaddingMs":   "prefix_padding_ms",
	"silenceDurationMs": "silence_duration_ms",
	"createResponse":    "create_response",
	"interruptResponse": "interrupt_response",
	"idleTimeoutMs":     "idle_timeout_ms",
}

func normalizeTurnDetection(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		if value == nil {
			continue
		}
		if wire, ok := turnDetectionKeys[key]; ok {
			out[wire] = value
			continue
		}
		out[key] = value
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// --- tracing negotiation ---

// negotiateTracing enforces tracing-config stickiness: the first structured
// value seen holds for the whole session. Off (nil) and auto are idempotent
// and always allowed.
func (c *transportCore) negotiateTracing(requested *events.TracingConfig) *events.TracingConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	if requested == nil || requested.Auto {
		if c.tracingKnown {
			return c.tracing
		}
		return requested
	}
	if !c.tracingKnown {
		c.tracing = requested
		c.tracingKnown = true
		return requested
	}
	if !c.tracing.Equal(requested) {
		c.logger.Warn("tracing config cannot change mid-session; keeping original")
	}
	return c.tracing
}

func (c *transportCore) adoptServerTracing(confirmed *events.TracingConfig) {
	if confirmed == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.tracingKnown {
		c.tracing = confirmed
		c.tracingKnown = true
	}
}

// --- shared outbound operations ---

func (c *transportCore) updateSessionConfig(settings SessionSettings) error {
	cfg := c.mergedSessionConfig(settings)
	return c.send(events.NewSessionUpdateEvent(cfg))
}

func (c *transportCore) sendMessage(text string, extra map[string]any) error {
	id, err := nanoid.New()
	if err != nil {
		return err
	}
	item := map[string]any{
		"id":   id,
		"type": "message",
		"role": "user",
		"content": []map[string]any{
			{"type": "input_text", "text": text},
		},
	}
	for key, value := range extra {
		item[key] = value
	}
	raw, err := json.Marshal(item)
	if err != nil {
		return err
	}
	if err := c.send(events.NewConversationItemCreateEvent(raw)); err != nil {
		return err
	}
	return c.send(events.NewResponseCreateEvent())
}

func (c *transportCore) sendAudio(audio []byte, commit bool) error {
	encoded := base64.StdEncoding.EncodeToString(audio)
	if err := c.send(events.NewInputAudioBufferAppendEvent(encoded)); err != nil {
		return err
	}
	if commit {
		return c.send(events.NewInputAudioBufferCommitEvent())
	}
	return nil
}

// resetHistory reconciles a locally edited history against the remote
// conversation. Function-call family items cannot be synthesized client-side
// and are skipped with a warning.
func (c *transportCore) resetHistory(oldHistory, newHistory []RealtimeItem) {
	diff := DiffHistory(oldHistory, newHistory)
	for _, removed := range diff.Removals {
		if err := c.send(events.NewConversationItemDeleteEvent(removed.ItemID())); err != nil {
			c.logger.Warn("history delete failed",
				slog.String("item_id", removed.ItemID()), slog.Any("err", err))
		}
	}
	recreate := make([]RealtimeItem, 0, len(diff.Additions)+len(diff.Updates))
	recreate = append(recreate, diff.Additions...)
	recreate = append(recreate, diff.Updates...)
	for _, item := range recreate {
		if _, ok := item.(*MessageItem); !ok {
			c.logger.Warn("cannot synthesize non-message item during history reset; skipping",
				slog.String("item_id", item.ItemID()),
				slog.String("type", item.ItemType()))
			continue
		}
		raw, err := json.Marshal(item)
		if err != nil {
			c.logger.Warn("history item marshal failed", slog.Any("err", err))
			continue
		}
		if err := c.send(events.NewConversationItemCreateEvent(raw)); err != nil {
			c.logger.Warn("history create failed",
				slog.String("item_id", item.ItemID()), slog.Any("err", err))
		}
	}
}

func connectURL(base, model string) string {
	if model == "" {
		model = defaultModel
	}
	return fmt.Sprintf("%s?model=%s", base, url.QueryEscape(model))
}

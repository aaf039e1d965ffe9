package rtagent

import (
	"encoding/base64"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codewandler/rtagent-go/events"
)

func newTestCore(t *testing.T) (*transportCore, *[]any) {
	t.Helper()
	core := newTransportCore(nil, true)
	sent := &[]any{}
	core.sendFn = func(event any) error {
		*sent = append(*sent, event)
		return nil
	}
	core.setState(StateConnected)
	return core, sent
}

func drainEvents(c *transportCore) []TransportEvent {
	var out []TransportEvent
	for {
		select {
		case evt := <-c.out:
			out = append(out, evt)
		default:
			return out
		}
	}
}

func TestHandleRawMessage_GenericStopsAtPassthrough(t *testing.T) {
	core, _ := newTestCore(t)
	core.handleRawMessage([]byte(`{"type":"response.future_thing","detail":1}`))

	got := drainEvents(core)
	require.Len(t, got, 1)
	raw := got[0].(RawServerEvent)
	assert.Equal(t, "response.future_thing", raw.Event.ServerEventType())
}

func TestHandleRawMessage_MalformedDropped(t *testing.T) {
	core, _ := newTestCore(t)
	core.handleRawMessage([]byte(`{"no_type": true}`))
	core.handleRawMessage([]byte(`not json`))
	assert.Empty(t, drainEvents(core))
}

func TestTurnLifecycle(t *testing.T) {
	core, _ := newTestCore(t)

	core.handleRawMessage([]byte(`{"type":"response.created","response":{"id":"resp_1"}}`))
	core.handleRawMessage([]byte(`{
		"type": "response.done",
		"response": {
			"id": "resp_1",
			"status": "completed",
			"output": [{"id":"item_1","type":"message","role":"assistant","status":"completed","content":[]}],
			"usage": {"total_tokens": 12, "input_tokens": 5, "output_tokens": 7}
		}
	}`))

	got := drainEvents(core)
	require.Len(t, got, 5) // 2 raw mirrors + started + usage + done

	started := got[1].(TurnStartedEvent)
	assert.Equal(t, "resp_1", started.ResponseID)

	usage := got[3].(UsageUpdateEvent)
	assert.Equal(t, 12, usage.Usage.TotalTokens)

	done := got[4].(TurnDoneEvent)
	assert.Equal(t, "resp_1", done.ResponseID)
	require.Len(t, done.Output, 1)
	assert.Equal(t, "item_1", done.Output[0].ItemID())

	// Output started: voice and model are now locked.
	core.mu.Lock()
	assert.True(t, core.outputStarted)
	core.mu.Unlock()
}

func TestHandleOutputItem_MessageStatus(t *testing.T) {
	t.Run("done without status becomes completed", func(t *testing.T) {
		core, _ := newTestCore(t)
		core.handleOutputItem([]byte(`{"id":"m1","type":"message","role":"assistant","content":[]}`), true)
		got := drainEvents(core)
		require.Len(t, got, 1)
		item := got[0].(ItemUpdateEvent).Item.(*MessageItem)
		assert.Equal(t, StatusCompleted, item.Status)
	})

	t.Run("done with explicit status preserved", func(t *testing.T) {
		core, _ := newTestCore(t)
		core.handleOutputItem([]byte(`{"id":"m2","type":"message","role":"assistant","status":"incomplete","content":[]}`), true)
		got := drainEvents(core)
		require.Len(t, got, 1)
		item := got[0].(ItemUpdateEvent).Item.(*MessageItem)
		assert.Equal(t, StatusIncomplete, item.Status)
	})

	t.Run("added non-terminal becomes in_progress", func(t *testing.T) {
		core, _ := newTestCore(t)
		core.handleOutputItem([]byte(`{"id":"m3","type":"message","role":"assistant","content":[]}`), false)
		got := drainEvents(core)
		require.Len(t, got, 1)
		item := got[0].(ItemUpdateEvent).Item.(*MessageItem)
		assert.Equal(t, StatusInProgress, item.Status)
	})
}

func TestHandleOutputItem_FunctionCall(t *testing.T) {
	t.Run("completed function call emits call event with in_progress item", func(t *testing.T) {
		core, _ := newTestCore(t)
		core.handleOutputItem([]byte(`{"id":"f1","type":"function_call","status":"completed","name":"get_weather","call_id":"c1","arguments":"{\"city\":\"Berlin\"}"}`), true)

		got := drainEvents(core)
		require.Len(t, got, 2)

		update := got[0].(ItemUpdateEvent).Item.(*FunctionCallItem)
		assert.Equal(t, StatusInProgress, update.Status)

		call := got[1].(FunctionCallEvent)
		assert.Equal(t, "c1", call.CallID)
		assert.Equal(t, "get_weather", call.Name)
	})

	t.Run("completed mcp call is not dispatched locally", func(t *testing.T) {
		core, _ := newTestCore(t)
		core.handleOutputItem([]byte(`{"id":"f2","type":"mcp_call","status":"completed","name":"search","server_label":"docs","arguments":"{}"}`), true)

		got := drainEvents(core)
		require.Len(t, got, 1)
		_, isUpdate := got[0].(ItemUpdateEvent)
		assert.True(t, isUpdate)
	})
}

func TestHandleAudioDelta(t *testing.T) {
	core, _ := newTestCore(t)

	// 4800 bytes of 24 kHz 16-bit mono PCM = 100 ms.
	frame := make([]byte, 4800)
	encoded := base64.StdEncoding.EncodeToString(frame)
	core.handleServerEvent(&events.ResponseAudioDeltaEvent{
		ResponseID: "resp_1", ItemID: "item_1", Delta: encoded,
	})

	got := drainEvents(core)
	require.Len(t, got, 1)
	audio := got[0].(AudioFrameEvent)
	assert.Len(t, audio.Data, 4800)
	assert.Equal(t, "item_1", audio.ItemID)

	core.mu.Lock()
	assert.InDelta(t, 100.0, core.audioLengthMs, 0.001)
	assert.False(t, core.firstAudioTime.IsZero())
	core.mu.Unlock()
}

func TestTruncateAudioEndMs(t *testing.T) {
	cases := []struct {
		name      string
		elapsed   float64
		length    float64
		want      int
		wantValid bool
	}{
		{"within audio", 150.7, 400, 150, true},
		{"elapsed past length", 512.3, 400.9, 400, true},
		{"zero elapsed", 0, 400, 0, true},
		{"negative elapsed", -1, 400, 0, false},
		{"no audio", 100, 0, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := truncateAudioEndMs(tc.elapsed, tc.length)
			assert.Equal(t, tc.wantValid, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestTruncateAudioEndMs_AlwaysClamped(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 1000; i++ {
		elapsed := rng.Float64() * 10_000
		length := rng.Float64() * 5_000
		got, ok := truncateAudioEndMs(elapsed, length)
		if !ok {
			continue
		}
		assert.GreaterOrEqual(t, got, 0)
		assert.LessOrEqual(t, float64(got), length)
		assert.LessOrEqual(t, float64(got), elapsed)
	}
}

func TestInterruptTurn(t *testing.T) {
	t.Run("no-op before audio", func(t *testing.T) {
		core, sent := newTestCore(t)
		require.NoError(t, core.interruptTurn())
		assert.Empty(t, *sent)
		assert.Empty(t, drainEvents(core))
	})

	t.Run("cancels and truncates", func(t *testing.T) {
		core, sent := newTestCore(t)
		core.mu.Lock()
		core.firstAudioTime = time.Now().Add(-200 * time.Millisecond)
		core.audioLengthMs = 1000
		core.currentItemID = "item_1"
		core.ongoingResponse = true
		core.mu.Unlock()

		require.NoError(t, core.interruptTurn())

		got := drainEvents(core)
		require.Len(t, got, 1)
		assert.Equal(t, "item_1", got[0].(AudioInterruptedEvent).ItemID)

		require.Len(t, *sent, 2)
		_, isCancel := (*sent)[0].(events.ResponseCancelEvent)
		assert.True(t, isCancel)
		truncate := (*sent)[1].(events.ConversationItemTruncateEvent)
		assert.Equal(t, "item_1", truncate.ItemID)
		assert.GreaterOrEqual(t, truncate.AudioEndMs, 0)
		assert.LessOrEqual(t, truncate.AudioEndMs, 1000)

		// Timing state resets; a second interrupt is a no-op.
		require.NoError(t, core.interruptTurn())
		assert.Len(t, *sent, 2)
	})
}

func TestMergedSessionConfig_Defaults(t *testing.T) {
	core, _ := newTestCore(t)

	cfg := core.mergedSessionConfig(SessionSettings{})
	assert.Equal(t, defaultModel, cfg.Model)
	assert.Equal(t, defaultVoice, cfg.Voice)
	assert.Equal(t, []string{"text", "audio"}, cfg.Modalities)
	assert.Equal(t, events.AudioFormatPCM16, cfg.InputAudioFormat)
	assert.Equal(t, events.AudioFormatPCM16, cfg.OutputAudioFormat)
	require.NotNil(t, cfg.InputAudioTranscription)
	assert.Equal(t, defaultTranscriptionModel, cfg.InputAudioTranscription.Model)
	assert.Equal(t, map[string]any{"type": "semantic_vad"}, cfg.TurnDetection)
	assert.Equal(t, "auto", cfg.ToolChoice)
}

func TestMergedSessionConfig_PartialOverCached(t *testing.T) {
	core, _ := newTestCore(t)

	core.mergedSessionConfig(SessionSettings{
		Instructions:      "be brief",
		OutputAudioFormat: events.AudioFormatG711ULaw,
	})
	cfg := core.mergedSessionConfig(SessionSettings{Instructions: "be verbose"})

	// Unset fields fall back to the cached value, not the default.
	assert.Equal(t, "be verbose", cfg.Instructions)
	assert.Equal(t, events.AudioFormatG711ULaw, cfg.OutputAudioFormat)
}

func TestMergedSessionConfig_VoiceModelLockedAfterOutput(t *testing.T) {
	core, _ := newTestCore(t)

	core.mergedSessionConfig(SessionSettings{Voice: "ash", Model: "model-a"})
	core.mu.Lock()
	core.outputStarted = true
	core.mu.Unlock()

	cfg := core.mergedSessionConfig(SessionSettings{Voice: "cedar", Model: "model-b"})
	assert.Equal(t, "ash", cfg.Voice)
	assert.Equal(t, "model-a", cfg.Model)
}

func TestNormalizeTurnDetection(t *testing.T) {
	got := normalizeTurnDetection(map[string]any{
		"type":              "server_vad",
		"silenceDurationMs": 500,
		"prefix_padding_ms": 300,
		"threshold":         nil,
	})
	assert.Equal(t, map[string]any{
		"type":                "server_vad",
		"silence_duration_ms": 500,
		"prefix_padding_ms":   300,
	}, got)

	assert.Nil(t, normalizeTurnDetection(map[string]any{"threshold": nil}))
	assert.Nil(t, normalizeTurnDetection(nil))
}

func TestNegotiateTracing_FirstStructuredValueSticks(t *testing.T) {
	core, _ := newTestCore(t)

	// Auto before any structured value passes through.
	assert.True(t, core.negotiateTracing(events.TracingAuto()).Auto)

	first := &events.TracingConfig{WorkflowName: "support"}
	assert.Equal(t, first, core.negotiateTracing(first))

	// A different structured value is ignored in favor of the original.
	second := &events.TracingConfig{WorkflowName: "sales"}
	assert.Equal(t, first, core.negotiateTracing(second))

	// Off and auto are idempotent once pinned.
	assert.Equal(t, first, core.negotiateTracing(nil))
	assert.Equal(t, first, core.negotiateTracing(events.TracingAuto()))
}

func TestSendMessage(t *testing.T) {
	core, sent := newTestCore(t)
	require.NoError(t, core.sendMessage("hello", nil))

	require.Len(t, *sent, 2)
	create := (*sent)[0].(events.ConversationItemCreateEvent)
	assert.Contains(t, string(create.Item), `"hello"`)
	_, isResponse := (*sent)[1].(events.ResponseCreateEvent)
	assert.True(t, isResponse)
}

func TestSendMessage_NotConnected(t *testing.T) {
	core, _ := newTestCore(t)
	core.setState(StateDisconnected)
	assert.ErrorIs(t, core.sendMessage("hello", nil), ErrNotConnected)
}

func TestResetHistory_SkipsNonMessageItems(t *testing.T) {
	core, sent := newTestCore(t)

	oldHistory := []RealtimeItem{userMessage("a", "one")}
	newHistory := []RealtimeItem{
		userMessage("b", "two"),
		&FunctionCallItem{ID: "f1", Type: "function_call", Name: "x", Arguments: "{}"},
	}
	core.resetHistory(oldHistory, newHistory)

	require.Len(t, *sent, 2)
	del := (*sent)[0].(events.ConversationItemDeleteEvent)
	assert.Equal(t, "a", del.ItemID)
	create := (*sent)[1].(events.ConversationItemCreateEvent)
	assert.Contains(t, string(create.Item), `"b"`)
}

func TestConnectURL(t *testing.T) {
	assert.Equal(t,
		"wss://api.openai.com/v1/realtime?model=gpt-4o-realtime-preview-2025-06-03",
		connectURL("wss://api.openai.com/v1/realtime", ""))
	assert.Equal(t,
		"wss://example.test/rt?model=my+model",
		connectURL("wss://example.test/rt", "my model"))
}

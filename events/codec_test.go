package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseServerEvent_Typed(t *testing.T) {
	data := []byte(`{
		"event_id": "evt_1",
		"type": "response.audio_transcript.delta",
		"response_id": "resp_1",
		"item_id": "item_1",
		"delta": "hello"
	}`)

	evt, generic := ParseServerEvent(data)
	require.False(t, generic)
	require.IsType(t, &ResponseAudioTranscriptDeltaEvent{}, evt)

	delta := evt.(*ResponseAudioTranscriptDeltaEvent)
	assert.Equal(t, "resp_1", delta.ResponseID)
	assert.Equal(t, "item_1", delta.ItemID)
	assert.Equal(t, "hello", delta.Delta)
}

func TestParseServerEvent_UnknownTypeDegradesToGeneric(t *testing.T) {
	data := []byte(`{
		"type": "response.some_future_event",
		"payload": {"nested": true},
		"count": 3
	}`)

	evt, generic := ParseServerEvent(data)
	require.True(t, generic)
	require.IsType(t, &GenericServerEvent{}, evt)

	g := evt.(*GenericServerEvent)
	assert.Equal(t, "response.some_future_event", g.ServerEventType())
	assert.Equal(t, float64(3), g.Fields["count"])
	assert.Equal(t, map[string]any{"nested": true}, g.Fields["payload"])
}

func TestParseServerEvent_Malformed(t *testing.T) {
	cases := map[string]string{
		"invalid json":    `{"type": "error"`,
		"missing type":    `{"event_id": "evt_1"}`,
		"non-string type": `{"type": 42}`,
		"empty type":      `{"type": ""}`,
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			evt, generic := ParseServerEvent([]byte(data))
			assert.Nil(t, evt)
			assert.True(t, generic)
		})
	}
}

func TestParseServerEvent_ResponseDone(t *testing.T) {
	data := []byte(`{
		"type": "response.done",
		"response": {
			"id": "resp_9",
			"status": "completed",
			"output": [{"id": "item_9", "type": "message", "role": "assistant"}],
			"usage": {"total_tokens": 30, "input_tokens": 10, "output_tokens": 20}
		}
	}`)

	evt, generic := ParseServerEvent(data)
	require.False(t, generic)

	done := evt.(*ResponseDoneEvent)
	assert.Equal(t, "resp_9", done.Response.ID)
	require.Len(t, done.Response.Output, 1)
	require.NotNil(t, done.Response.Usage)
	assert.Equal(t, 30, done.Response.Usage.TotalTokens)
}

func TestTracingConfig_Roundtrip(t *testing.T) {
	t.Run("auto", func(t *testing.T) {
		data, err := json.Marshal(TracingAuto())
		require.NoError(t, err)
		assert.JSONEq(t, `"auto"`, string(data))

		var parsed TracingConfig
		require.NoError(t, json.Unmarshal(data, &parsed))
		assert.True(t, parsed.Auto)
	})

	t.Run("structured", func(t *testing.T) {
		cfg := &TracingConfig{WorkflowName: "support", GroupID: "g1"}
		data, err := json.Marshal(cfg)
		require.NoError(t, err)
		assert.JSONEq(t, `{"workflow_name": "support", "group_id": "g1"}`, string(data))

		var parsed TracingConfig
		require.NoError(t, json.Unmarshal(data, &parsed))
		assert.False(t, parsed.Auto)
		assert.Equal(t, "support", parsed.WorkflowName)
		assert.True(t, cfg.Equal(&parsed))
	})
}

func TestUsage_Add(t *testing.T) {
	var total Usage
	total.Add(Usage{TotalTokens: 10, InputTokens: 4, OutputTokens: 6})
	total.Add(Usage{TotalTokens: 5, InputTokens: 2, OutputTokens: 3})
	assert.Equal(t, Usage{TotalTokens: 15, InputTokens: 6, OutputTokens: 9}, total)
}

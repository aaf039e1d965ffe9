package rtagent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func userMessage(id, text string) *MessageItem {
	return &MessageItem{
		ID:      id,
		Type:    "message",
		Role:    "user",
		Status:  StatusCompleted,
		Content: []ContentPart{{Type: "input_text", Text: text}},
	}
}

func TestDiffHistory_Identical(t *testing.T) {
	history := []RealtimeItem{userMessage("a", "one"), userMessage("b", "two")}
	assert.True(t, DiffHistory(history, history).Empty())
}

func TestDiffHistory_AdditionsRemovalsUpdates(t *testing.T) {
	oldHistory := []RealtimeItem{userMessage("a", "one"), userMessage("b", "two")}
	newHistory := []RealtimeItem{userMessage("b", "two, edited"), userMessage("c", "three")}

	diff := DiffHistory(oldHistory, newHistory)
	require.Len(t, diff.Removals, 1)
	assert.Equal(t, "a", diff.Removals[0].ItemID())
	require.Len(t, diff.Additions, 1)
	assert.Equal(t, "c", diff.Additions[0].ItemID())
	require.Len(t, diff.Updates, 1)
	assert.Equal(t, "b", diff.Updates[0].ItemID())
}

func TestDiffHistory_AllAdditionsFromEmpty(t *testing.T) {
	newHistory := []RealtimeItem{userMessage("a", "one"), userMessage("b", "two")}
	diff := DiffHistory(nil, newHistory)
	assert.Len(t, diff.Additions, 2)
	assert.Empty(t, diff.Removals)
	assert.Empty(t, diff.Updates)
}

func TestApplyHistoryUpdate_ReplaceInPlace(t *testing.T) {
	history := []RealtimeItem{userMessage("a", "one"), userMessage("b", "two")}
	history = ApplyHistoryUpdate(history, userMessage("a", "one, edited"), false)

	require.Len(t, history, 2)
	assert.Equal(t, "a", history[0].ItemID())
	assert.Equal(t, "one, edited", history[0].(*MessageItem).Content[0].Text)
}

func TestApplyHistoryUpdate_InsertAfterPrevious(t *testing.T) {
	history := []RealtimeItem{userMessage("a", "one"), userMessage("c", "three")}
	incoming := userMessage("b", "two")
	incoming.PreviousItemID = "a"
	history = ApplyHistoryUpdate(history, incoming, false)

	require.Len(t, history, 3)
	assert.Equal(t, "a", history[0].ItemID())
	assert.Equal(t, "b", history[1].ItemID())
	assert.Equal(t, "c", history[2].ItemID())
}

func TestApplyHistoryUpdate_AppendWhenPreviousUnknown(t *testing.T) {
	history := []RealtimeItem{userMessage("a", "one")}
	incoming := userMessage("b", "two")
	incoming.PreviousItemID = "missing"
	history = ApplyHistoryUpdate(history, incoming, false)

	require.Len(t, history, 2)
	assert.Equal(t, "b", history[1].ItemID())
}

func TestApplyHistoryUpdate_StripsAudio(t *testing.T) {
	existing := &MessageItem{
		ID:   "a",
		Type: "message",
		Role: "assistant",
		Content: []ContentPart{
			{Type: "audio", Audio: "AAAA", Transcript: "earlier"},
		},
	}
	incoming := &MessageItem{
		ID:   "b",
		Type: "message",
		Role: "assistant",
		Content: []ContentPart{
			{Type: "audio", Audio: "BBBB", Transcript: "later"},
		},
	}

	history := ApplyHistoryUpdate([]RealtimeItem{existing}, incoming, false)
	require.Len(t, history, 2)
	for _, item := range history {
		message := item.(*MessageItem)
		assert.Empty(t, message.Content[0].Audio, "item %s retained audio", message.ID)
		assert.NotEmpty(t, message.Content[0].Transcript)
	}

	// keepAudio preserves the payload.
	kept := ApplyHistoryUpdate([]RealtimeItem{existing}, incoming, true)
	assert.Equal(t, "BBBB", kept[1].(*MessageItem).Content[0].Audio)
}

func TestRemoveHistoryItem(t *testing.T) {
	history := []RealtimeItem{userMessage("a", "one"), userMessage("b", "two")}
	history = RemoveHistoryItem(history, "a")
	require.Len(t, history, 1)
	assert.Equal(t, "b", history[0].ItemID())

	assert.Len(t, RemoveHistoryItem(history, "unknown"), 1)
}

func TestParseItem(t *testing.T) {
	t.Run("function call", func(t *testing.T) {
		item, err := ParseItem([]byte(`{"id":"i1","type":"function_call","name":"get_weather","call_id":"c1","arguments":"{}"}`))
		require.NoError(t, err)
		call := item.(*FunctionCallItem)
		assert.Equal(t, "get_weather", call.Name)
		assert.False(t, call.MCP())
	})

	t.Run("mcp call", func(t *testing.T) {
		item, err := ParseItem([]byte(`{"id":"i2","type":"mcp_call","name":"search","server_label":"docs","arguments":"{}"}`))
		require.NoError(t, err)
		assert.True(t, item.(*FunctionCallItem).MCP())
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := ParseItem([]byte(`{"id":"i3","type":"hologram"}`))
		require.Error(t, err)
	})
}

func TestCloneHistory_NoAliasing(t *testing.T) {
	original := []RealtimeItem{userMessage("a", "one")}
	clone := CloneHistory(original)

	clone[0].(*MessageItem).Content[0].Text = "mutated"
	assert.Equal(t, "one", original[0].(*MessageItem).Content[0].Text)
}

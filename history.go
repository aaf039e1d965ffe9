package rtagent

import "encoding/json"

// HistoryDiff is the result of comparing two ordered item lists by identity.
type HistoryDiff struct {
	Additions []RealtimeItem
	Removals  []RealtimeItem
	Updates   []RealtimeItem
}

func (d HistoryDiff) Empty() bool {
	return len(d.Additions) == 0 && len(d.Removals) == 0 && len(d.Updates) == 0
}

// DiffHistory compares oldHistory and newHistory by item identity.
// Removals are items only in oldHistory, additions items only in
// newHistory, and updates items present in both whose serialized content
// differs.
func DiffHistory(oldHistory, newHistory []RealtimeItem) HistoryDiff {
	oldByID := make(map[string]RealtimeItem, len(oldHistory))
	for _, item := range oldHistory {
		oldByID[item.ItemID()] = item
	}
	newByID := make(map[string]RealtimeItem, len(newHistory))
	for _, item := range newHistory {
		newByID[item.ItemID()] = item
	}

	var diff HistoryDiff
	for _, item := range oldHistory {
		if _, ok := newByID[item.ItemID()]; !ok {
			diff.Removals = append(diff.Removals, item)
		}
	}
	for _, item := range newHistory {
		previous, ok := oldByID[item.ItemID()]
		if !ok {
			diff.Additions = append(diff.Additions, item)
			continue
		}
		if !itemsEqual(previous, item) {
			diff.Updates = append(diff.Updates, item)
		}
	}
	return diff
}

func itemsEqual(a, b RealtimeItem) bool {
	aj, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bj, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return string(aj) == string(bj)
}

// ApplyHistoryUpdate merges an incoming item into an ordered history.
//
// An item with a known identity replaces the existing entry in place. A new
// item whose PreviousID names an existing entry is inserted immediately
// after it; otherwise it is appended. Unless keepAudio is set, raw audio
// payload is stripped from the incoming item and from every other message
// item already present, bounding memory growth over a long session.
func ApplyHistoryUpdate(history []RealtimeItem, incoming RealtimeItem, keepAudio bool) []RealtimeItem {
	if incoming == nil {
		return history
	}
	if !keepAudio {
		incoming = stripItemAudio(incoming)
	}

	out := make([]RealtimeItem, 0, len(history)+1)
	replaced := false
	for _, item := range history {
		if item.ItemID() == incoming.ItemID() {
			out = append(out, incoming)
			replaced = true
			continue
		}
		if !keepAudio {
			item = stripItemAudio(item)
		}
		out = append(out, item)
	}
	if replaced {
		return out
	}

	if prev := incoming.PreviousID(); prev != "" {
		for i, item := range out {
			if item.ItemID() == prev {
				out = append(out[:i+1], append([]RealtimeItem{incoming}, out[i+1:]...)...)
				return out
			}
		}
	}
	return append(out, incoming)
}

// RemoveHistoryItem drops the entry with the given identity, if present.
func RemoveHistoryItem(history []RealtimeItem, itemID string) []RealtimeItem {
	out := make([]RealtimeItem, 0, len(history))
	for _, item := range history {
		if item.ItemID() != itemID {
			out = append(out, item)
		}
	}
	return out
}

func stripItemAudio(item RealtimeItem) RealtimeItem {
	message, ok := item.(*MessageItem)
	if !ok {
		return item
	}
	hasAudio := false
	for _, part := range message.Content {
		if part.Audio != "" {
			hasAudio = true
			break
		}
	}
	if !hasAudio {
		return item
	}
	clone := *message
	clone.Content = make([]ContentPart, len(message.Content))
	for i, part := range message.Content {
		part.Audio = ""
		clone.Content[i] = part
	}
	return &clone
}

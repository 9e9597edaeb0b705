// Package threads keeps a user's chat thread list live. It merges a bulk
// fetch with message, membership and event-status notifications into one
// sorted, deduplicated list.
package threads

import (
	"cmp"
	"slices"
	"time"

	"activitychat/internal/domain"
)

const (
	DefaultEventName    = "Unknown Event"
	DefaultActivityType = "default"
	PlaceholderPreview  = "Tap to start chatting..."
)

// Epoch is the preview time of a thread without messages.
var Epoch = time.Unix(0, 0).UTC()

// Thread is the summary of one chat shown in the list.
type Thread struct {
	ChatID          string    `json:"chat_id"`
	EventID         string    `json:"event_id"`
	EventName       string    `json:"event_name"`
	ActivityType    string    `json:"activity_type"`
	LastMessageText string    `json:"last_message_text"`
	LastMessageTime time.Time `json:"last_message_time"`
}

// HasMessages reports whether the preview comes from a real message.
func (t Thread) HasMessages() bool {
	return t.LastMessageTime.After(Epoch)
}

// compareThreads orders newest preview first, then by chat id.
func compareThreads(a, b Thread) int {
	if c := b.LastMessageTime.Compare(a.LastMessageTime); c != 0 {
		return c
	}
	return cmp.Compare(a.ChatID, b.ChatID)
}

func sortThreads(ts []Thread) {
	slices.SortFunc(ts, compareThreads)
}

// Sorted reports whether ts is in list order.
func Sorted(ts []Thread) bool {
	return slices.IsSortedFunc(ts, compareThreads)
}

func indexOf(ts []Thread, chatID string) int {
	return slices.IndexFunc(ts, func(t Thread) bool { return t.ChatID == chatID })
}

// Build turns fetched records into a sorted thread list. Records whose event
// is completed are left out; their event ids are returned as hidden.
func Build(records []domain.ThreadRecord) ([]Thread, map[string]struct{}) {
	out := make([]Thread, 0, len(records))
	hidden := make(map[string]struct{})
	seen := make(map[string]struct{}, len(records))

	for _, rec := range records {
		if rec.ChatID == "" {
			continue
		}
		if _, dup := seen[rec.ChatID]; dup {
			continue
		}
		seen[rec.ChatID] = struct{}{}

		t := Thread{
			ChatID:          rec.ChatID,
			EventName:       DefaultEventName,
			ActivityType:    DefaultActivityType,
			LastMessageText: PlaceholderPreview,
			LastMessageTime: Epoch,
		}
		status := domain.StatusPending
		if len(rec.Events) > 0 {
			ev := rec.Events[0]
			t.EventID = ev.ID
			if ev.Name != "" {
				t.EventName = ev.Name
			}
			if ev.ActivityType != "" {
				t.ActivityType = ev.ActivityType
			}
			if ev.Status != "" {
				status = ev.Status
			}
		}
		if status == domain.StatusCompleted {
			if t.EventID != "" {
				hidden[t.EventID] = struct{}{}
			}
			continue
		}

		if newest, ok := newestMessage(rec.Messages); ok {
			t.LastMessageText = newest.Content
			t.LastMessageTime = newest.CreatedAt
		}
		out = append(out, t)
	}

	sortThreads(out)
	return out, hidden
}

func newestMessage(msgs []domain.MessagePreview) (domain.MessagePreview, bool) {
	if len(msgs) == 0 {
		return domain.MessagePreview{}, false
	}
	return slices.MaxFunc(msgs, func(a, b domain.MessagePreview) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	}), true
}

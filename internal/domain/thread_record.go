package domain

import "time"

// EventSummary is the slice of an event the thread list needs.
type EventSummary struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ActivityType string `json:"activity_type"`
	Status       string `json:"status"`
}

// MessagePreview is the slice of a message the thread list needs.
type MessagePreview struct {
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ThreadRecord is one membership of a user joined to its chat's event and
// messages, already normalized.
type ThreadRecord struct {
	ChatID   string
	Events   []EventSummary
	Messages []MessagePreview
}

// ThreadRow is the nested shape of a thread record as it crosses a JSON
// boundary: chat_id, chats { events, messages }.
type ThreadRow struct {
	ChatID string        `json:"chat_id"`
	Chats  ThreadRowChat `json:"chats"`
}

type ThreadRowChat struct {
	Events   OneOrMany[EventSummary]   `json:"events"`
	Messages OneOrMany[MessagePreview] `json:"messages"`
}

// Normalize resolves the joined sub-objects into plain lists.
func (r ThreadRow) Normalize() ThreadRecord {
	return ThreadRecord{
		ChatID:   r.ChatID,
		Events:   r.Chats.Events.List(),
		Messages: r.Chats.Messages.List(),
	}
}

// NewThreadRow renders a record in the nested shape, with the event as a
// single object (chat -> event is many-to-one).
func NewThreadRow(rec ThreadRecord) ThreadRow {
	row := ThreadRow{ChatID: rec.ChatID}
	if len(rec.Events) > 0 {
		row.Chats.Events = One(rec.Events[0])
	}
	row.Chats.Messages = Many(rec.Messages...)
	return row
}

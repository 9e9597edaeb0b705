package domain

import (
	"context"
)

// UserRepository defines persistence operations for auth accounts.
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
}

// ProfileRepository defines persistence operations for profiles.
type ProfileRepository interface {
	Get(ctx context.Context, userID string) (*Profile, error)
	Upsert(ctx context.Context, p *Profile) error
	ListByIDs(ctx context.Context, userIDs []string) ([]*Profile, error)
}

// EventRepository defines persistence operations for events.
type EventRepository interface {
	// Create stores the event together with its chat, the organizer's
	// membership and attendance, and the chat's opening system message.
	Create(ctx context.Context, e *Event, c *Chat, opening *Message) error
	GetByID(ctx context.Context, id string) (*Event, error)
	ListByIDs(ctx context.Context, ids []string) ([]*Event, error)
	ListOpen(ctx context.Context) ([]*Event, error)
	SetStatus(ctx context.Context, id, status string) error
}

// ChatRepository defines persistence operations for chats and memberships.
type ChatRepository interface {
	GetByID(ctx context.Context, id string) (*Chat, error)
	GetByEventID(ctx context.Context, eventID string) (*Chat, error)
	// AddParticipant inserts the membership and reports whether it was new.
	AddParticipant(ctx context.Context, p *ChatParticipant) (bool, error)
	IsParticipant(ctx context.Context, chatID, userID string) (bool, error)
	CountParticipants(ctx context.Context, chatID string) (int, error)
	// ListThreadRecords returns every membership of the user joined to its
	// chat's event and messages.
	ListThreadRecords(ctx context.Context, userID string) ([]ThreadRecord, error)
}

// MessageRepository defines persistence operations for messages.
type MessageRepository interface {
	Create(ctx context.Context, m *Message) error
	ListForChat(ctx context.Context, chatID string) ([]*Message, error)
}

// AttendeeRepository defines persistence operations for event attendance.
type AttendeeRepository interface {
	Upsert(ctx context.Context, a *EventAttendee) error
	Get(ctx context.Context, eventID, userID string) (*EventAttendee, error)
	SetCompleted(ctx context.Context, eventID, userID string, completed bool) error
}

// RatingRepository defines persistence operations for organizer ratings.
type RatingRepository interface {
	// Upsert replaces an earlier rating by the same rater for the same event.
	Upsert(ctx context.Context, r *OrganizerRating) error
	ListForOrganizer(ctx context.Context, organizerID string) ([]*OrganizerRating, error)
}

// PostRepository defines persistence operations for feed posts and likes.
type PostRepository interface {
	Create(ctx context.Context, p *Post) error
	GetByID(ctx context.Context, id string) (*Post, error)
	Delete(ctx context.Context, id string) error
	ListRecent(ctx context.Context, limit int) ([]*Post, error)
	ListLikes(ctx context.Context, postIDs []string) ([]*PostLike, error)
	AddLike(ctx context.Context, l *PostLike) (bool, error)
	RemoveLike(ctx context.Context, postID, userID string) (bool, error)
}

// Repositories bundles one store's repositories.
type Repositories struct {
	Users     UserRepository
	Profiles  ProfileRepository
	Events    EventRepository
	Chats     ChatRepository
	Messages  MessageRepository
	Attendees AttendeeRepository
	Ratings   RatingRepository
	Posts     PostRepository
}

package domain

import "time"

// Event statuses.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
)

// Message types. System messages are posted by the service, e.g. on chat creation.
const (
	MessageTypeUser   = "user"
	MessageTypeSystem = "system"
)

// User is an auth account.
type User struct {
	ID             string    `db:"id" json:"id"`
	Email          string    `db:"email" json:"email"`
	HashedPassword string    `db:"hashed_password" json:"-"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Profile is the public face of a user.
type Profile struct {
	UserID    string    `db:"user_id" json:"user_id"`
	Name      string    `db:"name" json:"name"`
	Bio       *string   `db:"bio" json:"bio,omitempty"`
	Interests []string  `db:"interests" json:"interests"`
	AvatarURL *string   `db:"avatar_url" json:"avatar_url,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Event is a user-created activity. Each event owns exactly one chat.
type Event struct {
	ID           string    `db:"id" json:"id"`
	OrganizerID  string    `db:"organizer_id" json:"organizer_id"`
	Name         string    `db:"name" json:"name"`
	Description  *string   `db:"description" json:"description,omitempty"`
	ActivityType string    `db:"activity_type" json:"activity_type"`
	PriceRange   string    `db:"price_range" json:"price_range"`
	TimeSlot     string    `db:"time_slot" json:"time_slot"`
	EventDate    string    `db:"event_date" json:"event_date"` // YYYY-MM-DD
	Location     string    `db:"location" json:"location"`
	Latitude     *float64  `db:"latitude" json:"latitude"`
	Longitude    *float64  `db:"longitude" json:"longitude"`
	Status       string    `db:"status" json:"status"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Chat is the group thread of one event.
type Chat struct {
	ID        string    `db:"id" json:"id"`
	EventID   string    `db:"event_id" json:"event_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ChatParticipant is a membership: it grants a user visibility into a chat.
type ChatParticipant struct {
	ChatID   string    `db:"chat_id" json:"chat_id"`
	UserID   string    `db:"user_id" json:"user_id"`
	JoinedAt time.Time `db:"joined_at" json:"joined_at"`
}

// Message is a single chat message.
type Message struct {
	ID        string    `db:"id" json:"id"`
	ChatID    string    `db:"chat_id" json:"chat_id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Content   string    `db:"content" json:"content"`
	Type      string    `db:"type" json:"type"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// EventAttendee records that a user signed up for an event.
type EventAttendee struct {
	EventID   string    `db:"event_id" json:"event_id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Completed bool      `db:"completed" json:"completed"`
	JoinedAt  time.Time `db:"joined_at" json:"joined_at"`
}

// OrganizerRating is one attendee's rating of an organizer for one event.
type OrganizerRating struct {
	ID                  string    `db:"id" json:"id"`
	EventID             string    `db:"event_id" json:"event_id"`
	OrganizerID         string    `db:"organizer_id" json:"organizer_id"`
	RaterID             string    `db:"rater_id" json:"rater_id"`
	CommunicationRating int       `db:"communication_rating" json:"communication_rating"`
	SafetyRating        int       `db:"safety_rating" json:"safety_rating"`
	OverallRating       int       `db:"overall_rating" json:"overall_rating"`
	Comment             *string   `db:"comment" json:"comment,omitempty"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
}

// Post is a photo posted to the feed (user_media).
type Post struct {
	ID         string    `db:"id" json:"id"`
	UserID     string    `db:"user_id" json:"user_id"`
	Caption    string    `db:"caption" json:"caption"`
	MediaURL   string    `db:"media_url" json:"media_url"`
	ActivityID *string   `db:"activity_id" json:"activity_id,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// PostLike is a (post, user) like.
type PostLike struct {
	PostID    string    `db:"post_id" json:"post_id"`
	UserID    string    `db:"user_id" json:"user_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

package postgres

import (
	"database/sql"

	"activitychat/internal/domain"
)

// NewRepositories returns every repository backed by db.
func NewRepositories(db *sql.DB) domain.Repositories {
	return domain.Repositories{
		Users:     NewUserRepo(db),
		Profiles:  NewProfileRepo(db),
		Events:    NewEventRepo(db),
		Chats:     NewChatRepo(db),
		Messages:  NewMessageRepo(db),
		Attendees: NewAttendeeRepo(db),
		Ratings:   NewRatingRepo(db),
		Posts:     NewPostRepo(db),
	}
}

package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Open opens a SQLite database with the given DSN. Times are written in
// SQLite's own format so they scan back into time.Time.
func Open(dsn string) (*sql.DB, error) {
	if !strings.Contains(dsn, "_time_format=") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_time_format=sqlite"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; also keeps :memory: databases on one connection.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return db, nil
}

// Migrate creates the schema. Every statement is idempotent.
func Migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT UNIQUE NOT NULL,
			hashed_password TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS profiles (
			user_id TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			bio TEXT,
			interests TEXT NOT NULL DEFAULT '[]',
			avatar_url TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			organizer_id TEXT NOT NULL REFERENCES users(id),
			name TEXT NOT NULL,
			description TEXT,
			activity_type TEXT NOT NULL,
			price_range TEXT NOT NULL,
			time_slot TEXT NOT NULL,
			event_date TEXT NOT NULL,
			location TEXT NOT NULL,
			latitude REAL,
			longitude REAL,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS chats (
			id TEXT PRIMARY KEY,
			event_id TEXT UNIQUE NOT NULL REFERENCES events(id) ON DELETE CASCADE,
			created_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS chat_participants (
			chat_id TEXT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
			user_id TEXT NOT NULL REFERENCES users(id),
			joined_at DATETIME NOT NULL,
			PRIMARY KEY (chat_id, user_id)
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			chat_id TEXT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
			user_id TEXT NOT NULL REFERENCES users(id),
			content TEXT NOT NULL,
			type TEXT NOT NULL DEFAULT 'user',
			created_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS event_attendees (
			event_id TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
			user_id TEXT NOT NULL REFERENCES users(id),
			completed BOOLEAN NOT NULL DEFAULT 0,
			joined_at DATETIME NOT NULL,
			PRIMARY KEY (event_id, user_id)
		);`,
		`CREATE TABLE IF NOT EXISTS organizer_ratings (
			id TEXT PRIMARY KEY,
			event_id TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
			organizer_id TEXT NOT NULL REFERENCES users(id),
			rater_id TEXT NOT NULL REFERENCES users(id),
			communication_rating INTEGER NOT NULL,
			safety_rating INTEGER NOT NULL,
			overall_rating INTEGER NOT NULL,
			comment TEXT,
			created_at DATETIME NOT NULL,
			UNIQUE (event_id, rater_id)
		);`,
		`CREATE TABLE IF NOT EXISTS user_media (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id),
			caption TEXT NOT NULL DEFAULT '',
			media_url TEXT NOT NULL,
			activity_id TEXT REFERENCES events(id) ON DELETE SET NULL,
			created_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS post_likes (
			post_id TEXT NOT NULL REFERENCES user_media(id) ON DELETE CASCADE,
			user_id TEXT NOT NULL REFERENCES users(id),
			created_at DATETIME NOT NULL,
			PRIMARY KEY (post_id, user_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_status ON events(status);`,
		`CREATE INDEX IF NOT EXISTS idx_chat_participants_user ON chat_participants(user_id);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_chat_created ON messages(chat_id, created_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_ratings_organizer ON organizer_ratings(organizer_id);`,
		`CREATE INDEX IF NOT EXISTS idx_user_media_created ON user_media(created_at DESC);`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	return nil
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func ensureID(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}

func ensureTime(t *time.Time) {
	if t.IsZero() {
		*t = now()
	}
}

// inArgs renders "?,?,?" for ids and returns them as query args.
func inArgs(ids []string) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return "?" + strings.Repeat(",?", len(ids)-1), args
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

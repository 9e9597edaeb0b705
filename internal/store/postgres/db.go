package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Open opens a PostgreSQL database using the pgx stdlib driver.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Migrate runs idempotent DDL migrations on PostgreSQL.
func Migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id              TEXT        PRIMARY KEY,
			email           TEXT        UNIQUE NOT NULL,
			hashed_password TEXT        NOT NULL,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS profiles (
			user_id    TEXT        PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
			name       TEXT        NOT NULL,
			bio        TEXT,
			interests  JSONB       NOT NULL DEFAULT '[]'::jsonb,
			avatar_url TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS events (
			id            TEXT        PRIMARY KEY,
			organizer_id  TEXT        NOT NULL REFERENCES users(id),
			name          TEXT        NOT NULL,
			description   TEXT,
			activity_type TEXT        NOT NULL,
			price_range   TEXT        NOT NULL,
			time_slot     TEXT        NOT NULL,
			event_date    TEXT        NOT NULL,
			location      TEXT        NOT NULL,
			latitude      DOUBLE PRECISION,
			longitude     DOUBLE PRECISION,
			status        TEXT        NOT NULL DEFAULT 'pending',
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		// One chat per event
		`CREATE TABLE IF NOT EXISTS chats (
			id         TEXT        PRIMARY KEY,
			event_id   TEXT        UNIQUE NOT NULL REFERENCES events(id) ON DELETE CASCADE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS chat_participants (
			chat_id   TEXT        NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
			user_id   TEXT        NOT NULL REFERENCES users(id),
			joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (chat_id, user_id)
		)`,

		`CREATE TABLE IF NOT EXISTS messages (
			id         TEXT        PRIMARY KEY,
			chat_id    TEXT        NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
			user_id    TEXT        NOT NULL REFERENCES users(id),
			content    TEXT        NOT NULL,
			type       TEXT        NOT NULL DEFAULT 'user',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS event_attendees (
			event_id  TEXT        NOT NULL REFERENCES events(id) ON DELETE CASCADE,
			user_id   TEXT        NOT NULL REFERENCES users(id),
			completed BOOLEAN     NOT NULL DEFAULT FALSE,
			joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (event_id, user_id)
		)`,

		`CREATE TABLE IF NOT EXISTS organizer_ratings (
			id                   TEXT        PRIMARY KEY,
			event_id             TEXT        NOT NULL REFERENCES events(id) ON DELETE CASCADE,
			organizer_id         TEXT        NOT NULL REFERENCES users(id),
			rater_id             TEXT        NOT NULL REFERENCES users(id),
			communication_rating SMALLINT    NOT NULL CHECK (communication_rating BETWEEN 1 AND 5),
			safety_rating        SMALLINT    NOT NULL CHECK (safety_rating BETWEEN 1 AND 5),
			overall_rating       SMALLINT    NOT NULL CHECK (overall_rating BETWEEN 1 AND 5),
			comment              TEXT,
			created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (event_id, rater_id)
		)`,

		// Feed posts
		`CREATE TABLE IF NOT EXISTS user_media (
			id          TEXT        PRIMARY KEY,
			user_id     TEXT        NOT NULL REFERENCES users(id),
			caption     TEXT        NOT NULL DEFAULT '',
			media_url   TEXT        NOT NULL,
			activity_id TEXT        REFERENCES events(id) ON DELETE SET NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS post_likes (
			post_id    TEXT        NOT NULL REFERENCES user_media(id) ON DELETE CASCADE,
			user_id    TEXT        NOT NULL REFERENCES users(id),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (post_id, user_id)
		)`,

		// Indexes
		`CREATE INDEX IF NOT EXISTS idx_events_status ON events(status)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_participants_user ON chat_participants(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_chat_created ON messages(chat_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_ratings_organizer ON organizer_ratings(organizer_id)`,
		`CREATE INDEX IF NOT EXISTS idx_user_media_created ON user_media(created_at DESC)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w\nSQL: %s", err, stmt)
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

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

type scanner interface {
	Scan(dest ...any) error
}

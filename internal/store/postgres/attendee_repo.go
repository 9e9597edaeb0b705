package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"activitychat/internal/domain"
)

type AttendeeRepo struct {
	db *sql.DB
}

func NewAttendeeRepo(db *sql.DB) *AttendeeRepo {
	return &AttendeeRepo{db: db}
}

var _ domain.AttendeeRepository = (*AttendeeRepo)(nil)

func (r *AttendeeRepo) Upsert(ctx context.Context, a *domain.EventAttendee) error {
	ensureTime(&a.JoinedAt)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO event_attendees (event_id, user_id, completed, joined_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (event_id, user_id) DO NOTHING
	`, a.EventID, a.UserID, a.Completed, a.JoinedAt)
	if err != nil {
		return fmt.Errorf("upsert attendee: %w", err)
	}
	return nil
}

func (r *AttendeeRepo) Get(ctx context.Context, eventID, userID string) (*domain.EventAttendee, error) {
	a := &domain.EventAttendee{}
	err := r.db.QueryRowContext(ctx, `
		SELECT event_id, user_id, completed, joined_at
		FROM event_attendees
		WHERE event_id = $1 AND user_id = $2
	`, eventID, userID).Scan(&a.EventID, &a.UserID, &a.Completed, &a.JoinedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan attendee: %w", err)
	}
	return a, nil
}

func (r *AttendeeRepo) SetCompleted(ctx context.Context, eventID, userID string, completed bool) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE event_attendees SET completed = $1 WHERE event_id = $2 AND user_id = $3
	`, completed, eventID, userID)
	if err != nil {
		return fmt.Errorf("update attendee: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

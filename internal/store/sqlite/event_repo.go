package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"activitychat/internal/domain"
)

type EventRepo struct {
	db *sql.DB
}

func NewEventRepo(db *sql.DB) *EventRepo {
	return &EventRepo{db: db}
}

var _ domain.EventRepository = (*EventRepo)(nil)

const eventColumns = `id, organizer_id, name, description, activity_type, price_range, time_slot,
	event_date, location, latitude, longitude, status, created_at`

func (r *EventRepo) Create(ctx context.Context, e *domain.Event, c *domain.Chat, opening *domain.Message) error {
	ensureID(&e.ID)
	ensureTime(&e.CreatedAt)
	if e.Status == "" {
		e.Status = domain.StatusPending
	}
	ensureID(&c.ID)
	c.EventID = e.ID
	c.CreatedAt = e.CreatedAt

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.OrganizerID, e.Name, e.Description, e.ActivityType, e.PriceRange, e.TimeSlot,
		e.EventDate, e.Location, e.Latitude, e.Longitude, e.Status, e.CreatedAt); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO chats (id, event_id, created_at) VALUES (?, ?, ?)
	`, c.ID, c.EventID, c.CreatedAt); err != nil {
		return fmt.Errorf("insert chat: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO chat_participants (chat_id, user_id, joined_at) VALUES (?, ?, ?)
	`, c.ID, e.OrganizerID, e.CreatedAt); err != nil {
		return fmt.Errorf("insert organizer membership: %w", err)
	}
	if opening != nil {
		ensureID(&opening.ID)
		ensureTime(&opening.CreatedAt)
		opening.ChatID = c.ID
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO messages (id, chat_id, user_id, content, type, created_at) VALUES (?, ?, ?, ?, ?, ?)
		`, opening.ID, opening.ChatID, opening.UserID, opening.Content, opening.Type, opening.CreatedAt); err != nil {
			return fmt.Errorf("insert opening message: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO event_attendees (event_id, user_id, completed, joined_at) VALUES (?, ?, 0, ?)
	`, e.ID, e.OrganizerID, e.CreatedAt); err != nil {
		return fmt.Errorf("insert organizer attendance: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event: %w", err)
	}
	return nil
}

func (r *EventRepo) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return e, err
}

func (r *EventRepo) ListByIDs(ctx context.Context, ids []string) ([]*domain.Event, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	in, args := inArgs(ids)
	return r.list(ctx, `SELECT `+eventColumns+` FROM events WHERE id IN (`+in+`)`, args...)
}

func (r *EventRepo) ListOpen(ctx context.Context) ([]*domain.Event, error) {
	return r.list(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE status != ?
		ORDER BY event_date ASC, created_at ASC
	`, domain.StatusCompleted)
}

func (r *EventRepo) SetStatus(ctx context.Context, id, status string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE events SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("update event status: %w", err)
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

func (r *EventRepo) list(ctx context.Context, query string, args ...any) ([]*domain.Event, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var res []*domain.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func scanEvent(s scanner) (*domain.Event, error) {
	e := &domain.Event{}
	err := s.Scan(
		&e.ID,
		&e.OrganizerID,
		&e.Name,
		&e.Description,
		&e.ActivityType,
		&e.PriceRange,
		&e.TimeSlot,
		&e.EventDate,
		&e.Location,
		&e.Latitude,
		&e.Longitude,
		&e.Status,
		&e.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan event: %w", err)
	}
	return e, nil
}

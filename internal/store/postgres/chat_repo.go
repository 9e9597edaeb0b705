package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"activitychat/internal/domain"
)

type ChatRepo struct {
	db *sql.DB
}

func NewChatRepo(db *sql.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

var _ domain.ChatRepository = (*ChatRepo)(nil)

func (r *ChatRepo) GetByID(ctx context.Context, id string) (*domain.Chat, error) {
	return r.scanChat(ctx, `SELECT id, event_id, created_at FROM chats WHERE id = $1`, id)
}

func (r *ChatRepo) GetByEventID(ctx context.Context, eventID string) (*domain.Chat, error) {
	return r.scanChat(ctx, `SELECT id, event_id, created_at FROM chats WHERE event_id = $1`, eventID)
}

func (r *ChatRepo) scanChat(ctx context.Context, query string, arg any) (*domain.Chat, error) {
	c := &domain.Chat{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&c.ID, &c.EventID, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan chat: %w", err)
	}
	return c, nil
}

func (r *ChatRepo) AddParticipant(ctx context.Context, p *domain.ChatParticipant) (bool, error) {
	ensureTime(&p.JoinedAt)
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO chat_participants (chat_id, user_id, joined_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (chat_id, user_id) DO NOTHING
	`, p.ChatID, p.UserID, p.JoinedAt)
	if err != nil {
		return false, fmt.Errorf("add participant: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func (r *ChatRepo) IsParticipant(ctx context.Context, chatID, userID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM chat_participants WHERE chat_id = $1 AND user_id = $2)
	`, chatID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check participant: %w", err)
	}
	return exists, nil
}

func (r *ChatRepo) CountParticipants(ctx context.Context, chatID string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM chat_participants WHERE chat_id = $1
	`, chatID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count participants: %w", err)
	}
	return n, nil
}

// ListThreadRecords renders each membership's chat as JSON: the event as a
// single object (or null) and the newest message as an array.
func (r *ChatRepo) ListThreadRecords(ctx context.Context, userID string) ([]domain.ThreadRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT cp.chat_id,
		       json_build_object(
		           'events', (
		               SELECT json_build_object(
		                   'id', e.id,
		                   'name', e.name,
		                   'activity_type', e.activity_type,
		                   'status', e.status)
		               FROM events e
		               WHERE e.id = c.event_id
		           ),
		           'messages', COALESCE((
		               SELECT json_agg(json_build_object('content', m.content, 'created_at', m.created_at))
		               FROM (
		                   SELECT content, created_at
		                   FROM messages
		                   WHERE chat_id = cp.chat_id
		                   ORDER BY created_at DESC, id DESC
		                   LIMIT 1
		               ) m
		           ), '[]'::json)
		       ) AS chats
		FROM chat_participants cp
		JOIN chats c ON c.id = cp.chat_id
		WHERE cp.user_id = $1
		ORDER BY cp.joined_at DESC, cp.chat_id ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list thread records: %w", err)
	}
	defer rows.Close()

	var res []domain.ThreadRecord
	for rows.Next() {
		var (
			row  domain.ThreadRow
			chat []byte
		)
		if err := rows.Scan(&row.ChatID, &chat); err != nil {
			return nil, fmt.Errorf("scan thread record: %w", err)
		}
		if err := json.Unmarshal(chat, &row.Chats); err != nil {
			return nil, fmt.Errorf("decode thread record %s: %w", row.ChatID, err)
		}
		res = append(res, row.Normalize())
	}
	return res, rows.Err()
}

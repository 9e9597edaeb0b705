package sqlite

import (
	"context"
	"database/sql"
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
	return r.scanChat(ctx, `SELECT id, event_id, created_at FROM chats WHERE id = ?`, id)
}

func (r *ChatRepo) GetByEventID(ctx context.Context, eventID string) (*domain.Chat, error) {
	return r.scanChat(ctx, `SELECT id, event_id, created_at FROM chats WHERE event_id = ?`, eventID)
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
		VALUES (?, ?, ?)
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
	var exists int
	err := r.db.QueryRowContext(ctx, `
		SELECT 1 FROM chat_participants WHERE chat_id = ? AND user_id = ?
	`, chatID, userID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check participant: %w", err)
	}
	return true, nil
}

func (r *ChatRepo) CountParticipants(ctx context.Context, chatID string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM chat_participants WHERE chat_id = ?
	`, chatID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count participants: %w", err)
	}
	return n, nil
}

// ListThreadRecords joins each membership to its event and its newest
// message. Rows without an event or a message come back with empty lists.
func (r *ChatRepo) ListThreadRecords(ctx context.Context, userID string) ([]domain.ThreadRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT cp.chat_id,
		       e.id, e.name, e.activity_type, e.status,
		       m.content, m.created_at
		FROM chat_participants cp
		JOIN chats c ON c.id = cp.chat_id
		LEFT JOIN events e ON e.id = c.event_id
		LEFT JOIN messages m ON m.id = (
			SELECT m2.id FROM messages m2
			WHERE m2.chat_id = cp.chat_id
			ORDER BY m2.created_at DESC, m2.id DESC
			LIMIT 1
		)
		WHERE cp.user_id = ?
		ORDER BY cp.joined_at DESC, cp.chat_id ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list thread records: %w", err)
	}
	defer rows.Close()

	var res []domain.ThreadRecord
	for rows.Next() {
		var (
			rec                        domain.ThreadRecord
			eventID, name, typ, status sql.NullString
			content                    sql.NullString
			createdAt                  sql.NullTime
		)
		if err := rows.Scan(&rec.ChatID, &eventID, &name, &typ, &status, &content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan thread record: %w", err)
		}
		rec.Events = []domain.EventSummary{}
		if eventID.Valid {
			rec.Events = append(rec.Events, domain.EventSummary{
				ID:           eventID.String,
				Name:         name.String,
				ActivityType: typ.String,
				Status:       status.String,
			})
		}
		rec.Messages = []domain.MessagePreview{}
		if content.Valid && createdAt.Valid {
			rec.Messages = append(rec.Messages, domain.MessagePreview{
				Content:   content.String,
				CreatedAt: createdAt.Time.UTC(),
			})
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

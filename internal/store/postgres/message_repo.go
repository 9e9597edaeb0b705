package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"activitychat/internal/domain"
)

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

var _ domain.MessageRepository = (*MessageRepo)(nil)

func (r *MessageRepo) Create(ctx context.Context, m *domain.Message) error {
	ensureID(&m.ID)
	ensureTime(&m.CreatedAt)
	if m.Type == "" {
		m.Type = domain.MessageTypeUser
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO messages (id, chat_id, user_id, content, type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, m.ID, m.ChatID, m.UserID, m.Content, m.Type, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r *MessageRepo) ListForChat(ctx context.Context, chatID string) ([]*domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, chat_id, user_id, content, type, created_at
		FROM messages
		WHERE chat_id = $1
		ORDER BY created_at ASC, id ASC
	`, chatID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var res []*domain.Message
	for rows.Next() {
		m := &domain.Message{}
		if err := rows.Scan(&m.ID, &m.ChatID, &m.UserID, &m.Content, &m.Type, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

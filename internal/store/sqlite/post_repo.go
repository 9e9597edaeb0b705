package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"activitychat/internal/domain"
)

type PostRepo struct {
	db *sql.DB
}

func NewPostRepo(db *sql.DB) *PostRepo {
	return &PostRepo{db: db}
}

var _ domain.PostRepository = (*PostRepo)(nil)

func (r *PostRepo) Create(ctx context.Context, p *domain.Post) error {
	ensureID(&p.ID)
	ensureTime(&p.CreatedAt)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO user_media (id, user_id, caption, media_url, activity_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, p.ID, p.UserID, p.Caption, p.MediaURL, p.ActivityID, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

func (r *PostRepo) GetByID(ctx context.Context, id string) (*domain.Post, error) {
	p := &domain.Post{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, caption, media_url, activity_id, created_at FROM user_media WHERE id = ?
	`, id).Scan(&p.ID, &p.UserID, &p.Caption, &p.MediaURL, &p.ActivityID, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan post: %w", err)
	}
	return p, nil
}

func (r *PostRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM user_media WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
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

func (r *PostRepo) ListRecent(ctx context.Context, limit int) ([]*domain.Post, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, caption, media_url, activity_id, created_at
		FROM user_media
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	var res []*domain.Post
	for rows.Next() {
		p := &domain.Post{}
		if err := rows.Scan(&p.ID, &p.UserID, &p.Caption, &p.MediaURL, &p.ActivityID, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r *PostRepo) ListLikes(ctx context.Context, postIDs []string) ([]*domain.PostLike, error) {
	if len(postIDs) == 0 {
		return nil, nil
	}
	in, args := inArgs(postIDs)
	rows, err := r.db.QueryContext(ctx, `
		SELECT post_id, user_id, created_at FROM post_likes WHERE post_id IN (`+in+`)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("list likes: %w", err)
	}
	defer rows.Close()

	var res []*domain.PostLike
	for rows.Next() {
		l := &domain.PostLike{}
		if err := rows.Scan(&l.PostID, &l.UserID, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan like: %w", err)
		}
		res = append(res, l)
	}
	return res, rows.Err()
}

func (r *PostRepo) AddLike(ctx context.Context, l *domain.PostLike) (bool, error) {
	ensureTime(&l.CreatedAt)
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO post_likes (post_id, user_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (post_id, user_id) DO NOTHING
	`, l.PostID, l.UserID, l.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("add like: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func (r *PostRepo) RemoveLike(ctx context.Context, postID, userID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM post_likes WHERE post_id = ? AND user_id = ?`, postID, userID)
	if err != nil {
		return false, fmt.Errorf("remove like: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

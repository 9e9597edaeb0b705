package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"activitychat/internal/domain"
)

type UserRepo struct {
	db *sql.DB
}

func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{db: db}
}

var _ domain.UserRepository = (*UserRepo)(nil)

func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	ensureID(&u.ID)
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO users (id, email, hashed_password, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING created_at
	`, u.ID, u.Email, u.HashedPassword).Scan(&u.CreatedAt)
	if isUniqueViolation(err) {
		return domain.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.scanUser(ctx, `SELECT id, email, hashed_password, created_at FROM users WHERE id = $1`, id)
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.scanUser(ctx, `SELECT id, email, hashed_password, created_at FROM users WHERE email = $1`, email)
}

func (r *UserRepo) scanUser(ctx context.Context, query string, arg any) (*domain.User, error) {
	u := &domain.User{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Email, &u.HashedPassword, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return u, nil
}

type ProfileRepo struct {
	db *sql.DB
}

func NewProfileRepo(db *sql.DB) *ProfileRepo {
	return &ProfileRepo{db: db}
}

var _ domain.ProfileRepository = (*ProfileRepo)(nil)

const profileColumns = `user_id, name, bio, interests, avatar_url, created_at, updated_at`

func (r *ProfileRepo) Get(ctx context.Context, userID string) (*domain.Profile, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE user_id = $1`, userID)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return p, err
}

func (r *ProfileRepo) Upsert(ctx context.Context, p *domain.Profile) error {
	if p.Interests == nil {
		p.Interests = []string{}
	}
	interests, err := json.Marshal(p.Interests)
	if err != nil {
		return fmt.Errorf("encode interests: %w", err)
	}
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO profiles (user_id, name, bio, interests, avatar_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4::jsonb, $5, NOW(), NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			name = EXCLUDED.name,
			bio = EXCLUDED.bio,
			interests = EXCLUDED.interests,
			avatar_url = EXCLUDED.avatar_url,
			updated_at = NOW()
		RETURNING created_at, updated_at
	`, p.UserID, p.Name, p.Bio, string(interests), p.AvatarURL).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

func (r *ProfileRepo) ListByIDs(ctx context.Context, userIDs []string) ([]*domain.Profile, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE user_id = ANY($1)`, userIDs)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var res []*domain.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func scanProfile(s scanner) (*domain.Profile, error) {
	p := &domain.Profile{}
	var interests []byte
	if err := s.Scan(&p.UserID, &p.Name, &p.Bio, &interests, &p.AvatarURL, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan profile: %w", err)
	}
	if err := json.Unmarshal(interests, &p.Interests); err != nil {
		return nil, fmt.Errorf("decode interests: %w", err)
	}
	if p.Interests == nil {
		p.Interests = []string{}
	}
	return p, nil
}

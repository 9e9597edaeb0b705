package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"activitychat/internal/domain"
)

type RatingRepo struct {
	db *sql.DB
}

func NewRatingRepo(db *sql.DB) *RatingRepo {
	return &RatingRepo{db: db}
}

var _ domain.RatingRepository = (*RatingRepo)(nil)

func (r *RatingRepo) Upsert(ctx context.Context, rt *domain.OrganizerRating) error {
	ensureID(&rt.ID)
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO organizer_ratings (id, event_id, organizer_id, rater_id, communication_rating,
			safety_rating, overall_rating, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (event_id, rater_id) DO UPDATE SET
			communication_rating = EXCLUDED.communication_rating,
			safety_rating = EXCLUDED.safety_rating,
			overall_rating = EXCLUDED.overall_rating,
			comment = EXCLUDED.comment,
			created_at = NOW()
		RETURNING id, created_at
	`, rt.ID, rt.EventID, rt.OrganizerID, rt.RaterID, rt.CommunicationRating,
		rt.SafetyRating, rt.OverallRating, rt.Comment).Scan(&rt.ID, &rt.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert rating: %w", err)
	}
	return nil
}

func (r *RatingRepo) ListForOrganizer(ctx context.Context, organizerID string) ([]*domain.OrganizerRating, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, event_id, organizer_id, rater_id, communication_rating, safety_rating,
			overall_rating, comment, created_at
		FROM organizer_ratings
		WHERE organizer_id = $1
		ORDER BY created_at DESC
	`, organizerID)
	if err != nil {
		return nil, fmt.Errorf("list ratings: %w", err)
	}
	defer rows.Close()

	var res []*domain.OrganizerRating
	for rows.Next() {
		rt := &domain.OrganizerRating{}
		if err := rows.Scan(
			&rt.ID,
			&rt.EventID,
			&rt.OrganizerID,
			&rt.RaterID,
			&rt.CommunicationRating,
			&rt.SafetyRating,
			&rt.OverallRating,
			&rt.Comment,
			&rt.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan rating: %w", err)
		}
		res = append(res, rt)
	}
	return res, rows.Err()
}

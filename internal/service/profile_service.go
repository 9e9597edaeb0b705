package service

import (
	"context"
	"fmt"
	"math"
	"strings"

	"activitychat/internal/domain"
)

const UnknownUserName = "Unknown User"

type ProfileService struct {
	profiles domain.ProfileRepository
	ratings  domain.RatingRepository
}

func NewProfileService(profiles domain.ProfileRepository, ratings domain.RatingRepository) *ProfileService {
	return &ProfileService{profiles: profiles, ratings: ratings}
}

type ProfileInput struct {
	Name      string   `json:"name"`
	Bio       *string  `json:"bio"`
	Interests []string `json:"interests"`
	AvatarURL *string  `json:"avatar_url"`
}

func (s *ProfileService) Get(ctx context.Context, userID string) (*domain.Profile, error) {
	return s.profiles.Get(ctx, userID)
}

func (s *ProfileService) Upsert(ctx context.Context, userID string, in ProfileInput) (*domain.Profile, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", domain.ErrInvalidInput)
	}
	interests := make([]string, 0, len(in.Interests))
	for _, it := range in.Interests {
		if it = strings.TrimSpace(it); it != "" {
			interests = append(interests, it)
		}
	}
	p := &domain.Profile{
		UserID:    userID,
		Name:      name,
		Bio:       in.Bio,
		Interests: interests,
		AvatarURL: in.AvatarURL,
	}
	if err := s.profiles.Upsert(ctx, p); err != nil {
		return nil, fmt.Errorf("save profile: %w", err)
	}
	return p, nil
}

// Names maps each user id to a display name. Users without a profile, or
// with an empty name, get UnknownUserName.
func (s *ProfileService) Names(ctx context.Context, userIDs []string) (map[string]string, error) {
	names := make(map[string]string, len(userIDs))
	for _, id := range userIDs {
		names[id] = UnknownUserName
	}
	if len(userIDs) == 0 {
		return names, nil
	}
	profiles, err := s.profiles.ListByIDs(ctx, uniq(userIDs))
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	for _, p := range profiles {
		if p.Name != "" {
			names[p.UserID] = p.Name
		}
	}
	return names, nil
}

// RatingSummary is an organizer's average ratings, each rounded to one
// decimal.
type RatingSummary struct {
	AvgCommunication float64 `json:"avg_communication"`
	AvgSafety        float64 `json:"avg_safety"`
	AvgOverall       float64 `json:"avg_overall"`
	TotalRatings     int     `json:"total_ratings"`
}

func (s *ProfileService) Ratings(ctx context.Context, organizerID string) (RatingSummary, error) {
	list, err := s.ratings.ListForOrganizer(ctx, organizerID)
	if err != nil {
		return RatingSummary{}, fmt.Errorf("list ratings: %w", err)
	}
	return Summarize(list), nil
}

func Summarize(ratings []*domain.OrganizerRating) RatingSummary {
	if len(ratings) == 0 {
		return RatingSummary{}
	}
	var comm, safety, overall int
	for _, r := range ratings {
		comm += r.CommunicationRating
		safety += r.SafetyRating
		overall += r.OverallRating
	}
	n := float64(len(ratings))
	return RatingSummary{
		AvgCommunication: round1(float64(comm) / n),
		AvgSafety:        round1(float64(safety) / n),
		AvgOverall:       round1(float64(overall) / n),
		TotalRatings:     len(ratings),
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func uniq(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"activitychat/internal/domain"
	"activitychat/internal/realtime"
)

const DefaultFeedPageSize = 20

type FeedService struct {
	posts    domain.PostRepository
	events   domain.EventRepository
	profiles *ProfileService
	pub      realtime.Publisher
	pageSize int
}

func NewFeedService(posts domain.PostRepository, events domain.EventRepository, profiles *ProfileService, pub realtime.Publisher, pageSize int) *FeedService {
	if pageSize <= 0 {
		pageSize = DefaultFeedPageSize
	}
	return &FeedService{
		posts:    posts,
		events:   events,
		profiles: profiles,
		pub:      pub,
		pageSize: pageSize,
	}
}

// FeedItem is a post as the feed shows it.
type FeedItem struct {
	*domain.Post
	AuthorName   string  `json:"author_name"`
	ActivityName *string `json:"activity_name,omitempty"`
	LikeCount    int     `json:"like_count"`
	LikedByMe    bool    `json:"liked_by_me"`
}

type CreatePostInput struct {
	Caption    string  `json:"caption"`
	MediaURL   string  `json:"media_url"`
	ActivityID *string `json:"activity_id"`
}

// List returns the newest posts for viewerID.
func (s *FeedService) List(ctx context.Context, viewerID string) ([]FeedItem, error) {
	posts, err := s.posts.ListRecent(ctx, s.pageSize)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	if len(posts) == 0 {
		return []FeedItem{}, nil
	}

	postIDs := make([]string, 0, len(posts))
	authorIDs := make([]string, 0, len(posts))
	var activityIDs []string
	for _, p := range posts {
		postIDs = append(postIDs, p.ID)
		authorIDs = append(authorIDs, p.UserID)
		if p.ActivityID != nil {
			activityIDs = append(activityIDs, *p.ActivityID)
		}
	}

	names, err := s.profiles.Names(ctx, authorIDs)
	if err != nil {
		return nil, err
	}

	activities := make(map[string]string)
	if len(activityIDs) > 0 {
		events, err := s.events.ListByIDs(ctx, uniq(activityIDs))
		if err != nil {
			return nil, fmt.Errorf("list activities: %w", err)
		}
		for _, e := range events {
			activities[e.ID] = e.Name
		}
	}

	likes, err := s.posts.ListLikes(ctx, postIDs)
	if err != nil {
		return nil, fmt.Errorf("list likes: %w", err)
	}
	counts := make(map[string]int, len(posts))
	mine := make(map[string]bool)
	for _, l := range likes {
		counts[l.PostID]++
		if l.UserID == viewerID {
			mine[l.PostID] = true
		}
	}

	items := make([]FeedItem, 0, len(posts))
	for _, p := range posts {
		item := FeedItem{
			Post:       p,
			AuthorName: names[p.UserID],
			LikeCount:  counts[p.ID],
			LikedByMe:  mine[p.ID],
		}
		if p.ActivityID != nil {
			if name, ok := activities[*p.ActivityID]; ok {
				item.ActivityName = &name
			}
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *FeedService) Create(ctx context.Context, userID string, in CreatePostInput) (*domain.Post, error) {
	mediaURL := strings.TrimSpace(in.MediaURL)
	if mediaURL == "" {
		return nil, fmt.Errorf("%w: media_url is required", domain.ErrInvalidInput)
	}
	if in.ActivityID != nil && *in.ActivityID != "" {
		if _, err := s.events.GetByID(ctx, *in.ActivityID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, fmt.Errorf("%w: unknown activity", domain.ErrInvalidInput)
			}
			return nil, fmt.Errorf("get activity: %w", err)
		}
	} else {
		in.ActivityID = nil
	}

	p := &domain.Post{
		UserID:     userID,
		Caption:    strings.TrimSpace(in.Caption),
		MediaURL:   mediaURL,
		ActivityID: in.ActivityID,
	}
	if err := s.posts.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	publish(s.pub, realtime.TablePosts, realtime.KindInsert, p)
	return p, nil
}

// Delete removes a post. Only its author may delete it.
func (s *FeedService) Delete(ctx context.Context, postID, userID string) error {
	p, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return fmt.Errorf("get post: %w", err)
	}
	if p.UserID != userID {
		return fmt.Errorf("%w: not your post", domain.ErrForbidden)
	}
	if err := s.posts.Delete(ctx, postID); err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	publish(s.pub, realtime.TablePosts, realtime.KindDelete, p)
	return nil
}

// ToggleLike likes the post, or removes the like if there is one. It
// reports whether the post is now liked by the user.
func (s *FeedService) ToggleLike(ctx context.Context, postID, userID string) (bool, error) {
	if _, err := s.posts.GetByID(ctx, postID); err != nil {
		return false, fmt.Errorf("get post: %w", err)
	}

	like := &domain.PostLike{PostID: postID, UserID: userID}
	removed, err := s.posts.RemoveLike(ctx, postID, userID)
	if err != nil {
		return false, fmt.Errorf("remove like: %w", err)
	}
	if removed {
		publish(s.pub, realtime.TablePostLikes, realtime.KindDelete, like)
		return false, nil
	}

	if _, err := s.posts.AddLike(ctx, like); err != nil {
		return false, fmt.Errorf("add like: %w", err)
	}
	publish(s.pub, realtime.TablePostLikes, realtime.KindInsert, like)
	return true, nil
}

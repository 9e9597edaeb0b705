package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/golang/glog"

	"activitychat/internal/domain"
	"activitychat/internal/realtime"
	"activitychat/internal/security"
)

// ActivityService manages events, attendance and organizer ratings.
type ActivityService struct {
	events    domain.EventRepository
	chats     domain.ChatRepository
	attendees domain.AttendeeRepository
	ratings   domain.RatingRepository
	profiles  domain.ProfileRepository
	encryptor *security.Encryptor
	pub       realtime.Publisher
}

func NewActivityService(
	events domain.EventRepository,
	chats domain.ChatRepository,
	attendees domain.AttendeeRepository,
	ratings domain.RatingRepository,
	profiles domain.ProfileRepository,
	encryptor *security.Encryptor,
	pub realtime.Publisher,
) *ActivityService {
	return &ActivityService{
		events:    events,
		chats:     chats,
		attendees: attendees,
		ratings:   ratings,
		profiles:  profiles,
		encryptor: encryptor,
		pub:       pub,
	}
}

type CreateActivityInput struct {
	Name         string   `json:"name"`
	Description  *string  `json:"description"`
	ActivityType string   `json:"activity_type"`
	PriceRange   string   `json:"price_range"`
	TimeSlot     string   `json:"time_slot"`
	EventDate    string   `json:"event_date"`
	Location     string   `json:"location"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
}

// validate checks fields in the order the create form lists them.
func (in *CreateActivityInput) validate() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Location = strings.TrimSpace(in.Location)
	in.EventDate = strings.TrimSpace(in.EventDate)

	switch {
	case in.Name == "":
		return fmt.Errorf("%w: please enter an activity name", domain.ErrInvalidInput)
	case in.ActivityType == "":
		return fmt.Errorf("%w: please select an activity type", domain.ErrInvalidInput)
	case in.PriceRange == "":
		return fmt.Errorf("%w: please select a price range", domain.ErrInvalidInput)
	case in.TimeSlot == "":
		return fmt.Errorf("%w: please select a time", domain.ErrInvalidInput)
	case in.EventDate == "":
		return fmt.Errorf("%w: please enter a date", domain.ErrInvalidInput)
	case in.Location == "":
		return fmt.Errorf("%w: please enter a location", domain.ErrInvalidInput)
	}
	if _, err := time.Parse(time.DateOnly, in.EventDate); err != nil {
		return fmt.Errorf("%w: date must be YYYY-MM-DD", domain.ErrInvalidInput)
	}
	if (in.Latitude == nil) != (in.Longitude == nil) {
		return fmt.Errorf("%w: latitude and longitude go together", domain.ErrInvalidInput)
	}
	return nil
}

// CreatedActivity is a new event and its group chat.
type CreatedActivity struct {
	Event *domain.Event `json:"event"`
	Chat  *domain.Chat  `json:"chat"`
}

func (s *ActivityService) Create(ctx context.Context, organizerID string, in CreateActivityInput) (*CreatedActivity, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	profile, err := s.profiles.Get(ctx, organizerID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrNoProfile
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}

	name := strings.TrimSpace(profile.Name)
	if name == "" {
		name = "Someone"
	}

	event := &domain.Event{
		OrganizerID:  organizerID,
		Name:         in.Name,
		Description:  in.Description,
		ActivityType: in.ActivityType,
		PriceRange:   in.PriceRange,
		TimeSlot:     in.TimeSlot,
		EventDate:    in.EventDate,
		Location:     in.Location,
		Latitude:     in.Latitude,
		Longitude:    in.Longitude,
		Status:       domain.StatusPending,
	}
	text := name + " created the group"
	sealed, err := s.encryptor.Encrypt(text)
	if err != nil {
		return nil, fmt.Errorf("encrypt content: %w", err)
	}
	chat := &domain.Chat{}
	opening := &domain.Message{
		UserID:  organizerID,
		Content: sealed,
		Type:    domain.MessageTypeSystem,
	}
	if err := s.events.Create(ctx, event, chat, opening); err != nil {
		return nil, fmt.Errorf("create activity: %w", err)
	}
	opening.Content = text
	glog.V(1).Infof("service: activity %s created by %s (chat %s)", event.ID, organizerID, chat.ID)

	publish(s.pub, realtime.TableEvents, realtime.KindInsert, event)
	publish(s.pub, realtime.TableChatParticipants, realtime.KindInsert, domain.ChatParticipant{
		ChatID:   chat.ID,
		UserID:   organizerID,
		JoinedAt: chat.CreatedAt,
	})
	publish(s.pub, realtime.TableMessages, realtime.KindInsert, opening)
	return &CreatedActivity{Event: event, Chat: chat}, nil
}

func (s *ActivityService) Get(ctx context.Context, id string) (*domain.Event, error) {
	return s.events.GetByID(ctx, id)
}

// NearbyQuery narrows ListOpen to events within RadiusKm of a point.
type NearbyQuery struct {
	Latitude  float64
	Longitude float64
	RadiusKm  float64
}

// ListOpen returns events that are not completed. With a query, events
// without coordinates or outside the radius are left out.
func (s *ActivityService) ListOpen(ctx context.Context, near *NearbyQuery) ([]*domain.Event, error) {
	events, err := s.events.ListOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	if near == nil {
		return events, nil
	}
	out := make([]*domain.Event, 0, len(events))
	for _, e := range events {
		if e.Latitude == nil || e.Longitude == nil {
			continue
		}
		if distanceKm(near.Latitude, near.Longitude, *e.Latitude, *e.Longitude) <= near.RadiusKm {
			out = append(out, e)
		}
	}
	return out, nil
}

const earthRadiusKm = 6371.0

// distanceKm is the great-circle distance between two points.
func distanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLng := (lng2 - lng1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(a)))
}

// Join signs the user up for the event and adds them to its chat.
func (s *ActivityService) Join(ctx context.Context, eventID, userID string) (*domain.Chat, error) {
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("get activity: %w", err)
	}
	if event.Status == domain.StatusCompleted {
		return nil, fmt.Errorf("%w: activity is completed", domain.ErrInvalidInput)
	}

	if err := s.attendees.Upsert(ctx, &domain.EventAttendee{EventID: eventID, UserID: userID}); err != nil {
		return nil, fmt.Errorf("add attendee: %w", err)
	}

	chat, err := s.chats.GetByEventID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("get chat: %w", err)
	}
	p := &domain.ChatParticipant{ChatID: chat.ID, UserID: userID}
	added, err := s.chats.AddParticipant(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("add participant: %w", err)
	}
	if added {
		publish(s.pub, realtime.TableChatParticipants, realtime.KindInsert, p)
	}
	return chat, nil
}

// RatingInput is an attendee's rating of the organizer. Every score is 1..5.
type RatingInput struct {
	Communication int     `json:"communication_rating"`
	Safety        int     `json:"safety_rating"`
	Overall       int     `json:"overall_rating"`
	Comment       *string `json:"comment"`
}

func (in RatingInput) validate() error {
	for _, v := range []int{in.Communication, in.Safety, in.Overall} {
		if v < 1 || v > 5 {
			return fmt.Errorf("%w: please provide all ratings before submitting", domain.ErrInvalidInput)
		}
	}
	return nil
}

// Complete marks the event done for the user. The organizer completes the
// event itself. An attendee must rate the organizer and is then marked
// completed.
func (s *ActivityService) Complete(ctx context.Context, eventID, userID string, rating *RatingInput) error {
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return fmt.Errorf("get activity: %w", err)
	}

	if event.OrganizerID == userID {
		return s.setStatus(ctx, event, domain.StatusCompleted)
	}

	if rating == nil {
		return fmt.Errorf("%w: please provide all ratings before submitting", domain.ErrInvalidInput)
	}
	if _, err := s.Rate(ctx, eventID, userID, *rating); err != nil {
		return err
	}
	return s.setAttendeeCompleted(ctx, eventID, userID, true)
}

// Reopen undoes Complete for the user.
func (s *ActivityService) Reopen(ctx context.Context, eventID, userID string) error {
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return fmt.Errorf("get activity: %w", err)
	}
	if event.OrganizerID == userID {
		return s.setStatus(ctx, event, domain.StatusPending)
	}
	return s.setAttendeeCompleted(ctx, eventID, userID, false)
}

func (s *ActivityService) setStatus(ctx context.Context, event *domain.Event, status string) error {
	if event.Status == status {
		return nil
	}
	if err := s.events.SetStatus(ctx, event.ID, status); err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	event.Status = status
	glog.V(1).Infof("service: activity %s is now %s", event.ID, status)
	publish(s.pub, realtime.TableEvents, realtime.KindUpdate, event)
	return nil
}

func (s *ActivityService) setAttendeeCompleted(ctx context.Context, eventID, userID string, completed bool) error {
	if _, err := s.attendee(ctx, eventID, userID); err != nil {
		return err
	}
	if err := s.attendees.SetCompleted(ctx, eventID, userID, completed); err != nil {
		return fmt.Errorf("set attendee completed: %w", err)
	}
	publish(s.pub, realtime.TableEventAttendees, realtime.KindUpdate, domain.EventAttendee{
		EventID:   eventID,
		UserID:    userID,
		Completed: completed,
	})
	return nil
}

func (s *ActivityService) attendee(ctx context.Context, eventID, userID string) (*domain.EventAttendee, error) {
	a, err := s.attendees.Get(ctx, eventID, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: not an attendee of this activity", domain.ErrForbidden)
	}
	if err != nil {
		return nil, fmt.Errorf("get attendee: %w", err)
	}
	return a, nil
}

// Rate stores the attendee's rating of the event's organizer, replacing any
// earlier one.
func (s *ActivityService) Rate(ctx context.Context, eventID, raterID string, in RatingInput) (*domain.OrganizerRating, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("get activity: %w", err)
	}
	if event.OrganizerID == raterID {
		return nil, fmt.Errorf("%w: organizers cannot rate themselves", domain.ErrForbidden)
	}
	if _, err := s.attendee(ctx, eventID, raterID); err != nil {
		return nil, err
	}

	r := &domain.OrganizerRating{
		EventID:             eventID,
		OrganizerID:         event.OrganizerID,
		RaterID:             raterID,
		CommunicationRating: in.Communication,
		SafetyRating:        in.Safety,
		OverallRating:       in.Overall,
		Comment:             in.Comment,
	}
	if err := s.ratings.Upsert(ctx, r); err != nil {
		return nil, fmt.Errorf("save rating: %w", err)
	}
	return r, nil
}

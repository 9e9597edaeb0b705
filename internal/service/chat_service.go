package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"activitychat/internal/domain"
	"activitychat/internal/realtime"
	"activitychat/internal/security"
)

const UnknownGroupName = "Unknown Group"

// ChatService stores message content encrypted and hands it out decrypted.
type ChatService struct {
	chats     domain.ChatRepository
	messages  domain.MessageRepository
	events    domain.EventRepository
	encryptor *security.Encryptor
	pub       realtime.Publisher
}

func NewChatService(chats domain.ChatRepository, messages domain.MessageRepository, events domain.EventRepository, encryptor *security.Encryptor, pub realtime.Publisher) *ChatService {
	return &ChatService{
		chats:     chats,
		messages:  messages,
		events:    events,
		encryptor: encryptor,
		pub:       pub,
	}
}

// ChatHeader is what the chat screen shows above the messages.
type ChatHeader struct {
	ChatID       string `json:"chat_id"`
	EventID      string `json:"event_id"`
	EventName    string `json:"event_name"`
	ActivityType string `json:"activity_type"`
	Status       string `json:"status"`
	MemberCount  int    `json:"member_count"`
}

// CanSee reports whether the user is a participant of the chat.
func (s *ChatService) CanSee(ctx context.Context, chatID, userID string) (bool, error) {
	return s.chats.IsParticipant(ctx, chatID, userID)
}

func (s *ChatService) ensureParticipant(ctx context.Context, chatID, userID string) error {
	if _, err := s.chats.GetByID(ctx, chatID); err != nil {
		return fmt.Errorf("get chat: %w", err)
	}
	ok, err := s.chats.IsParticipant(ctx, chatID, userID)
	if err != nil {
		return fmt.Errorf("check participant: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: not a participant of this chat", domain.ErrForbidden)
	}
	return nil
}

func (s *ChatService) Send(ctx context.Context, chatID, userID, content string) (*domain.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: message is empty", domain.ErrInvalidInput)
	}
	if err := s.ensureParticipant(ctx, chatID, userID); err != nil {
		return nil, err
	}

	sealed, err := s.encryptor.Encrypt(content)
	if err != nil {
		return nil, fmt.Errorf("encrypt content: %w", err)
	}
	msg := &domain.Message{
		ChatID:  chatID,
		UserID:  userID,
		Content: sealed,
		Type:    domain.MessageTypeUser,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	// Subscribers and the caller get plaintext.
	msg.Content = content
	publish(s.pub, realtime.TableMessages, realtime.KindInsert, msg)
	return msg, nil
}

// List returns the chat's messages, oldest first.
func (s *ChatService) List(ctx context.Context, chatID, userID string) ([]*domain.Message, error) {
	if err := s.ensureParticipant(ctx, chatID, userID); err != nil {
		return nil, err
	}
	msgs, err := s.messages.ListForChat(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	for _, m := range msgs {
		m.Content = s.encryptor.Reveal(m.Content)
	}
	return msgs, nil
}

func (s *ChatService) Header(ctx context.Context, chatID, userID string) (*ChatHeader, error) {
	if err := s.ensureParticipant(ctx, chatID, userID); err != nil {
		return nil, err
	}
	chat, err := s.chats.GetByID(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("get chat: %w", err)
	}

	h := &ChatHeader{
		ChatID:       chat.ID,
		EventID:      chat.EventID,
		EventName:    UnknownGroupName,
		ActivityType: "default",
		Status:       domain.StatusPending,
	}
	event, err := s.events.GetByID(ctx, chat.EventID)
	switch {
	case err == nil:
		if event.Name != "" {
			h.EventName = event.Name
		}
		if event.ActivityType != "" {
			h.ActivityType = event.ActivityType
		}
		h.Status = event.Status
	case !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("get activity: %w", err)
	}

	if h.MemberCount, err = s.chats.CountParticipants(ctx, chatID); err != nil {
		return nil, fmt.Errorf("count participants: %w", err)
	}
	return h, nil
}

// ThreadRecords returns the user's memberships joined to event and newest
// message, the input of the thread list.
func (s *ChatService) ThreadRecords(ctx context.Context, userID string) ([]domain.ThreadRecord, error) {
	recs, err := s.chats.ListThreadRecords(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	for i := range recs {
		for j := range recs[i].Messages {
			recs[i].Messages[j].Content = s.encryptor.Reveal(recs[i].Messages[j].Content)
		}
	}
	return recs, nil
}

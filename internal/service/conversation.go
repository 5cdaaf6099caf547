package service

import (
	"context"
	"fmt"

	"github.com/xiaot623/supportdesk/internal/domain"
)

func (s *Service) ListConversations(ctx context.Context, userID string) ([]domain.Conversation, error) {
	convs, err := s.store.ListConversations(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return convs, nil
}

// GetConversation returns a conversation with all its messages.
func (s *Service) GetConversation(ctx context.Context, userID, conversationID string) (*domain.ConversationDetail, error) {
	conv, err := s.ownedConversation(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.store.ListMessages(ctx, conv.ID, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	return &domain.ConversationDetail{Conversation: *conv, Messages: msgs}, nil
}

func (s *Service) DeleteConversation(ctx context.Context, userID, conversationID string) error {
	conv, err := s.ownedConversation(ctx, userID, conversationID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteConversation(ctx, conv.ID); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return nil
}

// ownedConversation hides other users' conversations as not found.
func (s *Service) ownedConversation(ctx context.Context, userID, conversationID string) (*domain.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	if conv == nil || conv.UserID != userID {
		return nil, ErrConversationNotFound
	}
	return conv, nil
}

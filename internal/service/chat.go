package service

import (
	"context"
	"fmt"

	"github.com/shaonote/starbot/internal/models"
)

// ConversationRepository stores conversations and their messages.
type ConversationRepository interface {
	EnsureConversation(ctx context.Context, id string, kind models.ChatKind) error
	AppendUserMessage(ctx context.Context, m models.NewUserMessage) (*models.Message, bool, error)
	AppendAssistantMessage(ctx context.Context, convID, content string) (*models.Message, error)
	RecentMessages(ctx context.Context, convID string, limit int) ([]models.ChatTurn, error)
}

// LLM produces a reply from conversation history.
type LLM interface {
	Chat(ctx context.Context, history []models.ChatTurn) (string, error)
}

// ChatService records chat traffic and answers with the language model.
type ChatService struct {
	conv    ConversationRepository
	llm     LLM
	history int
}

// defaultHistory is the number of recent messages sent to the model.
const defaultHistory = 12

// NewChatService creates a ChatService. A non-positive history uses defaultHistory.
func NewChatService(conv ConversationRepository, llm LLM, history int) *ChatService {
	if history <= 0 {
		history = defaultHistory
	}
	return &ChatService{conv: conv, llm: llm, history: history}
}

// Record stores an inbound message without replying. It reports false when
// the external message id was already recorded.
func (s *ChatService) Record(ctx context.Context, in models.Inbound) (bool, error) {
	convID := in.Source.ConversationID()
	if err := s.conv.EnsureConversation(ctx, convID, in.Source.Kind); err != nil {
		return false, err
	}
	_, inserted, err := s.conv.AppendUserMessage(ctx, models.NewUserMessage{
		ConvID:            convID,
		ExternalMessageID: in.ExternalID,
		SenderID:          in.SenderID,
		Content:           in.Text,
		Payload:           in.Payload,
	})
	return inserted, err
}

// Reply records the inbound message and answers it from the recent history.
// A redelivered message is absorbed: the reply is empty and ok is false.
func (s *ChatService) Reply(ctx context.Context, in models.Inbound) (string, bool, error) {
	inserted, err := s.Record(ctx, in)
	if err != nil {
		return "", false, err
	}
	if !inserted {
		return "", false, nil
	}
	reply, err := s.complete(ctx, in.Source.ConversationID())
	if err != nil {
		return "", false, err
	}
	return reply, true, nil
}

// complete runs history -> model -> stored assistant message.
func (s *ChatService) complete(ctx context.Context, convID string) (string, error) {
	history, err := s.conv.RecentMessages(ctx, convID, s.history)
	if err != nil {
		return "", err
	}
	reply, err := s.llm.Chat(ctx, history)
	if err != nil {
		return "", fmt.Errorf("llm: %w", err)
	}
	if _, err := s.conv.AppendAssistantMessage(ctx, convID, reply); err != nil {
		return "", err
	}
	return reply, nil
}

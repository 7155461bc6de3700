package service

import (
	"context"

	"playerwallet/internal/model"
	"playerwallet/internal/repository"
)

// MessageService 消息中心
type MessageService struct {
	store repository.MessageStore
}

func NewMessageService(store repository.MessageStore) *MessageService {
	return &MessageService{store: store}
}

// ListMessages 玩家自己的消息和广播消息
func (s *MessageService) ListMessages(ctx context.Context, playerID int64) ([]*model.Message, error) {
	if playerID <= 0 {
		return nil, invalidInput("Player ID is required")
	}
	messages, err := s.store.ListForPlayer(ctx, playerID)
	if err != nil {
		return nil, fromStore(err)
	}
	return messages, nil
}

func (s *MessageService) GetMessage(ctx context.Context, id int64) (*model.Message, error) {
	if id <= 0 {
		return nil, invalidInput("Message ID is required")
	}
	msg, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, fromStore(err)
	}
	return msg, nil
}

func (s *MessageService) MarkRead(ctx context.Context, id int64) error {
	if id <= 0 {
		return invalidInput("Message ID is required")
	}
	return fromStore(s.store.MarkRead(ctx, id))
}

func (s *MessageService) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return invalidInput("Message ID is required")
	}
	return fromStore(s.store.Delete(ctx, id))
}

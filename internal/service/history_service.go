package service

import (
	"context"
	"strings"

	"playerwallet/internal/model"
	"playerwallet/internal/repository"
)

// HistoryService 流水查询，只读
type HistoryService struct {
	store repository.HistoryStore
}

func NewHistoryService(store repository.HistoryStore) *HistoryService {
	return &HistoryService{store: store}
}

// ListHistory 按创建时间倒序；没有流水时返回空切片
func (s *HistoryService) ListHistory(ctx context.Context, playerID int64) ([]*model.History, error) {
	if playerID <= 0 {
		return nil, invalidInput("Player ID is required")
	}

	histories, err := s.store.ListByPlayerID(ctx, playerID)
	if err != nil {
		return nil, fromStore(err)
	}
	if histories == nil {
		histories = make([]*model.History, 0)
	}
	return histories, nil
}

func (s *HistoryService) GetHistoryByCode(ctx context.Context, transactionCode string) (*model.History, error) {
	transactionCode = strings.TrimSpace(transactionCode)
	if transactionCode == "" {
		return nil, invalidInput("Transaction code is required")
	}

	entry, err := s.store.GetByCode(ctx, transactionCode)
	if err != nil {
		return nil, fromStore(err)
	}
	return entry, nil
}

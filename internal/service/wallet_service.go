package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"playerwallet/internal/config"
	"playerwallet/internal/infrastructure/metrics"
	"playerwallet/internal/model"
	"playerwallet/internal/repository"
	"playerwallet/pkg/idgen"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

const (
	defaultTransactionTimeout = 10 * time.Second
	defaultMaxAttempts        = 3
)

// decimal(18,2) 能表示的最大金额
var maxAmount = decimal.RequireFromString("9999999999999999.99")

// PlayerLocker 可选的跨实例玩家锁
type PlayerLocker interface {
	Acquire(ctx context.Context, playerID int64) (release func(), err error)
}

type WalletService struct {
	store       repository.WalletStore
	locker      PlayerLocker
	metrics     *metrics.Metrics
	validate    *validator.Validate
	codeGen     func() string
	topic       string
	timeout     time.Duration
	maxAttempts int
}

type WalletOption func(*WalletService)

func WithPlayerLocker(l PlayerLocker) WalletOption {
	return func(s *WalletService) { s.locker = l }
}

func WithMetrics(m *metrics.Metrics) WalletOption {
	return func(s *WalletService) { s.metrics = m }
}

// WithCodeGenerator 替换流水号生成器
func WithCodeGenerator(gen func() string) WalletOption {
	return func(s *WalletService) { s.codeGen = gen }
}

func NewWalletService(store repository.WalletStore, cfg config.WalletConfig, topic string, opts ...WalletOption) *WalletService {
	s := &WalletService{
		store:       store,
		validate:    validator.New(),
		codeGen:     idgen.GenerateTransactionCode,
		topic:       topic,
		timeout:     cfg.TransactionTimeout,
		maxAttempts: cfg.MaxAttempts,
	}
	if s.timeout <= 0 {
		s.timeout = defaultTransactionTimeout
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = defaultMaxAttempts
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TransactionRequest 入金 / 出金请求
type TransactionRequest struct {
	PlayerID      int64           `validate:"required,gt=0"`
	Type          string          `validate:"required,oneof=CASH_IN CASH_OUT"`
	Amount        decimal.Decimal `validate:"-"`
	PaymentMethod string          `validate:"required,max=64"`
	Provider      string          `validate:"max=64"`
	CreatedBy     string          `validate:"max=64"`
}

// Channel provider 优先，否则使用 paymentMethod
func (r *TransactionRequest) Channel() string {
	if r.Provider != "" {
		return r.Provider
	}
	return r.PaymentMethod
}

type TransactionResult struct {
	TransactionID   int64           `json:"transactionId"`
	TransactionCode string          `json:"transactionCode"`
	Balance         decimal.Decimal `json:"balance"`
	CashInLimit     decimal.Decimal `json:"cashInLimit"`
}

// WalletTransactionEvent outbox 消息体
type WalletTransactionEvent struct {
	TransactionID   int64           `json:"transaction_id"`
	TransactionCode string          `json:"transaction_code"`
	PlayerID        int64           `json:"player_id"`
	Type            string          `json:"type"`
	Channel         string          `json:"channel"`
	Amount          decimal.Decimal `json:"amount"`
	Balance         decimal.Decimal `json:"balance"`
	CashInLimit     decimal.Decimal `json:"cash_in_limit"`
	OccurredAt      time.Time       `json:"occurred_at"`
}

func (s *WalletService) validateRequest(req *TransactionRequest) error {
	if req == nil {
		return invalidInput("Missing required fields")
	}
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			switch verrs[0].Field() {
			case "Type":
				return invalidInput("Invalid transaction type")
			case "PaymentMethod", "PlayerID":
				return invalidInput("Missing required fields")
			}
			return invalidInput("Invalid field %s", verrs[0].Field())
		}
		return invalidInput("%v", err)
	}
	if !req.Amount.IsPositive() {
		return invalidInput("Amount must be greater than zero")
	}
	if !req.Amount.Equal(req.Amount.Truncate(2)) {
		return invalidInput("Amount must have at most two decimal places")
	}
	if req.Amount.GreaterThan(maxAmount) {
		return invalidInput("Amount is too large")
	}
	return nil
}

// ProcessTransaction 钱包交易引擎
//
// 整个过程是一个数据库事务：
//  1. SELECT ... FOR UPDATE 锁住玩家行，同一玩家串行，不同玩家并行
//  2. 检查余额 / 入金额度，不满足直接回滚
//  3. 写入流水（流水号唯一索引兜底，冲突时重新生成并重试）
//  4. 更新 credit；入金时同时扣减 cash_in_limit
//  5. 同一事务内写 outbox，提交后由 OutboxSender 投递
func (s *WalletService) ProcessTransaction(ctx context.Context, req *TransactionRequest) (*TransactionResult, error) {
	start := time.Now()
	result, err := s.processTransaction(ctx, req)

	txType := ""
	if req != nil {
		txType = req.Type
	}
	s.metrics.ObserveTransaction(txType, outcome(err), time.Since(start))
	return result, err
}

func (s *WalletService) processTransaction(ctx context.Context, req *TransactionRequest) (*TransactionResult, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, req.PlayerID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
			}
			return nil, fmt.Errorf("%w: %v", ErrConflict, err)
		}
		defer release()
	}

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		result, err := s.attempt(ctx, req)
		if err == nil {
			log.Printf("[WalletService] transaction committed: playerID=%d type=%s amount=%s code=%s balance=%s",
				req.PlayerID, req.Type, req.Amount, result.TransactionCode, result.Balance)
			return result, nil
		}

		if !errors.Is(err, repository.ErrConflict) {
			return nil, fromStore(err)
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if attempt < s.maxAttempts {
			s.metrics.ObserveRetry()
			log.Printf("[WalletService] conflict, retrying: playerID=%d attempt=%d err=%v", req.PlayerID, attempt, err)
		}
	}

	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
	}
	return nil, fromStore(lastErr)
}

func (s *WalletService) attempt(ctx context.Context, req *TransactionRequest) (*TransactionResult, error) {
	code := s.codeGen()
	var result *TransactionResult

	err := s.store.Atomic(ctx, func(tx repository.WalletTx) error {
		player, err := tx.LockWallet(ctx, req.PlayerID)
		if err != nil {
			return err
		}

		credit := player.Credit
		limit := player.CashInLimit
		newLimit := limit
		var newBalance decimal.Decimal

		switch req.Type {
		case model.TransactionTypeCashOut:
			if credit.LessThan(req.Amount) {
				return ErrInsufficientFunds
			}
			newBalance = credit.Sub(req.Amount)
		case model.TransactionTypeCashIn:
			// 入金额度只减不增，出金不检查额度
			if limit.LessThan(req.Amount) {
				return ErrLimitExceeded
			}
			newBalance = credit.Add(req.Amount)
			newLimit = limit.Sub(req.Amount)
		default:
			return invalidInput("Invalid transaction type")
		}

		entry := &model.History{
			PlayerID:        player.ID,
			TransactionCode: code,
			Type:            req.Type,
			Channel:         req.Channel(),
			Amount:          req.Amount,
			Status:          model.HistoryStatusActive,
			Balance:         newBalance,
			CreatedBy:       req.CreatedBy,
			UpdatedBy:       req.CreatedBy,
		}
		if err := tx.AppendHistory(ctx, entry); err != nil {
			return err
		}

		if err := tx.SaveWallet(ctx, player.ID, newBalance, newLimit); err != nil {
			return err
		}

		payload, err := json.Marshal(WalletTransactionEvent{
			TransactionID:   entry.ID,
			TransactionCode: code,
			PlayerID:        player.ID,
			Type:            req.Type,
			Channel:         entry.Channel,
			Amount:          req.Amount,
			Balance:         newBalance,
			CashInLimit:     newLimit,
			OccurredAt:      entry.CreatedAt,
		})
		if err != nil {
			return fmt.Errorf("marshal wallet event: %w", err)
		}
		if err := tx.Enqueue(ctx, &model.OutboxMessage{
			EventType:   model.EventWalletTransaction,
			AggregateID: player.ID,
			MessageKey:  strconv.FormatInt(player.ID, 10),
			Topic:       s.topic,
			Payload:     string(payload),
		}); err != nil {
			return err
		}

		result = &TransactionResult{
			TransactionID:   entry.ID,
			TransactionCode: code,
			Balance:         newBalance,
			CashInLimit:     newLimit,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// WalletStats 余额和剩余入金额度
type WalletStats struct {
	Balance     decimal.Decimal `json:"balance"`
	CashInLimit decimal.Decimal `json:"cashInLimit"`
}

func (s *WalletService) GetWalletStats(ctx context.Context, playerID int64) (*WalletStats, error) {
	if playerID <= 0 {
		return nil, invalidInput("Player ID is required")
	}

	player, err := s.store.FindWallet(ctx, playerID)
	if err != nil {
		return nil, fromStore(err)
	}
	return &WalletStats{
		Balance:     player.Credit,
		CashInLimit: player.CashInLimit,
	}, nil
}

// outcome 指标标签
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidInput):
		return "invalid"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrLimitExceeded):
		return "limit_exceeded"
	case errors.Is(err, ErrPlayerNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	default:
		return "error"
	}
}

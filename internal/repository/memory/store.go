// Package memory holds in-process implementations of the repository stores.
// Row locks and rollback behave like the MySQL store, which makes it usable
// for local runs without a database and for engine concurrency tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"playerwallet/internal/model"
	"playerwallet/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Store struct {
	mu        sync.Mutex
	players   map[int64]*model.Player
	histories []*model.History
	codes     map[string]struct{}
	outbox    []*model.OutboxMessage
	resets    []*model.PasswordReset
	messages  []*model.Message
	rowLocks  map[int64]chan struct{}

	nextPlayerID  int64
	nextHistoryID int64
	nextOutboxID  int64
	nextResetID   int64
	nextMessageID int64

	now func() time.Time
}

func NewStore() *Store {
	return &Store{
		players:  make(map[int64]*model.Player),
		codes:    make(map[string]struct{}),
		rowLocks: make(map[int64]chan struct{}),
		now:      time.Now,
	}
}

// SetClock 测试用
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Seed 直接写入一个玩家，ID 为 0 时自动分配
func (s *Store) Seed(player *model.Player) *model.Player {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := *player
	if p.ID == 0 {
		s.nextPlayerID++
		p.ID = s.nextPlayerID
	} else if p.ID > s.nextPlayerID {
		s.nextPlayerID = p.ID
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
		p.UpdatedAt = p.CreatedAt
	}
	s.players[p.ID] = &p
	out := p
	return &out
}

// Outbox 已提交的 outbox 消息快照
func (s *Store) Outbox() []model.OutboxMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.OutboxMessage, 0, len(s.outbox))
	for _, m := range s.outbox {
		out = append(out, *m)
	}
	return out
}

func (s *Store) rowLock(playerID int64) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.rowLocks[playerID]
	if !ok {
		ch = make(chan struct{}, 1)
		s.rowLocks[playerID] = ch
	}
	return ch
}

func (s *Store) livePlayer(id int64) (*model.Player, bool) {
	p, ok := s.players[id]
	if !ok || p.DeletedAt.Valid {
		return nil, false
	}
	return p, true
}

// ============================================================================
// WalletStore
// ============================================================================

func (s *Store) FindWallet(ctx context.Context, playerID int64) (*model.Player, error) {
	return s.GetByID(ctx, playerID)
}

func (s *Store) Atomic(ctx context.Context, fn func(tx repository.WalletTx) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", repository.ErrTimeout, err)
	}

	tx := &memTx{
		store:   s,
		locked:  make(map[int64]chan struct{}),
		wallets: make(map[int64]walletUpdate),
	}
	defer tx.release()

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", repository.ErrTimeout, err)
	}
	return tx.commit()
}

type walletUpdate struct {
	credit      decimal.Decimal
	cashInLimit decimal.Decimal
}

type memTx struct {
	store     *Store
	locked    map[int64]chan struct{}
	histories []*model.History
	wallets   map[int64]walletUpdate
	outbox    []*model.OutboxMessage
}

func (t *memTx) LockWallet(ctx context.Context, playerID int64) (*model.Player, error) {
	if _, held := t.locked[playerID]; !held {
		ch := t.store.rowLock(playerID)
		select {
		case ch <- struct{}{}:
			t.locked[playerID] = ch
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", repository.ErrTimeout, ctx.Err())
		}
	}

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	p, ok := t.store.livePlayer(playerID)
	if !ok {
		return nil, repository.ErrPlayerNotFound
	}
	out := *p
	if w, staged := t.wallets[playerID]; staged {
		out.Credit, out.CashInLimit = w.credit, w.cashInLimit
	}
	return &out, nil
}

func (t *memTx) AppendHistory(ctx context.Context, entry *model.History) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	if _, ok := t.store.livePlayer(entry.PlayerID); !ok {
		return repository.ErrPlayerNotFound
	}
	if _, dup := t.store.codes[entry.TransactionCode]; dup {
		return fmt.Errorf("%w: duplicate transaction_code %s", repository.ErrConflict, entry.TransactionCode)
	}
	for _, h := range t.histories {
		if h.TransactionCode == entry.TransactionCode {
			return fmt.Errorf("%w: duplicate transaction_code %s", repository.ErrConflict, entry.TransactionCode)
		}
	}

	// 自增 ID 在回滚时也会被消耗，和 InnoDB 一致
	t.store.nextHistoryID++
	entry.ID = t.store.nextHistoryID
	now := t.store.now()
	entry.CreatedAt, entry.UpdatedAt = now, now

	staged := *entry
	t.histories = append(t.histories, &staged)
	return nil
}

func (t *memTx) SaveWallet(ctx context.Context, playerID int64, credit, cashInLimit decimal.Decimal) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	if _, ok := t.store.livePlayer(playerID); !ok {
		return repository.ErrPlayerNotFound
	}
	t.wallets[playerID] = walletUpdate{credit: credit, cashInLimit: cashInLimit}
	return nil
}

func (t *memTx) Enqueue(ctx context.Context, msg *model.OutboxMessage) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	t.store.nextOutboxID++
	msg.ID = t.store.nextOutboxID
	if msg.Status == "" {
		msg.Status = model.OutboxStatusPending
	}
	now := t.store.now()
	msg.CreatedAt, msg.UpdatedAt = now, now

	staged := *msg
	t.outbox = append(t.outbox, &staged)
	return nil
}

func (t *memTx) commit() error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, h := range t.histories {
		if _, dup := s.codes[h.TransactionCode]; dup {
			return fmt.Errorf("%w: duplicate transaction_code %s", repository.ErrConflict, h.TransactionCode)
		}
	}

	now := s.now()
	for id, w := range t.wallets {
		p := s.players[id]
		p.Credit, p.CashInLimit = w.credit, w.cashInLimit
		p.UpdatedAt = now
	}
	for _, h := range t.histories {
		s.histories = append(s.histories, h)
		s.codes[h.TransactionCode] = struct{}{}
	}
	s.outbox = append(s.outbox, t.outbox...)
	return nil
}

func (t *memTx) release() {
	for id, ch := range t.locked {
		<-ch
		delete(t.locked, id)
	}
}

// ============================================================================
// Outbox
// ============================================================================

func (s *Store) GetPendingMessages(ctx context.Context, limit int) ([]*model.OutboxMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*model.OutboxMessage, 0)
	for _, m := range s.outbox {
		if m.Status != model.OutboxStatusPending {
			continue
		}
		c := *m
		out = append(out, &c)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) updateOutbox(id int64, fn func(m *model.OutboxMessage)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range s.outbox {
		if m.ID == id {
			fn(m)
			m.UpdatedAt = s.now()
			return
		}
	}
}

func (s *Store) MarkSent(ctx context.Context, id int64) error {
	s.updateOutbox(id, func(m *model.OutboxMessage) {
		if m.Status == model.OutboxStatusPending {
			m.Status = model.OutboxStatusSent
		}
	})
	return nil
}

func (s *Store) IncrementRetryCount(ctx context.Context, id int64) error {
	s.updateOutbox(id, func(m *model.OutboxMessage) { m.RetryCount++ })
	return nil
}

func (s *Store) MarkAsFailed(ctx context.Context, id int64) error {
	s.updateOutbox(id, func(m *model.OutboxMessage) { m.Status = model.OutboxStatusFailed })
	return nil
}

// ============================================================================
// HistoryStore
// ============================================================================

func (s *Store) ListByPlayerID(ctx context.Context, playerID int64) ([]*model.History, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*model.History, 0)
	for _, h := range s.histories {
		if h.PlayerID != playerID || h.DeletedAt.Valid {
			continue
		}
		c := *h
		out = append(out, &c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// SoftDeleteHistory 标记流水为已删除，只供运维和测试使用
func (s *Store) SoftDeleteHistory(transactionCode string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, h := range s.histories {
		if h.TransactionCode == transactionCode && !h.DeletedAt.Valid {
			h.DeletedAt = gorm.DeletedAt{Time: s.now(), Valid: true}
			return true
		}
	}
	return false
}

func (s *Store) GetByCode(ctx context.Context, transactionCode string) (*model.History, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, h := range s.histories {
		if h.TransactionCode == transactionCode && !h.DeletedAt.Valid {
			c := *h
			return &c, nil
		}
	}
	return nil, repository.ErrHistoryNotFound
}

// ============================================================================
// PlayerStore
// ============================================================================

func (s *Store) Create(ctx context.Context, player *model.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.players {
		if p.Code == player.Code {
			return fmt.Errorf("%w: duplicate player code %s", repository.ErrConflict, player.Code)
		}
		if strings.EqualFold(p.Email, player.Email) {
			return fmt.Errorf("%w: duplicate email %s", repository.ErrConflict, player.Email)
		}
		if player.GoogleID != nil && p.GoogleID != nil && *p.GoogleID == *player.GoogleID {
			return fmt.Errorf("%w: duplicate google_id", repository.ErrConflict)
		}
	}

	s.nextPlayerID++
	player.ID = s.nextPlayerID
	now := s.now()
	player.CreatedAt, player.UpdatedAt = now, now

	stored := *player
	s.players[stored.ID] = &stored
	return nil
}

func (s *Store) findPlayer(match func(p *model.Player) bool) (*model.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// 按 ID 升序，和 First() 的 ORDER BY id 一致
	ids := make([]int64, 0, len(s.players))
	for id := range s.players {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		p, ok := s.livePlayer(id)
		if ok && match(p) {
			c := *p
			return &c, nil
		}
	}
	return nil, repository.ErrPlayerNotFound
}

func (s *Store) GetByID(ctx context.Context, id int64) (*model.Player, error) {
	return s.findPlayer(func(p *model.Player) bool { return p.ID == id })
}

func (s *Store) GetByEmail(ctx context.Context, email string) (*model.Player, error) {
	return s.findPlayer(func(p *model.Player) bool { return strings.EqualFold(p.Email, email) })
}

func (s *Store) GetByGoogleID(ctx context.Context, googleID string) (*model.Player, error) {
	return s.findPlayer(func(p *model.Player) bool { return p.GoogleID != nil && *p.GoogleID == googleID })
}

func (s *Store) GetByNameAndBirthdate(ctx context.Context, firstName, lastName string, birthdate time.Time) (*model.Player, error) {
	day := birthdate.Format("2006-01-02")
	return s.findPlayer(func(p *model.Player) bool {
		return p.FirstName == firstName && p.LastName == lastName &&
			p.Birthdate != nil && p.Birthdate.Format("2006-01-02") == day
	})
}

func (s *Store) UpdatePassword(ctx context.Context, email, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated := false
	for _, p := range s.players {
		if strings.EqualFold(p.Email, email) && !p.DeletedAt.Valid {
			hash := passwordHash
			p.Password = &hash
			p.UpdatedAt = s.now()
			updated = true
		}
	}
	if !updated {
		return repository.ErrPlayerNotFound
	}
	return nil
}

// ============================================================================
// ResetTokenStore
// ============================================================================

// Resets 返回 ResetTokenStore 视图，避免和 PlayerStore 的方法名冲突
func (s *Store) Resets() *ResetTokens {
	return &ResetTokens{store: s}
}

type ResetTokens struct {
	store *Store
}

func (r *ResetTokens) Replace(ctx context.Context, email, token string) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.resets[:0]
	for _, rt := range s.resets {
		if rt.Email != email {
			kept = append(kept, rt)
		}
	}
	s.nextResetID++
	s.resets = append(kept, &model.PasswordReset{
		ID:        s.nextResetID,
		Email:     email,
		Token:     token,
		CreatedAt: s.now(),
	})
	return nil
}

func (r *ResetTokens) Find(ctx context.Context, email, token string) (*model.PasswordReset, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rt := range s.resets {
		if rt.Email == email && rt.Token == token {
			c := *rt
			return &c, nil
		}
	}
	return nil, repository.ErrResetTokenNotFound
}

func (r *ResetTokens) DeleteByEmail(ctx context.Context, email string) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.resets[:0]
	for _, rt := range s.resets {
		if rt.Email != email {
			kept = append(kept, rt)
		}
	}
	s.resets = kept
	return nil
}

func (r *ResetTokens) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	kept := s.resets[:0]
	for _, rt := range s.resets {
		if rt.CreatedAt.Before(before) {
			deleted++
			continue
		}
		kept = append(kept, rt)
	}
	s.resets = kept
	return deleted, nil
}

// ============================================================================
// MessageStore
// ============================================================================

// Messages 返回 MessageStore 视图
func (s *Store) Messages() *Messages {
	return &Messages{store: s}
}

type Messages struct {
	store *Store
}

// Post 写入一条消息，playerID 为 nil 时是广播
func (m *Messages) Post(playerID *int64, text string) *model.Message {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextMessageID++
	now := s.now()
	msg := &model.Message{
		ID:        s.nextMessageID,
		PlayerID:  playerID,
		Message:   text,
		All:       playerID == nil,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.messages = append(s.messages, msg)
	out := *msg
	return &out
}

func (m *Messages) ListForPlayer(ctx context.Context, playerID int64) ([]*model.Message, error) {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*model.Message, 0)
	for _, msg := range s.messages {
		if msg.DeletedAt.Valid {
			continue
		}
		if msg.All || (msg.PlayerID != nil && *msg.PlayerID == playerID) {
			c := *msg
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Messages) find(id int64) *model.Message {
	for _, msg := range m.store.messages {
		if msg.ID == id && !msg.DeletedAt.Valid {
			return msg
		}
	}
	return nil
}

func (m *Messages) Get(ctx context.Context, id int64) (*model.Message, error) {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := m.find(id)
	if msg == nil {
		return nil, repository.ErrMessageNotFound
	}
	c := *msg
	return &c, nil
}

func (m *Messages) MarkRead(ctx context.Context, id int64) error {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := m.find(id)
	if msg == nil {
		return repository.ErrMessageNotFound
	}
	msg.Read = true
	msg.UpdatedAt = s.now()
	return nil
}

func (m *Messages) Delete(ctx context.Context, id int64) error {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := m.find(id)
	if msg == nil {
		return repository.ErrMessageNotFound
	}
	msg.DeletedAt = gorm.DeletedAt{Time: s.now(), Valid: true}
	return nil
}

var (
	_ repository.OutboxStore     = (*Store)(nil)
	_ repository.MessageStore    = (*Messages)(nil)
	_ repository.WalletStore     = (*Store)(nil)
	_ repository.HistoryStore    = (*Store)(nil)
	_ repository.PlayerStore     = (*Store)(nil)
	_ repository.ResetTokenStore = (*ResetTokens)(nil)
)

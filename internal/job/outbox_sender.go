package job

import (
	"context"
	"log"
	"time"

	"playerwallet/internal/config"
	"playerwallet/internal/infrastructure/metrics"
	"playerwallet/internal/infrastructure/mq"
	"playerwallet/internal/model"
	"playerwallet/internal/repository"
)

// OutboxSender 把事务内写入的 outbox 消息投递到 Kafka
// 至少一次投递：发送成功但 MarkSent 失败时，下一轮会重复发送
type OutboxSender struct {
	outbox     repository.OutboxStore
	publisher  mq.Publisher
	metrics    *metrics.Metrics
	stopCh     chan struct{}
	interval   time.Duration
	batchSize  int
	maxRetries int
}

func NewOutboxSender(outbox repository.OutboxStore, publisher mq.Publisher, m *metrics.Metrics, cfg config.JobsConfig) *OutboxSender {
	s := &OutboxSender{
		outbox:     outbox,
		publisher:  publisher,
		metrics:    m,
		stopCh:     make(chan struct{}),
		interval:   cfg.OutboxInterval,
		batchSize:  cfg.OutboxBatchSize,
		maxRetries: cfg.OutboxMaxRetry,
	}
	if s.interval <= 0 {
		s.interval = 100 * time.Millisecond
	}
	if s.batchSize <= 0 {
		s.batchSize = 100
	}
	if s.maxRetries <= 0 {
		s.maxRetries = 5
	}
	return s
}

func (s *OutboxSender) Start(ctx context.Context) {
	log.Println("[OutboxSender] started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[OutboxSender] context done, exiting")
			return
		case <-s.stopCh:
			log.Println("[OutboxSender] stopped")
			return
		case <-ticker.C:
			s.processPendingMessages(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	close(s.stopCh)
}

// processPendingMessages 返回本轮成功投递的条数
// 同一 MessageKey 有消息投递失败时，本轮跳过该 key 之后的消息，保持同一玩家的事件顺序
// 消息被标记为 FAILED 后不再阻塞后续消息
func (s *OutboxSender) processPendingMessages(ctx context.Context) int {
	messages, err := s.outbox.GetPendingMessages(ctx, s.batchSize)
	if err != nil {
		log.Printf("[OutboxSender] load pending messages failed: %v", err)
		return 0
	}

	sent := 0
	blocked := make(map[string]struct{})
	for _, msg := range messages {
		if _, ok := blocked[msg.MessageKey]; ok {
			continue
		}
		if s.sendMessage(ctx, msg) {
			sent++
		} else {
			blocked[msg.MessageKey] = struct{}{}
		}
	}
	return sent
}

func (s *OutboxSender) sendMessage(ctx context.Context, msg *model.OutboxMessage) bool {
	err := s.publisher.Publish(msg.Topic, msg.MessageKey, msg.Payload)
	s.metrics.ObserveOutboxPublish(err)

	if err == nil {
		if updateErr := s.outbox.MarkSent(ctx, msg.ID); updateErr != nil {
			log.Printf("[OutboxSender] mark sent failed: id=%d, err=%v", msg.ID, updateErr)
		}
		return true
	}

	log.Printf("[OutboxSender] publish failed: id=%d, topic=%s, err=%v", msg.ID, msg.Topic, err)

	if err := s.outbox.IncrementRetryCount(ctx, msg.ID); err != nil {
		log.Printf("[OutboxSender] increment retry count failed: id=%d, err=%v", msg.ID, err)
	}

	if msg.RetryCount+1 >= s.maxRetries {
		if err := s.outbox.MarkAsFailed(ctx, msg.ID); err != nil {
			log.Printf("[OutboxSender] mark failed failed: id=%d, err=%v", msg.ID, err)
		} else {
			log.Printf("[OutboxSender] max retries reached, marked FAILED: id=%d", msg.ID)
		}
	}
	return false
}

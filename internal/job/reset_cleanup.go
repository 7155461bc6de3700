package job

import (
	"context"
	"log"
	"time"

	"playerwallet/internal/infrastructure/metrics"
	"playerwallet/internal/repository"
)

// ResetTokenCleanupJob 定期删除过期的密码重置令牌
type ResetTokenCleanupJob struct {
	resets   repository.ResetTokenStore
	metrics  *metrics.Metrics
	stopCh   chan struct{}
	interval time.Duration
	ttl      time.Duration
	now      func() time.Time
}

func NewResetTokenCleanupJob(resets repository.ResetTokenStore, m *metrics.Metrics, interval, ttl time.Duration) *ResetTokenCleanupJob {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ResetTokenCleanupJob{
		resets:   resets,
		metrics:  m,
		stopCh:   make(chan struct{}),
		interval: interval,
		ttl:      ttl,
		now:      time.Now,
	}
}

func (j *ResetTokenCleanupJob) Start(ctx context.Context) {
	log.Println("[ResetTokenCleanupJob] started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[ResetTokenCleanupJob] context done, exiting")
			return
		case <-j.stopCh:
			log.Println("[ResetTokenCleanupJob] stopped")
			return
		case <-ticker.C:
			j.deleteExpired(ctx)
		}
	}
}

func (j *ResetTokenCleanupJob) Stop() {
	close(j.stopCh)
}

func (j *ResetTokenCleanupJob) deleteExpired(ctx context.Context) int64 {
	deleted, err := j.resets.DeleteOlderThan(ctx, j.now().Add(-j.ttl))
	if err != nil {
		log.Printf("[ResetTokenCleanupJob] delete expired tokens failed: %v", err)
		return 0
	}

	j.metrics.ObserveResetCleanup(deleted)
	if deleted > 0 {
		log.Printf("[ResetTokenCleanupJob] removed %d expired reset tokens", deleted)
	}
	return deleted
}

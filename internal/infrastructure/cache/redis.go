package cache

import (
	"context"
	"fmt"
	"log"
	"time"

	"playerwallet/internal/config"

	"github.com/go-redis/redis/v8"
)

func NewRedisClient(cfg *config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// InitRedis 建立连接并 Ping 一次
func InitRedis(cfg *config.RedisConfig) (*redis.Client, error) {
	client := NewRedisClient(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	log.Printf("[Redis] connected: %s:%d db=%d", cfg.Host, cfg.Port, cfg.DB)
	return client, nil
}

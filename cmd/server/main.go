package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"playerwallet/internal/config"
	"playerwallet/internal/handler"
	"playerwallet/internal/infrastructure/cache"
	"playerwallet/internal/infrastructure/database"
	"playerwallet/internal/infrastructure/google"
	"playerwallet/internal/infrastructure/lock"
	"playerwallet/internal/infrastructure/metrics"
	"playerwallet/internal/infrastructure/mq"
	"playerwallet/internal/job"
	"playerwallet/internal/repository"
	"playerwallet/internal/repository/memory"
	"playerwallet/internal/service"
	"playerwallet/pkg/idgen"
)

// stores 各存储接口的具体实现
type stores struct {
	wallet   repository.WalletStore
	history  repository.HistoryStore
	players  repository.PlayerStore
	resets   repository.ResetTokenStore
	messages repository.MessageStore
	outbox   repository.OutboxStore
	close    func()
}

func openStores(cfg *config.Config) (*stores, error) {
	if cfg.Server.Storage == config.StorageMemory {
		log.Println("[Main] using in-memory storage, data is lost on restart")
		store := memory.NewStore()
		return &stores{
			wallet:   store,
			history:  store,
			players:  store,
			resets:   store.Resets(),
			messages: store.Messages(),
			outbox:   store,
			close:    func() {},
		}, nil
	}

	db, err := database.InitMySQL(&cfg.MySQL)
	if err != nil {
		return nil, err
	}
	return &stores{
		wallet:   repository.NewWalletStore(db),
		history:  repository.NewHistoryRepository(db),
		players:  repository.NewPlayerRepository(db),
		resets:   repository.NewResetTokenRepository(db),
		messages: repository.NewMessageRepository(db),
		outbox:   repository.NewOutboxRepository(db),
		close:    func() { database.Close(db) },
	}, nil
}

func main() {
	// 加载配置
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg := config.LoadConfig(configPath)

	// 初始化 ID 生成器
	if err := idgen.Init(cfg.Snowflake.WorkerID); err != nil {
		log.Fatalf("[Main] init id generator: %v", err)
	}

	m := metrics.New()

	st, err := openStores(cfg)
	if err != nil {
		log.Fatalf("[Main] open storage: %v", err)
	}
	defer st.close()

	// 可选：Redis 分布式锁
	walletOpts := []service.WalletOption{service.WithMetrics(m)}
	if cfg.Redis.Enabled {
		rdb, err := cache.InitRedis(&cfg.Redis)
		if err != nil {
			log.Fatalf("[Main] init redis: %v", err)
		}
		defer rdb.Close()

		if cfg.Wallet.DistributedLock {
			walletOpts = append(walletOpts, service.WithPlayerLocker(
				lock.NewWalletLocker(rdb, cfg.Wallet.LockTTL, cfg.Wallet.LockRetryInterval)))
			log.Println("[Main] redis wallet lock enabled")
		}
	}

	// 可选：Kafka，未启用时 outbox 只打日志
	var publisher mq.Publisher = mq.LogPublisher{}
	if cfg.Kafka.Enabled {
		kp, err := mq.InitKafka(&cfg.Kafka)
		if err != nil {
			log.Fatalf("[Main] init kafka: %v", err)
		}
		publisher = kp
	}
	defer publisher.Close()

	var verifier service.GoogleVerifier
	if cfg.Auth.GoogleClientID != "" {
		verifier = google.NewIDTokenVerifier(cfg.Auth.GoogleClientID)
	} else {
		log.Println("[Main] auth.google_client_id not set, Google login disabled")
	}

	tokens := service.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	walletService := service.NewWalletService(st.wallet, cfg.Wallet, cfg.Kafka.Topic.WalletTransaction, walletOpts...)
	historyService := service.NewHistoryService(st.history)
	authService := service.NewAuthService(st.players, st.resets, verifier, tokens, m, cfg.Auth, cfg.Wallet)
	messageService := service.NewMessageService(st.messages)

	// 创建上下文（用于优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 启动后台任务
	outboxSender := job.NewOutboxSender(st.outbox, publisher, m, cfg.Jobs)
	go outboxSender.Start(ctx)

	resetCleanup := job.NewResetTokenCleanupJob(st.resets, m, cfg.Jobs.ResetCleanupInterval, cfg.Auth.ResetTokenTTL)
	go resetCleanup.Start(ctx)

	// 设置路由
	h := handler.NewHandler(walletService, historyService, authService, messageService, cfg)
	router := handler.SetupRouter(h, m, cfg)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("[Main] listening on :%d (storage=%s)", cfg.Server.Port, cfg.Server.Storage)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[Main] listen: %v", err)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[Main] shutting down...")

	// 取消上下文，停止后台任务
	cancel()

	wait := time.Duration(cfg.Server.ShutdownWait) * time.Second
	if wait <= 0 {
		wait = 5 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), wait)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[Main] shutdown: %v", err)
	}

	log.Println("[Main] stopped")
}

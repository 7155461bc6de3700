package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	MySQL     MySQLConfig     `mapstructure:"mysql"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Wallet    WalletConfig    `mapstructure:"wallet"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Snowflake SnowflakeConfig `mapstructure:"snowflake"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
}

type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	BodyLimit    int64  `mapstructure:"body_limit"`
	AllowOrigin  string `mapstructure:"allow_origin"`
	ReleaseMode  bool   `mapstructure:"release_mode"`
	ShutdownWait int    `mapstructure:"shutdown_wait_seconds"`
	// Storage 取值 mysql 或 memory
	Storage      string `mapstructure:"storage"`
}

const (
	StorageMySQL  = "mysql"
	StorageMemory = "memory"
)

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	LogLevel     string `mapstructure:"log_level"`
	AutoMigrate  bool   `mapstructure:"auto_migrate"`
}

// DSN builds the go-sql-driver connection string.
func (c MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local&clientFoundRows=true",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Database,
	)
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Enabled bool             `mapstructure:"enabled"`
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	WalletTransaction string `mapstructure:"wallet_transaction"`
}

// WalletConfig 钱包引擎参数
type WalletConfig struct {
	InitialCashInLimit float64       `mapstructure:"initial_cash_in_limit"`
	TransactionTimeout time.Duration `mapstructure:"transaction_timeout"`
	MaxAttempts        int           `mapstructure:"max_attempts"`
	DistributedLock    bool          `mapstructure:"distributed_lock"`
	LockTTL            time.Duration `mapstructure:"lock_ttl"`
	LockRetryInterval  time.Duration `mapstructure:"lock_retry_interval"`
}

type AuthConfig struct {
	JWTSecret        string        `mapstructure:"jwt_secret"`
	TokenTTL         time.Duration `mapstructure:"token_ttl"`
	ResetTokenTTL    time.Duration `mapstructure:"reset_token_ttl"`
	GoogleClientID   string        `mapstructure:"google_client_id"`
	ExposeResetToken bool          `mapstructure:"expose_reset_token"`
	RequireToken     bool          `mapstructure:"require_token"`
	BcryptCost       int           `mapstructure:"bcrypt_cost"`
}

type SnowflakeConfig struct {
	WorkerID int64 `mapstructure:"worker_id"`
}

type JobsConfig struct {
	OutboxInterval       time.Duration `mapstructure:"outbox_interval"`
	OutboxBatchSize      int           `mapstructure:"outbox_batch_size"`
	OutboxMaxRetry       int           `mapstructure:"outbox_max_retry"`
	ResetCleanupInterval time.Duration `mapstructure:"reset_cleanup_interval"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.body_limit", 1<<20)
	v.SetDefault("server.allow_origin", "*")
	v.SetDefault("server.release_mode", true)
	v.SetDefault("server.shutdown_wait_seconds", 5)
	v.SetDefault("server.storage", StorageMySQL)

	v.SetDefault("mysql.host", "127.0.0.1")
	v.SetDefault("mysql.port", 3306)
	v.SetDefault("mysql.user", "root")
	v.SetDefault("mysql.password", "")
	v.SetDefault("mysql.database", "player_wallet")
	v.SetDefault("mysql.max_open_conns", 50)
	v.SetDefault("mysql.max_idle_conns", 10)
	v.SetDefault("mysql.log_level", "warn")
	v.SetDefault("mysql.auto_migrate", true)

	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"127.0.0.1:9092"})

	v.SetDefault("kafka.topic.wallet_transaction", "wallet.transaction")

	v.SetDefault("wallet.initial_cash_in_limit", 300000)
	v.SetDefault("wallet.transaction_timeout", 10*time.Second)
	v.SetDefault("wallet.max_attempts", 3)
	v.SetDefault("wallet.distributed_lock", false)
	v.SetDefault("wallet.lock_ttl", 30*time.Second)
	v.SetDefault("wallet.lock_retry_interval", 100*time.Millisecond)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.google_client_id", "")
	v.SetDefault("auth.expose_reset_token", false)
	v.SetDefault("auth.require_token", false)
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("auth.reset_token_ttl", time.Hour)
	v.SetDefault("auth.bcrypt_cost", 10)

	v.SetDefault("snowflake.worker_id", 1)

	v.SetDefault("jobs.outbox_interval", 100*time.Millisecond)
	v.SetDefault("jobs.outbox_batch_size", 100)
	v.SetDefault("jobs.outbox_max_retry", 5)
	v.SetDefault("jobs.reset_cleanup_interval", 10*time.Minute)
}

// Load reads configPath (optional) layered over defaults and the environment.
func Load(configPath string) (*Config, error) {
	// .env 不存在时直接使用系统环境变量
	if err := godotenv.Load(); err != nil {
		log.Println("[Config] .env not found, using process environment")
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Server.Storage = strings.ToLower(strings.TrimSpace(cfg.Server.Storage))
	if cfg.Server.Storage != StorageMySQL && cfg.Server.Storage != StorageMemory {
		return nil, fmt.Errorf("unsupported server.storage %q", cfg.Server.Storage)
	}
	return cfg, nil
}

// LoadConfig 加载配置文件，失败直接退出
func LoadConfig(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("[Config] %v", err)
	}
	return cfg
}

package configs

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/nimeshabuddhika/account-ledger/pkg"
	"github.com/nimeshabuddhika/account-ledger/pkg/bootstrap"
	"github.com/nimeshabuddhika/account-ledger/pkg/utils"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config holds application configuration for ledger-api.
type Config struct {
	Port          string           `mapstructure:"PORT" validate:"required"`
	StoreBackend  pkg.StoreBackend `mapstructure:"STORE_BACKEND" validate:"oneof=memory postgres"`
	PrimaryDbAddr string           `mapstructure:"PRIMARY_DB_ADDR" validate:"required_if=StoreBackend postgres"`
	ReadDbAddr    string           `mapstructure:"READ_DB_ADDR"`
	MaxDbCons     int32            `mapstructure:"MAX_DB_CONNECTIONS" validate:"min=1"`
	MinDbCons     int32            `mapstructure:"MIN_DB_CONNECTIONS" validate:"min=1"`
	AesKey        string           `mapstructure:"AES_KEY" validate:"required_if=StoreBackend postgres"`

	LockBackend     pkg.LockBackend `mapstructure:"LOCK_BACKEND" validate:"oneof=local redis"`
	LockTTL         time.Duration   `mapstructure:"LOCK_TTL" validate:"required"`
	RedisAddrs      string          `mapstructure:"REDIS_ADDRS" validate:"required_if=LockBackend redis"`
	RedisMasterName string          `mapstructure:"REDIS_MASTER_NAME"`
	RedisPassword   string          `mapstructure:"REDIS_PASSWORD"`

	NodeID             int64         `mapstructure:"NODE_ID" validate:"min=0,max=1023"`
	LedgerMaxRetries   uint64        `mapstructure:"LEDGER_MAX_RETRIES" validate:"max=10"`
	LedgerRetryBackoff time.Duration `mapstructure:"LEDGER_RETRY_BACKOFF" validate:"required"`

	KafkaBrokers         string        `mapstructure:"KAFKA_BROKERS"`
	KafkaPostedTopic     string        `mapstructure:"KAFKA_POSTED_TOPIC" validate:"required_with=KafkaBrokers"`
	KafkaPartition       int           `mapstructure:"KAFKA_PARTITION" validate:"min=1"`
	KafkaPostedRetention time.Duration `mapstructure:"KAFKA_POSTED_RETENTION" validate:"required"`

	MaxReplicaRateLimit int           `mapstructure:"MAX_REPLICA_RATE_LIMIT" validate:"min=0"`
	RateLimitBurst      int           `mapstructure:"RATE_LIMIT_BURST" validate:"min=0"`
	MaxGlobalRateLimit  int           `mapstructure:"MAX_GLOBAL_RATE_LIMIT" validate:"min=0"` // across replicas, needs redis
	RateLimitWindow     time.Duration `mapstructure:"RATE_LIMIT_WINDOW" validate:"required"`
}

func Load(logger *zap.Logger) (*Config, error) {
	viper.SetEnvPrefix("app") // Prefix for env vars
	viper.AutomaticEnv()

	// Default values
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("STORE_BACKEND", string(pkg.StoreBackendMemory))
	viper.SetDefault("MAX_DB_CONNECTIONS", "10")
	viper.SetDefault("MIN_DB_CONNECTIONS", "2")
	viper.SetDefault("LOCK_BACKEND", string(pkg.LockBackendLocal))
	viper.SetDefault("LOCK_TTL", "30s")
	viper.SetDefault("NODE_ID", "1")
	viper.SetDefault("LEDGER_MAX_RETRIES", "3")
	viper.SetDefault("LEDGER_RETRY_BACKOFF", "50ms")
	viper.SetDefault("KAFKA_POSTED_TOPIC", "ledger.transactions.posted")
	viper.SetDefault("KAFKA_PARTITION", "4")
	viper.SetDefault("KAFKA_POSTED_RETENTION", "168h")
	viper.SetDefault("MAX_REPLICA_RATE_LIMIT", "100")
	viper.SetDefault("RATE_LIMIT_BURST", "200")
	viper.SetDefault("MAX_GLOBAL_RATE_LIMIT", "0")
	viper.SetDefault("RATE_LIMIT_WINDOW", "1s")

	// Optional: Read from config.yaml if exists
	if gin.ReleaseMode == gin.Mode() {
		viper.SetConfigName("config.prod")
	} else if gin.TestMode == gin.Mode() {
		logger.Warn("running_in_test_mode")
		viper.SetConfigName("config.test")
	} else {
		logger.Warn("running_in_development_mode")
		viper.SetConfigName("config.dev")
	}
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./services/ledger-api/configs")
	_ = viper.ReadInConfig() // Ignore if no file

	var cfg Config
	if err := utils.ParseStructEnv(&cfg); err != nil {
		return nil, err
	}
	// Validate after unmarshal
	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, utils.FormatConfigErrors(logger, err, cfg)
	}
	return &cfg, nil
}

// Ledger returns the ledger wiring settings.
func (c *Config) Ledger() bootstrap.LedgerConfig {
	return bootstrap.LedgerConfig{
		StoreBackend:         c.StoreBackend,
		PrimaryDbAddr:        c.PrimaryDbAddr,
		ReadDbAddr:           c.ReadDbAddr,
		MaxDbCons:            c.MaxDbCons,
		MinDbCons:            c.MinDbCons,
		AesKey:               c.AesKey,
		LockBackend:          c.LockBackend,
		LockTTL:              c.LockTTL,
		RedisAddrs:           c.RedisAddrs,
		RedisMasterName:      c.RedisMasterName,
		RedisPassword:        c.RedisPassword,
		NodeID:               c.NodeID,
		MaxRetries:           c.LedgerMaxRetries,
		RetryBackoff:         c.LedgerRetryBackoff,
		KafkaBrokers:         c.KafkaBrokers,
		KafkaPostedTopic:     c.KafkaPostedTopic,
		KafkaPartitions:      c.KafkaPartition,
		KafkaPostedRetention: c.KafkaPostedRetention,
	}
}

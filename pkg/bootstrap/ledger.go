package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nimeshabuddhika/account-ledger/pkg"
	"github.com/nimeshabuddhika/account-ledger/pkg/cache"
	"github.com/nimeshabuddhika/account-ledger/pkg/database"
	kafkautils "github.com/nimeshabuddhika/account-ledger/pkg/kafka"
	"github.com/nimeshabuddhika/account-ledger/pkg/ledger"
	"github.com/nimeshabuddhika/account-ledger/pkg/storage/memory"
	"github.com/nimeshabuddhika/account-ledger/pkg/storage/postgres"
	"github.com/nimeshabuddhika/account-ledger/pkg/utils"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// LedgerConfig selects and configures the ledger's store, lock, id and event backends.
type LedgerConfig struct {
	StoreBackend  pkg.StoreBackend
	PrimaryDbAddr string
	ReadDbAddr    string
	MaxDbCons     int32
	MinDbCons     int32
	AesKey        string

	LockBackend     pkg.LockBackend
	LockTTL         time.Duration
	RedisAddrs      string // comma separated
	RedisMasterName string
	RedisPassword   string

	NodeID       int64
	MaxRetries   uint64
	RetryBackoff time.Duration

	KafkaBrokers         string // empty disables event publishing
	KafkaPostedTopic     string
	KafkaPartitions      int
	KafkaPostedRetention time.Duration
}

// Ledger is the wired ledger of one process.
type Ledger struct {
	Accounts *ledger.AccountManager
	Engine   *ledger.Engine
	Redis    redis.UniversalClient // nil unless a Redis address is configured

	checks []func(context.Context) error
}

// Ping reports whether every backing service answers.
func (l *Ledger) Ping(ctx context.Context) error {
	var errs []error
	for _, check := range l.checks {
		errs = append(errs, check(ctx))
	}
	return errors.Join(errs...)
}

// NewLedger builds the ledger from cfg. The returned cleanup releases every connection that
// was opened, in reverse order.
func NewLedger(ctx context.Context, logger *zap.Logger, cfg LedgerConfig) (*Ledger, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Ledger, func(), error) {
		cleanup()
		return nil, nil, err
	}

	l := &Ledger{}
	store, storeCloser, err := newStore(ctx, logger, cfg, l)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, storeCloser)

	if addrs := SplitList(cfg.RedisAddrs); len(addrs) > 0 {
		client, closeRedis, err := cache.New(ctx, cache.Config{
			Addrs:      addrs,
			MasterName: cfg.RedisMasterName,
			Password:   cfg.RedisPassword,
		})
		if err != nil {
			return fail(fmt.Errorf("connect redis: %w", err))
		}
		closers = append(closers, closeRedis)
		l.Redis = client
		l.checks = append(l.checks, func(ctx context.Context) error { return client.Ping(ctx).Err() })
		logger.Info("redis_client_initialized", zap.Strings("addrs", addrs))
	}

	var locker ledger.Locker
	switch cfg.LockBackend {
	case pkg.LockBackendRedis:
		if l.Redis == nil {
			return fail(errors.New("redis lock backend requires APP_REDIS_ADDRS"))
		}
		locker = cache.NewAccountLocker(cache.AccountLockerConfig{Logger: logger, Client: l.Redis, TTL: cfg.LockTTL})
	case pkg.LockBackendLocal, "":
		locker = ledger.NewKeyedLocker()
	default:
		return fail(fmt.Errorf("unknown lock backend %q", cfg.LockBackend))
	}

	ids, err := ledger.NewSnowflakeGenerator(cfg.NodeID)
	if err != nil {
		return fail(err)
	}

	var publisher ledger.EventPublisher
	if !utils.IsEmpty(cfg.KafkaBrokers) {
		p, closePublisher, err := newPublisher(ctx, logger, cfg)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, closePublisher)
		publisher = p
	}

	l.Accounts = ledger.NewAccountManager(ledger.AccountManagerConfig{
		Logger: logger,
		Store:  store,
		Locker: locker,
	})
	l.Engine = ledger.NewEngine(ledger.EngineConfig{
		Logger:       logger,
		Accounts:     l.Accounts,
		IDs:          ids,
		Publisher:    publisher,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	})
	logger.Info("ledger_initialized",
		zap.String("store", string(cfg.StoreBackend)),
		zap.String("lock", string(cfg.LockBackend)),
		zap.Int64("node_id", cfg.NodeID),
		zap.Bool("publishing", publisher != nil))
	return l, cleanup, nil
}

func newStore(ctx context.Context, logger *zap.Logger, cfg LedgerConfig, l *Ledger) (ledger.Store, func(), error) {
	switch cfg.StoreBackend {
	case pkg.StoreBackendMemory, "":
		logger.Warn("using_in_memory_store")
		return memory.NewStore(), func() {}, nil
	case pkg.StoreBackendPostgres:
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	key, err := utils.DecodeString(cfg.AesKey)
	if err != nil {
		return nil, nil, fmt.Errorf("decode encryption key: %w", err)
	}
	db, disconnect, err := database.New(ctx, logger, database.Config{
		PrimaryDSN: cfg.PrimaryDbAddr,
		ReadDSNs:   []string{cfg.ReadDbAddr},
		MaxConns:   cfg.MaxDbCons,
		MinConns:   cfg.MinDbCons,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := database.RunMigrations(logger, cfg.PrimaryDbAddr); err != nil {
		disconnect()
		return nil, nil, err
	}
	l.checks = append(l.checks, db.Ping)
	return postgres.NewStore(postgres.StoreConfig{Logger: logger, DB: db, EncryptionKey: key}), disconnect, nil
}

func newPublisher(ctx context.Context, logger *zap.Logger, cfg LedgerConfig) (ledger.EventPublisher, func(), error) {
	err := kafkautils.InitKafkaTopics(ctx, logger, kafkautils.KafkaConfig{
		BootstrapServers: cfg.KafkaBrokers,
		Topics: []kafkautils.TopicConfig{
			kafkautils.RetentionTopic(cfg.KafkaPostedTopic, cfg.KafkaPartitions, cfg.KafkaPostedRetention),
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init kafka topics: %w", err)
	}
	producer, err := kafkautils.NewIdempotentProducer(cfg.KafkaBrokers)
	if err != nil {
		return nil, nil, fmt.Errorf("create kafka producer: %w", err)
	}
	go kafkautils.HandleDeliveryReports(logger, producer)
	logger.Info("kafka_producer_created", zap.String("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaPostedTopic))

	closer := func() {
		if remaining := producer.Flush(5000); remaining > 0 {
			logger.Warn("kafka_producer_unflushed", zap.Int("messages", remaining))
		}
		producer.Close()
	}
	return kafkautils.NewTransactionPublisher(logger, producer, cfg.KafkaPostedTopic), closer, nil
}

// SplitList splits a comma separated setting, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

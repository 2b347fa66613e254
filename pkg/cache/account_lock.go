package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nimeshabuddhika/account-ledger/pkg/ledger"
	"github.com/nimeshabuddhika/account-ledger/pkg/utils"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// releaseScript deletes the lock only while it still carries the holder's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// AccountLockerConfig configures an AccountLocker.
type AccountLockerConfig struct {
	Logger    *zap.Logger
	Client    redis.UniversalClient
	KeyPrefix string        // e.g. "ledger:lock:"
	TTL       time.Duration // upper bound on how long a crashed holder blocks the account
	RetryBase time.Duration
	RetryMax  time.Duration
}

// AccountLocker is a ledger.Locker shared by every replica through Redis (SET NX PX).
type AccountLocker struct {
	logger    *zap.Logger
	client    redis.UniversalClient
	prefix    string
	ttl       time.Duration
	retryBase time.Duration
	retryMax  time.Duration
}

func NewAccountLocker(cfg AccountLockerConfig) *AccountLocker {
	l := &AccountLocker{
		logger:    cfg.Logger,
		client:    cfg.Client,
		prefix:    cfg.KeyPrefix,
		ttl:       defaultDuration(cfg.TTL, 30*time.Second),
		retryBase: defaultDuration(cfg.RetryBase, 5*time.Millisecond),
		retryMax:  defaultDuration(cfg.RetryMax, 200*time.Millisecond),
	}
	if l.logger == nil {
		l.logger = zap.NewNop()
	}
	if l.prefix == "" {
		l.prefix = "ledger:lock:"
	}
	return l
}

// Lock polls SET NX with jittered exponential backoff until the key is held or ctx ends.
// Redis failures are reported as ledger.ErrStoreUnavailable.
func (l *AccountLocker) Lock(ctx context.Context, key string) (func(), error) {
	lockKey := l.prefix + key
	token := uuid.NewString()

	for attempt := 1; ; attempt++ {
		ok, err := l.client.SetNX(ctx, lockKey, token, l.ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, ledger.StoreUnavailable("acquire account lock", err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(utils.CalculateExponentialBackoffWithJitter(attempt, l.retryBase, l.retryMax))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(lockKey, token) })
	}, nil
}

func (l *AccountLocker) release(lockKey, token string) {
	// The caller's context may already be done; release on a fresh one.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	n, err := releaseScript.Run(ctx, l.client, []string{lockKey}, token).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		l.logger.Error("account_lock_release_failed", zap.String("key", lockKey), zap.Error(err))
		return
	}
	if n == 0 {
		l.logger.Warn("account_lock_expired_before_release", zap.String("key", lockKey), zap.Duration("ttl", l.ttl))
	}
}

var _ ledger.Locker = (*AccountLocker)(nil)

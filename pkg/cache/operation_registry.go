package cache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// OperationRegistry remembers which externally identified operations were already posted,
// so a redelivered message is recognised. Entries expire after TTL.
type OperationRegistry struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewOperationRegistry(client redis.UniversalClient, prefix string, ttl time.Duration) *OperationRegistry {
	if prefix == "" {
		prefix = "ledger:op:"
	}
	return &OperationRegistry{client: client, prefix: prefix, ttl: defaultDuration(ttl, 7*24*time.Hour)}
}

// Lookup returns the transaction id recorded for operationID.
func (r *OperationRegistry) Lookup(ctx context.Context, operationID string) (int64, bool, error) {
	v, err := r.client.Get(ctx, r.prefix+operationID).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	txID, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false, err
	}
	return txID, true, nil
}

// Remember records that operationID produced transaction txID. An existing record is kept.
func (r *OperationRegistry) Remember(ctx context.Context, operationID string, txID int64) error {
	return r.client.SetNX(ctx, r.prefix+operationID, strconv.FormatInt(txID, 10), r.ttl).Err()
}

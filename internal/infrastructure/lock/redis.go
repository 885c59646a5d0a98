package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wekeepgrowing/payment-reconciler/pkg/messaging"
	"go.uber.org/zap"
)

const (
	defaultTTL   = 30 * time.Second
	pollInterval = 50 * time.Millisecond
	keyPrefix    = "payment-reconciler:lock:"
)

// RedisLocker is a SET NX PX lock shared by every instance using the same
// Redis. The lock expires after ttl if its holder dies.
type RedisLocker struct {
	client messaging.RedisClient
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisLocker(client messaging.RedisClient, ttl time.Duration, logger *zap.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisLocker{client: client, ttl: ttl, logger: logger}
}

// Acquire polls until the key is free or ctx is done
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	redisKey := keyPrefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	return func() {
		released, err := l.client.CompareAndDelete(context.Background(), redisKey, token)
		if err != nil {
			l.logger.Warn("Failed to release lock", zap.String("key", key), zap.Error(err))
			return
		}
		if !released {
			l.logger.Warn("Lock expired before release", zap.String("key", key), zap.Duration("ttl", l.ttl))
		}
	}, nil
}

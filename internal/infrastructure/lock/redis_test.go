package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wekeepgrowing/payment-reconciler/pkg/messaging"
	"go.uber.org/zap"
)

// memoryRedis implements the lock primitives of messaging.RedisClient
type memoryRedis struct {
	mu   sync.Mutex
	keys map[string]string
}

func (m *memoryRedis) Publish(context.Context, string, interface{}) error { return nil }

func (m *memoryRedis) Subscribe(context.Context, string) (<-chan messaging.Message, error) {
	return nil, nil
}

func (m *memoryRedis) SetNX(_ context.Context, key, value string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = value
	return true, nil
}

func (m *memoryRedis) CompareAndDelete(_ context.Context, key, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[key] != value {
		return false, nil
	}
	delete(m.keys, key)
	return true, nil
}

func (m *memoryRedis) Close() error { return nil }

func TestRedisLocker_AcquireRelease(t *testing.T) {
	client := &memoryRedis{keys: map[string]string{}}
	locker := NewRedisLocker(client, time.Second, zap.NewNop())

	release, err := locker.Acquire(context.Background(), "payment-session:sess_1")
	require.NoError(t, err)
	assert.Len(t, client.keys, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()
	_, err = locker.Acquire(ctx, "payment-session:sess_1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	assert.Empty(t, client.keys)

	release, err = locker.Acquire(context.Background(), "payment-session:sess_1")
	require.NoError(t, err)
	release()
}

func TestRedisLocker_ReleaseDoesNotDropForeignLock(t *testing.T) {
	client := &memoryRedis{keys: map[string]string{}}
	locker := NewRedisLocker(client, time.Second, zap.NewNop())

	release, err := locker.Acquire(context.Background(), "k")
	require.NoError(t, err)

	// Simulate expiry followed by another holder taking the key
	client.keys[keyPrefix+"k"] = "someone-else"
	release()

	assert.Equal(t, "someone-else", client.keys[keyPrefix+"k"])
}

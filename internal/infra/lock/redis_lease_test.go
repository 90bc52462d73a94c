package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "household_scheduler:scan_lease"

func newTestLease(t *testing.T) (*miniredis.Miniredis, *RedisLease, *RedisLease) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewRedisClient(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	log := logrus.NewEntry(logrus.New())
	return mr, NewRedisLease(client, testKey, 30*time.Second, log), NewRedisLease(client, testKey, 30*time.Second, log)
}

func TestAcquire_HeldElsewhere(t *testing.T) {
	ctx := context.Background()
	mr, first, second := newTestLease(t)

	release, ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mr.Exists(testKey))
	assert.Equal(t, 30*time.Second, mr.TTL(testKey))

	_, ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	release()
	assert.False(t, mr.Exists(testKey))

	release2, ok, err := second.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	release2()
}

func TestRelease_KeepsAnotherHoldersLease(t *testing.T) {
	ctx := context.Background()
	mr, first, second := newTestLease(t)

	staleRelease, ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(31 * time.Second)
	require.False(t, mr.Exists(testKey))

	_, ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	token, err := mr.Get(testKey)
	require.NoError(t, err)

	staleRelease()
	got, err := mr.Get(testKey)
	require.NoError(t, err)
	assert.Equal(t, token, got)
}

func TestAcquire_StoreUnavailable(t *testing.T) {
	mr, lease, _ := newTestLease(t)
	mr.SetError("ERR server unavailable")

	_, ok, err := lease.Acquire(context.Background())
	require.Error(t, err)
	assert.False(t, ok)
}

func TestNewRedisClient_InvalidURL(t *testing.T) {
	_, err := NewRedisClient(context.Background(), "not a url")
	assert.Error(t, err)
}

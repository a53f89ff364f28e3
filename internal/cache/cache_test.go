package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/segyhp/rental-billing/internal/domain"
	"github.com/segyhp/rental-billing/internal/mocks"
)

func TestRedisLocker_TryLock(t *testing.T) {
	ctx := context.Background()

	t.Run("acquired then released", func(t *testing.T) {
		client := &mocks.MockRedisClient{}
		var token interface{}
		client.On("SetNX", mock.Anything, "billing:lock:monthly_invoices", mock.AnythingOfType("string"), 30*time.Minute).
			Run(func(args mock.Arguments) { token = args.Get(2) }).
			Return(redis.NewBoolResult(true, nil))
		client.On("Eval", mock.Anything, releaseScript, []string{"billing:lock:monthly_invoices"}, mock.Anything).
			Return(redis.NewCmdResult(int64(1), nil))

		locker := NewRedisLocker(client, "billing:")
		unlock, ok, err := locker.TryLock(ctx, "monthly_invoices", 30*time.Minute)
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, unlock(ctx))

		evalArgs := client.Calls[1].Arguments.Get(3).([]interface{})
		assert.Equal(t, token, evalArgs[0])
		client.AssertExpectations(t)
	})

	t.Run("held elsewhere", func(t *testing.T) {
		client := &mocks.MockRedisClient{}
		client.On("SetNX", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(redis.NewBoolResult(false, nil))

		unlock, ok, err := NewRedisLocker(client, "").TryLock(ctx, "job", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, unlock)
	})

	t.Run("redis down", func(t *testing.T) {
		client := &mocks.MockRedisClient{}
		client.On("SetNX", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(redis.NewBoolResult(false, errors.New("connection refused")))

		_, ok, err := NewRedisLocker(client, "").TryLock(ctx, "job", time.Minute)
		assert.Error(t, err)
		assert.False(t, ok)
	})
}

func TestMemoryLocker(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	locker := NewMemoryLocker()
	locker.nowFn = func() time.Time { return now }

	unlock, ok, err := locker.TryLock(ctx, "job", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, _ = locker.TryLock(ctx, "job", time.Minute)
	assert.False(t, ok, "second holder must be refused")

	_, ok, _ = locker.TryLock(ctx, "other", time.Minute)
	assert.True(t, ok, "locks are per name")

	require.NoError(t, unlock(ctx))
	_, ok, _ = locker.TryLock(ctx, "job", time.Minute)
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok, _ = locker.TryLock(ctx, "job", time.Minute)
	assert.True(t, ok, "expired lock can be taken over")
}

func TestRedisFailureTracker(t *testing.T) {
	ctx := context.Background()
	key := "billing:failures:overdue_invoices:inv-1"

	client := &mocks.MockRedisClient{}
	client.On("Get", mock.Anything, key).Return(redis.NewStringResult("", redis.Nil)).Once()
	client.On("Incr", mock.Anything, key).Return(redis.NewIntResult(1, nil))
	client.On("Expire", mock.Anything, key, 72*time.Hour).Return(redis.NewBoolResult(true, nil))
	client.On("Get", mock.Anything, key).Return(redis.NewStringResult("1", nil)).Once()
	client.On("Del", mock.Anything, []string{key}).Return(redis.NewIntResult(1, nil))

	tracker := NewRedisFailureTracker(client, "billing:", 72*time.Hour)

	n, err := tracker.Failures(ctx, "overdue_invoices", "inv-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	n, err = tracker.RecordFailure(ctx, "overdue_invoices", "inv-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = tracker.Failures(ctx, "overdue_invoices", "inv-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, tracker.Reset(ctx, "overdue_invoices", "inv-1"))
	client.AssertExpectations(t)
}

func TestMemoryFailureTracker(t *testing.T) {
	ctx := context.Background()
	tracker := NewMemoryFailureTracker()

	for i := 1; i <= 3; i++ {
		n, err := tracker.RecordFailure(ctx, "job", "a")
		require.NoError(t, err)
		assert.Equal(t, int64(i), n)
	}
	n, _ := tracker.Failures(ctx, "job", "b")
	assert.Zero(t, n)

	require.NoError(t, tracker.Reset(ctx, "job", "a"))
	n, _ = tracker.Failures(ctx, "job", "a")
	assert.Zero(t, n)
}

func TestRedisSettingsCache(t *testing.T) {
	ctx := context.Background()
	settings := domain.Settings{
		VisitPrice:       decimal.NewFromInt(5000),
		Currency:         "XAF",
		InvoiceDueDays:   5,
		RemindersEnabled: true,
	}
	data, err := json.Marshal(settings)
	require.NoError(t, err)

	tests := []struct {
		name      string
		stored    *redis.StringCmd
		expectNil bool
		expectErr bool
		expectDel bool
	}{
		{name: "hit", stored: redis.NewStringResult(string(data), nil)},
		{name: "miss", stored: redis.NewStringResult("", redis.Nil), expectNil: true},
		{name: "corrupted entry is dropped", stored: redis.NewStringResult("{not json", nil), expectNil: true, expectDel: true},
		{name: "redis error", stored: redis.NewStringResult("", errors.New("timeout")), expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &mocks.MockRedisClient{}
			client.On("Get", mock.Anything, "billing:settings").Return(tt.stored)
			if tt.expectDel {
				client.On("Del", mock.Anything, []string{"billing:settings"}).Return(redis.NewIntResult(1, nil))
			}

			c := NewRedisSettingsCache(client, "billing:", zap.NewNop())
			got, err := c.Get(ctx)
			if tt.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.expectNil {
				assert.Nil(t, got)
			} else {
				require.NotNil(t, got)
				assert.True(t, got.VisitPrice.Equal(settings.VisitPrice))
				assert.Equal(t, 5, got.InvoiceDueDays)
			}
			client.AssertExpectations(t)
		})
	}
}

func TestMemorySettingsCache(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemorySettingsCache()
	c.nowFn = func() time.Time { return now }

	got, _ := c.Get(ctx)
	assert.Nil(t, got)

	require.NoError(t, c.Set(ctx, domain.Settings{Currency: "XAF"}, time.Minute))
	got, _ = c.Get(ctx)
	require.NotNil(t, got)
	assert.Equal(t, "XAF", got.Currency)

	now = now.Add(time.Minute)
	got, _ = c.Get(ctx)
	assert.Nil(t, got, "entry expires after ttl")

	require.NoError(t, c.Set(ctx, domain.Settings{Currency: "XAF"}, time.Minute))
	require.NoError(t, c.Invalidate(ctx))
	got, _ = c.Get(ctx)
	assert.Nil(t, got)
}

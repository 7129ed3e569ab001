package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/quoteflow/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledGuardAllowsEverything(t *testing.T) {
	guard, err := NewCheckoutGuard(config.Config{}, nil)
	require.NoError(t, err)
	assert.False(t, guard.Enabled())

	allowed, err := guard.AllowOwner(context.Background(), "1")
	require.NoError(t, err)
	assert.True(t, allowed)

	token, ok, err := guard.TryLockQuote(context.Background(), "42")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, token)
	assert.NoError(t, guard.ReleaseQuote(context.Background(), "42", token))
}

func TestNilGuardAllowsEverything(t *testing.T) {
	var guard *CheckoutGuard
	_, ok, err := guard.TryLockQuote(context.Background(), "42")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNewCheckoutGuardRejectsInvalidLimits(t *testing.T) {
	_, err := newCheckoutGuard(config.RedisConfig{CheckoutLockTTLSeconds: 0, CheckoutOwnerRate: 1, CheckoutOwnerBurst: 1}, nil)
	assert.Error(t, err)

	_, err = newCheckoutGuard(config.RedisConfig{CheckoutLockTTLSeconds: 30, CheckoutOwnerRate: 0, CheckoutOwnerBurst: 1}, nil)
	assert.Error(t, err)
}

func TestQuoteLockWithoutRedis(t *testing.T) {
	assert.Nil(t, newQuoteLock(nil, time.Second))

	var lock *quoteLock
	_, _, err := lock.acquire(context.Background(), "42")
	assert.ErrorIs(t, err, ErrQuoteLockUnavailable)
	assert.NoError(t, lock.release(context.Background(), "42", "token"))
	assert.Equal(t, "checkout:quote:42", quoteLockKey(" 42 "))
}

func TestBucketResultDecodesScriptReply(t *testing.T) {
	res := bucketResult([]interface{}{int64(1), "4.5", int64(1700000000000)}, 1, 10)
	assert.True(t, res.Allowed)
	assert.Equal(t, 4, res.Remaining)
	assert.Equal(t, 10, res.Limit)
	assert.Zero(t, res.RetryAfter)

	res = bucketResult([]interface{}{int64(0), "0.5", int64(1700000000000)}, 2, 10)
	assert.False(t, res.Allowed)
	assert.Equal(t, 250*time.Millisecond, res.RetryAfter)
}

func TestDefaultBucketTTL(t *testing.T) {
	assert.Equal(t, 20*time.Second, defaultBucketTTL(1, 10))
	assert.Equal(t, time.Second, defaultBucketTTL(100, 1))
	assert.Equal(t, time.Second, defaultBucketTTL(0, 1))
}

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/natebag/MLG-BETA/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledLimiterAllows(t *testing.T) {
	limiter, err := NewAuthorizeLimiter(Params{Config: config.Config{}})
	require.NoError(t, err)
	assert.Nil(t, limiter)
	assert.False(t, limiter.Enabled())

	res, err := limiter.AllowPrincipal(context.Background(), "u")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestEnabledLimiterRequiresRedis(t *testing.T) {
	cfg := config.Config{RateLimit: config.RateLimitConfig{Enabled: true, AuthorizeRate: 1, AuthorizeBurst: 1}}
	_, err := NewAuthorizeLimiter(Params{Config: cfg})
	assert.Error(t, err)
}

func TestTokenBucketValidation(t *testing.T) {
	var bucket *TokenBucket
	_, err := bucket.Allow(context.Background(), "k", 1, 1)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestParseScriptResult(t *testing.T) {
	allowed, err := parseScriptResult([]any{int64(1), "4.5", int64(1_700_000_000_000)}, 2, 10)
	require.NoError(t, err)
	assert.True(t, allowed.Allowed)
	assert.Equal(t, 4, allowed.Remaining)
	assert.Equal(t, 10, allowed.Limit)
	assert.Zero(t, allowed.RetryAfter)

	denied, err := parseScriptResult([]any{int64(0), "0.5", int64(1_700_000_000_000)}, 2, 10)
	require.NoError(t, err)
	assert.False(t, denied.Allowed)
	assert.Equal(t, 250*time.Millisecond, denied.RetryAfter)

	_, err = parseScriptResult([]any{int64(1)}, 2, 10)
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestDefaultBucketTTL(t *testing.T) {
	assert.Equal(t, 20*time.Second, defaultBucketTTL(1, 10))
	assert.Equal(t, time.Second, defaultBucketTTL(100, 1))
	assert.Equal(t, time.Second, defaultBucketTTL(0, 1))
}

func TestLockerWithoutClient(t *testing.T) {
	var locker *Locker
	_, ok, err := locker.TryLock(context.Background(), "k", time.Second)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrLockNotConfigured)
	assert.NoError(t, locker.Release(context.Background(), "k", "t"))
}

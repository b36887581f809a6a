package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiter_FixedWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(3, time.Minute).WithClock(func() time.Time { return now })
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := l.Allow(ctx, "login:ana@example.com")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "attempt %d", i+1)
	}
	res, err := l.Allow(ctx, "login:ana@example.com")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, int64(0), res.Remaining)
	assert.Equal(t, time.Minute, res.RetryAfter)

	other, _ := l.Allow(ctx, "login:bob@example.com")
	assert.True(t, other.Allowed, "keys are independent")

	now = now.Add(time.Minute)
	res, _ = l.Allow(ctx, "login:ana@example.com")
	assert.True(t, res.Allowed, "new window resets the counter")
}

func TestNoop(t *testing.T) {
	res, err := Noop{}.Allow(context.Background(), "x")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

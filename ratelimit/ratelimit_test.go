package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter() (*Limiter, *time.Time) {
	l := New()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l.Now = func() time.Time { return now }
	l.Sleep = func(context.Context, time.Duration) error { return nil }
	return l, &now
}

func TestShouldThrottleCleanService(t *testing.T) {
	l, _ := newTestLimiter()
	throttled, wait := l.ShouldThrottle("gemini")
	assert.False(t, throttled)
	assert.Zero(t, wait)
}

func TestShouldThrottleBurst(t *testing.T) {
	l, _ := newTestLimiter()
	for i := 0; i < 10; i++ {
		throttled, _ := l.ShouldThrottle("pexels")
		require.False(t, throttled, "request %d should pass", i)
	}
	throttled, wait := l.ShouldThrottle("pexels")
	assert.True(t, throttled)
	assert.Greater(t, wait, time.Duration(0))
}

func TestBurstCounterResetsAfterIdle(t *testing.T) {
	l, now := newTestLimiter()
	for i := 0; i < 10; i++ {
		l.ShouldThrottle("pexels")
	}
	*now = now.Add(6 * time.Second)
	throttled, _ := l.ShouldThrottle("pexels")
	assert.False(t, throttled)
}

func TestRecordHitRespectsRetryAfter(t *testing.T) {
	l, _ := newTestLimiter()
	wait, err := l.RecordHit(context.Background(), "gemini", 10*time.Second)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, wait, 9*time.Second)
	assert.LessOrEqual(t, wait, 11*time.Second)

	throttled, remaining := l.ShouldThrottle("gemini")
	assert.True(t, throttled)
	assert.GreaterOrEqual(t, remaining, 9*time.Second)
	assert.LessOrEqual(t, remaining, 11*time.Second)
}

func TestRecordHitDoublesAndCaps(t *testing.T) {
	l, _ := newTestLimiter()
	ctx := context.Background()

	first, err := l.RecordHit(ctx, "bing", 0)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, first, 450*time.Millisecond)
	assert.LessOrEqual(t, first, 550*time.Millisecond)

	second, err := l.RecordHit(ctx, "bing", 0)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, second, 900*time.Millisecond)
	assert.LessOrEqual(t, second, 1100*time.Millisecond)

	// Enough doublings to hit the ceiling.
	var last time.Duration
	for i := 0; i < 12; i++ {
		last, err = l.RecordHit(ctx, "bing", 0)
		require.NoError(t, err)
	}
	assert.LessOrEqual(t, last, 33*time.Second)
}

func TestRecordHitHonorsPerServiceCeiling(t *testing.T) {
	l, _ := newTestLimiter()
	l.SetMaxBackoff("tts", 2*time.Second)

	wait, err := l.RecordHit(context.Background(), "tts", time.Minute)
	require.NoError(t, err)
	assert.LessOrEqual(t, wait, 2200*time.Millisecond)
}

func TestRecordHitCancelledContext(t *testing.T) {
	l := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := l.RecordHit(ctx, "gemini", time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResetClearsState(t *testing.T) {
	l, _ := newTestLimiter()
	_, err := l.RecordHit(context.Background(), "gemini", 10*time.Second)
	require.NoError(t, err)

	l.Reset("gemini")
	throttled, _ := l.ShouldThrottle("gemini")
	assert.False(t, throttled)
}

func TestStateIsPerService(t *testing.T) {
	l, _ := newTestLimiter()
	_, err := l.RecordHit(context.Background(), "gemini", 10*time.Second)
	require.NoError(t, err)

	throttled, _ := l.ShouldThrottle("pexels")
	assert.False(t, throttled)
}

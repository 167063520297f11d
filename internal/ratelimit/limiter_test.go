package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilLimiterNeverThrottles(t *testing.T) {
	var l *Limiter
	require.NoError(t, l.Wait(context.Background()))
}

func TestWaitHonoursContextDeadline(t *testing.T) {
	l := NewWithBurst("OpenLibrary", 1, 1)
	require.NoError(t, l.Wait(context.Background()), "the burst slot is free")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := l.Wait(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OpenLibrary")
}

func TestNonPositiveRateIsUnlimited(t *testing.T) {
	l := New("unlimited", 0)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for i := 0; i < 100; i++ {
		require.NoError(t, l.Wait(ctx))
	}
}

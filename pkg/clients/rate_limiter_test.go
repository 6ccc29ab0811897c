package clients

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(0, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, rl.Wait(ctx))
}

func TestNewRateLimiterPaces(t *testing.T) {
	rl := NewRateLimiter(50, 1)

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, rl.Wait(context.Background()))
	}
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestNewRateLimiterHonoursContext(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	require.NoError(t, rl.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, rl.Wait(ctx))
}

func TestRetryLoggerLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := newRetryLogger(zap.New(core))

	l.Info("performing request", "method", "GET", "url", "https://h/shares")
	l.Warn("retrying", "attempt", 2)
	l.Error("giving up", "odd")
	l.Debug("noise", 1, "x")

	entries := logs.AllUntimed()
	require.Len(t, entries, 4)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, "GET", entries[0].ContextMap()["method"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, int64(2), entries[1].ContextMap()["attempt"])
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Empty(t, entries[2].Context)
	assert.Equal(t, "x", entries[3].ContextMap()["1"])
}

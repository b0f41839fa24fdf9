package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoSucceedsAfterRetries(t *testing.T) {
	attempts := 0
	cfg := Config{MaxRetries: 5, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, Multiplier: 1.0}

	err := Do(context.Background(), cfg, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDoExhaustsRetries(t *testing.T) {
	attempts := 0
	cfg := Config{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, Multiplier: 1.0}

	err := Do(context.Background(), cfg, func() error {
		attempts++
		return errors.New("persistent")
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts, "initial attempt plus two retries")
	assert.Contains(t, err.Error(), "persistent")
}

func TestDoRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	cfg := FixedInterval(10 * time.Millisecond)

	start := time.Now()
	err := Do(ctx, cfg, func() error {
		return errors.New("never succeeds")
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "retry cancelled")
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestFixedIntervalRetriesForever(t *testing.T) {
	cfg := FixedInterval(time.Millisecond)
	assert.Equal(t, -1, cfg.MaxRetries)
	assert.Equal(t, cfg.InitialBackoff, cfg.MaxBackoff)

	// Well past DefaultConfig's MaxRetries
	attempts := 0
	err := Do(context.Background(), cfg, func() error {
		attempts++
		if attempts < 10 {
			return errors.New("not yet")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 10, attempts)
}

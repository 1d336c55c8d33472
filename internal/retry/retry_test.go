package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcptape/internal/errdefs"
)

type recordedSleeps struct {
	waits []time.Duration
}

func (r *recordedSleeps) sleep(_ context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return nil
}

func TestDo_ExhaustsAttemptsWithExponentialWaits(t *testing.T) {
	rec := &recordedSleeps{}
	c := New(Config{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    time.Minute,
		Multiplier:  2.0,
		Jitter:      false,
	}, WithSleep(rec.sleep))

	calls := 0
	lastErr := errdefs.Transient("call search", errdefs.CauseTimeout, fmt.Errorf("attempt %d", 3))
	err := c.Do(context.Background(), "search", func(context.Context) error {
		calls++
		if calls == 3 {
			return lastErr
		}
		return errdefs.Transient("call search", errdefs.CauseTimeout, fmt.Errorf("attempt %d", calls))
	})

	assert.Same(t, lastErr, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rec.waits)
}

func TestDo_NonRetryableFailsImmediately(t *testing.T) {
	rec := &recordedSleeps{}
	c := New(DefaultConfig(), WithSleep(rec.sleep))

	calls := 0
	permanent := errdefs.Permanent("call echo", errdefs.CauseTool, errors.New("bad input"))
	err := c.Do(context.Background(), "echo", func(context.Context) error {
		calls++
		return permanent
	})

	assert.Same(t, permanent, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, rec.waits)
}

func TestDo_SucceedsAfterTransient(t *testing.T) {
	rec := &recordedSleeps{}
	c := New(Quick(), WithSleep(rec.sleep), WithRand(func() float64 { return 0.5 }))

	calls := 0
	got, err := DoValue(context.Background(), c, "list", func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", fmt.Errorf("dial: %w", context.DeadlineExceeded)
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 2, calls)
	// Quick: 500ms base, jitter factor 0.5 + 0.5 = 1.0
	assert.Equal(t, []time.Duration{500 * time.Millisecond}, rec.waits)
}

func TestDo_RespectsAllowList(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RetryOn = []errdefs.Cause{errdefs.CauseConnection}
	rec := &recordedSleeps{}
	c := New(cfg, WithSleep(rec.sleep))

	calls := 0
	_ = c.Do(context.Background(), "x", func(context.Context) error {
		calls++
		return errdefs.Transient("x", errdefs.CauseTimeout, errors.New("slow"))
	})
	assert.Equal(t, 1, calls)
}

func TestDo_StopsWhenContextCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := New(DefaultConfig(), WithSleep(func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}))

	calls := 0
	err := c.Do(ctx, "x", func(context.Context) error {
		calls++
		return errdefs.Transient("x", errdefs.CauseConnection, errors.New("refused"))
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDelay_CappedAtMax(t *testing.T) {
	c := New(Config{MaxAttempts: 10, BaseDelay: time.Second, MaxDelay: 5 * time.Second, Multiplier: 2})
	assert.Equal(t, time.Second, c.Delay(1))
	assert.Equal(t, 4*time.Second, c.Delay(3))
	assert.Equal(t, 5*time.Second, c.Delay(4))
	assert.Equal(t, 5*time.Second, c.Delay(9))
}

func TestPresets(t *testing.T) {
	tests := []struct {
		name     string
		attempts int
		base     time.Duration
		max      time.Duration
	}{
		{"quick", 2, 500 * time.Millisecond, 5 * time.Second},
		{"standard", 3, time.Second, 30 * time.Second},
		{"persistent", 5, 2 * time.Second, 120 * time.Second},
		{"default", 3, time.Second, 60 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, ok := Preset(tt.name)
			require.True(t, ok)
			assert.Equal(t, tt.attempts, cfg.MaxAttempts)
			assert.Equal(t, tt.base, cfg.BaseDelay)
			assert.Equal(t, tt.max, cfg.MaxDelay)
			assert.True(t, cfg.Jitter)
			assert.Equal(t, 2.0, cfg.Multiplier)
		})
	}

	_, ok := Preset("reckless")
	assert.False(t, ok)
}

func TestDelay_JitterBounds_Property(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("jittered delay stays within [0.5, 1.5) of the capped delay", prop.ForAll(
		func(attempt int, r float64) bool {
			cfg := Config{MaxAttempts: 10, BaseDelay: 100 * time.Millisecond, MaxDelay: 10 * time.Second, Multiplier: 2}
			plain := New(cfg).Delay(attempt)

			cfg.Jitter = true
			jittered := New(cfg, WithRand(func() float64 { return r })).Delay(attempt)

			return float64(jittered) >= 0.5*float64(plain)-1 && float64(jittered) < 1.5*float64(plain)
		},
		gen.IntRange(1, 12),
		gen.Float64Range(0, 0.999999),
	))

	properties.TestingRun(t)
}

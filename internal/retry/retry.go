package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"slices"
	"time"

	"mcptape/internal/errdefs"
	"mcptape/pkg/logging"
)

// Config controls retry behaviour for protocol calls.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	Jitter      bool
	// RetryOn lists the failure causes worth another attempt. Anything else
	// propagates on the first failure.
	RetryOn []errdefs.Cause
}

// DefaultRetryOn is the allow-list of transient causes.
var DefaultRetryOn = []errdefs.Cause{errdefs.CauseTimeout, errdefs.CauseConnection, errdefs.CauseIO}

// DefaultConfig returns 3 attempts, 1s base, 60s cap, doubling, jittered.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    60 * time.Second,
		Multiplier:  2.0,
		Jitter:      true,
		RetryOn:     DefaultRetryOn,
	}
}

// Quick is for cheap calls where a fast answer beats persistence.
func Quick() Config {
	c := DefaultConfig()
	c.MaxAttempts = 2
	c.BaseDelay = 500 * time.Millisecond
	c.MaxDelay = 5 * time.Second
	return c
}

func Standard() Config {
	c := DefaultConfig()
	c.MaxAttempts = 3
	c.BaseDelay = time.Second
	c.MaxDelay = 30 * time.Second
	return c
}

func Persistent() Config {
	c := DefaultConfig()
	c.MaxAttempts = 5
	c.BaseDelay = 2 * time.Second
	c.MaxDelay = 120 * time.Second
	return c
}

// Preset looks up a named preset: quick, standard, persistent or default.
func Preset(name string) (Config, bool) {
	switch name {
	case "", "default":
		return DefaultConfig(), true
	case "quick":
		return Quick(), true
	case "standard":
		return Standard(), true
	case "persistent":
		return Persistent(), true
	}
	return Config{}, false
}

// Controller runs functions under a Config.
type Controller struct {
	cfg   Config
	sleep func(ctx context.Context, d time.Duration) error
	rand  func() float64
}

// Option customises a Controller.
type Option func(*Controller)

// WithSleep replaces the wait function, mostly for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Controller) { c.sleep = sleep }
}

// WithRand replaces the jitter source. It must return values in [0, 1).
func WithRand(r func() float64) Option {
	return func(c *Controller) { c.rand = r }
}

// New creates a Controller. A non-positive MaxAttempts means a single attempt.
func New(cfg Config, opts ...Option) *Controller {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 1
	}
	if cfg.RetryOn == nil {
		cfg.RetryOn = DefaultRetryOn
	}
	c := &Controller{
		cfg:   cfg,
		sleep: sleepContext,
		rand:  rand.Float64,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the controller's effective configuration.
func (c *Controller) Config() Config {
	return c.cfg
}

// Delay returns the wait before the attempt following the given (1-based) failed
// attempt: min(base * multiplier^(attempt-1), max), scaled by [0.5, 1.5) with jitter.
func (c *Controller) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(c.cfg.BaseDelay) * math.Pow(c.cfg.Multiplier, float64(attempt-1))
	if c.cfg.MaxDelay > 0 && d > float64(c.cfg.MaxDelay) {
		d = float64(c.cfg.MaxDelay)
	}
	if c.cfg.Jitter {
		d *= 0.5 + c.rand()
	}
	return time.Duration(d)
}

// Retryable reports whether err's cause is on the allow-list.
func (c *Controller) Retryable(err error) bool {
	return slices.Contains(c.cfg.RetryOn, errdefs.CauseOf(err))
}

// Do runs fn until it succeeds, fails with a non-retryable error, or the attempt
// budget is spent. The last error is returned as-is.
func (c *Controller) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			if attempt > 1 {
				logging.Debug("Retry", "%s succeeded on attempt %d", op, attempt)
			}
			return nil
		}
		if !c.Retryable(lastErr) {
			return lastErr
		}
		if attempt == c.cfg.MaxAttempts {
			break
		}

		delay := c.Delay(attempt)
		logging.Warn("Retry", "%s failed on attempt %d/%d (%v), retrying in %v", op, attempt, c.cfg.MaxAttempts, lastErr, delay)
		if err := c.sleep(ctx, delay); err != nil {
			return lastErr
		}
	}
	return lastErr
}

// DoValue is Do for functions returning a value.
func DoValue[T any](ctx context.Context, c *Controller, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := c.Do(ctx, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Package backoff retries calls to external backends with bounded
// exponential backoff and jitter.
package backoff

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/avast/retry-go/v4"
)

// ErrExhausted is returned (wrapped around the last failure) when every
// attempt allowed by a Policy has failed.
var ErrExhausted = errors.New("retries exhausted")

// Policy bounds a retry loop. Delay before retry n (zero-based) is
// BaseDelay * Multiplier^n, capped at MaxDelay, plus a uniform random
// jitter in [0, Jitter].
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
	Jitter      time.Duration

	// Logger receives one debug line per retry. Nil disables it.
	Logger *slog.Logger
}

// DefaultPolicy returns the policy used for backend calls when none is
// configured.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 4,
		BaseDelay:   500 * time.Millisecond,
		Multiplier:  2,
		MaxDelay:    10 * time.Second,
		Jitter:      250 * time.Millisecond,
	}
}

// Delay returns the wait before retry n, without jitter.
func (p Policy) Delay(n uint) time.Duration {
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.BaseDelay) * math.Pow(mult, float64(n))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	return time.Duration(d)
}

// RetryAfterer is implemented by errors that carry a server-requested wait.
type RetryAfterer interface {
	RetryAfter() time.Duration
}

// permanent marks an error that must not be retried.
type permanent struct{ err error }

func (p *permanent) Error() string { return p.err.Error() }
func (p *permanent) Unwrap() error { return p.err }

// Permanent wraps err so that Do returns it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanent{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanent
	return errors.As(err, &p)
}

// Do calls fn until it succeeds, returns a permanent error, the context is
// done, or MaxAttempts calls have been made. The op name is used in errors
// and logs.
//
// On exhaustion the returned error wraps both ErrExhausted and the last
// failure.
func (p Policy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	calls := 0
	var last error
	err := retry.Do(
		func() error {
			calls++
			err := fn(ctx)
			if err != nil {
				last = err
			}
			if IsPermanent(err) {
				return retry.Unrecoverable(err)
			}
			return err
		},
		retry.Context(ctx),
		retry.Attempts(uint(attempts)),
		retry.LastErrorOnly(true),
		retry.DelayType(func(n uint, err error, _ *retry.Config) time.Duration {
			return p.wait(n, err)
		}),
		retry.OnRetry(func(n uint, err error) {
			if p.Logger != nil {
				p.Logger.Debug("retrying", "op", op, "attempt", n+1, "error", err)
			}
		}),
	)
	if err == nil {
		return nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		if last != nil {
			return fmt.Errorf("%s: %w (last error: %v)", op, ctxErr, last)
		}
		return fmt.Errorf("%s: %w", op, ctxErr)
	}
	if last == nil {
		last = err
	}
	if IsPermanent(last) {
		return fmt.Errorf("%s: %w", op, last)
	}
	return fmt.Errorf("%s: %w after %d attempts: %w", op, ErrExhausted, calls, last)
}

func (p Policy) wait(n uint, err error) time.Duration {
	d := p.Delay(n)
	var ra RetryAfterer
	if errors.As(err, &ra) {
		if hint := ra.RetryAfter(); hint > d {
			d = hint
		}
	}
	if p.Jitter > 0 {
		d += time.Duration(rand.Int64N(int64(p.Jitter) + 1))
	}
	return d
}

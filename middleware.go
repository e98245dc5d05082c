package hlbus

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"strconv"
	"time"
)

// Middleware wraps a HandlerFunc with a processing concern.
type Middleware func(next HandlerFunc) HandlerFunc

// Chain wraps h so that mws[0] runs first. Nil entries are skipped.
func Chain(h HandlerFunc, mws ...Middleware) HandlerFunc {
	for _, mw := range slices.Backward(mws) {
		if mw != nil {
			h = mw(h)
		}
	}
	return h
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err so RetryMiddleware gives up on it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

// RetryConfig bounds RetryMiddleware.
type RetryConfig struct {
	// MaxAttempts counts the first call; values below 1 mean a single attempt.
	MaxAttempts int
	// Backoff returns the wait after the given failed attempt (1-based). Nil retries at once.
	Backoff func(attempt int) time.Duration
	// RetryIf selects retryable errors. Nil retries everything not marked Permanent.
	RetryIf func(err error) bool
	// Jitter adds a random extra wait in [0, Jitter).
	Jitter time.Duration
}

func (c RetryConfig) retryable(err error) bool {
	if IsPermanent(err) || errors.Is(err, ErrExpired) {
		return false
	}
	return c.RetryIf == nil || c.RetryIf(err)
}

func (c RetryConfig) wait(attempt int) time.Duration {
	var d time.Duration
	if c.Backoff != nil {
		d = c.Backoff(attempt)
	}
	if c.Jitter > 0 {
		d += rand.N(c.Jitter)
	}
	return d
}

// RetryMiddleware re-runs a failing handler. The dispatcher never retries on
// its own; handlers that call flaky collaborators opt in here. It stops early
// when ctx is done or the envelope expires between attempts.
func RetryMiddleware(cfg RetryConfig) Middleware {
	attempts := max(cfg.MaxAttempts, 1)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, env Envelope) error {
			for attempt := 1; ; attempt++ {
				err := next(ctx, env)
				if err == nil || attempt == attempts || ctx.Err() != nil || !cfg.retryable(err) {
					return err
				}
				if clk, ok := ClockFromContext(ctx); ok && env.Header.Expired(clk.Now()) {
					return err
				}
				if l, ok := LoggerFromContext(ctx); ok {
					l.Debug().
						Err(err).
						Str("message_type", env.Header.MessageType).
						Str("message_id", env.Header.MessageID).
						Str("attempt", strconv.Itoa(attempt)).
						Msg("hlbus: retrying handler")
				}
				if d := cfg.wait(attempt); d > 0 {
					t := time.NewTimer(d)
					select {
					case <-ctx.Done():
						t.Stop()
						return err
					case <-t.C:
					}
				}
			}
		}
	}
}

// ExponentialBackoff doubles base per failed attempt, capped at ceiling.
func ExponentialBackoff(base, ceiling time.Duration) func(attempt int) time.Duration {
	return func(attempt int) time.Duration {
		d := base << uint(max(attempt, 1)-1)
		if d <= 0 || (ceiling > 0 && d > ceiling) {
			return ceiling
		}
		return d
	}
}

// TimeoutMiddleware bounds one handler run. The handler keeps its context,
// so well-behaved handlers stop when it expires; the returned error wraps
// context.DeadlineExceeded either way. A non-positive d disables the bound.
func TimeoutMiddleware(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		if d <= 0 {
			return next
		}
		return func(ctx context.Context, env Envelope) error {
			tctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			done := make(chan error, 1)
			go func() {
				defer func() {
					if r := recover(); r != nil {
						done <- recovered(r)
					}
				}()
				done <- next(tctx, env)
			}()

			timedOut := func() bool { return ctx.Err() == nil && tctx.Err() != nil }
			select {
			case err := <-done:
				if err != nil || !timedOut() {
					return err
				}
			case <-tctx.Done():
				if !timedOut() {
					return ctx.Err()
				}
			}
			return fmt.Errorf("%q handler exceeded %s: %w", env.Header.MessageType, d, tctx.Err())
		}
	}
}

// ExpiryDeadlineMiddleware gives the handler context the envelope's expiry as
// its deadline, so collaborators abandon work nobody is waiting for.
func ExpiryDeadlineMiddleware() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, env Envelope) error {
			if env.Header.ExpiresAt <= 0 {
				return next(ctx, env)
			}
			dctx, cancel := context.WithDeadline(ctx, time.UnixMilli(env.Header.ExpiresAt))
			defer cancel()
			return next(dctx, env)
		}
	}
}

// RecoveryMiddleware turns a handler panic into an error.
func RecoveryMiddleware() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, env Envelope) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = recovered(r)
				}
			}()
			return next(ctx, env)
		}
	}
}

func recovered(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("panic recovered: %w", err)
	}
	return fmt.Errorf("panic recovered: %v", r)
}

// Package retry runs an operation under a bounded fixed-delay policy.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrExhausted is returned when every attempt ran without the operation reporting done.
var ErrExhausted = errors.New("retry: attempts exhausted")

var errPending = errors.New("retry: not done yet")

// Policy is a fixed-backoff policy: at most MaxAttempts calls, Delay between two calls.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration

	// NewTimer supplies the wait timer for one Do call. Nil uses a real timer.
	NewTimer func() backoff.Timer
	// Notify runs before every wait with the last error and the delay.
	Notify backoff.Notify
}

// Fixed returns a policy with real timers.
func Fixed(attempts int, delay time.Duration) Policy {
	return Policy{MaxAttempts: attempts, Delay: delay}
}

// Op is one attempt. attempt starts at 1. Returning done=true stops the loop;
// a non-nil error is remembered and the loop continues.
type Op func(ctx context.Context, attempt int) (done bool, err error)

// Do runs op until it reports done, the attempts run out, or ctx is cancelled.
// It returns the number of attempts made. When attempts run out the error wraps
// ErrExhausted together with the last error seen.
func (p Policy) Do(ctx context.Context, op Op) (int, error) {
	max := p.MaxAttempts
	if max < 1 {
		max = 1
	}
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Delay), uint64(max-1)),
		ctx,
	)
	var timer backoff.Timer
	if p.NewTimer != nil {
		timer = p.NewTimer()
	}

	attempts := 0
	var lastErr error
	err := backoff.RetryNotifyWithTimer(func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		attempts++
		done, err := op(ctx, attempts)
		if done && err == nil {
			return nil
		}
		if err != nil {
			lastErr = err
			return err
		}
		return errPending
	}, b, p.Notify, timer)

	switch {
	case err == nil:
		return attempts, nil
	case ctx.Err() != nil:
		return attempts, ctx.Err()
	case lastErr != nil:
		return attempts, errors.Join(ErrExhausted, lastErr)
	}
	return attempts, ErrExhausted
}

// InstantTimer satisfies backoff.Timer without waiting and records every
// requested delay. Use one per Do call.
type InstantTimer struct {
	Waits []time.Duration
	c     chan time.Time
}

func (t *InstantTimer) Start(d time.Duration) {
	t.Waits = append(t.Waits, d)
	t.c = make(chan time.Time, 1)
	t.c <- time.Time{}
}

func (t *InstantTimer) Stop() {}

func (t *InstantTimer) C() <-chan time.Time { return t.c }

// internal/browser/poll.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// ErrPollTimeout is returned when a condition is not met before the deadline.
var ErrPollTimeout = errors.New("browser: condition not met before timeout")

// Condition is evaluated by Poll. Errors are treated as transient.
type Condition func(ctx context.Context) (bool, error)

// Poll evaluates cond every interval until it returns true, timeout elapses
// (ErrPollTimeout) or ctx is cancelled (ctx.Err()). The first evaluation is immediate.
func Poll(ctx context.Context, interval, timeout time.Duration, cond Condition) error {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(interval), 1)
	var lastErr error
	for {
		if err := limiter.Wait(pollCtx); err != nil {
			// Wait also fails early when the next token lies past the deadline.
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return timeoutError(lastErr)
		}
		ok, err := cond(pollCtx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			lastErr = err
			continue
		}
		if ok {
			return nil
		}
	}
}

func timeoutError(lastErr error) error {
	if lastErr != nil {
		return fmt.Errorf("%w (last error: %v)", ErrPollTimeout, lastErr)
	}
	return ErrPollTimeout
}

// TextSource reads the text whose stability Settle waits for.
type TextSource func(ctx context.Context) (string, error)

// Settle waits until read returns the same text for at least quiet.
func Settle(ctx context.Context, read TextSource, interval, quiet, timeout time.Duration) error {
	var (
		last      string
		changedAt time.Time
		seen      bool
	)
	return Poll(ctx, interval, timeout, func(ctx context.Context) (bool, error) {
		text, err := read(ctx)
		if err != nil {
			return false, err
		}
		now := time.Now()
		if !seen || text != last {
			last, changedAt, seen = text, now, true
			return false, nil
		}
		return now.Sub(changedAt) >= quiet, nil
	})
}

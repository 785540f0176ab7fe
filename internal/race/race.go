// Package race bounds a blocking session call by a deadline.
package race

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// TimeoutError reports which labelled operation exceeded its deadline.
type TimeoutError struct {
	Label string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %dms", e.Label, e.After.Milliseconds())
}

func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// Do runs op and waits for whichever comes first: op's result or the deadline d.
// On timeout op's context is cancelled and Do returns *TimeoutError without waiting for
// op to return; a late result is dropped. The timer is released on every path.
func Do(ctx context.Context, d time.Duration, label string, op func(context.Context) error) error {
	_, err := Value(ctx, d, label, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Value is Do for operations that produce a result.
func Value[T any](ctx context.Context, d time.Duration, label string, op func(context.Context) (T, error)) (T, error) {
	var zero T
	if d <= 0 {
		return zero, fmt.Errorf("race %s: non-positive deadline %s", label, d)
	}

	opCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		v   T
		err error
	}
	// Buffered so the op goroutine never blocks after the race is lost.
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("%s panicked: %v", label, r)}
			}
		}()
		v, err := op(opCtx)
		done <- outcome{v: v, err: err}
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case o := <-done:
		return o.v, o.err
	case <-timer.C:
		// A result that landed in the same instant wins.
		select {
		case o := <-done:
			return o.v, o.err
		default:
		}
		return zero, &TimeoutError{Label: label, After: d}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

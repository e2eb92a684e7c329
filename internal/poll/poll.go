// Package poll waits for a condition by re-checking it on a fixed interval.
package poll

import (
	"context"
	"time"
)

// Options bounds a poll. MaxAttempts counts the checks made after the
// initial one, so the longest wait is roughly Interval * MaxAttempts.
type Options struct {
	Interval    time.Duration
	MaxAttempts int
}

// Budget returns the longest time a poll with these options can wait.
func (o Options) Budget() time.Duration {
	return o.Interval * time.Duration(o.MaxAttempts)
}

// Until evaluates check immediately and then once per interval until it
// reports ready or the attempts run out. Running out of attempts is not an
// error: the zero value and false are returned. The only error is the
// context's, when it ends first.
func Until[T any](ctx context.Context, opts Options, check func() (T, bool)) (T, bool, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, false, err
	}
	if v, ok := check(); ok {
		return v, true, nil
	}
	if opts.MaxAttempts <= 0 || opts.Interval <= 0 {
		return zero, false, nil
	}

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return zero, false, ctx.Err()
		case <-ticker.C:
		}
		if v, ok := check(); ok {
			return v, true, nil
		}
	}
	return zero, false, nil
}

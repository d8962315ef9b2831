// Package poll waits for a condition by checking it at a fixed interval.
package poll

import (
	"context"
	"errors"
	"time"
)

var ErrExhausted = errors.New("poll: attempt budget exhausted")

const (
	DefaultInterval    = 20 * time.Millisecond
	DefaultMaxAttempts = 100
)

type Options struct {
	Interval    time.Duration
	MaxAttempts int
}

func (opt Options) withDefaults() Options {
	if opt.Interval <= 0 {
		opt.Interval = DefaultInterval
	}
	if opt.MaxAttempts <= 0 {
		opt.MaxAttempts = DefaultMaxAttempts
	}
	return opt
}

// Until calls cond with the 1-based attempt number until it returns true.
// It returns ErrExhausted after MaxAttempts failed checks, or the context's
// error if ctx ends first.
func Until(ctx context.Context, opt Options, cond func(attempt int) bool) error {
	opt = opt.withDefaults()

	var timer *time.Timer
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if cond(attempt) {
			return nil
		}
		if attempt >= opt.MaxAttempts {
			return ErrExhausted
		}

		if timer == nil {
			timer = time.NewTimer(opt.Interval)
			defer timer.Stop()
		} else {
			timer.Reset(opt.Interval)
		}
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

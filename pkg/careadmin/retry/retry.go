// Package retry re-runs inserts that race on a uniqueness constraint.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"gorm.io/gorm"
)

// ErrPersistentConflict is returned when every attempt hit a duplicate key.
var ErrPersistentConflict = errors.New("could not find a free unique value, please try again")

// Options bounds the retry loop.
type Options struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultOptions suit an interactive request.
var DefaultOptions = Options{
	Attempts:  5,
	BaseDelay: 10 * time.Millisecond,
	MaxDelay:  200 * time.Millisecond,
}

// OnConflict calls fn until it returns something other than
// gorm.ErrDuplicatedKey, sleeping a jittered exponential backoff between
// attempts. fn receives the zero-based attempt number.
func OnConflict(ctx context.Context, opts Options, fn func(attempt int) error) error {
	if opts.Attempts <= 0 {
		opts.Attempts = DefaultOptions.Attempts
	}

	for attempt := 0; attempt < opts.Attempts; attempt++ {
		err := fn(attempt)
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return err
		}

		if attempt == opts.Attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff(opts, attempt)):
		}
	}

	return ErrPersistentConflict
}

// backoff returns a random delay in [d/2, d) where d doubles each attempt.
func backoff(opts Options, attempt int) time.Duration {
	d := opts.BaseDelay << attempt
	if opts.MaxDelay > 0 && (d > opts.MaxDelay || d <= 0) {
		d = opts.MaxDelay
	}
	if d <= 1 {
		return d
	}
	half := d / 2
	return half + rand.N(half)
}

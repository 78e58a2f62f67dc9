// Package resilience provides reliability patterns for remote service calls.
package resilience

import (
	"context"
	"time"
)

// Policy describes a bounded retry schedule: a total attempt count and the
// delay before the second attempt, doubled after each subsequent failure.
type Policy struct {
	Attempts int
	Delay    time.Duration
}

// DefaultPolicy retries twice after the initial attempt with a short backoff.
var DefaultPolicy = Policy{Attempts: 3, Delay: 250 * time.Millisecond}

// Do runs fn up to p.Attempts times, waiting between attempts. It returns nil
// on the first success and the last error otherwise. Context cancellation
// stops both the waits and any further attempts.
func (p Policy) Do(ctx context.Context, fn func() error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	delay := p.Delay
	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
		if err = fn(); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
	}
	return err
}

// Package retry runs operations with exponential backoff.
package retry

import (
	"context"
	"time"
)

// Do calls fn until it succeeds, it has been retried maxRetries times or ctx
// is done. The delay starts at baseDelay and doubles after each failure.
func Do(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func(context.Context) error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}
	b := Backoff{Base: baseDelay}
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= maxRetries {
			return err
		}
		if err := b.Wait(ctx); err != nil {
			return err
		}
	}
}

// Backoff yields exponentially growing delays capped at Max. The zero value
// starts at 100ms and is uncapped.
type Backoff struct {
	Base time.Duration
	Max  time.Duration

	next time.Duration
}

// Next returns the delay to wait before the upcoming attempt.
func (b *Backoff) Next() time.Duration {
	if b.next <= 0 {
		b.next = b.Base
		if b.next <= 0 {
			b.next = 100 * time.Millisecond
		}
	}
	d := b.next
	b.next *= 2
	if b.Max > 0 && b.next > b.Max {
		b.next = b.Max
	}
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	return d
}

// Reset restarts the sequence from Base.
func (b *Backoff) Reset() {
	b.next = 0
}

// Wait sleeps for Next() or until ctx is done.
func (b *Backoff) Wait(ctx context.Context) error {
	return Sleep(ctx, b.Next())
}

// Sleep waits for d and returns ctx.Err() if ctx ends first.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

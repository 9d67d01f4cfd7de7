// Package ratelimit paces outbound inference calls with a token bucket.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Bucket is a token bucket shared by every call one client makes. Waiters
// reserve a token up front, so concurrent callers are served in arrival
// order instead of racing for each refill. A nil Bucket never limits.
type Bucket struct {
	mu     sync.Mutex
	rate   float64 // tokens per second
	burst  float64
	tokens float64 // negative while reservations are outstanding
	last   time.Time
	now    func() time.Time
}

// NewBucket returns a full bucket refilling at rate tokens per second and
// holding at most burst tokens. A non-positive rate returns nil.
func NewBucket(rate float64, burst int) *Bucket {
	if rate <= 0 {
		return nil
	}
	burst = max(burst, 1)
	return &Bucket{
		rate:   rate,
		burst:  float64(burst),
		tokens: float64(burst),
		now:    time.Now,
	}
}

// Allow takes a token if one is available right now.
func (b *Bucket) Allow() bool {
	if b == nil {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Wait reserves a token and sleeps until it is due. If ctx ends first the
// reservation is returned to the bucket.
func (b *Bucket) Wait(ctx context.Context) error {
	if b == nil {
		return nil
	}
	delay := b.reserve()
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		b.cancel()
		return ctx.Err()
	}
}

// reserve takes a token, possibly driving the balance negative, and returns
// how long until that token exists.
func (b *Bucket) reserve() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	b.tokens--
	if b.tokens >= 0 {
		return 0
	}
	return time.Duration(-b.tokens / b.rate * float64(time.Second))
}

func (b *Bucket) cancel() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	b.tokens = min(b.tokens+1, b.burst)
}

// refill credits tokens for the time since the last update. Callers hold mu.
func (b *Bucket) refill() {
	now := b.now()
	if b.last.IsZero() {
		b.last = now
		return
	}
	if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
		b.tokens = min(b.tokens+elapsed*b.rate, b.burst)
		b.last = now
	}
}

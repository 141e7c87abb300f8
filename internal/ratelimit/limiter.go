// Package ratelimit provides per-provider token-bucket admission control.
// Tokens refill continuously from elapsed wall-clock time; callers that
// find the bucket empty queue in FIFO order and are woken by a single
// background timer armed only while the queue is non-empty.
package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"
)

const (
	// minGranularity is the smallest wait the scheduler is asked for;
	// degenerate windows clamp to it.
	minGranularity = 10 * time.Millisecond

	// unlimitedThreshold marks a bucket as effectively infinite. Such a
	// bucket refills to capacity on every pass without time-delta
	// arithmetic and never queues callers.
	unlimitedThreshold = math.MaxInt32
)

// waiter is a queued Acquire caller. granted is written under the limiter
// lock before ready is closed so a racing context cancellation can tell
// whether the token was already handed over.
type waiter struct {
	ready   chan struct{}
	granted bool
}

// Limiter is a token bucket. All state is guarded by mu; no operation
// sleeps while holding it.
type Limiter struct {
	mu         sync.Mutex
	max        float64
	window     time.Duration
	rate       float64 // tokens per second
	tokens     float64
	lastRefill time.Time
	waiters    []*waiter
	timer      *time.Timer
	timerGen   uint64
	unlimited  bool
}

// New creates a token bucket holding maxTokens per window. The bucket
// starts full. A non-positive window clamps to the minimum scheduler
// granularity.
func New(maxTokens int, window time.Duration) *Limiter {
	if window <= 0 {
		window = minGranularity
	}
	l := &Limiter{
		max:        float64(maxTokens),
		window:     window,
		tokens:     float64(maxTokens),
		lastRefill: time.Now(),
		unlimited:  maxTokens >= unlimitedThreshold,
	}
	if !l.unlimited {
		l.rate = float64(maxTokens) / window.Seconds()
	}
	return l
}

// Acquire blocks until a token is available, then consumes it. The only
// failure mode is context cancellation or expiry. Queued callers are
// served strictly in arrival order.
func (l *Limiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	l.refillLocked(time.Now())
	l.grantLocked()

	if len(l.waiters) == 0 && l.tokens >= 1 {
		l.tokens--
		l.mu.Unlock()
		return nil
	}

	w := &waiter{ready: make(chan struct{})}
	l.waiters = append(l.waiters, w)
	l.armTimerLocked()
	l.mu.Unlock()

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		if w.granted {
			// Token was handed over between cancellation and wake-up.
			l.mu.Unlock()
			return nil
		}
		l.removeWaiterLocked(w)
		l.armTimerLocked()
		l.mu.Unlock()
		return ctx.Err()
	}
}

// TryAcquire consumes a token and returns true if one is available right
// now. It never queues and never succeeds ahead of queued callers.
func (l *Limiter) TryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refillLocked(time.Now())
	l.grantLocked()

	if len(l.waiters) == 0 && l.tokens >= 1 {
		l.tokens--
		return true
	}
	return false
}

// AvailableTokens runs a refill pass and returns the whole tokens left.
func (l *Limiter) AvailableTokens() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refillLocked(time.Now())
	l.grantLocked()
	return int(l.tokens)
}

// EstimatedWait runs a refill pass and returns the seconds a new caller
// would wait for a token, accounting for everyone already queued.
func (l *Limiter) EstimatedWait() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refillLocked(time.Now())
	l.grantLocked()

	need := float64(len(l.waiters)) + 1 - l.tokens
	if need <= 0 || l.unlimited {
		return 0
	}
	if l.rate <= 0 {
		return l.window.Seconds()
	}
	return need / l.rate
}

// Reset refills the bucket to capacity and releases every queued caller
// immediately. Intended for administrative and test use.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.tokens = l.max
	l.lastRefill = time.Now()

	released := l.waiters
	l.waiters = nil
	for _, w := range released {
		if l.tokens >= 1 {
			l.tokens--
		}
		w.granted = true
		close(w.ready)
	}

	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.timerGen++
}

// QueueLength returns the number of callers currently queued.
func (l *Limiter) QueueLength() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.waiters)
}

// Max returns the bucket capacity.
func (l *Limiter) Max() int { return int(l.max) }

// Window returns the refill window.
func (l *Limiter) Window() time.Duration { return l.window }

// refillLocked adds tokens earned since the last refill, clamped to
// capacity. A clock that moved backwards is a no-op rather than a drain.
func (l *Limiter) refillLocked(now time.Time) {
	if l.unlimited {
		l.tokens = l.max
		return
	}

	elapsed := now.Sub(l.lastRefill)
	if elapsed <= 0 {
		return
	}

	l.tokens += elapsed.Seconds() * l.rate
	if l.tokens > l.max {
		l.tokens = l.max
	}
	l.lastRefill = now
}

// grantLocked hands tokens to queued callers in arrival order.
func (l *Limiter) grantLocked() {
	for len(l.waiters) > 0 && l.tokens >= 1 {
		w := l.waiters[0]
		l.waiters = l.waiters[1:]
		l.tokens--
		w.granted = true
		close(w.ready)
	}
}

// armTimerLocked keeps exactly one wake-up timer pending while callers
// are queued, aimed at the moment the next token is earned. The timer is
// disarmed once the queue drains.
func (l *Limiter) armTimerLocked() {
	if len(l.waiters) == 0 {
		if l.timer != nil {
			l.timer.Stop()
			l.timer = nil
		}
		return
	}

	var wait time.Duration
	if l.rate > 0 {
		wait = time.Duration((1 - l.tokens) / l.rate * float64(time.Second))
	} else {
		wait = l.window
	}
	if wait < minGranularity {
		wait = minGranularity
	}

	if l.timer != nil {
		l.timer.Stop()
	}
	l.timerGen++
	gen := l.timerGen
	l.timer = time.AfterFunc(wait, func() { l.tick(gen) })
}

// tick is the timer callback: refill, serve the queue, re-arm if anyone
// is still waiting. The generation check discards a fired timer that was
// replaced while it waited on the lock, so it cannot clear or re-arm over
// its successor.
func (l *Limiter) tick(gen uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if gen != l.timerGen {
		return
	}

	l.timer = nil
	l.refillLocked(time.Now())
	l.grantLocked()
	l.armTimerLocked()
}

// removeWaiterLocked drops an abandoned waiter from the queue.
func (l *Limiter) removeWaiterLocked(target *waiter) {
	for i, w := range l.waiters {
		if w == target {
			l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
			return
		}
	}
}

package ratelimit_test

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/kiln/internal/ratelimit"
)

func TestLimiter_TokenBucketScenario(t *testing.T) {
	limiter := ratelimit.New(2, 1*time.Second)

	require.True(t, limiter.TryAcquire())
	require.True(t, limiter.TryAcquire())
	require.False(t, limiter.TryAcquire(), "third acquire must fail on an empty bucket")

	time.Sleep(600 * time.Millisecond)
	require.GreaterOrEqual(t, limiter.AvailableTokens(), 1)
}

func TestLimiter_BoundInvariant(t *testing.T) {
	const max = 5
	limiter := ratelimit.New(max, 50*time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				limiter.TryAcquire()
				available := limiter.AvailableTokens()
				if available < 0 || available > max {
					t.Errorf("available tokens %d outside [0, %d]", available, max)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestLimiter_AcquireBlocksUntilRefill(t *testing.T) {
	limiter := ratelimit.New(1, 100*time.Millisecond)
	require.True(t, limiter.TryAcquire())

	start := time.Now()
	err := limiter.Acquire(context.Background())

	require.NoError(t, err)
	require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond,
		"acquire should have waited for a refill")
}

func TestLimiter_FIFOFairness(t *testing.T) {
	limiter := ratelimit.New(1, 300*time.Millisecond)
	require.True(t, limiter.TryAcquire())

	order := make(chan string, 2)

	go func() {
		_ = limiter.Acquire(context.Background())
		order <- "first"
	}()
	waitForQueue(t, limiter, 1)

	go func() {
		_ = limiter.Acquire(context.Background())
		order <- "second"
	}()
	waitForQueue(t, limiter, 2)

	require.Equal(t, "first", receiveWithin(t, order, 2*time.Second))
	require.Equal(t, "second", receiveWithin(t, order, 2*time.Second))
}

func TestLimiter_AcquireHonorsContextCancellation(t *testing.T) {
	limiter := ratelimit.New(1, time.Hour)
	require.True(t, limiter.TryAcquire())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := limiter.Acquire(ctx)

	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 0, limiter.QueueLength(), "abandoned waiter must leave the queue")
}

func TestLimiter_RearmAfterWaiterAbandons(t *testing.T) {
	// Replace the refill timer repeatedly around its firing moment: a
	// cancelled waiter re-arms the timer, and a fresh waiter queued right
	// after must still be woken by the replacement.
	limiter := ratelimit.New(1, 100*time.Millisecond)
	require.True(t, limiter.TryAcquire())

	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		_ = limiter.Acquire(ctx)
		cancel()
	}

	// A token may have refilled mid-loop; drain so the next caller queues.
	for limiter.TryAcquire() {
	}

	done := make(chan struct{})
	go func() {
		_ = limiter.Acquire(context.Background())
		close(done)
	}()
	waitForQueue(t, limiter, 1)

	receiveWithin(t, done, 2*time.Second)
	require.Equal(t, 0, limiter.QueueLength())
}

func TestLimiter_ResetReleasesAllWaiters(t *testing.T) {
	limiter := ratelimit.New(1, time.Hour)
	require.True(t, limiter.TryAcquire())

	done := make(chan struct{}, 3)
	for i := 0; i < 3; i++ {
		go func() {
			_ = limiter.Acquire(context.Background())
			done <- struct{}{}
		}()
	}
	waitForQueue(t, limiter, 3)

	limiter.Reset()

	for i := 0; i < 3; i++ {
		receiveWithin(t, done, 2*time.Second)
	}
}

func TestLimiter_Unlimited(t *testing.T) {
	limiter := ratelimit.New(math.MaxInt32, time.Second)

	for i := 0; i < 1000; i++ {
		require.True(t, limiter.TryAcquire())
	}
	require.NoError(t, limiter.Acquire(context.Background()))
	require.Zero(t, limiter.EstimatedWait())
	require.Equal(t, 0, limiter.QueueLength(), "unlimited bucket must never queue")
}

func TestLimiter_DegenerateWindowClamps(t *testing.T) {
	limiter := ratelimit.New(1, 0)

	require.True(t, limiter.TryAcquire())

	// The clamped window refills almost immediately.
	require.NoError(t, limiter.Acquire(context.Background()))
}

func TestLimiter_EstimatedWait(t *testing.T) {
	limiter := ratelimit.New(2, time.Second)

	require.Zero(t, limiter.EstimatedWait(), "full bucket needs no wait")

	require.True(t, limiter.TryAcquire())
	require.True(t, limiter.TryAcquire())

	wait := limiter.EstimatedWait()
	require.Greater(t, wait, 0.0)
	require.LessOrEqual(t, wait, 1.0)
}

func waitForQueue(t *testing.T, limiter *ratelimit.Limiter, depth int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if limiter.QueueLength() >= depth {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("queue never reached depth %d", depth)
}

func receiveWithin[T any](t *testing.T, ch <-chan T, timeout time.Duration) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(timeout):
		t.Fatal("timed out waiting for channel")
		panic("unreachable")
	}
}

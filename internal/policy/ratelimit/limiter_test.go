package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiterDisabledIsImmediate(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	require.False(t, l.Enabled())
	for i := 0; i < 100; i++ {
		release, err := l.Acquire(context.Background(), "https://example.com/a")
		require.NoError(t, err)
		release()
	}
	require.Zero(t, l.Hosts())
}

func TestLimiterRate(t *testing.T) {
	t.Parallel()

	// 10 requests per second = 100ms interval, burst 1.
	l := New(Config{PerHostRPS: 10, PerHostBurst: 1})
	ctx := context.Background()

	release, err := l.Acquire(ctx, "https://test.com/1")
	require.NoError(t, err)
	release()

	start := time.Now()
	release, err = l.Acquire(ctx, "https://test.com/2")
	require.NoError(t, err)
	release()
	require.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)

	// A different host has its own bucket.
	start = time.Now()
	release, err = l.Acquire(ctx, "https://other.com/")
	require.NoError(t, err)
	release()
	require.Less(t, time.Since(start), 50*time.Millisecond)
	require.Equal(t, 2, l.Hosts())
}

func TestLimiterPerHostConcurrency(t *testing.T) {
	t.Parallel()

	l := New(Config{PerHostMax: 2})
	var (
		inFlight atomic.Int32
		peak     atomic.Int32
		wg       sync.WaitGroup
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(context.Background(), "https://busy.example/page")
			if err != nil {
				t.Error(err)
				return
			}
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			inFlight.Add(-1)
			release()
		}()
	}
	wg.Wait()
	require.LessOrEqual(t, peak.Load(), int32(2))
}

func TestLimiterAcquireHonoursContext(t *testing.T) {
	t.Parallel()

	l := New(Config{PerHostMax: 1})
	release, err := l.Acquire(context.Background(), "https://slow.example/")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "https://slow.example/other")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

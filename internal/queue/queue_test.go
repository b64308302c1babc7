package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitRunsUnit(t *testing.T) {
	q := New(2, nil)

	var ran atomic.Bool
	results := make(chan error, 1)
	ok := q.Submit(context.Background(), "t1", func(ctx context.Context) error {
		ran.Store(true)
		return nil
	}, func(id string, err error) {
		results <- err
	})

	require.True(t, ok)
	require.NoError(t, <-results)
	assert.True(t, ran.Load())
	q.Wait()
	assert.Zero(t, q.InFlight())
}

func TestConcurrencyBound(t *testing.T) {
	q := New(2, nil)

	var running, peak atomic.Int32
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(4)

	for _, id := range []string{"a", "b", "c", "d"} {
		q.Submit(context.Background(), id, func(ctx context.Context) error {
			cur := running.Add(1)
			for {
				old := peak.Load()
				if cur <= old || peak.CompareAndSwap(old, cur) {
					break
				}
			}
			<-release
			running.Add(-1)
			return nil
		}, func(string, error) { wg.Done() })
	}

	// Give the first two units time to occupy both slots.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(2), running.Load())
	close(release)
	wg.Wait()
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestDuplicateSubmitRejected(t *testing.T) {
	q := New(1, nil)
	block := make(chan struct{})

	ok := q.Submit(context.Background(), "t1", func(ctx context.Context) error {
		<-block
		return nil
	}, nil)
	require.True(t, ok)
	assert.False(t, q.Submit(context.Background(), "t1", func(ctx context.Context) error {
		return nil
	}, nil))

	close(block)
	q.Wait()
}

func TestCancelWithPauseCause(t *testing.T) {
	q := New(1, nil)
	results := make(chan error, 1)

	q.Submit(context.Background(), "t1", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, func(id string, err error) {
		results <- err
	})

	require.Eventually(t, func() bool {
		return q.Cancel("t1", ErrPauseAbort)
	}, time.Second, 5*time.Millisecond)

	err := <-results
	assert.ErrorIs(t, err, ErrPauseAbort)
	assert.NotErrorIs(t, err, ErrStopAbort)
}

func TestCancelAllWithStopCause(t *testing.T) {
	q := New(4, nil)
	results := make(chan error, 3)

	for _, id := range []string{"a", "b", "c"} {
		q.Submit(context.Background(), id, func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}, func(id string, err error) {
			results <- err
		})
	}

	require.Eventually(t, func() bool { return q.InFlight() == 3 }, time.Second, 5*time.Millisecond)
	q.CancelAll(ErrStopAbort)

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, <-results, ErrStopAbort)
	}
	q.Wait()
}

func TestCancelWhileWaitingForSlot(t *testing.T) {
	q := New(1, nil)
	block := make(chan struct{})
	results := make(chan error, 1)

	q.Submit(context.Background(), "holder", func(ctx context.Context) error {
		<-block
		return nil
	}, nil)

	var started atomic.Bool
	q.Submit(context.Background(), "queued", func(ctx context.Context) error {
		started.Store(true)
		return nil
	}, func(id string, err error) {
		results <- err
	})

	require.Eventually(t, func() bool {
		return q.Cancel("queued", ErrStopAbort)
	}, time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, <-results, ErrStopAbort)
	assert.False(t, started.Load(), "cancelled unit must not start")
	close(block)
	q.Wait()
}

func TestUnitFailureIsIsolated(t *testing.T) {
	q := New(2, nil)
	boom := errors.New("boom")
	results := make(chan error, 2)

	q.Submit(context.Background(), "bad", func(ctx context.Context) error {
		return boom
	}, func(id string, err error) { results <- err })
	q.Submit(context.Background(), "good", func(ctx context.Context) error {
		return nil
	}, func(id string, err error) { results <- err })

	var errs []error
	errs = append(errs, <-results, <-results)
	assert.Contains(t, errs, boom)
	assert.Contains(t, errs, nil)
	q.Wait()
}

func TestCancelUnknownID(t *testing.T) {
	q := New(1, nil)
	assert.False(t, q.Cancel("ghost", ErrStopAbort))
}

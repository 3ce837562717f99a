package sender

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("telegram: bad gateway (502)")

func waitDone(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("job did not finish")
		return nil
	}
}

func TestDispatcherRetriesTransientErrors(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 2, RetryBackoff: time.Millisecond})
	defer d.Close()

	var calls atomic.Int32
	done := make(chan error, 1)
	require.NoError(t, d.Enqueue(context.Background(), Job{
		Action: "notify.operator",
		Run: func(context.Context) error {
			if calls.Add(1) < 3 {
				return errTransient
			}
			return nil
		},
		OnDone: func(err error) { done <- err },
	}))

	require.NoError(t, waitDone(t, done))
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, uint64(1), d.Sent())
	assert.Zero(t, d.ErrorCount())
}

func TestDispatcherStopsOnPermanentError(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 5, RetryBackoff: time.Millisecond})
	defer d.Close()

	permanent := errors.New("telegram: chat not found (400)")
	var calls atomic.Int32
	done := make(chan error, 1)
	require.NoError(t, d.Enqueue(context.Background(), Job{
		Action: "notify.operator",
		Run: func(context.Context) error {
			calls.Add(1)
			return permanent
		},
		OnDone: func(err error) { done <- err },
	}))

	assert.ErrorIs(t, waitDone(t, done), permanent)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, uint64(1), d.ErrorCount())
}

func TestDispatcherJobOutlivesCallerContext(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1})
	defer d.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	require.NoError(t, d.Enqueue(ctx, Job{
		Action: "notify.operator",
		Run:    func(ctx context.Context) error { return ctx.Err() },
		OnDone: func(err error) { done <- err },
	}))
	cancel()
	assert.NoError(t, waitDone(t, done))
}

func TestDispatcherRejectsAfterClose(t *testing.T) {
	d := NewDispatcher(Options{})
	d.Close()
	err := d.Enqueue(context.Background(), Job{Action: "x", Run: func(context.Context) error { return nil }})
	assert.ErrorIs(t, err, ErrQueueClosed)
	assert.Error(t, d.Enqueue(context.Background(), Job{Action: "x"}))
}

func TestDispatcherQueueFull(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, QueueSize: 1})
	release := make(chan struct{})
	started := make(chan struct{})
	block := Job{Action: "block", Run: func(context.Context) error {
		close(started)
		<-release
		return nil
	}}
	require.NoError(t, d.Enqueue(context.Background(), block))
	<-started
	noop := Job{Action: "noop", Run: func(context.Context) error { return nil }}
	require.NoError(t, d.Enqueue(context.Background(), noop))
	assert.ErrorIs(t, d.Enqueue(context.Background(), noop), ErrQueueFull)
	close(release)
	d.Close()
	assert.Equal(t, uint64(2), d.Sent())
}

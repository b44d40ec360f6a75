package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopDrainsQueueWithoutWaiting(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var calls int32

	queue := int32(5)

	err := Loop(ctx, Config{
		Name:         "test",
		PollInterval: time.Hour,
		Process: func(context.Context) (bool, error) {
			atomic.AddInt32(&calls, 1)

			if atomic.AddInt32(&queue, -1) < 0 {
				cancel()

				return false, nil
			}

			return true, nil
		},
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(6), atomic.LoadInt32(&calls), "five items and one empty poll")
}

func TestLoopStopsOnFatalError(t *testing.T) {
	fatal := errors.New("database gone")

	var stopped bool

	err := Loop(context.Background(), Config{
		Name:    "test",
		Process: func(context.Context) (bool, error) { return false, fatal },
		OnError: func(error) bool { return false },
		OnStop:  func() { stopped = true },
	})

	assert.ErrorIs(t, err, fatal)
	assert.True(t, stopped)
}

func TestLoopContinuesAfterErrorAndPanic(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var (
		calls int32
		seen  []error
	)

	err := Loop(ctx, Config{
		Name:         "test",
		PollInterval: time.Millisecond,
		Process: func(context.Context) (bool, error) {
			switch atomic.AddInt32(&calls, 1) {
			case 1:
				panic("boom")
			case 2:
				return false, assert.AnError
			default:
				cancel()

				return false, nil
			}
		},
		OnError: func(err error) bool {
			seen = append(seen, err)

			return true
		},
	})

	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, seen, 2)
	assert.Contains(t, seen[0].Error(), "panic: boom")
	assert.ErrorIs(t, seen[1], assert.AnError)
}

func TestWait(t *testing.T) {
	assert.NoError(t, Wait(context.Background(), 0))
	assert.NoError(t, Wait(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, Wait(ctx, time.Hour), context.Canceled)
}

func TestRecoverPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		defer RecoverPanic(nil, "test")

		panic("boom")
	})
}

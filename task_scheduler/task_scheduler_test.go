package task_scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meysamhadeli/unitcache/utils"
)

func TestGo_ReturnsValue(t *testing.T) {
	s := New(nil, utils.QuietLogger())
	f := Go(s, context.Background(), CategoryDefault, func(ctx context.Context) (int, error) {
		return 42, nil
	})

	v, err := f.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	v, err, ok := f.Peek()
	assert.True(t, ok)
	assert.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestGo_RespectsCategoryLimit(t *testing.T) {
	s := New(map[Category]int{CategoryCompiler: 2}, utils.QuietLogger())

	var running, peak atomic.Int32
	futures := make([]*Future[struct{}], 0, 10)
	for i := 0; i < 10; i++ {
		futures = append(futures, Go(s, context.Background(), CategoryCompiler, func(ctx context.Context) (struct{}, error) {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
			return struct{}{}, nil
		}))
	}
	for _, f := range futures {
		_, err := f.Await(context.Background())
		require.NoError(t, err)
	}
	s.Wait()
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.GreaterOrEqual(t, peak.Load(), int32(1))
}

func TestGo_CancelledWhileQueued(t *testing.T) {
	s := New(map[Category]int{CategoryIO: 1}, utils.QuietLogger())

	release := make(chan struct{})
	blocker := Go(s, context.Background(), CategoryIO, func(ctx context.Context) (int, error) {
		<-release
		return 1, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	var ran atomic.Bool
	queued := Go(s, ctx, CategoryIO, func(ctx context.Context) (int, error) {
		ran.Store(true)
		return 2, nil
	})
	cancel()

	_, err := queued.Await(context.Background())
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	v, err := blocker.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	s.Wait()
	assert.False(t, ran.Load())
}

func TestGo_RecoversPanics(t *testing.T) {
	s := New(nil, utils.QuietLogger())
	f := Go(s, context.Background(), CategoryDefault, func(ctx context.Context) (string, error) {
		panic("boom")
	})
	_, err := f.Await(context.Background())
	assert.ErrorIs(t, err, ErrTaskPanicked)
}

func TestFuture_Then(t *testing.T) {
	s := New(nil, utils.QuietLogger())
	want := errors.New("nope")
	f := Go(s, context.Background(), CategoryDefault, func(ctx context.Context) (int, error) {
		return 0, want
	})

	var wg sync.WaitGroup
	wg.Add(1)
	var got error
	f.Then(func(_ int, err error) {
		got = err
		wg.Done()
	})
	wg.Wait()
	assert.ErrorIs(t, got, want)
}

func TestFuture_AwaitHonoursContext(t *testing.T) {
	s := New(nil, utils.QuietLogger())
	release := make(chan struct{})
	f := Go(s, context.Background(), CategoryDefault, func(ctx context.Context) (int, error) {
		<-release
		return 0, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := f.Await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	s.Wait()
}

func TestResolved(t *testing.T) {
	v, err := Resolved("done", nil).Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "done", v)
}

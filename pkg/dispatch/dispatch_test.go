package dispatch

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

func testPool(t testing.TB, size int) *Pool {
	p, err := NewPool(size)
	require.NoError(t, err)
	t.Cleanup(p.Release)
	return p
}

func TestDo(t *testing.T) {
	p := testPool(t, 2)

	v, err := Do(context.Background(), p, func() (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	boom := errors.New("boom")
	_, err = Do(context.Background(), p, func() (string, error) { return "", boom })
	assert.ErrorIs(t, err, boom)

	err = Run(context.Background(), p, func() error { panic("oops") })
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPanic)
}

func TestDoConcurrent(t *testing.T) {
	p := testPool(t, 4)

	var (
		wg    sync.WaitGroup
		count int64
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, Run(context.Background(), p, func() error {
				atomic.AddInt64(&count, 1)
				return nil
			}))
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 50, atomic.LoadInt64(&count))
}

func TestDoCancelled(t *testing.T) {
	p := testPool(t, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Do(ctx, p, func() (int, error) { return 1, nil })
	assert.ErrorIs(t, err, context.Canceled)

	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	release := make(chan struct{})
	defer close(release)
	_, err = Do(ctx, p, func() (int, error) {
		<-release
		return 1, nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

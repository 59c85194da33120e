package dispatch

import (
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fxnlabs/gpu-bridge/internal/cublas"
)

func newTestPool(t *testing.T) *HandlePool {
	t.Helper()
	pool := NewHandlePool(cublas.NewHostLibrary(slog.Default()))
	t.Cleanup(func() { pool.Close() })
	return pool
}

func TestPoolReusesIdleHandle(t *testing.T) {
	pool := newTestPool(t)
	stream := cublas.Stream(1)

	lease, err := pool.Borrow(stream)
	require.NoError(t, err)
	first := lease.Handle()
	lease.Release()

	lease, err = pool.Borrow(stream)
	require.NoError(t, err)
	assert.Equal(t, first, lease.Handle())
	lease.Release()

	assert.Equal(t, 1, pool.Created())
	assert.Equal(t, 1, pool.IdleCount(stream))
}

func TestPoolCreatesPerStream(t *testing.T) {
	pool := newTestPool(t)

	a, err := pool.Borrow(cublas.Stream(1))
	require.NoError(t, err)
	b, err := pool.Borrow(cublas.Stream(2))
	require.NoError(t, err)
	assert.NotEqual(t, a.Handle(), b.Handle())
	a.Release()
	b.Release()

	assert.Equal(t, 1, pool.IdleCount(cublas.Stream(1)))
	assert.Equal(t, 1, pool.IdleCount(cublas.Stream(2)))
}

func TestPoolReleaseIsIdempotent(t *testing.T) {
	pool := newTestPool(t)

	lease, err := pool.Borrow(0)
	require.NoError(t, err)
	lease.Release()
	lease.Release()
	assert.Equal(t, 1, pool.IdleCount(0))
}

func TestPoolConcurrentBorrowExclusivity(t *testing.T) {
	pool := newTestPool(t)
	stream := cublas.Stream(7)

	const goroutines = 8
	const iterations = 50

	var mu sync.Mutex
	inFlight := make(map[cublas.Handle]bool)
	peak := 0
	live := 0

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				lease, err := pool.Borrow(stream)
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				// Two concurrent borrows must never hold the same handle.
				if !assert.False(t, inFlight[lease.Handle()], "handle handed out twice") {
					mu.Unlock()
					lease.Release()
					return
				}
				inFlight[lease.Handle()] = true
				live++
				if live > peak {
					peak = live
				}
				mu.Unlock()

				mu.Lock()
				delete(inFlight, lease.Handle())
				live--
				mu.Unlock()
				lease.Release()
			}
		}()
	}
	wg.Wait()

	// Every handle ever created is back on the idle list, and the pool never
	// created more handles than were concurrently in flight.
	assert.Equal(t, pool.Created(), pool.IdleCount(stream))
	assert.LessOrEqual(t, pool.Created(), goroutines)
	assert.LessOrEqual(t, peak, pool.Created())
}

func TestPoolSequentialBorrowsCreateOnce(t *testing.T) {
	pool := newTestPool(t)
	stream := cublas.Stream(3)

	for i := 0; i < 10; i++ {
		lease, err := pool.Borrow(stream)
		require.NoError(t, err)
		lease.Release()
	}
	assert.Equal(t, 1, pool.Created())
	assert.Equal(t, 1, pool.IdleCount(stream))
}

func TestPoolWarm(t *testing.T) {
	pool := newTestPool(t)

	require.NoError(t, pool.Warm(0, 3))
	assert.Equal(t, 3, pool.Created())
	assert.Equal(t, 3, pool.IdleCount(0))
}

type failingLibrary struct {
	*cublas.HostLibrary
}

func (f *failingLibrary) CreateHandle() (cublas.Handle, error) {
	return 0, errors.New("CUBLAS_STATUS_ALLOC_FAILED")
}

func TestPoolCreationFailurePropagates(t *testing.T) {
	lib := &failingLibrary{cublas.NewHostLibrary(slog.Default())}
	pool := NewHandlePool(lib)
	defer pool.Close()

	_, err := pool.Borrow(0)
	assert.ErrorIs(t, err, ErrResourceCreation)
	assert.Equal(t, 0, pool.Created())
}

func TestPoolClose(t *testing.T) {
	pool := NewHandlePool(cublas.NewHostLibrary(slog.Default()))

	lease, err := pool.Borrow(cublas.Stream(1))
	require.NoError(t, err)
	lease.Release()

	require.NoError(t, pool.Close())
	assert.Equal(t, 0, pool.IdleCount(cublas.Stream(1)))
	// Closing twice is fine.
	require.NoError(t, pool.Close())
}

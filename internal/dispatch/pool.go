package dispatch

// HandlePool amortizes cuBLAS handle creation across dispatches. Handles are
// keyed by the stream they were last bound to and reused stack-wise; creation
// is lazy and creation failures propagate without retry.
//
// The pool is owned by the runtime assembly and injected into dispatchers;
// its lifetime is the runtime's, not the process's ambient globals.

import (
	"fmt"
	"sync"

	"github.com/fxnlabs/gpu-bridge/internal/cublas"
	"github.com/fxnlabs/gpu-bridge/internal/metrics"
)

type HandlePool struct {
	lib cublas.Library

	mu      sync.Mutex
	idle    map[cublas.Stream][]cublas.Handle
	created int
	closed  bool
}

func NewHandlePool(lib cublas.Library) *HandlePool {
	return &HandlePool{
		lib:  lib,
		idle: make(map[cublas.Stream][]cublas.Handle),
	}
}

// Lease is a scoped borrow of one handle. Exactly one live Lease exists per
// checked-out handle; Release must be called on every path, success or not.
type Lease struct {
	pool     *HandlePool
	handle   cublas.Handle
	stream   cublas.Stream
	released bool
}

func (l *Lease) Handle() cublas.Handle { return l.handle }

// Release returns the handle to the pool unconditionally. A handle is
// stateless enough to be reused after a failed kernel call.
func (l *Lease) Release() {
	if l.released {
		return
	}
	l.released = true
	l.pool.put(l.stream, l.handle)
}

// Borrow pops an idle handle for the stream or creates a new one. When the
// stream is non-zero the handle is rebound to it before hand-out: the library
// associates submission ordering with the handle's stream binding, and a
// handle reused across streams without rebinding submits out of order.
func (p *HandlePool) Borrow(stream cublas.Stream) (*Lease, error) {
	p.mu.Lock()
	var handle cublas.Handle
	if stack := p.idle[stream]; len(stack) > 0 {
		handle = stack[len(stack)-1]
		p.idle[stream] = stack[:len(stack)-1]
		metrics.PoolIdleHandles.Dec()
		metrics.PoolBorrows.WithLabelValues("hit").Inc()
	} else {
		h, err := p.lib.CreateHandle()
		if err != nil {
			p.mu.Unlock()
			metrics.PoolBorrows.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("%w: %v", ErrResourceCreation, err)
		}
		handle = h
		p.created++
		metrics.PoolHandlesCreated.Inc()
		metrics.PoolBorrows.WithLabelValues("miss").Inc()
	}
	p.mu.Unlock()

	if stream != 0 {
		if err := p.lib.SetStream(handle, stream); err != nil {
			p.put(stream, handle)
			return nil, fmt.Errorf("%w: binding stream: %v", ErrResourceCreation, err)
		}
	}
	return &Lease{pool: p, handle: handle, stream: stream}, nil
}

func (p *HandlePool) put(stream cublas.Stream, handle cublas.Handle) {
	p.mu.Lock()
	p.idle[stream] = append(p.idle[stream], handle)
	p.mu.Unlock()
	metrics.PoolIdleHandles.Inc()
}

// Warm pre-creates count handles bound to the stream so the first dispatches
// skip creation cost.
func (p *HandlePool) Warm(stream cublas.Stream, count int) error {
	leases := make([]*Lease, 0, count)
	for i := 0; i < count; i++ {
		lease, err := p.Borrow(stream)
		if err != nil {
			for _, l := range leases {
				l.Release()
			}
			return err
		}
		leases = append(leases, lease)
	}
	for _, l := range leases {
		l.Release()
	}
	return nil
}

// IdleCount reports the number of idle handles held for the stream.
func (p *HandlePool) IdleCount(stream cublas.Stream) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle[stream])
}

// Created reports the number of handles ever created by this pool.
func (p *HandlePool) Created() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.created
}

// Close destroys all idle handles. Borrowed handles still in flight are the
// borrowers' problem; Close is called at runtime shutdown after dispatchers
// have quiesced.
func (p *HandlePool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	var firstErr error
	for stream, stack := range p.idle {
		for _, h := range stack {
			if err := p.lib.DestroyHandle(h); err != nil && firstErr == nil {
				firstErr = err
			}
			metrics.PoolIdleHandles.Dec()
		}
		delete(p.idle, stream)
	}
	return firstErr
}

package dispatch

import (
	"go.uber.org/zap"

	"github.com/fxnlabs/gpu-bridge/internal/cublas"
)

// Operation names the host runtime uses to look up entry points.
const (
	OpTrsmBatched  = "batched-triangular-solve"
	OpGetrfBatched = "batched-lu-factorization"
)

// DispatchFunc is the uniform entry point signature: a stream, a positional
// array of device buffers, the opaque descriptor built at compile time, and
// the status out-parameter. Buffer positions are a fixed contract with the
// descriptor builder and operation-specific.
type DispatchFunc func(stream cublas.Stream, buffers []cublas.DevicePtr, opaque []byte, status *Status)

// Dispatcher owns the pieces a dispatch needs: the numeric library, the
// handle pool, and a logger. It introduces no threading of its own; calls
// run on whatever thread the caller's executor uses.
type Dispatcher struct {
	lib  cublas.Library
	pool *HandlePool
	log  *zap.Logger
}

func NewDispatcher(lib cublas.Library, pool *HandlePool, log *zap.Logger) *Dispatcher {
	return &Dispatcher{lib: lib, pool: pool, log: log.Named("dispatch")}
}

// Registrations returns the operation-name → entry-point table the host
// runtime consults at call-site linking time.
func (d *Dispatcher) Registrations() map[string]DispatchFunc {
	return map[string]DispatchFunc{
		OpTrsmBatched:  d.TrsmBatched,
		OpGetrfBatched: d.GetrfBatched,
	}
}

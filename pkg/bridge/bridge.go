// Package bridge is the embeddable surface of the dispatch runtime. A host
// program builds one Runtime, registers the dispatch table with its custom-call
// machinery and hands descriptors built here across the boundary.
package bridge

import (
	"log/slog"

	"go.uber.org/zap"

	"github.com/fxnlabs/gpu-bridge/internal/cublas"
	"github.com/fxnlabs/gpu-bridge/internal/dispatch"
)

// Aliases for the boundary types so embedders never import internal packages.
type (
	Stream       = cublas.Stream
	DevicePtr    = cublas.DevicePtr
	Library      = cublas.Library
	CopyKind     = cublas.CopyKind
	Status       = dispatch.Status
	DispatchFunc = dispatch.DispatchFunc
)

// Transfer directions for Library.MemcpyAsync.
const (
	CopyHostToDevice   = cublas.CopyHostToDevice
	CopyDeviceToHost   = cublas.CopyDeviceToHost
	CopyDeviceToDevice = cublas.CopyDeviceToDevice
)

// Registered operation names.
const (
	OpTrsmBatched  = dispatch.OpTrsmBatched
	OpGetrfBatched = dispatch.OpGetrfBatched
)

// BuildTrsmBatchedDescriptor returns the scratch size in bytes and the opaque
// descriptor for a batched triangular solve.
func BuildTrsmBatchedDescriptor(elemTag string, batch, m, n int, leftSide, lower, transA, conjA, unitDiag bool) (int, []byte, error) {
	return dispatch.BuildTrsmBatchedDescriptor(elemTag, batch, m, n, leftSide, lower, transA, conjA, unitDiag)
}

// BuildGetrfBatchedDescriptor returns the scratch size in bytes and the opaque
// descriptor for a batched LU factorization.
func BuildGetrfBatchedDescriptor(elemTag string, batch, n int) (int, []byte, error) {
	return dispatch.BuildGetrfBatchedDescriptor(elemTag, batch, n)
}

// Options configures a Runtime.
type Options struct {
	// CublasLibrary and CudartLibrary override the shared library sonames.
	CublasLibrary string
	CudartLibrary string
	// Logger receives dispatch logs. Nil means a no-op logger.
	Logger *zap.Logger
}

// Runtime owns the numeric backend, the handle pool and the dispatcher.
type Runtime struct {
	lib  cublas.Library
	pool *dispatch.HandlePool
	d    *dispatch.Dispatcher
}

// New detects the numeric backend and assembles a runtime around it.
func New(opts Options) *Runtime {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	lib := cublas.Detect(cublas.Options{
		CublasLibrary: opts.CublasLibrary,
		CudartLibrary: opts.CudartLibrary,
	}, slog.Default())
	pool := dispatch.NewHandlePool(lib)
	return &Runtime{
		lib:  lib,
		pool: pool,
		d:    dispatch.NewDispatcher(lib, pool, log),
	}
}

// Library exposes the detected backend for buffer management.
func (r *Runtime) Library() Library { return r.lib }

// Backend names the selected backend ("cuda" or "host").
func (r *Runtime) Backend() string { return r.lib.Name() }

// Registrations returns the dispatch table keyed by operation name.
func (r *Runtime) Registrations() map[string]DispatchFunc {
	return r.d.Registrations()
}

// Warm pre-creates handles for a stream so first dispatches skip creation.
func (r *Runtime) Warm(stream Stream, count int) error {
	return r.pool.Warm(stream, count)
}

// Close destroys the pooled handles. The runtime is unusable afterwards.
func (r *Runtime) Close() error { return r.pool.Close() }

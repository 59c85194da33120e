package dispatch

// Batched cuBLAS kernels take pointer-to-pointer arguments: a device array
// of per-instance pointers. MakeBatchPointers derives that array from a
// contiguous device buffer and stages it to device memory.

import (
	"fmt"
	"unsafe"

	"github.com/fxnlabs/gpu-bridge/internal/cublas"
	"github.com/fxnlabs/gpu-bridge/internal/metrics"
)

// MakeBatchPointers computes ptr[i] = base + i*elemStride for each batch
// element into a host staging slice and enqueues an async copy of it into
// scratch on the stream. The returned slice must be kept alive and unmodified
// until the stream is synchronized; the copy reads it asynchronously.
func MakeBatchPointers(lib cublas.Library, stream cublas.Stream, base, scratch cublas.DevicePtr, batch, elemStride int) ([]cublas.DevicePtr, error) {
	if batch <= 0 {
		return nil, fmt.Errorf("%w: batch count %d", ErrBadBuffers, batch)
	}
	ptrs := make([]cublas.DevicePtr, batch)
	for i := range ptrs {
		ptrs[i] = base + cublas.DevicePtr(i*elemStride)
	}
	n := batch * devicePointerSize
	src := cublas.DevicePtr(uintptr(unsafe.Pointer(&ptrs[0])))
	if err := lib.MemcpyAsync(scratch, src, n, cublas.CopyHostToDevice, stream); err != nil {
		return nil, fmt.Errorf("%w: staging %d batch pointers: %v", ErrTransfer, batch, err)
	}
	metrics.StagedPointerBytes.Add(float64(n))
	return ptrs, nil
}

package dispatch

import (
	"fmt"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/fxnlabs/gpu-bridge/internal/cublas"
	"github.com/fxnlabs/gpu-bridge/internal/metrics"
)

// getrfBuffers is the typed view of the positional buffer array for the
// batched LU factorization.
type getrfBuffers struct {
	aIn     cublas.DevicePtr // [0] input matrices, batch × n × n
	aOut    cublas.DevicePtr // [1] factorized in place
	ipiv    cublas.DevicePtr // [2] pivot indices, batch × n int32
	info    cublas.DevicePtr // [3] per-batch-element status, batch int32
	scratch cublas.DevicePtr // [4] device pointer array for A
}

func getrfBuffersFrom(buffers []cublas.DevicePtr) (getrfBuffers, error) {
	if len(buffers) != 5 {
		return getrfBuffers{}, fmt.Errorf("%w: got %d buffers, want 5", ErrBadBuffers, len(buffers))
	}
	v := getrfBuffers{buffers[0], buffers[1], buffers[2], buffers[3], buffers[4]}
	if v.aIn == 0 || v.aOut == 0 || v.ipiv == 0 || v.info == 0 || v.scratch == 0 {
		return getrfBuffers{}, fmt.Errorf("%w: nil device buffer", ErrBadBuffers)
	}
	return v, nil
}

// GetrfBatched is the dispatch entry point for the batched LU factorization.
// A singular batch element is not a dispatch failure: the kernel records it
// in the info buffer for the caller to inspect, and status stays success.
func (d *Dispatcher) GetrfBatched(stream cublas.Stream, buffers []cublas.DevicePtr, opaque []byte, status *Status) {
	start := time.Now()
	if err := d.getrfBatched(stream, buffers, opaque); err != nil {
		status.SetFailure(err.Error())
		metrics.DispatchTotal.WithLabelValues(OpGetrfBatched, "failure").Inc()
		d.log.Error("batched LU factorization failed", zap.Error(err))
		return
	}
	metrics.DispatchTotal.WithLabelValues(OpGetrfBatched, "success").Inc()
	metrics.DispatchDuration.WithLabelValues(OpGetrfBatched).Observe(float64(time.Since(start).Microseconds()) / 1e3)
}

func (d *Dispatcher) getrfBatched(stream cublas.Stream, buffers []cublas.DevicePtr, opaque []byte) error {
	desc, err := UnpackGetrfBatchedDescriptor(opaque)
	if err != nil {
		return err
	}
	bufs, err := getrfBuffersFrom(buffers)
	if err != nil {
		return err
	}
	batch, n := int(desc.Batch), int(desc.N)
	elemSize := desc.ElemType.Size()

	lease, err := d.pool.Borrow(stream)
	if err != nil {
		return err
	}
	defer lease.Release()

	// Factorization is in place; move the input to the output buffer first
	// when they differ.
	if bufs.aOut != bufs.aIn {
		if err := d.lib.MemcpyAsync(bufs.aOut, bufs.aIn, elemSize*batch*n*n, cublas.CopyDeviceToDevice, stream); err != nil {
			return fmt.Errorf("%w: copying input into output: %v", ErrTransfer, err)
		}
	}

	aHost, err := MakeBatchPointers(d.lib, stream, bufs.aOut, bufs.scratch, batch, elemSize*n*n)
	if err != nil {
		return err
	}
	if err := d.lib.StreamSynchronize(stream); err != nil {
		return fmt.Errorf("%w: synchronizing stream: %v", ErrTransfer, err)
	}
	runtime.KeepAlive(aHost)

	metrics.DispatchBatchSize.Set(float64(batch))

	var kerr error
	switch desc.ElemType {
	case F32:
		kerr = d.lib.SgetrfBatched(lease.Handle(), n, bufs.scratch, n, bufs.ipiv, bufs.info, batch)
	case F64:
		kerr = d.lib.DgetrfBatched(lease.Handle(), n, bufs.scratch, n, bufs.ipiv, bufs.info, batch)
	case C64:
		kerr = d.lib.CgetrfBatched(lease.Handle(), n, bufs.scratch, n, bufs.ipiv, bufs.info, batch)
	case C128:
		kerr = d.lib.ZgetrfBatched(lease.Handle(), n, bufs.scratch, n, bufs.ipiv, bufs.info, batch)
	}
	if kerr != nil {
		return fmt.Errorf("%w: %v", ErrKernelInvocation, kerr)
	}
	return nil
}

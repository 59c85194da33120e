package dispatch

import (
	"fmt"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/fxnlabs/gpu-bridge/internal/cublas"
	"github.com/fxnlabs/gpu-bridge/internal/metrics"
)

// trsmBuffers is the typed view of the positional buffer array for the
// batched triangular solve. Validated once at the boundary.
type trsmBuffers struct {
	a        cublas.DevicePtr // [0] triangular operands, batch × lda × lda
	bIn      cublas.DevicePtr // [1] right-hand sides
	bOut     cublas.DevicePtr // [2] solutions, solved in place
	aScratch cublas.DevicePtr // [3] device pointer array for A
	bScratch cublas.DevicePtr // [4] device pointer array for B
}

func trsmBuffersFrom(buffers []cublas.DevicePtr) (trsmBuffers, error) {
	if len(buffers) != 5 {
		return trsmBuffers{}, fmt.Errorf("%w: got %d buffers, want 5", ErrBadBuffers, len(buffers))
	}
	v := trsmBuffers{buffers[0], buffers[1], buffers[2], buffers[3], buffers[4]}
	if v.a == 0 || v.bIn == 0 || v.bOut == 0 || v.aScratch == 0 || v.bScratch == 0 {
		return trsmBuffers{}, fmt.Errorf("%w: nil device buffer", ErrBadBuffers)
	}
	return v, nil
}

// TrsmBatched is the dispatch entry point for the batched triangular solve.
// Failures are reported through status; it never panics across the boundary.
func (d *Dispatcher) TrsmBatched(stream cublas.Stream, buffers []cublas.DevicePtr, opaque []byte, status *Status) {
	start := time.Now()
	if err := d.trsmBatched(stream, buffers, opaque); err != nil {
		status.SetFailure(err.Error())
		metrics.DispatchTotal.WithLabelValues(OpTrsmBatched, "failure").Inc()
		d.log.Error("batched triangular solve failed", zap.Error(err))
		return
	}
	metrics.DispatchTotal.WithLabelValues(OpTrsmBatched, "success").Inc()
	metrics.DispatchDuration.WithLabelValues(OpTrsmBatched).Observe(float64(time.Since(start).Microseconds()) / 1e3)
}

func (d *Dispatcher) trsmBatched(stream cublas.Stream, buffers []cublas.DevicePtr, opaque []byte) error {
	desc, err := UnpackTrsmBatchedDescriptor(opaque)
	if err != nil {
		return err
	}
	bufs, err := trsmBuffersFrom(buffers)
	if err != nil {
		return err
	}
	batch, m, n := int(desc.Batch), int(desc.M), int(desc.N)
	elemSize := desc.ElemType.Size()

	lease, err := d.pool.Borrow(stream)
	if err != nil {
		return err
	}
	defer lease.Release()

	// The kernel solves in place over the output buffer, so the right-hand
	// side must be there first.
	if bufs.bOut != bufs.bIn {
		if err := d.lib.MemcpyAsync(bufs.bOut, bufs.bIn, elemSize*batch*m*n, cublas.CopyDeviceToDevice, stream); err != nil {
			return fmt.Errorf("%w: copying rhs into output: %v", ErrTransfer, err)
		}
	}

	// Left side: A is m×m. Right side: A is n×n. B's leading dimension is
	// always the solve's row count.
	lda := m
	if desc.Side == cublas.SideRight {
		lda = n
	}
	ldb := m

	aHost, err := MakeBatchPointers(d.lib, stream, bufs.a, bufs.aScratch, batch, elemSize*lda*lda)
	if err != nil {
		return err
	}
	bHost, err := MakeBatchPointers(d.lib, stream, bufs.bOut, bufs.bScratch, batch, elemSize*m*n)
	if err != nil {
		return err
	}
	// Block until the staged pointer arrays are on-device. Trading this sync
	// away needs a way to tie the staging buffers' lifetime to the copies'
	// completion; until then the sync is the memory-safety point.
	if err := d.lib.StreamSynchronize(stream); err != nil {
		return fmt.Errorf("%w: synchronizing stream: %v", ErrTransfer, err)
	}
	runtime.KeepAlive(aHost)
	runtime.KeepAlive(bHost)

	metrics.DispatchBatchSize.Set(float64(batch))

	var kerr error
	switch desc.ElemType {
	case F32:
		kerr = d.lib.StrsmBatched(lease.Handle(), desc.Side, desc.Uplo, desc.Trans, desc.Diag, m, n, 1, bufs.aScratch, lda, bufs.bScratch, ldb, batch)
	case F64:
		kerr = d.lib.DtrsmBatched(lease.Handle(), desc.Side, desc.Uplo, desc.Trans, desc.Diag, m, n, 1, bufs.aScratch, lda, bufs.bScratch, ldb, batch)
	case C64:
		kerr = d.lib.CtrsmBatched(lease.Handle(), desc.Side, desc.Uplo, desc.Trans, desc.Diag, m, n, 1, bufs.aScratch, lda, bufs.bScratch, ldb, batch)
	case C128:
		kerr = d.lib.ZtrsmBatched(lease.Handle(), desc.Side, desc.Uplo, desc.Trans, desc.Diag, m, n, 1, bufs.aScratch, lda, bufs.bScratch, ldb, batch)
	}
	if kerr != nil {
		return fmt.Errorf("%w: %v", ErrKernelInvocation, kerr)
	}
	return nil
}

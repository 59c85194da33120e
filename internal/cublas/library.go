package cublas

import (
	"log/slog"
)

// Stream is a CUDA stream. The zero value is the default stream.
type Stream uintptr

// Handle is an opaque cuBLAS context handle.
type Handle uintptr

// DevicePtr is a raw device memory address. With the host library it addresses
// host memory instead; callers never dereference it directly either way.
type DevicePtr uintptr

// CopyKind selects the direction of a memory copy. Values match cudaMemcpyKind.
type CopyKind int32

const (
	CopyHostToDevice   CopyKind = 1
	CopyDeviceToHost   CopyKind = 2
	CopyDeviceToDevice CopyKind = 3
)

// SideMode matches cublasSideMode_t.
type SideMode int32

const (
	SideLeft  SideMode = 0
	SideRight SideMode = 1
)

// FillMode matches cublasFillMode_t.
type FillMode int32

const (
	FillLower FillMode = 0
	FillUpper FillMode = 1
)

// Operation matches cublasOperation_t.
type Operation int32

const (
	OpN Operation = 0
	OpT Operation = 1
	OpC Operation = 2
)

// DiagType matches cublasDiagType_t.
type DiagType int32

const (
	DiagNonUnit DiagType = 0
	DiagUnit    DiagType = 1
)

// Library is the batched linear-algebra surface the dispatch layer runs on.
//
// Implementation notes:
//   - All kernel and copy calls are enqueued on the given stream; only
//     StreamSynchronize blocks.
//   - The *Batched kernels take device-resident arrays of per-instance
//     pointers (aPtrs/bPtrs), one pointer per batch element, and operate
//     in place on the memory behind them. Matrices are column-major.
//   - Handles are not safe for concurrent use; the caller serializes access
//     (the dispatch layer does this through its handle pool).
type Library interface {
	// Name identifies the implementation ("cuda" or "host").
	Name() string

	CreateHandle() (Handle, error)
	DestroyHandle(h Handle) error
	SetStream(h Handle, s Stream) error

	Malloc(n int) (DevicePtr, error)
	Free(p DevicePtr) error
	MemcpyAsync(dst, src DevicePtr, n int, kind CopyKind, s Stream) error
	StreamSynchronize(s Stream) error

	StrsmBatched(h Handle, side SideMode, uplo FillMode, trans Operation, diag DiagType, m, n int, alpha float32, aPtrs DevicePtr, lda int, bPtrs DevicePtr, ldb, batch int) error
	DtrsmBatched(h Handle, side SideMode, uplo FillMode, trans Operation, diag DiagType, m, n int, alpha float64, aPtrs DevicePtr, lda int, bPtrs DevicePtr, ldb, batch int) error
	CtrsmBatched(h Handle, side SideMode, uplo FillMode, trans Operation, diag DiagType, m, n int, alpha complex64, aPtrs DevicePtr, lda int, bPtrs DevicePtr, ldb, batch int) error
	ZtrsmBatched(h Handle, side SideMode, uplo FillMode, trans Operation, diag DiagType, m, n int, alpha complex128, aPtrs DevicePtr, lda int, bPtrs DevicePtr, ldb, batch int) error

	SgetrfBatched(h Handle, n int, aPtrs DevicePtr, lda int, ipiv, info DevicePtr, batch int) error
	DgetrfBatched(h Handle, n int, aPtrs DevicePtr, lda int, ipiv, info DevicePtr, batch int) error
	CgetrfBatched(h Handle, n int, aPtrs DevicePtr, lda int, ipiv, info DevicePtr, batch int) error
	ZgetrfBatched(h Handle, n int, aPtrs DevicePtr, lda int, ipiv, info DevicePtr, batch int) error
}

// Options overrides the default shared-library names for the CUDA path.
type Options struct {
	CublasLibrary string
	CudartLibrary string
}

// Detect returns the CUDA library when libcublas and libcudart can be loaded,
// falling back to the host implementation otherwise.
func Detect(opts Options, logger *slog.Logger) Library {
	cuda := NewCUDALibrary(opts, logger)
	if cuda.Available() {
		logger.Info("using CUDA cuBLAS library")
		return cuda
	}
	logger.Info("CUDA libraries not found, using host fallback library")
	return NewHostLibrary(logger)
}

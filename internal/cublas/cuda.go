package cublas

import (
	"fmt"
	"log/slog"
	"unsafe"
)

// CUDALibrary implements Library on top of the real cuBLAS and CUDA runtime
// shared libraries.
type CUDALibrary struct {
	logger    *slog.Logger
	available bool
}

// NewCUDALibrary loads libcublas and libcudart. Loading happens once per
// process; the returned instance reports availability via Available.
func NewCUDALibrary(opts Options, logger *slog.Logger) *CUDALibrary {
	l := &CUDALibrary{logger: logger}
	if err := initCublas(opts.CublasLibrary); err != nil {
		logger.Warn("cuBLAS not available", "error", err)
		return l
	}
	if err := initCudart(opts.CudartLibrary); err != nil {
		logger.Warn("CUDA runtime not available", "error", err)
		return l
	}
	l.available = true
	return l
}

// Available reports whether both shared libraries loaded. It does not touch
// any device.
func (l *CUDALibrary) Available() bool { return l.available }

func (l *CUDALibrary) Name() string { return "cuda" }

func (l *CUDALibrary) CreateHandle() (Handle, error) {
	var h uintptr
	if status := cublasCreate_v2(&h); status != cublasSuccess {
		return 0, fmt.Errorf("cublasCreate: %s", status.Error())
	}
	return Handle(h), nil
}

func (l *CUDALibrary) DestroyHandle(h Handle) error {
	if status := cublasDestroy_v2(uintptr(h)); status != cublasSuccess {
		return fmt.Errorf("cublasDestroy: %s", status.Error())
	}
	return nil
}

func (l *CUDALibrary) SetStream(h Handle, s Stream) error {
	if status := cublasSetStream_v2(uintptr(h), uintptr(s)); status != cublasSuccess {
		return fmt.Errorf("cublasSetStream: %s", status.Error())
	}
	return nil
}

func (l *CUDALibrary) Malloc(n int) (DevicePtr, error) {
	var p uintptr
	if err := cudaMalloc(&p, uint64(n)); err != cudaSuccess {
		return 0, fmt.Errorf("cudaMalloc(%d): %s", n, err.Error())
	}
	return DevicePtr(p), nil
}

func (l *CUDALibrary) Free(p DevicePtr) error {
	if err := cudaFree(uintptr(p)); err != cudaSuccess {
		return fmt.Errorf("cudaFree: %s", err.Error())
	}
	return nil
}

func (l *CUDALibrary) MemcpyAsync(dst, src DevicePtr, n int, kind CopyKind, s Stream) error {
	if err := cudaMemcpyAsync(uintptr(dst), uintptr(src), uint64(n), int32(kind), uintptr(s)); err != cudaSuccess {
		return fmt.Errorf("cudaMemcpyAsync(%d bytes): %s", n, err.Error())
	}
	return nil
}

func (l *CUDALibrary) StreamSynchronize(s Stream) error {
	if err := cudaStreamSynchronize(uintptr(s)); err != cudaSuccess {
		return fmt.Errorf("cudaStreamSynchronize: %s", err.Error())
	}
	return nil
}

func (l *CUDALibrary) StrsmBatched(h Handle, side SideMode, uplo FillMode, trans Operation, diag DiagType, m, n int, alpha float32, aPtrs DevicePtr, lda int, bPtrs DevicePtr, ldb, batch int) error {
	// alpha stays in host memory; cuBLAS misbehaves with device-resident scalars.
	status := cublasStrsmBatched(uintptr(h), int32(side), int32(uplo), int32(trans), int32(diag),
		int32(m), int32(n), unsafe.Pointer(&alpha), uintptr(aPtrs), int32(lda), uintptr(bPtrs), int32(ldb), int32(batch))
	if status != cublasSuccess {
		return fmt.Errorf("cublasStrsmBatched: %s", status.Error())
	}
	return nil
}

func (l *CUDALibrary) DtrsmBatched(h Handle, side SideMode, uplo FillMode, trans Operation, diag DiagType, m, n int, alpha float64, aPtrs DevicePtr, lda int, bPtrs DevicePtr, ldb, batch int) error {
	status := cublasDtrsmBatched(uintptr(h), int32(side), int32(uplo), int32(trans), int32(diag),
		int32(m), int32(n), unsafe.Pointer(&alpha), uintptr(aPtrs), int32(lda), uintptr(bPtrs), int32(ldb), int32(batch))
	if status != cublasSuccess {
		return fmt.Errorf("cublasDtrsmBatched: %s", status.Error())
	}
	return nil
}

func (l *CUDALibrary) CtrsmBatched(h Handle, side SideMode, uplo FillMode, trans Operation, diag DiagType, m, n int, alpha complex64, aPtrs DevicePtr, lda int, bPtrs DevicePtr, ldb, batch int) error {
	status := cublasCtrsmBatched(uintptr(h), int32(side), int32(uplo), int32(trans), int32(diag),
		int32(m), int32(n), unsafe.Pointer(&alpha), uintptr(aPtrs), int32(lda), uintptr(bPtrs), int32(ldb), int32(batch))
	if status != cublasSuccess {
		return fmt.Errorf("cublasCtrsmBatched: %s", status.Error())
	}
	return nil
}

func (l *CUDALibrary) ZtrsmBatched(h Handle, side SideMode, uplo FillMode, trans Operation, diag DiagType, m, n int, alpha complex128, aPtrs DevicePtr, lda int, bPtrs DevicePtr, ldb, batch int) error {
	status := cublasZtrsmBatched(uintptr(h), int32(side), int32(uplo), int32(trans), int32(diag),
		int32(m), int32(n), unsafe.Pointer(&alpha), uintptr(aPtrs), int32(lda), uintptr(bPtrs), int32(ldb), int32(batch))
	if status != cublasSuccess {
		return fmt.Errorf("cublasZtrsmBatched: %s", status.Error())
	}
	return nil
}

func (l *CUDALibrary) SgetrfBatched(h Handle, n int, aPtrs DevicePtr, lda int, ipiv, info DevicePtr, batch int) error {
	status := cublasSgetrfBatched(uintptr(h), int32(n), uintptr(aPtrs), int32(lda), uintptr(ipiv), uintptr(info), int32(batch))
	if status != cublasSuccess {
		return fmt.Errorf("cublasSgetrfBatched: %s", status.Error())
	}
	return nil
}

func (l *CUDALibrary) DgetrfBatched(h Handle, n int, aPtrs DevicePtr, lda int, ipiv, info DevicePtr, batch int) error {
	status := cublasDgetrfBatched(uintptr(h), int32(n), uintptr(aPtrs), int32(lda), uintptr(ipiv), uintptr(info), int32(batch))
	if status != cublasSuccess {
		return fmt.Errorf("cublasDgetrfBatched: %s", status.Error())
	}
	return nil
}

func (l *CUDALibrary) CgetrfBatched(h Handle, n int, aPtrs DevicePtr, lda int, ipiv, info DevicePtr, batch int) error {
	status := cublasCgetrfBatched(uintptr(h), int32(n), uintptr(aPtrs), int32(lda), uintptr(ipiv), uintptr(info), int32(batch))
	if status != cublasSuccess {
		return fmt.Errorf("cublasCgetrfBatched: %s", status.Error())
	}
	return nil
}

func (l *CUDALibrary) ZgetrfBatched(h Handle, n int, aPtrs DevicePtr, lda int, ipiv, info DevicePtr, batch int) error {
	status := cublasZgetrfBatched(uintptr(h), int32(n), uintptr(aPtrs), int32(lda), uintptr(ipiv), uintptr(info), int32(batch))
	if status != cublasSuccess {
		return fmt.Errorf("cublasZgetrfBatched: %s", status.Error())
	}
	return nil
}

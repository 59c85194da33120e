package cublas

// cuBLAS bindings via purego.
//
// No cgo required; libcublas.so is dlopen'ed at runtime. We bind only the
// surface the dispatch layer needs: handle lifecycle, stream binding, and the
// eight batched kernels (trsmBatched and getrfBatched for S/D/C/Z).

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

type cublasStatus int32

const (
	cublasSuccess         cublasStatus = 0
	cublasNotInitialized  cublasStatus = 1
	cublasAllocFailed     cublasStatus = 3
	cublasInvalidValue    cublasStatus = 7
	cublasArchMismatch    cublasStatus = 8
	cublasExecutionFailed cublasStatus = 13
	cublasInternalError   cublasStatus = 14
	cublasNotSupported    cublasStatus = 15
)

func (s cublasStatus) Error() string {
	names := map[cublasStatus]string{
		1: "NOT_INITIALIZED", 3: "ALLOC_FAILED",
		7: "INVALID_VALUE", 8: "ARCH_MISMATCH", 13: "EXECUTION_FAILED",
		14: "INTERNAL_ERROR", 15: "NOT_SUPPORTED",
	}
	if name, ok := names[s]; ok {
		return fmt.Sprintf("CUBLAS_STATUS_%s", name)
	}
	return fmt.Sprintf("CUBLAS_ERROR(%d)", s)
}

var (
	cublasOnce sync.Once
	cublasErr  error

	cublasCreate_v2    func(handle *uintptr) cublasStatus
	cublasDestroy_v2   func(handle uintptr) cublasStatus
	cublasSetStream_v2 func(handle uintptr, stream uintptr) cublasStatus

	// (handle, side, uplo, trans, diag, m, n, alpha, Aarray, lda, Barray, ldb, batchCount)
	cublasStrsmBatched func(handle uintptr, side, uplo, trans, diag int32, m, n int32, alpha unsafe.Pointer, aArray uintptr, lda int32, bArray uintptr, ldb int32, batch int32) cublasStatus
	cublasDtrsmBatched func(handle uintptr, side, uplo, trans, diag int32, m, n int32, alpha unsafe.Pointer, aArray uintptr, lda int32, bArray uintptr, ldb int32, batch int32) cublasStatus
	cublasCtrsmBatched func(handle uintptr, side, uplo, trans, diag int32, m, n int32, alpha unsafe.Pointer, aArray uintptr, lda int32, bArray uintptr, ldb int32, batch int32) cublasStatus
	cublasZtrsmBatched func(handle uintptr, side, uplo, trans, diag int32, m, n int32, alpha unsafe.Pointer, aArray uintptr, lda int32, bArray uintptr, ldb int32, batch int32) cublasStatus

	// (handle, n, Aarray, lda, ipiv, info, batchCount); ipiv and info are device arrays
	cublasSgetrfBatched func(handle uintptr, n int32, aArray uintptr, lda int32, ipiv uintptr, info uintptr, batch int32) cublasStatus
	cublasDgetrfBatched func(handle uintptr, n int32, aArray uintptr, lda int32, ipiv uintptr, info uintptr, batch int32) cublasStatus
	cublasCgetrfBatched func(handle uintptr, n int32, aArray uintptr, lda int32, ipiv uintptr, info uintptr, batch int32) cublasStatus
	cublasZgetrfBatched func(handle uintptr, n int32, aArray uintptr, lda int32, ipiv uintptr, info uintptr, batch int32) cublasStatus
)

func dlopenFirst(names ...string) (uintptr, error) {
	var lastErr error
	for _, name := range names {
		lib, err := purego.Dlopen(name, purego.RTLD_LAZY|purego.RTLD_GLOBAL)
		if err == nil {
			return lib, nil
		}
		lastErr = err
	}
	return 0, lastErr
}

func initCublas(override string) error {
	cublasOnce.Do(func() {
		names := []string{"libcublas.so.12", "libcublas.so.11", "libcublas.so"}
		if override != "" {
			names = []string{override}
		}
		lib, err := dlopenFirst(names...)
		if err != nil {
			cublasErr = fmt.Errorf("cannot load libcublas: %w", err)
			return
		}

		purego.RegisterLibFunc(&cublasCreate_v2, lib, "cublasCreate_v2")
		purego.RegisterLibFunc(&cublasDestroy_v2, lib, "cublasDestroy_v2")
		purego.RegisterLibFunc(&cublasSetStream_v2, lib, "cublasSetStream_v2")
		purego.RegisterLibFunc(&cublasStrsmBatched, lib, "cublasStrsmBatched")
		purego.RegisterLibFunc(&cublasDtrsmBatched, lib, "cublasDtrsmBatched")
		purego.RegisterLibFunc(&cublasCtrsmBatched, lib, "cublasCtrsmBatched")
		purego.RegisterLibFunc(&cublasZtrsmBatched, lib, "cublasZtrsmBatched")
		purego.RegisterLibFunc(&cublasSgetrfBatched, lib, "cublasSgetrfBatched")
		purego.RegisterLibFunc(&cublasDgetrfBatched, lib, "cublasDgetrfBatched")
		purego.RegisterLibFunc(&cublasCgetrfBatched, lib, "cublasCgetrfBatched")
		purego.RegisterLibFunc(&cublasZgetrfBatched, lib, "cublasZgetrfBatched")
	})
	return cublasErr
}

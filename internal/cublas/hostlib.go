package cublas

// HostLibrary is a pure-host implementation of Library. "Device" pointers
// address ordinary process memory, copies run synchronously and streams are
// inert. The batched kernels are straightforward reference implementations
// (column-major, matching cuBLAS semantics).
//
// It serves two roles: the fallback when the CUDA libraries are absent, and
// the vehicle for exercising the full dispatch path in tests.

import (
	"fmt"
	"log/slog"
	"math"
	"math/cmplx"
	"sync"
	"unsafe"
)

type scalar interface {
	~float32 | ~float64 | ~complex64 | ~complex128
}

type HostLibrary struct {
	logger *slog.Logger

	mu         sync.Mutex
	allocs     map[DevicePtr][]byte
	handles    map[Handle]Stream
	nextHandle Handle
}

func NewHostLibrary(logger *slog.Logger) *HostLibrary {
	logger.Debug("host fallback library initialized")
	return &HostLibrary{
		logger:  logger,
		allocs:  make(map[DevicePtr][]byte),
		handles: make(map[Handle]Stream),
	}
}

func (l *HostLibrary) Name() string { return "host" }

func (l *HostLibrary) CreateHandle() (Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextHandle++
	h := l.nextHandle
	l.handles[h] = 0
	return h, nil
}

func (l *HostLibrary) DestroyHandle(h Handle) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.handles[h]; !ok {
		return fmt.Errorf("cublasDestroy: %s", cublasInvalidValue.Error())
	}
	delete(l.handles, h)
	return nil
}

func (l *HostLibrary) SetStream(h Handle, s Stream) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.handles[h]; !ok {
		return fmt.Errorf("cublasSetStream: %s", cublasNotInitialized.Error())
	}
	l.handles[h] = s
	return nil
}

func (l *HostLibrary) checkHandle(call string, h Handle) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.handles[h]; !ok {
		return fmt.Errorf("%s: %s", call, cublasNotInitialized.Error())
	}
	return nil
}

// Malloc backs a "device" buffer with host memory. The allocation is pinned
// in the map so the garbage collector keeps it alive while a raw address is
// outstanding.
func (l *HostLibrary) Malloc(n int) (DevicePtr, error) {
	if n <= 0 {
		return 0, fmt.Errorf("malloc: invalid size %d", n)
	}
	buf := make([]byte, n)
	p := DevicePtr(uintptr(unsafe.Pointer(&buf[0])))
	l.mu.Lock()
	l.allocs[p] = buf
	l.mu.Unlock()
	return p, nil
}

func (l *HostLibrary) Free(p DevicePtr) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.allocs[p]; !ok {
		return fmt.Errorf("free: unknown pointer %#x", uintptr(p))
	}
	delete(l.allocs, p)
	return nil
}

func (l *HostLibrary) MemcpyAsync(dst, src DevicePtr, n int, kind CopyKind, s Stream) error {
	if n < 0 {
		return fmt.Errorf("memcpy: negative length %d", n)
	}
	if n == 0 {
		return nil
	}
	if dst == 0 || src == 0 {
		return fmt.Errorf("memcpy: %s", cudaError(1).Error())
	}
	dstSlice := unsafe.Slice((*byte)(unsafe.Pointer(dst)), n)
	srcSlice := unsafe.Slice((*byte)(unsafe.Pointer(src)), n)
	copy(dstSlice, srcSlice)
	return nil
}

func (l *HostLibrary) StreamSynchronize(s Stream) error { return nil }

func (l *HostLibrary) StrsmBatched(h Handle, side SideMode, uplo FillMode, trans Operation, diag DiagType, m, n int, alpha float32, aPtrs DevicePtr, lda int, bPtrs DevicePtr, ldb, batch int) error {
	if err := l.checkHandle("cublasStrsmBatched", h); err != nil {
		return err
	}
	return trsmBatchedHost[float32]("cublasStrsmBatched", side, uplo, trans, diag, m, n, alpha, aPtrs, lda, bPtrs, ldb, batch)
}

func (l *HostLibrary) DtrsmBatched(h Handle, side SideMode, uplo FillMode, trans Operation, diag DiagType, m, n int, alpha float64, aPtrs DevicePtr, lda int, bPtrs DevicePtr, ldb, batch int) error {
	if err := l.checkHandle("cublasDtrsmBatched", h); err != nil {
		return err
	}
	return trsmBatchedHost[float64]("cublasDtrsmBatched", side, uplo, trans, diag, m, n, alpha, aPtrs, lda, bPtrs, ldb, batch)
}

func (l *HostLibrary) CtrsmBatched(h Handle, side SideMode, uplo FillMode, trans Operation, diag DiagType, m, n int, alpha complex64, aPtrs DevicePtr, lda int, bPtrs DevicePtr, ldb, batch int) error {
	if err := l.checkHandle("cublasCtrsmBatched", h); err != nil {
		return err
	}
	return trsmBatchedHost[complex64]("cublasCtrsmBatched", side, uplo, trans, diag, m, n, alpha, aPtrs, lda, bPtrs, ldb, batch)
}

func (l *HostLibrary) ZtrsmBatched(h Handle, side SideMode, uplo FillMode, trans Operation, diag DiagType, m, n int, alpha complex128, aPtrs DevicePtr, lda int, bPtrs DevicePtr, ldb, batch int) error {
	if err := l.checkHandle("cublasZtrsmBatched", h); err != nil {
		return err
	}
	return trsmBatchedHost[complex128]("cublasZtrsmBatched", side, uplo, trans, diag, m, n, alpha, aPtrs, lda, bPtrs, ldb, batch)
}

func (l *HostLibrary) SgetrfBatched(h Handle, n int, aPtrs DevicePtr, lda int, ipiv, info DevicePtr, batch int) error {
	if err := l.checkHandle("cublasSgetrfBatched", h); err != nil {
		return err
	}
	return getrfBatchedHost[float32]("cublasSgetrfBatched", n, aPtrs, lda, ipiv, info, batch)
}

func (l *HostLibrary) DgetrfBatched(h Handle, n int, aPtrs DevicePtr, lda int, ipiv, info DevicePtr, batch int) error {
	if err := l.checkHandle("cublasDgetrfBatched", h); err != nil {
		return err
	}
	return getrfBatchedHost[float64]("cublasDgetrfBatched", n, aPtrs, lda, ipiv, info, batch)
}

func (l *HostLibrary) CgetrfBatched(h Handle, n int, aPtrs DevicePtr, lda int, ipiv, info DevicePtr, batch int) error {
	if err := l.checkHandle("cublasCgetrfBatched", h); err != nil {
		return err
	}
	return getrfBatchedHost[complex64]("cublasCgetrfBatched", n, aPtrs, lda, ipiv, info, batch)
}

func (l *HostLibrary) ZgetrfBatched(h Handle, n int, aPtrs DevicePtr, lda int, ipiv, info DevicePtr, batch int) error {
	if err := l.checkHandle("cublasZgetrfBatched", h); err != nil {
		return err
	}
	return getrfBatchedHost[complex128]("cublasZgetrfBatched", n, aPtrs, lda, ipiv, info, batch)
}

// pointerArray views a device-resident pointer array as a slice of addresses.
func pointerArray(p DevicePtr, batch int) []uintptr {
	return unsafe.Slice((*uintptr)(unsafe.Pointer(p)), batch)
}

func matrixAt[T scalar](addr uintptr, length int) []T {
	return unsafe.Slice((*T)(unsafe.Pointer(addr)), length)
}

func trsmBatchedHost[T scalar](call string, side SideMode, uplo FillMode, trans Operation, diag DiagType, m, n int, alpha T, aPtrs DevicePtr, lda int, bPtrs DevicePtr, ldb, batch int) error {
	ka := m
	if side == SideRight {
		ka = n
	}
	if m < 0 || n < 0 || batch < 0 || lda < max(1, ka) || ldb < max(1, m) || aPtrs == 0 || bPtrs == 0 {
		return fmt.Errorf("%s: %s", call, cublasInvalidValue.Error())
	}
	if m == 0 || n == 0 || batch == 0 {
		return nil
	}
	ap := pointerArray(aPtrs, batch)
	bp := pointerArray(bPtrs, batch)
	for i := 0; i < batch; i++ {
		a := matrixAt[T](ap[i], lda*ka)
		b := matrixAt[T](bp[i], ldb*n)
		trsmHost(side, uplo, trans, diag, m, n, alpha, a, lda, b, ldb)
	}
	return nil
}

// trsmHost solves op(A)·X = alpha·B (left) or X·op(A) = alpha·B (right) in
// place over B. Column-major with leading dimensions lda/ldb.
func trsmHost[T scalar](side SideMode, uplo FillMode, trans Operation, diag DiagType, m, n int, alpha T, a []T, lda int, b []T, ldb int) {
	at := func(i, j int) T {
		if trans == OpN {
			return a[i+j*lda]
		}
		v := a[j+i*lda]
		if trans == OpC {
			v = conjScalar(v)
		}
		return v
	}
	// Transposing flips which triangle holds the data.
	lower := (uplo == FillLower) == (trans == OpN)
	unit := diag == DiagUnit

	if side == SideLeft {
		for c := 0; c < n; c++ {
			solveTri(at, lower, unit, m, alpha, b, c*ldb, 1)
		}
		return
	}
	// X·op(A) = alpha·B row-wise is op(A)ᵀ·xᵀ = alpha·bᵀ per row of B.
	att := func(i, j int) T { return at(j, i) }
	for r := 0; r < m; r++ {
		solveTri(att, !lower, unit, n, alpha, b, r, ldb)
	}
}

// solveTri runs forward (lower) or backward (upper) substitution over the
// k elements b[off], b[off+stride], ... in place.
func solveTri[T scalar](at func(i, j int) T, lower, unit bool, k int, alpha T, b []T, off, stride int) {
	if lower {
		for i := 0; i < k; i++ {
			sum := alpha * b[off+i*stride]
			for j := 0; j < i; j++ {
				sum -= at(i, j) * b[off+j*stride]
			}
			if !unit {
				sum /= at(i, i)
			}
			b[off+i*stride] = sum
		}
		return
	}
	for i := k - 1; i >= 0; i-- {
		sum := alpha * b[off+i*stride]
		for j := i + 1; j < k; j++ {
			sum -= at(i, j) * b[off+j*stride]
		}
		if !unit {
			sum /= at(i, i)
		}
		b[off+i*stride] = sum
	}
}

func getrfBatchedHost[T scalar](call string, n int, aPtrs DevicePtr, lda int, ipiv, info DevicePtr, batch int) error {
	if n < 0 || batch < 0 || lda < max(1, n) || aPtrs == 0 || info == 0 {
		return fmt.Errorf("%s: %s", call, cublasInvalidValue.Error())
	}
	if batch == 0 {
		return nil
	}
	ap := pointerArray(aPtrs, batch)
	infos := unsafe.Slice((*int32)(unsafe.Pointer(info)), batch)
	var pivots []int32
	if ipiv != 0 {
		pivots = unsafe.Slice((*int32)(unsafe.Pointer(ipiv)), batch*n)
	}
	for i := 0; i < batch; i++ {
		a := matrixAt[T](ap[i], lda*n)
		var piv []int32
		if pivots != nil {
			piv = pivots[i*n : (i+1)*n]
		}
		getrfHost(n, a, lda, piv, &infos[i])
	}
	return nil
}

// getrfHost computes an in-place LU factorization with partial pivoting of
// an n×n column-major matrix. Pivot indices are 1-based as in cuBLAS; info
// receives the 1-based index of the first zero pivot, or 0.
func getrfHost[T scalar](n int, a []T, lda int, ipiv []int32, info *int32) {
	*info = 0
	for j := 0; j < n; j++ {
		p := j
		maxAbs := absScalar(a[j+j*lda])
		for i := j + 1; i < n; i++ {
			if v := absScalar(a[i+j*lda]); v > maxAbs {
				maxAbs, p = v, i
			}
		}
		if ipiv != nil {
			ipiv[j] = int32(p + 1)
		}
		if maxAbs != 0 {
			if p != j {
				for c := 0; c < n; c++ {
					a[p+c*lda], a[j+c*lda] = a[j+c*lda], a[p+c*lda]
				}
			}
			pivot := a[j+j*lda]
			for i := j + 1; i < n; i++ {
				a[i+j*lda] /= pivot
			}
		} else if *info == 0 {
			*info = int32(j + 1)
		}
		for c := j + 1; c < n; c++ {
			f := a[j+c*lda]
			if f == 0 {
				continue
			}
			for i := j + 1; i < n; i++ {
				a[i+c*lda] -= a[i+j*lda] * f
			}
		}
	}
}

func conjScalar[T scalar](v T) T {
	switch x := any(v).(type) {
	case complex64:
		return any(complex(real(x), -imag(x))).(T)
	case complex128:
		return any(cmplx.Conj(x)).(T)
	default:
		return v
	}
}

func absScalar[T scalar](v T) float64 {
	switch x := any(v).(type) {
	case float32:
		return math.Abs(float64(x))
	case float64:
		return math.Abs(x)
	case complex64:
		return cmplx.Abs(complex128(x))
	case complex128:
		return cmplx.Abs(x)
	}
	return 0
}

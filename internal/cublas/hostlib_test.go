package cublas

import (
	"log/slog"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func newTestLibrary(t *testing.T) (*HostLibrary, Handle) {
	t.Helper()
	lib := NewHostLibrary(slog.Default())
	h, err := lib.CreateHandle()
	require.NoError(t, err)
	return lib, h
}

// colMajorDense converts a column-major buffer with leading dimension ld
// into a gonum matrix for checking.
func colMajorDense(rows, cols int, data []float64, ld int) *mat.Dense {
	d := mat.NewDense(rows, cols, nil)
	for j := 0; j < cols; j++ {
		for i := 0; i < rows; i++ {
			d.Set(i, j, data[i+j*ld])
		}
	}
	return d
}

func ptrOf[T any](s []T) uintptr {
	return uintptr(unsafe.Pointer(&s[0]))
}

func TestHandleLifecycle(t *testing.T) {
	lib := NewHostLibrary(slog.Default())

	h, err := lib.CreateHandle()
	require.NoError(t, err)

	err = lib.SetStream(h, Stream(42))
	assert.NoError(t, err)

	err = lib.DestroyHandle(h)
	assert.NoError(t, err)

	// Operations on a destroyed handle fail like cuBLAS does.
	err = lib.SetStream(h, 0)
	assert.Error(t, err)
	err = lib.DestroyHandle(h)
	assert.Error(t, err)
}

func TestMallocMemcpy(t *testing.T) {
	lib := NewHostLibrary(slog.Default())

	dst, err := lib.Malloc(8)
	require.NoError(t, err)
	defer lib.Free(dst)

	src := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	err = lib.MemcpyAsync(dst, DevicePtr(ptrOf(src)), len(src), CopyHostToDevice, 0)
	require.NoError(t, err)
	require.NoError(t, lib.StreamSynchronize(0))

	out := make([]byte, 8)
	err = lib.MemcpyAsync(DevicePtr(ptrOf(out)), dst, len(out), CopyDeviceToHost, 0)
	require.NoError(t, err)
	assert.Equal(t, src, out)

	assert.Error(t, lib.Free(dst+1))
}

func TestDtrsmBatchedLeftLower(t *testing.T) {
	lib, h := newTestLibrary(t)

	const m, n, batch = 3, 2, 2
	// Column-major lower-triangular systems.
	as := [batch][]float64{
		{2, 1, 3, 0, 4, 5, 0, 0, 6},
		{1, 2, 4, 0, 3, 5, 0, 0, 2},
	}
	bs := [batch][]float64{
		{4, 2, 6, 8, 10, 12},
		{1, 3, 5, 7, 9, 11},
	}
	var want [batch]*mat.Dense
	for i := 0; i < batch; i++ {
		var x mat.Dense
		require.NoError(t, x.Solve(colMajorDense(m, m, as[i], m), colMajorDense(m, n, bs[i], m)))
		want[i] = &x
	}

	aPtrs := []uintptr{ptrOf(as[0]), ptrOf(as[1])}
	bPtrs := []uintptr{ptrOf(bs[0]), ptrOf(bs[1])}
	err := lib.DtrsmBatched(h, SideLeft, FillLower, OpN, DiagNonUnit, m, n, 1.0,
		DevicePtr(ptrOf(aPtrs)), m, DevicePtr(ptrOf(bPtrs)), m, batch)
	require.NoError(t, err)

	for i := 0; i < batch; i++ {
		got := colMajorDense(m, n, bs[i], m)
		assert.InDeltaf(t, 0, mat.Norm(diff(got, want[i]), 2), 1e-12, "batch %d", i)
	}
}

func diff(a, b *mat.Dense) *mat.Dense {
	var d mat.Dense
	d.Sub(a, b)
	return &d
}

func TestDtrsmBatchedUpperTranspose(t *testing.T) {
	lib, h := newTestLibrary(t)

	const m, n = 3, 1
	// Upper-triangular A; solving Aᵀ·x = b is forward substitution.
	a := []float64{2, 0, 0, 1, 3, 0, 4, 5, 6}
	b := []float64{2, 5, 30}

	aDense := colMajorDense(m, m, a, m)
	var want mat.Dense
	require.NoError(t, want.Solve(aDense.T(), colMajorDense(m, n, b, m)))

	aPtrs := []uintptr{ptrOf(a)}
	bPtrs := []uintptr{ptrOf(b)}
	err := lib.DtrsmBatched(h, SideLeft, FillUpper, OpT, DiagNonUnit, m, n, 1.0,
		DevicePtr(ptrOf(aPtrs)), m, DevicePtr(ptrOf(bPtrs)), m, 1)
	require.NoError(t, err)

	for i := 0; i < m; i++ {
		assert.InDelta(t, want.At(i, 0), b[i], 1e-12)
	}
}

func TestDtrsmBatchedRightSide(t *testing.T) {
	lib, h := newTestLibrary(t)

	const m, n = 2, 3
	// Solve X·A = B with A n×n upper-triangular.
	a := []float64{2, 0, 0, 1, 3, 0, 4, 5, 6}
	b := []float64{2, 4, 8, 10, 22, 40}

	var aInv mat.Dense
	require.NoError(t, aInv.Inverse(colMajorDense(n, n, a, n)))
	var want mat.Dense
	want.Mul(colMajorDense(m, n, b, m), &aInv)

	aPtrs := []uintptr{ptrOf(a)}
	bPtrs := []uintptr{ptrOf(b)}
	err := lib.DtrsmBatched(h, SideRight, FillUpper, OpN, DiagNonUnit, m, n, 1.0,
		DevicePtr(ptrOf(aPtrs)), n, DevicePtr(ptrOf(bPtrs)), m, 1)
	require.NoError(t, err)

	got := colMajorDense(m, n, b, m)
	assert.InDelta(t, 0, mat.Norm(diff(got, &want), 2), 1e-12)
}

func TestDtrsmBatchedUnitDiagonal(t *testing.T) {
	lib, h := newTestLibrary(t)

	const m, n = 2, 1
	// Diagonal entries must be ignored when DiagUnit is set.
	a := []float64{99, 2, 0, 42}
	b := []float64{3, 10}

	aPtrs := []uintptr{ptrOf(a)}
	bPtrs := []uintptr{ptrOf(b)}
	err := lib.DtrsmBatched(h, SideLeft, FillLower, OpN, DiagUnit, m, n, 1.0,
		DevicePtr(ptrOf(aPtrs)), m, DevicePtr(ptrOf(bPtrs)), m, 1)
	require.NoError(t, err)

	// x0 = 3, x1 = 10 - 2*3 = 4
	assert.InDelta(t, 3.0, b[0], 1e-12)
	assert.InDelta(t, 4.0, b[1], 1e-12)
}

func TestZtrsmBatchedConjTranspose(t *testing.T) {
	lib, h := newTestLibrary(t)

	const m, n = 2, 1
	// Lower-triangular complex A; OpC solves conj(A)ᵀ·x = b (upper system).
	a := []complex128{2, 1 + 1i, 0, 4i}
	b := []complex128{6, 8i}

	// conj(A)ᵀ = [[2, 1-1i], [0, -4i]], backward substitution:
	// x1 = 8i / -4i = -2; x0 = (6 - (1-1i)*(-2)) / 2 = (8 - 2i) / 2 = 4 - 1i
	aPtrs := []uintptr{ptrOf(a)}
	bPtrs := []uintptr{ptrOf(b)}
	err := lib.ZtrsmBatched(h, SideLeft, FillLower, OpC, DiagNonUnit, m, n, 1,
		DevicePtr(ptrOf(aPtrs)), m, DevicePtr(ptrOf(bPtrs)), m, 1)
	require.NoError(t, err)

	assert.InDelta(t, 4, real(b[0]), 1e-12)
	assert.InDelta(t, -1, imag(b[0]), 1e-12)
	assert.InDelta(t, -2, real(b[1]), 1e-12)
	assert.InDelta(t, 0, imag(b[1]), 1e-12)
}

func TestDgetrfBatchedRecomposes(t *testing.T) {
	lib, h := newTestLibrary(t)

	const n, batch = 3, 2
	src := [batch][]float64{
		{4, 2, 1, 3, 8, 5, 2, 6, 9},
		{1, 4, 7, 2, 5, 8, 3, 6, 10},
	}
	work := [batch][]float64{
		append([]float64(nil), src[0]...),
		append([]float64(nil), src[1]...),
	}
	ipiv := make([]int32, batch*n)
	info := make([]int32, batch)

	aPtrs := []uintptr{ptrOf(work[0]), ptrOf(work[1])}
	err := lib.DgetrfBatched(h, n, DevicePtr(ptrOf(aPtrs)), n,
		DevicePtr(ptrOf(ipiv)), DevicePtr(ptrOf(info)), batch)
	require.NoError(t, err)

	for bi := 0; bi < batch; bi++ {
		assert.Equal(t, int32(0), info[bi])

		// Rebuild L·U and undo the row swaps; the result must match the input.
		l := mat.NewDense(n, n, nil)
		u := mat.NewDense(n, n, nil)
		for j := 0; j < n; j++ {
			for i := 0; i < n; i++ {
				v := work[bi][i+j*n]
				switch {
				case i > j:
					l.Set(i, j, v)
				case i == j:
					l.Set(i, j, 1)
					u.Set(i, j, v)
				default:
					u.Set(i, j, v)
				}
			}
		}
		var lu mat.Dense
		lu.Mul(l, u)
		// Apply the recorded swaps in reverse to recover A.
		for j := n - 1; j >= 0; j-- {
			p := int(ipiv[bi*n+j]) - 1
			if p != j {
				swapRows(&lu, p, j)
			}
		}
		got := &lu
		want := colMajorDense(n, n, src[bi], n)
		assert.InDeltaf(t, 0, mat.Norm(diff(got, want), 2), 1e-12, "batch %d", bi)
	}
}

func swapRows(d *mat.Dense, a, b int) {
	_, cols := d.Dims()
	for c := 0; c < cols; c++ {
		va, vb := d.At(a, c), d.At(b, c)
		d.Set(a, c, vb)
		d.Set(b, c, va)
	}
}

func TestSgetrfBatchedSingular(t *testing.T) {
	lib, h := newTestLibrary(t)

	const n = 2
	// Rank-deficient: second column is a multiple of the first.
	a := []float32{1, 2, 2, 4}
	ipiv := make([]int32, n)
	info := make([]int32, 1)

	aPtrs := []uintptr{ptrOf(a)}
	err := lib.SgetrfBatched(h, n, DevicePtr(ptrOf(aPtrs)), n,
		DevicePtr(ptrOf(ipiv)), DevicePtr(ptrOf(info)), 1)
	require.NoError(t, err)
	assert.NotZero(t, info[0])
}

func TestTrsmBatchedBadArguments(t *testing.T) {
	lib, h := newTestLibrary(t)

	err := lib.DtrsmBatched(h, SideLeft, FillLower, OpN, DiagNonUnit, -1, 1, 1.0, 1, 1, 1, 1, 1)
	assert.Error(t, err)

	err = lib.DgetrfBatched(h, 2, 0, 2, 0, 0, 1)
	assert.Error(t, err)
}

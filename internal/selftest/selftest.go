package selftest

import (
	"fmt"
	"math"
	"time"
	"unsafe"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/fxnlabs/gpu-bridge/internal/cublas"
	"github.com/fxnlabs/gpu-bridge/internal/dispatch"
)

// Result summarizes one startup self-test run.
type Result struct {
	Op       string
	Backend  string
	Batch    int
	M        int
	N        int
	MaxError float64
	Elapsed  time.Duration
}

const (
	batch = 2
	m     = 4
	n     = 1

	tolerance = 1e-10
)

// Run drives a known batched triangular solve through the full dispatch path
// and checks the solutions against a dense reference solve. It exercises the
// same code a caller would hit: descriptor build, handle borrow, pointer
// staging and the typed kernel.
func Run(lib cublas.Library, d *dispatch.Dispatcher, log *zap.Logger) (*Result, error) {
	log = log.Named("selftest")
	start := time.Now()

	// Diagonally dominant lower-triangular operands, column-major.
	as := make([]float64, batch*m*m)
	bs := make([]float64, batch*m*n)
	for bi := 0; bi < batch; bi++ {
		for j := 0; j < m; j++ {
			for i := j; i < m; i++ {
				v := 1.0 / float64(i+j+1)
				if i == j {
					v = float64(m + bi + 1)
				}
				as[bi*m*m+i+j*m] = v
			}
			bs[bi*m+j] = float64(j - bi + 1)
		}
	}

	aBuf, err := deviceSlice(lib, as)
	if err != nil {
		return nil, err
	}
	defer lib.Free(aBuf)
	bBuf, err := deviceSlice(lib, bs)
	if err != nil {
		return nil, err
	}
	defer lib.Free(bBuf)

	outBuf, err := lib.Malloc(len(bs) * 8)
	if err != nil {
		return nil, fmt.Errorf("allocating output buffer: %w", err)
	}
	defer lib.Free(outBuf)

	scratchBytes, opaque, err := dispatch.BuildTrsmBatchedDescriptor("float64", batch, m, n, true, true, false, false, false)
	if err != nil {
		return nil, err
	}
	aScratch, err := lib.Malloc(scratchBytes)
	if err != nil {
		return nil, fmt.Errorf("allocating pointer scratch: %w", err)
	}
	defer lib.Free(aScratch)
	bScratch, err := lib.Malloc(scratchBytes)
	if err != nil {
		return nil, fmt.Errorf("allocating pointer scratch: %w", err)
	}
	defer lib.Free(bScratch)

	var status dispatch.Status
	d.TrsmBatched(0, []cublas.DevicePtr{aBuf, bBuf, outBuf, aScratch, bScratch}, opaque, &status)
	if status.Failed() {
		return nil, fmt.Errorf("batched triangular solve failed: %s", status.Message())
	}

	got := make([]float64, batch*m*n)
	if err := copyOut(lib, got, outBuf); err != nil {
		return nil, err
	}

	maxErr := 0.0
	for bi := 0; bi < batch; bi++ {
		a := mat.NewDense(m, m, nil)
		for j := 0; j < m; j++ {
			for i := 0; i < m; i++ {
				a.Set(i, j, as[bi*m*m+i+j*m])
			}
		}
		want := mat.NewVecDense(m, nil)
		if err := want.SolveVec(a, mat.NewVecDense(m, bs[bi*m:(bi+1)*m])); err != nil {
			return nil, fmt.Errorf("reference solve: %w", err)
		}
		for i := 0; i < m; i++ {
			if e := math.Abs(got[bi*m+i] - want.AtVec(i)); e > maxErr {
				maxErr = e
			}
		}
	}

	res := &Result{
		Op:       dispatch.OpTrsmBatched,
		Backend:  lib.Name(),
		Batch:    batch,
		M:        m,
		N:        n,
		MaxError: maxErr,
		Elapsed:  time.Since(start),
	}
	if maxErr > tolerance {
		log.Error("self-test solutions diverge from reference",
			zap.String("backend", res.Backend),
			zap.Float64("max_error", maxErr),
			zap.Float64("tolerance", tolerance))
		return res, fmt.Errorf("self-test max error %g exceeds tolerance %g", maxErr, tolerance)
	}

	log.Info("self-test passed",
		zap.String("op", res.Op),
		zap.String("backend", res.Backend),
		zap.Int("batch", batch),
		zap.Float64("max_error", maxErr),
		zap.Duration("elapsed", res.Elapsed))
	return res, nil
}

func deviceSlice(lib cublas.Library, data []float64) (cublas.DevicePtr, error) {
	size := len(data) * 8
	buf, err := lib.Malloc(size)
	if err != nil {
		return 0, fmt.Errorf("allocating device buffer: %w", err)
	}
	src := cublas.DevicePtr(uintptr(unsafe.Pointer(&data[0])))
	if err := lib.MemcpyAsync(buf, src, size, cublas.CopyHostToDevice, 0); err != nil {
		lib.Free(buf)
		return 0, fmt.Errorf("uploading device buffer: %w", err)
	}
	if err := lib.StreamSynchronize(0); err != nil {
		lib.Free(buf)
		return 0, err
	}
	return buf, nil
}

func copyOut(lib cublas.Library, dst []float64, src cublas.DevicePtr) error {
	size := len(dst) * 8
	p := cublas.DevicePtr(uintptr(unsafe.Pointer(&dst[0])))
	if err := lib.MemcpyAsync(p, src, size, cublas.CopyDeviceToHost, 0); err != nil {
		return fmt.Errorf("downloading results: %w", err)
	}
	return lib.StreamSynchronize(0)
}

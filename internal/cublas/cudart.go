package cublas

// CUDA runtime bindings via purego. Only the memory and stream calls the
// dispatch layer needs: cudaMalloc/cudaFree, cudaMemcpyAsync and
// cudaStreamSynchronize.

import (
	"fmt"
	"sync"

	"github.com/ebitengine/purego"
)

type cudaError int32

const cudaSuccess cudaError = 0

func (e cudaError) Error() string {
	names := map[cudaError]string{
		1: "INVALID_VALUE", 2: "MEMORY_ALLOCATION", 3: "INITIALIZATION_ERROR",
		100: "NO_DEVICE", 101: "INVALID_DEVICE", 400: "INVALID_RESOURCE_HANDLE",
		700: "ILLEGAL_ADDRESS", 719: "LAUNCH_FAILURE",
	}
	if name, ok := names[e]; ok {
		return fmt.Sprintf("CUDA_ERROR_%s (%d)", name, e)
	}
	return fmt.Sprintf("CUDA_ERROR(%d)", e)
}

var (
	cudartOnce sync.Once
	cudartErr  error

	cudaMalloc            func(devPtr *uintptr, size uint64) cudaError
	cudaFree              func(devPtr uintptr) cudaError
	cudaMemcpyAsync       func(dst uintptr, src uintptr, count uint64, kind int32, stream uintptr) cudaError
	cudaStreamSynchronize func(stream uintptr) cudaError
)

func initCudart(override string) error {
	cudartOnce.Do(func() {
		names := []string{"libcudart.so.12", "libcudart.so.11.0", "libcudart.so"}
		if override != "" {
			names = []string{override}
		}
		lib, err := dlopenFirst(names...)
		if err != nil {
			cudartErr = fmt.Errorf("cannot load libcudart: %w", err)
			return
		}

		purego.RegisterLibFunc(&cudaMalloc, lib, "cudaMalloc")
		purego.RegisterLibFunc(&cudaFree, lib, "cudaFree")
		purego.RegisterLibFunc(&cudaMemcpyAsync, lib, "cudaMemcpyAsync")
		purego.RegisterLibFunc(&cudaStreamSynchronize, lib, "cudaStreamSynchronize")
	})
	return cudartErr
}

package selftest

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fxnlabs/gpu-bridge/internal/cublas"
	"github.com/fxnlabs/gpu-bridge/internal/dispatch"
)

func TestRun(t *testing.T) {
	lib := cublas.NewHostLibrary(slog.Default())
	pool := dispatch.NewHandlePool(lib)
	defer pool.Close()
	d := dispatch.NewDispatcher(lib, pool, zap.NewNop())

	res, err := Run(lib, d, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, dispatch.OpTrsmBatched, res.Op)
	assert.Equal(t, lib.Name(), res.Backend)
	assert.Equal(t, batch, res.Batch)
	assert.LessOrEqual(t, res.MaxError, tolerance)
}
